// Package messaging defines the transport-neutral inbound event and outbound message contract,
// and adapts the Telegram, WhatsApp and Twilio clients to it.
package messaging

import (
	"context"
	"errors"
	"time"
)

// Constants for service configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for event channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned by operations on a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

// Button is one inline button. Data is a callback token.
type Button struct {
	Text string
	Data string
}

// Keyboard is rows of buttons.
type Keyboard [][]Button

// Buttons returns the buttons in reading order.
func (k Keyboard) Buttons() []Button {
	var out []Button
	for _, row := range k {
		out = append(out, row...)
	}
	return out
}

// Row builds a keyboard row.
func Row(buttons ...Button) []Button { return buttons }

// Outbound is a message to send or an edit to apply. Text may use <b>, <i> and <code>.
type Outbound struct {
	Text     string
	Keyboard Keyboard
}

// Service defines a pluggable bot transport.
type Service interface {
	// Start begins background processing (e.g., polling for updates).
	Start(ctx context.Context) error

	// Stop stops background processing and closes the Events channel.
	Stop() error

	// Events returns the channel of inbound events.
	Events() <-chan Event

	// Send delivers a new message and returns a reference usable for Edit.
	Send(ctx context.Context, chatID int64, msg Outbound) (MessageRef, error)

	// Edit replaces the text and keyboard of a sent message. Transports that cannot edit send a new message.
	Edit(ctx context.Context, ref MessageRef, msg Outbound) error

	// AnswerCallback acknowledges a button press.
	AnswerCallback(ctx context.Context, callbackID, text string) error

	// DownloadImage fetches the bytes of an image attachment.
	DownloadImage(ctx context.Context, img Image) ([]byte, error)
}

// emit pushes ev onto ch, dropping it after DefaultChannelTimeout.
func emit(ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-time.After(DefaultChannelTimeout):
		return false
	}
}
