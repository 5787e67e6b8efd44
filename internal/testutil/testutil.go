// Package testutil provides common test utilities and helpers for GPTPipe tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BTreeMap/GPTPipe/internal/messaging"
)

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t testing.TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t testing.TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t testing.TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// Alice is the default sender of test events.
var Alice = messaging.Sender{ID: 1001, Username: "alice"}

// Command builds a "/name args" event from Alice in her private chat.
func Command(text string) messaging.Event {
	return messaging.TextEvent(Alice.ID, Alice, "1", text)
}

// Text builds a plain text event from Alice.
func Text(text string) messaging.Event {
	return messaging.Event{Kind: messaging.EventText, ChatID: Alice.ID, From: Alice, MessageID: "1", Time: time.Now(), Text: text}
}

// Callback builds a button press from Alice on message 42.
func Callback(token string) messaging.Event {
	return messaging.Event{
		Kind:   messaging.EventCallback,
		ChatID: Alice.ID,
		From:   Alice,
		Time:   time.Now(),
		Callback: &messaging.CallbackQuery{
			ID:      "cb-" + token,
			Data:    token,
			Message: messaging.MessageRef{ChatID: Alice.ID, MessageID: "42"},
		},
	}
}

// Photo builds an image attachment event from Alice.
func Photo(fileID string) messaging.Event {
	return messaging.Event{
		Kind:   messaging.EventImage,
		ChatID: Alice.ID,
		From:   Alice,
		Time:   time.Now(),
		Image:  &messaging.Image{FileID: fileID, MIMEType: "image/jpeg"},
	}
}
