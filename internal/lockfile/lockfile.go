// Package lockfile keeps two GPTPipe processes from sharing one state directory.
//
// The lock is an flock on a file in the state directory, so the kernel drops it when the
// holder exits, cleanly or not. The file records who holds it for the conflict message.
package lockfile

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// FileName is the lock file created in the state directory.
const FileName = "gptpipe.lock"

// ErrLocked is matched by errors.Is when another process holds the lock.
var ErrLocked = errors.New("state directory locked")

// Holder describes the process recorded in a lock file.
type Holder struct {
	PID       int
	Transport string
	Started   time.Time
}

// Running reports whether the recorded process still exists.
func (h Holder) Running() bool {
	return h.PID > 0 && processRunning(h.PID)
}

func (h Holder) String() string {
	if h.PID == 0 {
		return "unknown process"
	}
	state := "running"
	if !h.Running() {
		state = "not running, stale lock"
	}
	s := fmt.Sprintf("PID %d (%s)", h.PID, state)
	if h.Transport != "" {
		s += ", transport " + h.Transport
	}
	if !h.Started.IsZero() {
		s += ", started " + h.Started.Format(time.RFC3339)
	}
	return s
}

// Opts configures Acquire.
type Opts struct {
	Transport string
	Now       func() time.Time
}

// Option modifies Opts.
type Option func(*Opts)

// WithTransport records the transport the process serves.
func WithTransport(name string) Option {
	return func(o *Opts) {
		o.Transport = name
	}
}

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the exclusive lock on stateDir, creating the directory if needed.
// A held lock yields a *LockError describing the holder.
func Acquire(stateDir string, opts ...Option) (*Lock, error) {
	cfg := Opts{Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	path := filepath.Join(stateDir, FileName)

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}
	// Opened without O_TRUNC so a failed attempt keeps the holder's record readable.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := readHolder(path)
		slog.Error("Lockfile Acquire: state directory in use", "lock_path", path, "holder", holder.String())
		return nil, &LockError{Path: path, Holder: holder, Cause: err}
	}

	record := Holder{PID: os.Getpid(), Transport: cfg.Transport, Started: cfg.Now().UTC()}
	if err := writeHolder(file, record); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock file %s: %w", path, err)
	}

	slog.Info("Lockfile Acquire: lock held", "lock_path", path, "pid", record.PID)
	return &Lock{file: file, path: path}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release drops the lock and removes the file. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	var errs []error
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		errs = append(errs, fmt.Errorf("unlock: %w", err))
	}
	if err := l.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("remove: %w", err))
	}
	l.file = nil
	if err := errors.Join(errs...); err != nil {
		slog.Warn("Lockfile Release: incomplete cleanup", "lock_path", l.path, "error", err)
		return err
	}
	slog.Info("Lockfile Release: lock released", "lock_path", l.path)
	return nil
}

// LockError reports a state directory held by another process.
type LockError struct {
	Path   string
	Holder Holder
	Cause  error
}

func (e *LockError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "another GPTPipe instance is using this state directory\n\nlock file: %s\nholder: %s", e.Path, e.Holder)
	if e.Holder.PID > 0 && !e.Holder.Running() {
		fmt.Fprintf(&b, "\n\nthe holder is gone; if the lock persists remove it with:\n  rm %s", e.Path)
	}
	return b.String()
}

func (e *LockError) Unwrap() error { return e.Cause }

func (e *LockError) Is(target error) bool { return target == ErrLocked }

func writeHolder(f *os.File, h Holder) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	record := fmt.Sprintf("pid=%d\ntransport=%s\nstarted=%s\n", h.PID, h.Transport, h.Started.Format(time.RFC3339))
	if _, err := f.WriteString(record); err != nil {
		return err
	}
	return f.Sync()
}

func readHolder(path string) Holder {
	data, err := os.ReadFile(path)
	if err != nil {
		return Holder{}
	}
	return parseHolder(string(data))
}

// parseHolder reads key=value lines. Unknown keys and malformed values are ignored.
func parseHolder(content string) Holder {
	var h Holder
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil && pid > 0 {
				h.PID = pid
			}
		case "transport":
			h.Transport = value
		case "started":
			if t, err := time.Parse(time.RFC3339, value); err == nil {
				h.Started = t
			}
		}
	}
	return h
}

// processRunning probes pid with signal 0.
func processRunning(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
