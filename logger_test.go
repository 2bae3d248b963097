package etp

import (
	"log/slog"
	"sync"
	"testing"
)

func TestLogger_Interface(t *testing.T) {
	var _ Logger = slog.Default()
	var _ Logger = NopLogger()
}

func TestDefaultLogger(t *testing.T) {
	logger := defaultLogger()

	if logger == nil {
		t.Fatal("defaultLogger returned nil")
	}
	if logger != slog.Default() {
		t.Error("defaultLogger did not return slog.Default()")
	}
}

func TestNopLogger_Methods(t *testing.T) {
	logger := NopLogger()

	logger.Debug("debug message", "key", "value")
	logger.Info("info message", "key", "value")
	logger.Warn("warn message", "key", "value")
	logger.Error("error message", "key", "value")
}

// mockLogger records the calls a session makes.
type mockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

func (l *mockLogger) log(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *mockLogger) Debug(msg string, args ...any) { l.log("debug", msg, args) }
func (l *mockLogger) Info(msg string, args ...any)  { l.log("info", msg, args) }
func (l *mockLogger) Warn(msg string, args ...any)  { l.log("warn", msg, args) }
func (l *mockLogger) Error(msg string, args ...any) { l.log("error", msg, args) }

func (l *mockLogger) find(msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

func TestLogger_SessionUsesConfiguredLogger(t *testing.T) {
	logger := &mockLogger{}
	s, err := NewSession(ConnInfo{ID: "logged"}, &mockSender{}, mockCodec{}, newCoreHandler(), LoggerOption(logger))
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	if s.Logger() != logger {
		t.Error("session logger is not the configured one")
	}

	_ = s.Close("bye")

	e, ok := logger.find("session closed")
	if !ok {
		t.Fatal("close was not logged")
	}
	if e.level != "info" {
		t.Errorf("level = %s, want info", e.level)
	}
	if len(e.args) != 4 || e.args[1] != "logged" || e.args[3] != "bye" {
		t.Errorf("args = %v, want session and reason", e.args)
	}
}

func TestLogger_DetachedHandlerFallsBack(t *testing.T) {
	h := newEchoHandler()
	if h.Logger() != slog.Default() {
		t.Error("detached handler should log to the default logger")
	}
}
