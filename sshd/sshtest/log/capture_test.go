package log_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/jpillora/foxssh/sshd/sshtest/log"
)

func TestCapture(t *testing.T) {
	c := log.NewCapture()
	c.Add(log.Entry{Level: slog.LevelInfo, Message: "User 'fox' authenticated (password)"})
	if c.Count() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Count())
	}
	if err := c.Assert("authenticated"); err != nil {
		t.Errorf("Assert failed: %v", err)
	}
	if err := c.Assert("nonexistent"); err == nil {
		t.Error("Assert should fail for nonexistent message")
	}
}

func TestCaptureLogger(t *testing.T) {
	c := log.NewCapture()
	logger := c.Logger()
	logger.Info("info message")
	logger.Error("error message")
	logger.Debug("debug message")
	if c.Count() != 3 {
		t.Errorf("expected 3 entries, got %d", c.Count())
	}
	if err := c.AssertLevel(slog.LevelInfo, "info message"); err != nil {
		t.Errorf("AssertLevel failed: %v", err)
	}
	if err := c.AssertLevel(slog.LevelDebug, "error message"); err == nil {
		t.Error("AssertLevel matched the wrong level")
	}
}

func TestCaptureAttrs(t *testing.T) {
	c := log.NewCapture()
	logger := c.Logger().With("remote", "127.0.0.1:2200").WithGroup("kex")
	logger.Info("Key exchange complete", "cipher", "aes128-ctr", slog.Group("mac", "name", "hmac-sha1"))
	e, ok := c.Find("Key exchange")
	if !ok {
		t.Fatal("entry not captured")
	}
	for k, want := range map[string]any{
		"remote":       "127.0.0.1:2200",
		"kex.cipher":   "aes128-ctr",
		"kex.mac.name": "hmac-sha1",
	} {
		if got := e.Attrs[k]; got != want {
			t.Errorf("attr %s = %v, want %v", k, got, want)
		}
	}
}

func TestCaptureFind(t *testing.T) {
	c := log.NewCapture()
	c.Add(log.Entry{Level: slog.LevelInfo, Message: "first message"})
	c.Add(log.Entry{Level: slog.LevelInfo, Message: "second message"})
	c.Add(log.Entry{Level: slog.LevelInfo, Message: "third message"})
	entry, found := c.Find("second")
	if !found {
		t.Fatal("Find should find the entry")
	}
	if entry.Message != "second message" {
		t.Errorf("unexpected message: %s", entry.Message)
	}
	if all := c.FindAll("message"); len(all) != 3 {
		t.Errorf("FindAll found %d entries", len(all))
	}
	if _, found := c.Find("fourth"); found {
		t.Error("Find matched a missing entry")
	}
}

func TestCaptureWait(t *testing.T) {
	c := log.NewCapture()
	go func() {
		time.Sleep(20 * time.Millisecond)
		c.Logger().Info("Session closed")
	}()
	if _, err := c.Wait("Session closed", 5*time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Wait("never", 20*time.Millisecond); err == nil {
		t.Fatal("Wait should time out")
	}
}

func TestEntryString(t *testing.T) {
	e := log.Entry{
		Timestamp: time.Date(2024, 1, 1, 12, 30, 45, 0, time.UTC),
		Level:     slog.LevelWarn,
		Message:   "rekey",
		Attrs:     map[string]any{"b": 2, "a": 1},
	}
	if got, want := e.String(), "12:30:45.000 WARN rekey a=1 b=2"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
