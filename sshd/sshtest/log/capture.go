// Package log captures server logs so tests can assert on them.
package log

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is one captured log record. Attrs from groups are keyed
// "group.key"; the remote address of a connection logger is under
// "remote".
type Entry struct {
	Timestamp time.Time
	Level     slog.Level
	Message   string
	Attrs     map[string]any
}

func (e Entry) String() string {
	var sb strings.Builder
	sb.WriteString(e.Timestamp.Format("15:04:05.000"))
	sb.WriteString(" ")
	sb.WriteString(e.Level.String())
	sb.WriteString(" ")
	sb.WriteString(e.Message)
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, e.Attrs[k])
	}
	return sb.String()
}

// Matches checks if the entry has the level and its message contains text.
func (e Entry) Matches(level slog.Level, contains string) bool {
	return e.Level == level && e.Contains(contains)
}

// Contains checks if the entry message contains the text.
func (e Entry) Contains(text string) bool {
	return strings.Contains(e.Message, text)
}

// Capture collects log output for assertions.
type Capture struct {
	mu      sync.Mutex
	entries []Entry
	changed chan struct{}
}

// NewCapture creates a new log capture.
func NewCapture() *Capture {
	return &Capture{changed: make(chan struct{})}
}

// Logger returns a logger that writes to this capture at every level.
func (c *Capture) Logger() *slog.Logger {
	return slog.New(NewHandler(c))
}

// Add adds a log entry.
func (c *Capture) Add(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	c.mu.Lock()
	c.entries = append(c.entries, entry)
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()
}

// Assert checks that a log message containing the text exists.
func (c *Capture) Assert(contains string) error {
	if _, ok := c.Find(contains); !ok {
		return fmt.Errorf("no log entry containing %q found in %d entries", contains, c.Count())
	}
	return nil
}

// AssertLevel checks for a log at a specific level containing the text.
func (c *Capture) AssertLevel(level slog.Level, contains string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		if entry.Matches(level, contains) {
			return nil
		}
	}
	return fmt.Errorf("no %s log entry containing %q found", level, contains)
}

// Wait blocks until an entry containing the text is logged. Server logs
// are written from connection goroutines, after the client has moved on.
func (c *Capture) Wait(contains string, timeout time.Duration) (Entry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for {
		c.mu.Lock()
		entry, found := c.findLocked(contains)
		changed := c.changed
		c.mu.Unlock()
		if found {
			return entry, nil
		}
		select {
		case <-ctx.Done():
			return Entry{}, fmt.Errorf("no log entry containing %q after %s", contains, timeout)
		case <-changed:
		}
	}
}

// Find returns the first entry containing the text.
func (c *Capture) Find(contains string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.findLocked(contains)
}

func (c *Capture) findLocked(contains string) (Entry, bool) {
	for _, entry := range c.entries {
		if entry.Contains(contains) {
			return entry, true
		}
	}
	return Entry{}, false
}

// FindAll returns all entries containing the text.
func (c *Capture) FindAll(contains string) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var result []Entry
	for _, entry := range c.entries {
		if entry.Contains(contains) {
			result = append(result, entry)
		}
	}
	return result
}

// All returns all log entries.
func (c *Capture) All() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry(nil), c.entries...)
}

// Count returns the number of entries.
func (c *Capture) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// String returns all logs, one per line.
func (c *Capture) String() string {
	var sb strings.Builder
	for _, entry := range c.All() {
		sb.WriteString(entry.String())
		sb.WriteString("\n")
	}
	return sb.String()
}
