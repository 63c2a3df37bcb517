package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultDebugLogSize is how many entries the debug log keeps
const DefaultDebugLogSize = 50

// DebugEntry is one line of the debug log
type DebugEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// String formats the entry as "2006-01-02T15:04:05Z07:00 - message"
func (e DebugEntry) String() string {
	return e.Time.Format(time.RFC3339) + " - " + e.Message
}

// DebugLog keeps the most recent log lines in memory for display
type DebugLog struct {
	mu      sync.Mutex
	size    int
	entries []DebugEntry // oldest first
}

// NewDebugLog creates a ring holding size entries
func NewDebugLog(size int) *DebugLog {
	if size <= 0 {
		size = DefaultDebugLogSize
	}
	return &DebugLog{size: size, entries: make([]DebugEntry, 0, size)}
}

// Add appends a line, evicting the oldest when full
func (d *DebugLog) Add(t time.Time, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.entries) == d.size {
		copy(d.entries, d.entries[1:])
		d.entries = d.entries[:d.size-1]
	}
	d.entries = append(d.entries, DebugEntry{Time: t, Message: message})
}

// Entries returns the retained lines, newest first
func (d *DebugLog) Entries() []DebugEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DebugEntry, len(d.entries))
	for i, e := range d.entries {
		out[len(d.entries)-1-i] = e
	}
	return out
}

// Clear drops every entry
func (d *DebugLog) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = d.entries[:0]
}

// Handler returns an slog.Handler feeding this log
func (d *DebugLog) Handler(level slog.Leveler) slog.Handler {
	return &debugHandler{log: d, level: level}
}

type debugHandler struct {
	log    *DebugLog
	level  slog.Leveler
	prefix string // rendered attrs from WithAttrs
	group  string
}

func (h *debugHandler) Enabled(ctx context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.level != nil {
		minLevel = h.level.Level()
	}
	return level >= minLevel
}

func (h *debugHandler) Handle(ctx context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	b.WriteString(h.prefix)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.group, a)
		return true
	})
	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}
	h.log.Add(t, b.String())
	return nil
}

func (h *debugHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.prefix)
	for _, a := range attrs {
		// component tags every line; keep the debug view short
		if a.Key == "component" {
			continue
		}
		writeAttr(&b, h.group, a)
	}
	clone := *h
	clone.prefix = b.String()
	return &clone
}

func (h *debugHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.group != "" {
		clone.group += "."
	}
	clone.group += name
	return &clone
}

func writeAttr(b *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	fmt.Fprintf(b, " %s=%v", key, a.Value.Any())
}
