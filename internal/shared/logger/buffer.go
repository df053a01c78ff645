package logger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

const defaultBufferSize = 1000

// LogEntry is a single captured log line.
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LogBuffer keeps the most recent entries in a fixed-size ring.
type LogBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int
	full    bool
}

func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &LogBuffer{entries: make([]LogEntry, size)}
}

func (b *LogBuffer) Add(entry LogEntry) {
	b.mu.Lock()
	b.entries[b.next] = entry
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
	b.mu.Unlock()
}

// GetRecent returns up to n entries, oldest first.
func (b *LogBuffer) GetRecent(n int) []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := b.next
	if b.full {
		count = len(b.entries)
	}
	if n <= 0 || n > count {
		n = count
	}

	out := make([]LogEntry, 0, n)
	start := b.next - n
	if start < 0 {
		start += len(b.entries)
	}
	for i := 0; i < n; i++ {
		out = append(out, b.entries[(start+i)%len(b.entries)])
	}
	return out
}

func (b *LogBuffer) Clear() {
	b.mu.Lock()
	for i := range b.entries {
		b.entries[i] = LogEntry{}
	}
	b.next = 0
	b.full = false
	b.mu.Unlock()
}

func (b *LogBuffer) ToJSON() ([]byte, error) {
	return json.MarshalIndent(b.GetRecent(0), "", "  ")
}

func (b *LogBuffer) ToText() string {
	var sb strings.Builder
	for _, e := range b.GetRecent(0) {
		fmt.Fprintf(&sb, "%s [%s] %s", e.Timestamp.Format(time.RFC3339), e.Level, e.Message)
		if len(e.Fields) > 0 {
			keys := make([]string, 0, len(e.Fields))
			for k := range e.Fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&sb, " %s=%v", k, e.Fields[k])
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

var (
	logBuffer = NewLogBuffer(defaultBufferSize)

	callbackMu        sync.RWMutex
	broadcastCallback func(LogEntry)
)

func GetLogBuffer() *LogBuffer {
	return logBuffer
}

// SetBroadcastCallback registers fn to receive every captured entry.
func SetBroadcastCallback(fn func(LogEntry)) {
	callbackMu.Lock()
	broadcastCallback = fn
	callbackMu.Unlock()
}

// bufferCore は zapcore.Core 実装。ログをリングバッファに積み、コールバックへ流す。
type bufferCore struct {
	zapcore.LevelEnabler
	fields []zapcore.Field
}

func newBufferCore(level zapcore.LevelEnabler) zapcore.Core {
	return &bufferCore{LevelEnabler: level}
}

func (c *bufferCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &bufferCore{LevelEnabler: c.LevelEnabler, fields: merged}
}

func (c *bufferCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *bufferCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	entry := LogEntry{
		Timestamp: ent.Time.UTC(),
		Level:     ent.Level.CapitalString(),
		Message:   ent.Message,
	}
	if len(enc.Fields) > 0 {
		entry.Fields = enc.Fields
	}
	logBuffer.Add(entry)

	callbackMu.RLock()
	cb := broadcastCallback
	callbackMu.RUnlock()
	if cb != nil {
		cb(entry)
	}
	return nil
}

func (c *bufferCore) Sync() error {
	return nil
}
