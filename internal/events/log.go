package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Closed set of event types produced by the core.
const (
	TypeSMSAttempt        = "sms_attempt"
	TypeEscalation        = "escalation"
	TypeCallSummary       = "call_summary"
	TypeTransportEvent    = "transport_event"
	TypeSessionError      = "session_error"
	TypeRealtimeConnected = "realtime_connected"
)

var ErrEmptyType = errors.New("events: type required")

// Log is an append-only, newline-delimited JSON event sink.
//
// Each Append writes one self-contained line {"ts":...,"type":...,...payload},
// serialized under a mutex so concurrent writers from different call sessions
// never interleave within a record. Write order for a single caller equals
// call order.
type Log struct {
	mu sync.Mutex
	w  io.Writer

	closer io.Closer
	clock  func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithClock makes the write timestamp deterministic for tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Log) { l.clock = clock }
}

// NewLog writes events to w. The writer is not closed by Close.
func NewLog(w io.Writer, opts ...Option) *Log {
	l := &Log{w: w, clock: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open appends to the NDJSON file at path, creating it if needed.
func Open(path string, opts ...Option) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("events: open %s: %w", path, err)
	}
	l := NewLog(f, opts...)
	l.closer = f
	return l, nil
}

// Append writes one event record. The ts and type keys are reserved and win
// over payload collisions. A nil Log discards the event, so degraded paths
// and tests can share code.
func (l *Log) Append(eventType string, payload map[string]any) error {
	if l == nil {
		return nil
	}
	if eventType == "" {
		return ErrEmptyType
	}

	record := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		record[k] = v
	}
	record["ts"] = l.clock().UTC().Format(time.RFC3339Nano)
	record["type"] = eventType

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", eventType, err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(line); err != nil {
		return fmt.Errorf("events: append %s: %w", eventType, err)
	}
	return nil
}

// Close releases the underlying file, if any.
func (l *Log) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
