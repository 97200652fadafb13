package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestAppend_WritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	now := time.Unix(1700000000, 0).UTC()
	log := NewLog(&buf, WithClock(func() time.Time { return now }))

	if err := log.Append(TypeCallSummary, map[string]any{"summary": "caller reported a leak"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	line := buf.String()
	if !strings.HasSuffix(line, "\n") {
		t.Fatalf("expected newline-terminated record, got %q", line)
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("record is not valid JSON: %v", err)
	}
	if rec["type"] != TypeCallSummary {
		t.Fatalf("unexpected type %v", rec["type"])
	}
	if rec["ts"] != now.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected ts %v", rec["ts"])
	}
	if rec["summary"] != "caller reported a leak" {
		t.Fatalf("payload not preserved: %v", rec)
	}
}

func TestAppend_ReservedKeysWin(t *testing.T) {
	var buf bytes.Buffer
	log := NewLog(&buf)

	if err := log.Append(TypeEscalation, map[string]any{"type": "spoofed", "reason": "emergency"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if rec["type"] != TypeEscalation {
		t.Fatalf("payload overrode reserved type key: %v", rec["type"])
	}
}

func TestAppend_EmptyTypeRejected(t *testing.T) {
	log := NewLog(&bytes.Buffer{})
	if err := log.Append("", nil); err == nil {
		t.Fatalf("expected error for empty type")
	}
}

func TestAppend_NilLogIsNoop(t *testing.T) {
	var log *Log
	if err := log.Append(TypeTransportEvent, nil); err != nil {
		t.Fatalf("nil log should discard, got %v", err)
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func TestAppend_ConcurrentWritersKeepRecordsIntact(t *testing.T) {
	var buf lockedBuffer
	log := NewLog(&buf)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := log.Append(TypeTransportEvent, map[string]any{"event": "session.updated", "seq": i}); err != nil {
				t.Errorf("append failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	lines := 0
	sc := bufio.NewScanner(&buf.buf)
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("corrupted record %q: %v", sc.Text(), err)
		}
		lines++
	}
	if lines != n {
		t.Fatalf("expected %d records, got %d", n, lines)
	}
}
