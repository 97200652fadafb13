package leads

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseUrgency(t *testing.T) {
	u, err := ParseUrgency("")
	if err != nil || u != UrgencyNormal {
		t.Fatalf("expected default normal, got %q err %v", u, err)
	}
	u, err = ParseUrgency("emergency")
	if err != nil || u != UrgencyEmergency {
		t.Fatalf("expected emergency, got %q err %v", u, err)
	}
	if _, err := ParseUrgency("critical"); err == nil {
		t.Fatalf("expected error for unknown urgency")
	}
}

func TestFileStore_RoundTripOmitsAbsentFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.ndjson")
	store, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	in := Lead{
		ID:           uuid.NewString(),
		CreatedAt:    time.Unix(1700000000, 0).UTC(),
		BusinessName: "Ace Plumbing",
		Issue:        "burst pipe",
		Urgency:      UrgencyEmergency,
		Source:       Source,
	}
	if err := store.Append(context.Background(), in); err != nil {
		t.Fatalf("append: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	line := strings.TrimSuffix(string(raw), "\n")
	if strings.Contains(line, "\n") {
		t.Fatalf("expected a single record, got %q", line)
	}
	// Absent optional fields must be absent, not present-as-null.
	for _, key := range []string{"callerPhone", "callerName", "serviceAddress", "preferredTime", "notes"} {
		if strings.Contains(line, key) {
			t.Fatalf("expected %s to be omitted, line: %s", key, line)
		}
	}

	var out Lead
	if err := json.Unmarshal([]byte(line), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch:\n in: %+v\nout: %+v", in, out)
	}
}

func TestFileStore_ConcurrentAppendsProduceDistinctRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.ndjson")
	store, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := Lead{
				ID:           uuid.NewString(),
				CreatedAt:    time.Now().UTC(),
				BusinessName: "Ace Plumbing",
				Urgency:      UrgencyNormal,
				Source:       Source,
			}
			if err := store.Append(context.Background(), l); err != nil {
				t.Errorf("append: %v", err)
			}
		}()
	}
	wg.Wait()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open for read: %v", err)
	}
	defer f.Close()

	ids := map[string]bool{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var l Lead
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			t.Fatalf("corrupted record %q: %v", sc.Text(), err)
		}
		ids[l.ID] = true
	}
	if len(ids) != n {
		t.Fatalf("expected %d distinct leads, got %d", n, len(ids))
	}
}
