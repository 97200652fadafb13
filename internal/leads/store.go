package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// Store abstracts the append-only lead sink.
type Store interface {
	Append(ctx context.Context, l Lead) error
}

// FileStore writes one JSON object per line to an append-only file.
// Appends are serialized under a mutex so concurrent call sessions never
// interleave within a record.
type FileStore struct {
	mu sync.Mutex
	f  *os.File
}

func OpenFileStore(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("leads: open %s: %w", path, err)
	}
	return &FileStore{f: f}, nil
}

func (s *FileStore) Append(ctx context.Context, l Lead) error {
	line, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("leads: marshal lead %s: %w", l.ID, err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(line); err != nil {
		return fmt.Errorf("leads: append lead %s: %w", l.ID, err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return s.f.Close()
}

// MemoryStore is a simple in-memory store for tests and early development.
type MemoryStore struct {
	mu    sync.Mutex
	leads []Lead

	// FailWith, when set, makes every Append fail. Lets tests exercise
	// storage-fault propagation.
	FailWith error
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Append(ctx context.Context, l Lead) error {
	if l.ID == "" {
		return errors.New("leads: id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.leads = append(s.leads, l)
	return nil
}

// Leads returns a snapshot of everything appended so far.
func (s *MemoryStore) Leads() []Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Lead, len(s.leads))
	copy(out, s.leads)
	return out
}
