// Package history persists every turn as an append-only JSON array file.
// The file is the single source of truth for session replay: an append
// either lands completely or leaves the file untouched, and sequence
// numbers continue from the persisted length so they are never reused,
// even across process restarts.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Entry is one recorded turn. The on-disk objects carry at least the keys
// query, code, timestamp and context; sequence and outcome are quill's own
// additions and tolerated by any reader of the base format.
type Entry struct {
	Sequence  int            `json:"sequence"`
	Query     string         `json:"query"`
	Code      string         `json:"code"`
	Outcome   string         `json:"outcome"`
	Timestamp string         `json:"timestamp"`
	Context   map[string]any `json:"context"`
}

// PersistenceError marks history file failures. These are loud: the turn's
// durability guarantee is broken and callers must surface them.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("history %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store serializes all appends to one history file. Within a process the
// mutex is enough; across processes an exclusive file lock is held for the
// read-modify-rewrite cycle.
type Store struct {
	path string
	mu   sync.Mutex
	log  *zap.Logger
}

func NewStore(path string, log *zap.Logger) *Store {
	return &Store{path: path, log: log}
}

// Path returns the history file location.
func (s *Store) Path() string { return s.path }

// Read returns all persisted entries. A missing file is an empty history,
// never an error.
func (s *Store) Read() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

func (s *Store) readLocked() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &PersistenceError{Op: "read", Path: s.path, Err: err}
	}
	if len(data) == 0 {
		return nil, nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &PersistenceError{Op: "decode", Path: s.path, Err: err}
	}
	return entries, nil
}

// Append persists one entry, assigning the next sequence number. The
// returned entry carries the assigned sequence and timestamp.
func (s *Store) Append(e Entry) (Entry, error) {
	entries, err := s.BulkAppend([]Entry{e})
	if err != nil {
		return Entry{}, err
	}
	return entries[0], nil
}

// BulkAppend persists entries in order, numbering them from the current
// file length. Timestamps are filled in (UTC, ISO-8601) when absent.
func (s *Store) BulkAppend(entries []Entry) ([]Entry, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lock, err := acquireFileLock(s.path + ".lock")
	if err != nil {
		return nil, &PersistenceError{Op: "lock", Path: s.path, Err: err}
	}
	defer releaseFileLock(lock)

	existing, err := s.readLocked()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	appended := make([]Entry, len(entries))
	for i, e := range entries {
		e.Sequence = len(existing) + i
		if e.Timestamp == "" {
			e.Timestamp = now
		}
		if e.Context == nil {
			e.Context = map[string]any{}
		}
		appended[i] = e
	}

	if err := s.rewrite(append(existing, appended...)); err != nil {
		return nil, err
	}

	s.log.Debug("history appended",
		zap.Int("entries", len(appended)),
		zap.Int("first_sequence", appended[0].Sequence))
	return appended, nil
}

// rewrite replaces the whole file atomically: the new array is written to
// a temp file in the same directory and renamed over the target, so a
// crash mid-write leaves the previous contents intact.
func (s *Store) rewrite(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "encode", Path: s.path, Err: err}
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".history-*")
	if err != nil {
		return &PersistenceError{Op: "write", Path: s.path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistenceError{Op: "write", Path: s.path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistenceError{Op: "sync", Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Op: "close", Path: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Op: "rename", Path: s.path, Err: err}
	}
	return nil
}
