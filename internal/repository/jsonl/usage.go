// Package jsonl implements the usage journal as a JSON-lines file: one
// object per line, appended and never rewritten.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sakif/magma-calc/internal/model"
	"github.com/sakif/magma-calc/internal/repository"
)

var _ repository.UsageRepository = (*Store)(nil)

// maxLineBytes bounds a single journal line. Entries are a few hundred bytes;
// anything longer is corrupt.
const maxLineBytes = 1 << 20

// line is the on-disk record. The timestamp stays a string so that an entry
// with a malformed timestamp still counts towards all-time totals.
type line struct {
	ID         string   `json:"id,omitempty"`
	Timestamp  string   `json:"timestamp"`
	ClientIP   string   `json:"client_ip"`
	InputSize  int      `json:"input_size"`
	ElapsedSec float64  `json:"elapsed_sec"`
	MemoryUsed *string  `json:"memory_used"`
	Success    bool     `json:"success"`
	Warnings   []string `json:"warnings"`
}

// Store appends usage entries to a file.
type Store struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// New returns a Store for path. The file and its directory are created on
// the first Append.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the journal file path.
func (s *Store) Path() string {
	return s.path
}

// Append writes entry as one JSON line.
func (s *Store) Append(ctx context.Context, entry *model.UsageEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	warnings := entry.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	data, err := json.Marshal(line{
		ID:         entry.ID,
		Timestamp:  entry.Timestamp.UTC().Format(model.TimestampLayout),
		ClientIP:   entry.ClientIP,
		InputSize:  entry.InputSize,
		ElapsedSec: entry.ElapsedSec,
		MemoryUsed: entry.MemoryUsed,
		Success:    entry.Success,
		Warnings:   warnings,
	})
	if err != nil {
		return fmt.Errorf("jsonl: encoding entry: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return fmt.Errorf("jsonl: creating journal directory: %w", err)
		}
		f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("jsonl: opening journal: %w", err)
		}
		s.file = f
	}

	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("jsonl: writing entry: %w", err)
	}
	return nil
}

// Replay reads the journal from the start. Blank lines and lines that are not
// valid JSON objects are skipped. A malformed timestamp yields an entry with
// a zero Timestamp.
func (s *Store) Replay(ctx context.Context, fn func(model.UsageEntry)) error {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("jsonl: opening journal: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 || raw[0] != '{' {
			continue
		}
		var rec line
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		entry := model.UsageEntry{
			ID:         rec.ID,
			ClientIP:   rec.ClientIP,
			InputSize:  rec.InputSize,
			ElapsedSec: rec.ElapsedSec,
			MemoryUsed: rec.MemoryUsed,
			Success:    rec.Success,
			Warnings:   rec.Warnings,
		}
		if ts, err := time.Parse(model.TimestampLayout, rec.Timestamp); err == nil {
			entry.Timestamp = ts
		}
		fn(entry)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("jsonl: reading journal: %w", err)
	}
	return nil
}

// Close releases the journal file handle, if one is open.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
