// Package journal provides an append-only JSONL event journal. One file per
// day; each line is a self-contained JSON record with a timestamp.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Writer appends records to a date-stamped JSONL file. Safe for concurrent
// use.
type Writer struct {
	mu    sync.Mutex
	file  *os.File
	enc   *json.Encoder
	dir   string
	day   string
	clock func() time.Time
}

type record struct {
	Time time.Time   `json:"time"`
	Data interface{} `json:"data"`
}

// Open creates the journal directory if needed and opens today's file.
func Open(dir string) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("journal: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	w := &Writer{dir: dir, clock: time.Now}
	if err := w.rotateLocked(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) rotateLocked() error {
	day := w.clock().UTC().Format("20060102")
	if w.file != nil && day == w.day {
		return nil
	}
	if w.file != nil {
		w.file.Close()
	}
	path := filepath.Join(w.dir, "events-"+day+".jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open %s: %w", path, err)
	}
	w.file = file
	w.enc = json.NewEncoder(file)
	w.day = day
	return nil
}

// Append writes one record as a JSON line.
func (w *Writer) Append(data interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rotateLocked(); err != nil {
		return err
	}
	if err := w.enc.Encode(record{Time: w.clock().UTC(), Data: data}); err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	return nil
}

// Close flushes and closes the current file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
