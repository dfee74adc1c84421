// Package wal journals image file operations that must be reconciled with
// the hero table after a crash.
package wal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/superhero-manager/backend/pkg/logger"
	"go.uber.org/zap"
)

// EntryKind tells recovery what the referenced file was about to become
type EntryKind string

const (
	// KindUpload: a freshly stored image whose hero write may not have committed
	KindUpload EntryKind = "upload"
	// KindObsolete: an image scheduled for removal once its hero no longer references it
	KindObsolete EntryKind = "obsolete"
)

// Entry is one pending file operation
type Entry struct {
	ID        string    `json:"id"`
	Kind      EntryKind `json:"kind"`
	Ref       string    `json:"ref"`
	HeroID    string    `json:"hero_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEntry stamps a fresh entry for ref
func NewEntry(kind EntryKind, ref, heroID string) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Kind:      kind,
		Ref:       ref,
		HeroID:    heroID,
		Timestamp: time.Now().UTC(),
	}
}

// WAL is an append-only JSON-lines journal
type WAL struct {
	filePath string
	file     *os.File
	mu       sync.Mutex
}

// NewWAL opens (or creates) the journal at filePath
func NewWAL(filePath string) (*WAL, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	return &WAL{
		filePath: filePath,
		file:     file,
	}, nil
}

// Write appends entries and syncs them to disk before returning
func (w *WAL) Write(entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	start := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()

	var buf []byte
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			logger.Log.Error("Journal: failed to marshal entry",
				zap.String("entry_id", entry.ID),
				zap.Error(err),
			)
			return err
		}
		buf = append(buf, data...)
		buf = append(buf, '\n')
	}

	if _, err := w.file.Write(buf); err != nil {
		logger.Log.Error("Journal: failed to write",
			zap.Int("entries", len(entries)),
			zap.Error(err),
		)
		return err
	}

	syncStart := time.Now()
	if err := w.file.Sync(); err != nil {
		logger.Log.Error("Journal: failed to sync", zap.Error(err))
		return err
	}

	logger.Log.Debug("Journal: entries written",
		zap.Int("entries", len(entries)),
		zap.Duration("sync_duration", time.Since(syncStart)),
		zap.Duration("total_duration", time.Since(start)),
	)

	return nil
}

// ReadAll returns every pending entry in write order
func (w *WAL) ReadAll() ([]Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.readAllUnsafe()
}

// Cleanup drops the entries whose IDs are resolved
func (w *WAL) Cleanup(resolvedIDs ...string) error {
	if len(resolvedIDs) == 0 {
		return nil
	}
	start := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()

	allEntries, err := w.readAllUnsafe()
	if err != nil {
		logger.Log.Error("Journal: failed to read entries for cleanup", zap.Error(err))
		return err
	}

	resolved := make(map[string]bool, len(resolvedIDs))
	for _, id := range resolvedIDs {
		resolved[id] = true
	}

	var remaining []Entry
	for _, entry := range allEntries {
		if !resolved[entry.ID] {
			remaining = append(remaining, entry)
		}
	}

	if err := w.rewriteUnsafe(remaining); err != nil {
		return err
	}

	logger.Log.Debug("Journal: cleanup completed",
		zap.Int("before_count", len(allEntries)),
		zap.Int("resolved_count", len(allEntries)-len(remaining)),
		zap.Int("remaining_count", len(remaining)),
		zap.Duration("duration", time.Since(start)),
	)

	return nil
}

// rewriteUnsafe replaces the journal with entries via temp file + rename,
// then reopens the append handle on the new file.
func (w *WAL) rewriteUnsafe(entries []Entry) error {
	if err := w.file.Close(); err != nil {
		logger.Log.Error("Journal: failed to close file for rewrite", zap.Error(err))
		return err
	}

	tempFile := w.filePath + ".tmp"
	f, err := os.Create(tempFile)
	if err != nil {
		logger.Log.Error("Journal: failed to create temp file",
			zap.String("temp_file", tempFile),
			zap.Error(err),
		)
		return w.reopen(err)
	}

	bw := bufio.NewWriter(f)
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			f.Close()
			os.Remove(tempFile)
			return w.reopen(err)
		}
		bw.Write(data)
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tempFile)
		return w.reopen(err)
	}
	f.Sync()
	f.Close()

	if err := os.Rename(tempFile, w.filePath); err != nil {
		logger.Log.Error("Journal: failed to rename temp file",
			zap.String("temp_file", tempFile),
			zap.String("target_file", w.filePath),
			zap.Error(err),
		)
		return w.reopen(err)
	}

	return w.reopen(nil)
}

// reopen restores the append handle after a rewrite attempt and returns
// cause, or the reopen error when there was no earlier one.
func (w *WAL) reopen(cause error) error {
	newFile, err := os.OpenFile(w.filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		logger.Log.Error("Journal: failed to reopen file",
			zap.String("file_path", w.filePath),
			zap.Error(err),
		)
		if cause == nil {
			cause = err
		}
		return cause
	}
	w.file = newFile
	return cause
}

// readAllUnsafe skips lines that fail to decode (a torn final write)
func (w *WAL) readAllUnsafe() ([]Entry, error) {
	file, err := os.Open(w.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}
	defer file.Close()

	entries := []Entry{}
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			logger.Log.Warn("Journal: skipping unreadable line", zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}

	return entries, scanner.Err()
}

// Close closes the journal file
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
