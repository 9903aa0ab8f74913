package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SchemaVersion is the current persistence schema version.
const SchemaVersion = 1

// ErrClosed is returned when operations are attempted on a closed log.
var ErrClosed = errors.New("history log is closed")

// schemaHeader is the first line of the JSONL file.
type schemaHeader struct {
	SchemaVersion int   `json:"audiofocus_schema_version"`
	CreatedAt     int64 `json:"created_at"`
}

// Log is an append-only JSONL file of history entries.
type Log struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	closed bool
}

// Open opens the log at path, creating it and its directory if needed.
func Open(path string) (*Log, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}

	l := &Log{
		path: path,
		file: file,
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	if info.Size() == 0 {
		if err := l.writeHeader(); err != nil {
			_ = file.Close()
			return nil, err
		}
	}

	return l, nil
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

func (l *Log) writeHeader() error {
	header := schemaHeader{
		SchemaVersion: SchemaVersion,
		CreatedAt:     time.Now().Unix(),
	}

	data, err := json.Marshal(header)
	if err != nil {
		return err
	}

	_, err = l.file.Write(append(data, '\n'))
	return err
}

// Load reads all entries, oldest first. Malformed lines are skipped.
func (l *Log) Load() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.file == nil {
		return nil, ErrClosed
	}

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", l.path, err)
	}

	var entries []Entry
	scanner := bufio.NewScanner(l.file)

	const maxLineSize = 1024 * 1024 // 1MB
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()

		if len(line) == 0 {
			continue
		}

		if lineNum == 1 {
			var header schemaHeader
			if err := json.Unmarshal(line, &header); err == nil && header.SchemaVersion > 0 {
				if header.SchemaVersion > SchemaVersion {
					return nil, fmt.Errorf("unsupported schema version %d (max: %d)",
						header.SchemaVersion, SchemaVersion)
				}
				continue
			}
		}

		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		if e.StreamID != "" {
			entries = append(entries, e)
		}
	}

	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("error reading file: %w", err)
	}

	// Seek back to end for appending
	if _, err := l.file.Seek(0, io.SeekEnd); err != nil {
		return entries, err
	}

	return entries, nil
}

// Append adds an entry to the log.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.file == nil {
		return ErrClosed
	}

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return err
	}
	return l.file.Sync()
}

// Rewrite replaces the log contents with entries.
func (l *Log) Rewrite(entries []Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	if l.file != nil {
		if err := l.file.Close(); err != nil {
			return err
		}
		l.file = nil
	}

	backupPath := l.path + ".bak"
	if err := os.Rename(l.path, backupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to create backup: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND, 0600)
	if err != nil {
		_ = os.Rename(backupPath, l.path)
		return fmt.Errorf("failed to create new file: %w", err)
	}
	l.file = file

	if err := l.writeHeader(); err != nil {
		return err
	}

	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := l.file.Write(append(data, '\n')); err != nil {
			return err
		}
	}

	if err := l.file.Sync(); err != nil {
		return err
	}

	_ = os.Remove(backupPath)
	return nil
}

// Prune keeps only the newest keep entries and returns how many were removed.
func (l *Log) Prune(keep int) (int, error) {
	entries, err := l.Load()
	if err != nil {
		return 0, err
	}
	if keep < 0 || len(entries) <= keep {
		return 0, nil
	}

	removed := len(entries) - keep
	return removed, l.Rewrite(entries[removed:])
}

// Clear removes all entries.
func (l *Log) Clear() error {
	return l.Rewrite(nil)
}

// Close releases the file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}
