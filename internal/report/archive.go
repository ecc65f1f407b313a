package report

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/1sec-project/instatrace/internal/core"
	"github.com/rs/zerolog"
)

// Archive record types.
const (
	RecordRun   = "run"
	RecordEvent = "event"
	RecordAlert = "high_priority"
)

// ArchiveRecord is the NDJSON envelope written to archive files.
type ArchiveRecord struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"ts"`
	Data      json.RawMessage `json:"data"`
}

// Archiver writes gzip-compressed NDJSON records to a single file.
type Archiver struct {
	logger zerolog.Logger

	mu      sync.Mutex
	path    string
	file    *os.File
	gz      *gzip.Writer
	records int64
	bytes   int64
}

// NewArchiver creates the archive file, and its directory if needed.
func NewArchiver(path string, logger zerolog.Logger) (*Archiver, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating archive dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating archive file: %w", err)
	}
	gz, _ := gzip.NewWriterLevel(f, gzip.BestSpeed)
	return &Archiver{
		logger: logger.With().Str("component", "archiver").Logger(),
		path:   path,
		file:   f,
		gz:     gz,
	}, nil
}

// Write appends one record of the given type.
func (a *Archiver) Write(recordType string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s record: %w", recordType, err)
	}
	line, err := json.Marshal(ArchiveRecord{
		Type:      recordType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("marshaling archive envelope: %w", err)
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gz == nil {
		return fmt.Errorf("archive %s is closed", a.path)
	}
	n, err := a.gz.Write(line)
	if err != nil {
		return fmt.Errorf("writing archive record: %w", err)
	}
	a.records++
	a.bytes += int64(n)
	return nil
}

// Close flushes the compressor and closes the file.
func (a *Archiver) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var firstErr error
	if a.gz != nil {
		firstErr = a.gz.Close()
		a.gz = nil
	}
	if a.file != nil {
		if err := a.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		a.file = nil
	}
	a.logger.Debug().Str("file", filepath.Base(a.path)).Int64("records", a.records).Msg("archive closed")
	return firstErr
}

// Status returns archive counters.
func (a *Archiver) Status() map[string]interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]interface{}{
		"file":          filepath.Base(a.path),
		"records":       a.records,
		"bytes_written": a.bytes,
	}
}

// ArchiveResult writes a run record, every scored event and every
// high-priority event to a new archive at path.
func ArchiveResult(path string, result *core.AnalysisResult, logger zerolog.Logger) error {
	a, err := NewArchiver(path, logger)
	if err != nil {
		return err
	}
	if err := writeResult(a, result); err != nil {
		a.Close()
		return err
	}
	return a.Close()
}

func writeResult(a *Archiver, result *core.AnalysisResult) error {
	if err := a.Write(RecordRun, result.Summary()); err != nil {
		return err
	}
	for _, se := range result.Scored {
		if err := a.Write(RecordEvent, se); err != nil {
			return err
		}
	}
	for _, se := range result.HighPriority {
		if err := a.Write(RecordAlert, se); err != nil {
			return err
		}
	}
	return nil
}

// ReadArchive decodes every record of a gzip NDJSON archive.
func ReadArchive(r io.Reader) ([]ArchiveRecord, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer gz.Close()

	var records []ArchiveRecord
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var rec ArchiveRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("decoding archive record %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}
