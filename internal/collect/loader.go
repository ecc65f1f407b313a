// Package collect discovers raw log exports on disk and decodes them into
// raw records for normalization.
package collect

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/1sec-project/instatrace/internal/core"
	"github.com/rs/zerolog"
)

// LoadStats counts what a load did.
type LoadStats struct {
	Files   int `json:"files"`
	Skipped int `json:"skipped"`
	Records int `json:"records"`
}

// Loader reads every matching JSON document under a directory.
type Loader struct {
	dir       string
	pattern   string
	recursive bool
	logger    zerolog.Logger
}

// NewLoader creates a loader for the input config section.
func NewLoader(cfg core.InputConfig, logger zerolog.Logger) *Loader {
	pattern := cfg.Pattern
	if pattern == "" {
		pattern = "*.json"
	}
	return &Loader{
		dir:       cfg.Dir,
		pattern:   pattern,
		recursive: cfg.Recursive,
		logger:    logger.With().Str("component", "loader").Logger(),
	}
}

// Files returns the matching files in lexical order.
func (l *Loader) Files() ([]string, error) {
	info, err := os.Stat(l.dir)
	if err != nil {
		return nil, fmt.Errorf("input directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input path %s is not a directory", l.dir)
	}

	var files []string
	err = filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != l.dir && !l.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		ok, err := filepath.Match(l.pattern, d.Name())
		if err != nil {
			return fmt.Errorf("input pattern %q: %w", l.pattern, err)
		}
		if ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Load decodes every matching file. A file that cannot be decoded is logged
// and skipped; only discovery failures are returned as errors.
func (l *Loader) Load(ctx context.Context) ([]core.RawRecord, LoadStats, error) {
	var stats LoadStats
	files, err := l.Files()
	if err != nil {
		return nil, stats, err
	}

	var records []core.RawRecord
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		stats.Files++

		recs, err := l.loadFile(path)
		if err != nil {
			stats.Skipped++
			l.logger.Info().Err(err).Str("file", path).Msg("skipping undecodable file")
			continue
		}
		records = append(records, recs...)
	}
	stats.Records = len(records)

	l.logger.Info().
		Int("files", stats.Files).
		Int("skipped", stats.Skipped).
		Int("records", stats.Records).
		Str("dir", l.dir).
		Msg("raw logs loaded")
	return records, stats, nil
}

func (l *Loader) loadFile(path string) ([]core.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadReader(f)
}

// LoadReader decodes a stream of JSON values. A top-level object is one
// record; a top-level array contributes each of its object elements. Several
// concatenated values (JSON lines) are accepted.
func LoadReader(r io.Reader) ([]core.RawRecord, error) {
	dec := json.NewDecoder(bufio.NewReader(r))
	var records []core.RawRecord
	values := 0
	for {
		var v interface{}
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding value %d: %w", values+1, err)
		}
		values++
		records = append(records, recordsFrom(v)...)
	}
	if values == 0 {
		return nil, errors.New("empty document")
	}
	return records, nil
}

func recordsFrom(v interface{}) []core.RawRecord {
	switch tv := v.(type) {
	case map[string]interface{}:
		return []core.RawRecord{tv}
	case []interface{}:
		out := make([]core.RawRecord, 0, len(tv))
		for _, item := range tv {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}
