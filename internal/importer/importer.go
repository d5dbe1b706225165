package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/KaramelBytes/nutrilens-cli/internal/record"
	"github.com/KaramelBytes/nutrilens-cli/internal/settings"
	"github.com/sirupsen/logrus"
)

// ErrNoIDColumn is returned when the header lacks the respondent identifier.
var ErrNoIDColumn = errors.New("dataset header has no identifier column")

// Gate is the persisted "dataset already imported" flag.
type Gate interface {
	Imported() (bool, error)
	MarkImported(settings.ImportInfo) error
}

// Options controls how the dataset is read.
type Options struct {
	// Delimiter for text files. If 0, detected from the extension and header line.
	Delimiter rune
	// Sheet for workbooks. Empty means the first sheet.
	Sheet string
	// Decimal separator of numeric cells, '.' or ','. If 0, detected per cell.
	Decimal rune
}

// Summary describes one import attempt.
type Summary struct {
	Source         string        `json:"source"`
	Rows           int           `json:"rows"`
	Inserted       int           `json:"inserted"`
	Duplicates     int           `json:"duplicates"`
	SkippedRows    int           `json:"skipped_rows"`
	DefaultedCells int           `json:"defaulted_cells"`
	UnknownColumns []string      `json:"unknown_columns,omitempty"`
	Skipped        bool          `json:"skipped"`
	Duration       time.Duration `json:"duration"`
}

// Importer loads a survey dataset into a record store exactly once.
type Importer struct {
	mu    sync.Mutex
	store record.Writer
	gate  Gate
	log   logrus.FieldLogger
	opts  Options
}

// New builds an importer. A nil logger discards output.
func New(store record.Writer, gate Gate, log logrus.FieldLogger, opts Options) *Importer {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Importer{store: store, gate: gate, log: log, opts: opts}
}

// ImportOnce imports the dataset at path unless a previous import completed.
// On any read or write failure the flag stays unset so the import can be
// retried; rows written before the failure remain in the store.
func (im *Importer) ImportOnce(ctx context.Context, path string) (*Summary, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	log := im.log.WithField("source", filepath.Base(path))
	done, err := im.gate.Imported()
	if err != nil {
		return nil, fmt.Errorf("check import flag: %w", err)
	}
	if done {
		log.Debug("dataset already imported, skipping")
		return &Summary{Source: path, Skipped: true}, nil
	}

	start := time.Now()
	src, err := openSource(path, im.opts)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	sum := &Summary{Source: path}
	if err := im.load(ctx, src, sum, log); err != nil {
		sum.Duration = time.Since(start)
		log.WithError(err).WithField("inserted", sum.Inserted).Error("dataset import aborted")
		return sum, err
	}
	sum.Duration = time.Since(start)

	if err := im.gate.MarkImported(settings.ImportInfo{
		Source:     path,
		Rows:       sum.Rows,
		Inserted:   sum.Inserted,
		ImportedAt: time.Now().UTC(),
	}); err != nil {
		return sum, fmt.Errorf("set import flag: %w", err)
	}
	log.WithFields(logrus.Fields{
		"rows":            sum.Rows,
		"inserted":        sum.Inserted,
		"duplicates":      sum.Duplicates,
		"skipped_rows":    sum.SkippedRows,
		"defaulted_cells": sum.DefaultedCells,
		"duration_ms":     sum.Duration.Milliseconds(),
	}).Info("dataset imported")
	return sum, nil
}

type column struct {
	name  string
	index int
}

// mapHeader resolves every catalog field to its position in the header.
// Lookups go by name so column order in the file does not matter.
func mapHeader(header []string) ([]column, []string, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		n := record.NormalizeColumn(h)
		if n == "" {
			continue
		}
		if _, seen := index[n]; !seen {
			index[n] = i
		}
	}
	var cols []column
	known := make(map[string]bool, len(index))
	hasID := false
	for _, f := range record.Fields() {
		for _, name := range append([]string{f.Column}, f.Aliases...) {
			i, ok := index[name]
			if !ok {
				continue
			}
			cols = append(cols, column{name: f.Column, index: i})
			known[name] = true
			if f.Column == record.IDColumn {
				hasID = true
			}
			break
		}
	}
	if !hasID {
		return nil, nil, ErrNoIDColumn
	}
	var unknown []string
	for _, h := range header {
		n := record.NormalizeColumn(h)
		if n != "" && !known[n] {
			unknown = append(unknown, n)
		}
	}
	return cols, unknown, nil
}

func (im *Importer) load(ctx context.Context, src rowSource, sum *Summary, log logrus.FieldLogger) error {
	header, err := src.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	cols, unknown, err := mapHeader(header)
	if err != nil {
		return err
	}
	sum.UnknownColumns = unknown
	if len(unknown) > 0 {
		log.WithField("columns", unknown).Debug("ignoring unknown columns")
	}

	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := src.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("read line %d: %w", line, err)
		}
		if len(row) == 0 {
			continue
		}
		sum.Rows++

		attrs := make(map[string]string, len(cols))
		for _, c := range cols {
			if c.index < len(row) {
				attrs[c.name] = row[c.index]
			}
		}
		r, bad := record.FromAttributes(attrs, im.opts.Decimal)
		sum.DefaultedCells += len(bad)
		if len(bad) > 0 {
			log.WithFields(logrus.Fields{"line": line, "columns": bad}).Debug("unparsable cells defaulted to zero")
		}
		if r.ID == "" {
			sum.SkippedRows++
			log.WithField("line", line).Warn("row has no identifier, skipping")
			continue
		}
		inserted, err := im.store.Insert(ctx, r)
		if err != nil {
			return fmt.Errorf("store line %d: %w", line, err)
		}
		if inserted {
			sum.Inserted++
		} else {
			sum.Duplicates++
			log.WithFields(logrus.Fields{"line": line, "id": r.ID}).Debug("duplicate identifier ignored")
		}
	}
}
