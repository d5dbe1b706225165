package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	mstats "github.com/montanaflynn/stats"

	"github.com/KaramelBytes/nutrilens-cli/internal/record"
)

// ColumnReport summarizes one catalog column of a dataset.
type ColumnReport struct {
	Column  string  `json:"column"`
	Label   string  `json:"label"`
	Present bool    `json:"present"`
	Filled  int     `json:"filled"`
	Missing int     `json:"missing"`
	Invalid int     `json:"invalid"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Mean    float64 `json:"mean"`

	values []float64
}

// Report describes a dataset without importing it.
type Report struct {
	Source         string         `json:"source"`
	Rows           int            `json:"rows"`
	DuplicateIDs   int            `json:"duplicate_ids"`
	MissingIDs     int            `json:"missing_ids"`
	UnknownColumns []string       `json:"unknown_columns,omitempty"`
	Columns        []ColumnReport `json:"columns"`
}

// Inspect reads the dataset at path and reports how each catalog column
// would be imported. MaxRows limits the scan; 0 reads everything.
func Inspect(ctx context.Context, path string, opts Options, maxRows int) (*Report, error) {
	src, err := openSource(path, opts)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	rep := &Report{Source: path}
	header, err := src.Read()
	if errors.Is(err, io.EOF) {
		return rep, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, unknown, err := mapHeader(header)
	if err != nil {
		return nil, err
	}
	rep.UnknownColumns = unknown

	present := make(map[string]int, len(cols))
	for _, c := range cols {
		present[c.name] = c.index
	}
	fields := record.Fields()
	rep.Columns = make([]ColumnReport, len(fields))
	for i, f := range fields {
		_, ok := present[f.Column]
		rep.Columns[i] = ColumnReport{Column: f.Column, Label: f.Label, Present: ok}
	}

	seen := make(map[string]bool)
	line := 1
	for maxRows <= 0 || rep.Rows < maxRows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := src.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		if len(row) == 0 {
			continue
		}
		rep.Rows++
		for i, f := range fields {
			idx, ok := present[f.Column]
			if !ok {
				continue
			}
			cr := &rep.Columns[i]
			cell := ""
			if idx < len(row) {
				cell = strings.TrimSpace(row[idx])
			}
			if cell == "" {
				cr.Missing++
				if f.Column == record.IDColumn {
					rep.MissingIDs++
				}
				continue
			}
			cr.Filled++
			if f.Column == record.IDColumn {
				if seen[cell] {
					rep.DuplicateIDs++
				}
				seen[cell] = true
			}
			if !f.Numeric() {
				continue
			}
			v, ok := record.ParseNumberAs(cell, opts.Decimal)
			if !ok {
				cr.Invalid++
				continue
			}
			cr.values = append(cr.values, v)
		}
	}

	for i := range rep.Columns {
		cr := &rep.Columns[i]
		if len(cr.values) == 0 {
			continue
		}
		data := mstats.Float64Data(cr.values)
		cr.Min, _ = data.Min()
		cr.Max, _ = data.Max()
		cr.Mean, _ = data.Mean()
		cr.values = nil
	}
	return rep, nil
}

// Markdown renders the report as a table of the columns found.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Dataset: %s\n\n", r.Source)
	fmt.Fprintf(&b, "Rows: %d, duplicate ids: %d, rows without id: %d\n\n", r.Rows, r.DuplicateIDs, r.MissingIDs)
	b.WriteString("| Column | Label | Filled | Missing | Invalid | Min | Mean | Max |\n")
	b.WriteString("|---|---|---:|---:|---:|---:|---:|---:|\n")
	var absent []string
	for _, c := range r.Columns {
		if !c.Present {
			absent = append(absent, c.Column)
			continue
		}
		fmt.Fprintf(&b, "| %s | %s | %d | %d | %d | %.4g | %.4g | %.4g |\n",
			c.Column, c.Label, c.Filled, c.Missing, c.Invalid, c.Min, c.Mean, c.Max)
	}
	if len(absent) > 0 {
		fmt.Fprintf(&b, "\nColumns not in the file (imported as 0 or empty): %s\n", strings.Join(absent, ", "))
	}
	if len(r.UnknownColumns) > 0 {
		fmt.Fprintf(&b, "\nIgnored columns: %s\n", strings.Join(r.UnknownColumns, ", "))
	}
	return b.String()
}
