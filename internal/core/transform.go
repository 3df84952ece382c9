package core

// transform.go turns raw CSV text into a StructuredTable holding only the
// requested columns, in the requested order.
//
// Two dialects are supported:
//
//   - DialectSimple: split on line breaks and commas, trim whitespace and
//     strip double quotes from every field. Embedded commas and quotes are
//     not supported.
//   - DialectRFC4180: quote-aware parsing via encoding/csv.
//
// Blank lines are discarded in both dialects. Data rows shorter than the
// header are padded with "" so every row has len(required) cells.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Dialect selects the field tokenizer used by Parse.
type Dialect string

const (
	DialectSimple  Dialect = "simple"
	DialectRFC4180 Dialect = "rfc4180"
)

// ParseDialect converts a config value to a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(s))) {
	case "", DialectSimple:
		return DialectSimple, nil
	case DialectRFC4180:
		return DialectRFC4180, nil
	default:
		return "", fmt.Errorf("unknown csv dialect %q", s)
	}
}

// DefaultRequiredColumns is the column projection applied to processed files.
var DefaultRequiredColumns = []string{"Department Name", "Total Number of Sales"}

type parseOptions struct {
	dialect Dialect
}

// ParseOption configures Parse.
type ParseOption func(*parseOptions)

// WithDialect selects the tokenizer. The default is DialectSimple.
func WithDialect(d Dialect) ParseOption {
	return func(o *parseOptions) {
		if d != "" {
			o.dialect = d
		}
	}
}

// Parse splits raw into records, resolves each required column against the
// header row and projects every data row onto those columns.
//
// Returns MalformedCsvError if raw has no non-blank lines and
// MissingColumnError for the first required column the header lacks.
// Header matching is exact and case-sensitive.
func Parse(raw string, required []string, opts ...ParseOption) (*StructuredTable, error) {
	o := parseOptions{dialect: DialectSimple}
	for _, opt := range opts {
		opt(&o)
	}

	if len(required) == 0 {
		return nil, errors.New("parse: no required columns given")
	}

	var (
		records [][]string
		err     error
	)
	switch o.dialect {
	case DialectRFC4180:
		records, err = splitRFC4180(raw)
	default:
		records = splitSimple(raw)
	}
	if err != nil {
		return nil, &MalformedCsvError{Reason: err.Error()}
	}
	if len(records) == 0 {
		return nil, &MalformedCsvError{Reason: "no non-blank lines"}
	}

	indices, err := resolveColumns(records[0], required)
	if err != nil {
		return nil, err
	}

	headers := make([]string, len(required))
	copy(headers, required)

	rows := make([][]string, 0, len(records)-1)
	for _, record := range records[1:] {
		rows = append(rows, project(record, indices))
	}

	return &StructuredTable{Headers: headers, Rows: rows}, nil
}

// ParseReader reads r through the BOM and UTF-8 sanitising readers and parses
// the result.
func ParseReader(r io.Reader, required []string, opts ...ParseOption) (*StructuredTable, error) {
	data, err := io.ReadAll(NewSanitizingReader(r))
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return Parse(string(data), required, opts...)
}

// resolveColumns maps each required name to its position in header. The
// first occurrence of a duplicated header name wins.
func resolveColumns(header, required []string) ([]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		if _, ok := pos[h]; !ok {
			pos[h] = i
		}
	}

	indices := make([]int, len(required))
	for i, name := range required {
		idx, ok := pos[name]
		if !ok {
			return nil, &MissingColumnError{Column: name}
		}
		indices[i] = idx
	}
	return indices, nil
}

func project(record []string, indices []int) []string {
	row := make([]string, len(indices))
	for i, idx := range indices {
		if idx < len(record) {
			row[i] = record[idx]
		}
	}
	return row
}

func splitSimple(raw string) [][]string {
	lines := strings.Split(raw, "\n")
	records := make([][]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, ",")
		for i, f := range fields {
			fields[i] = cleanSimpleField(f)
		}
		records = append(records, fields)
	}
	return records
}

// cleanSimpleField trims whitespace and removes every double quote.
func cleanSimpleField(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, `"`, "")
	return strings.TrimSpace(s)
}

func splitRFC4180(raw string) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(raw))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	all, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	records := all[:0]
	for _, rec := range all {
		if isBlankRecord(rec) {
			continue
		}
		for i, f := range rec {
			rec[i] = strings.TrimSpace(f)
		}
		records = append(records, rec)
	}
	return records, nil
}

func isBlankRecord(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
