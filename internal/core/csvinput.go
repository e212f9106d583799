package core

// csvinput.go turns an uploaded byte stream into import records.
//
// A leading UTF-8 BOM is dropped. The whole file is parsed and checked
// before any row is reconciled so a malformed file, including one that is
// not valid UTF-8, is reported once as ErrMalformedInput and never
// half-applied.

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"slices"
	"strings"
	"unicode/utf8"
)

// Import column names. Matching is exact after trimming the header cell.
const (
	ColName      = "name"
	ColWebsite   = "website"
	ColEmail     = "email"
	ColPhone     = "phone"
	ColAddress   = "address"
	ColIndustry  = "industry"
	ColMilestone = "milestone"
	ColNotes     = "notes"
)

// ImportColumns lists the recognised import columns. Other columns are ignored.
var ImportColumns = []string{
	ColName, ColWebsite, ColEmail, ColPhone, ColAddress, ColIndustry, ColMilestone, ColNotes,
}

// FirstDataRow is the row number reported for the first record after the header.
const FirstDataRow = 2

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Record is one raw input record keyed by header name. Columns missing from
// the header are absent from the map.
type Record map[string]string

// RecordSource yields records keyed by their reported row number.
type RecordSource = iter.Seq2[int, Record]

// RecordSet is a fully parsed CSV file.
type RecordSet struct {
	Header []string
	rows   [][]string
}

// Len returns the number of data rows, blank rows included.
func (rs *RecordSet) Len() int {
	return len(rs.rows)
}

// Rows yields every non-blank data row with its row number. Blank rows are
// skipped but still consume a number so reported rows match the file.
func (rs *RecordSet) Rows() RecordSource {
	return func(yield func(int, Record) bool) {
		for i, row := range rs.rows {
			if isEmptyRow(row) {
				continue
			}
			if !yield(i+FirstDataRow, rs.record(row)) {
				return
			}
		}
	}
}

// HasColumn reports whether the header contains col.
func (rs *RecordSet) HasColumn(col string) bool {
	return slices.Contains(rs.Header, col)
}

// UnknownColumns returns header cells that are not in ImportColumns, in
// header order. Blank header cells are skipped.
func (rs *RecordSet) UnknownColumns() []string {
	var out []string
	for _, h := range rs.Header {
		if h != "" && !slices.Contains(ImportColumns, h) {
			out = append(out, h)
		}
	}
	return out
}

func (rs *RecordSet) record(row []string) Record {
	rec := make(Record, len(rs.Header))
	for i, col := range rs.Header {
		if col == "" || i >= len(row) {
			continue
		}
		rec[col] = row[i]
	}
	return rec
}

// DecodeCSV reads the whole stream. An unparseable stream, including bad
// quoting, NUL bytes or invalid UTF-8, yields ErrMalformedInput and a stream
// without a header row yields ErrEmptyFile.
// Read errors from r are returned wrapped as-is.
func DecodeCSV(r io.Reader) (*RecordSet, error) {
	cr := csv.NewReader(skipBOM(r))
	// Short and long rows are fine; quoting errors are not.
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedInput, parseErr)
		}
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 || isEmptyRow(records[0]) {
		return nil, ErrEmptyFile
	}
	for i, rec := range records {
		for _, cell := range rec {
			if strings.IndexByte(cell, 0) >= 0 {
				return nil, fmt.Errorf("%w: binary content in record %d", ErrMalformedInput, i+1)
			}
			if !utf8.ValidString(cell) {
				return nil, fmt.Errorf("%w: record %d is not valid UTF-8", ErrMalformedInput, i+1)
			}
		}
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}
	return &RecordSet{Header: header, rows: records[1:]}, nil
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// skipBOM drops a leading UTF-8 byte order mark, as written by Excel.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}
