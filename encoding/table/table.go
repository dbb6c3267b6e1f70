// Package table reads and writes delimited tables that carry a block of
// leading comment rows before a single header row, such as MAF files and
// cBioPortal clinical data files.  For example:
//
// #version 2.4
// #comment
// Hugo_Symbol	Chromosome	Start_Position
// TP53	17	7577120
//
// Data rows are kept as maps from field name to value.  When a row is written
// back out, the run of empty values at the end of the row is dropped instead of
// being written as empty cells, so a row that lacks the last columns of the
// header comes out shorter than the header.  A row without any value keeps two
// empty cells, since blank lines are skipped when reading.
package table

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const (
	// DefaultDelimiter separates fields unless the caller says otherwise.
	DefaultDelimiter = '\t'
	// DefaultComment marks leading metadata rows.
	DefaultComment = '#'

	maxLineLen = 64 << 20
)

// Row maps field names to values.  A field that is missing from the map has no
// value for that row.
type Row map[string]string

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Table is an in-memory annotated table.
type Table struct {
	// Leading holds the rows before the header, in file order.  Each row is
	// already split on the delimiter, so the comment marker is still the first
	// byte of the first field.
	Leading [][]string
	// Header is the ordered list of field names.
	Header []string
	// Rows holds the data rows in file order.
	Rows []Row
}

// FieldNames returns the header of t.
func (t *Table) FieldNames() []string {
	return t.Header
}

// HasField reports whether name appears in the header.
func (t *Table) HasField(name string) bool {
	return fieldIndex(t.Header, name) >= 0
}

// Values renders r in header order, with the trailing run of absent or empty
// values removed.
func (t *Table) Values(r Row) []string {
	n := 0
	vals := make([]string, len(t.Header))
	for i, name := range t.Header {
		if v, ok := r[name]; ok && v != "" {
			vals[i] = v
			n = i + 1
		}
	}
	return vals[:n]
}

func fieldIndex(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

// ParseOpts controls Parse.
type ParseOpts struct {
	// Delimiter separates fields.  Zero means DefaultDelimiter.
	Delimiter rune
	// Comment marks leading metadata rows.  Zero means DefaultComment.
	Comment byte
	// Path is only used in error messages.
	Path string
}

func (o ParseOpts) delimiter() string {
	if o.Delimiter == 0 {
		return string(DefaultDelimiter)
	}
	return string(o.Delimiter)
}

func (o ParseOpts) comment() byte {
	if o.Comment == 0 {
		return DefaultComment
	}
	return o.Comment
}

// MalformedTableError reports a structural problem in a table: no header row,
// or a data row with more fields than the header.
type MalformedTableError struct {
	Path string
	// Line is 1-based; 0 when the problem is not tied to a line.
	Line int
	Msg  string
}

func (e *MalformedTableError) Error() string {
	path := e.Path
	if path == "" {
		path = "<table>"
	}
	if e.Line > 0 {
		return fmt.Sprintf("malformed table %s:%d: %s", path, e.Line, e.Msg)
	}
	return fmt.Sprintf("malformed table %s: %s", path, e.Msg)
}

// MissingKeyError reports a field name that is not present in a table header.
type MissingKeyError struct {
	Key   string
	Table string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("key %q not found in header of %s", e.Key, e.Table)
}

// scanner splits a table stream into rows and classifies them.
type scanner struct {
	opts    ParseOpts
	delim   string
	sc      *bufio.Scanner
	line    int
	leading [][]string
	header  []string
}

func newScanner(r io.Reader, opts ParseOpts) (*scanner, error) {
	s := &scanner{
		opts:  opts,
		delim: opts.delimiter(),
		sc:    bufio.NewScanner(r),
	}
	s.sc.Buffer(nil, maxLineLen)
	comment := opts.comment()
	for s.sc.Scan() {
		s.line++
		text := strings.TrimRight(s.sc.Text(), "\r")
		if len(text) == 0 {
			continue
		}
		fields := strings.Split(text, s.delim)
		if text[0] == comment {
			s.leading = append(s.leading, fields)
			continue
		}
		s.header = fields
		return s, nil
	}
	if err := s.sc.Err(); err != nil {
		return nil, err
	}
	return nil, &MalformedTableError{Path: opts.Path, Line: s.line, Msg: "no header row"}
}

// next returns the next data row, or io.EOF.
func (s *scanner) next() (Row, error) {
	comment := s.opts.comment()
	for s.sc.Scan() {
		s.line++
		text := strings.TrimRight(s.sc.Text(), "\r")
		if len(text) == 0 || text[0] == comment {
			continue
		}
		fields := strings.Split(text, s.delim)
		if len(fields) > len(s.header) {
			return nil, &MalformedTableError{
				Path: s.opts.Path,
				Line: s.line,
				Msg:  fmt.Sprintf("row has %d fields, header has %d", len(fields), len(s.header)),
			}
		}
		row := make(Row, len(fields))
		for i, v := range fields {
			row[s.header[i]] = v
		}
		return row, nil
	}
	if err := s.sc.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Parse reads a whole table from r.
func Parse(r io.Reader, opts ParseOpts) (*Table, error) {
	s, err := newScanner(r, opts)
	if err != nil {
		return nil, err
	}
	t := &Table{Leading: s.leading, Header: s.header}
	for {
		row, err := s.next()
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			return nil, err
		}
		t.Rows = append(t.Rows, row)
	}
}
