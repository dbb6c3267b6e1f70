package table

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/klauspost/compress/gzip"
)

// Reader streams the rows of a table file.  Every call to Read re-scans the
// file from the start.  A Reader must not be used while another goroutine is
// writing the same file.
type Reader struct {
	path    string
	opts    ParseOpts
	leading [][]string
	header  []string
}

// openStream opens path and returns a reader over its decompressed contents.
// The returned close function must be called once the stream is done.
func openStream(ctx context.Context, path string) (io.Reader, func() error, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, errors.E(err, "open", path)
	}
	closeFile := func() error { return in.Close(ctx) }
	reader := io.Reader(in.Reader(ctx))
	switch fileio.DetermineType(path) {
	case fileio.Gzip:
		gz, err := gzip.NewReader(reader)
		if err != nil {
			_ = closeFile()
			return nil, nil, errors.E(err, "gunzip", path)
		}
		return gz, func() error {
			err := gz.Close()
			if e := closeFile(); e != nil && err == nil {
				err = e
			}
			return err
		}, nil
	}
	return reader, closeFile, nil
}

// Open reads the leading rows and the header of the table at path.  Gzipped
// files are decompressed transparently.
func Open(ctx context.Context, path string) (*Reader, error) {
	r := &Reader{path: path, opts: ParseOpts{Path: path}}
	stream, closeStream, err := openStream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer closeStream() // nolint: errcheck
	s, err := newScanner(stream, r.opts)
	if err != nil {
		return nil, err
	}
	r.leading = s.leading
	r.header = s.header
	return r, nil
}

// Path returns the path the reader was opened with.
func (r *Reader) Path() string { return r.path }

// FieldNames returns the header row.
func (r *Reader) FieldNames() []string { return r.header }

// Comments returns the leading rows.
func (r *Reader) Comments() [][]string { return r.leading }

// Read calls fn on every data row in file order.  It stops at the first error
// returned by fn.
func (r *Reader) Read(ctx context.Context, fn func(Row) error) (err error) {
	stream, closeStream, err := openStream(ctx, r.path)
	if err != nil {
		return err
	}
	defer func() {
		if e := closeStream(); e != nil && err == nil {
			err = e
		}
	}()
	s, err := newScanner(stream, r.opts)
	if err != nil {
		return err
	}
	for {
		row, e := s.next()
		if e == io.EOF {
			return nil
		}
		if e != nil {
			return e
		}
		if err = fn(row); err != nil {
			return err
		}
	}
}

// ReadFile loads the whole table at path into memory.
func ReadFile(ctx context.Context, path string) (*Table, error) {
	r, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	t := &Table{Leading: r.Comments(), Header: r.FieldNames()}
	err = r.Read(ctx, func(row Row) error {
		t.Rows = append(t.Rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}
