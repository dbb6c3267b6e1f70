package table

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
)

// WriteOpts controls Write.
type WriteOpts struct {
	// Delimiter separates fields.  Zero means DefaultDelimiter.
	Delimiter rune
}

// lineWriter emits one row of already-rendered fields per call.
type lineWriter interface {
	writeLine(fields []string) error
	flush() error
}

type tsvLineWriter struct {
	w *tsv.Writer
}

func (w tsvLineWriter) writeLine(fields []string) error {
	if len(fields) == 0 {
		// tsv.Writer needs at least one field to end a line.
		w.w.WriteString("")
	}
	for _, f := range fields {
		w.w.WriteString(f)
	}
	return w.w.EndLine()
}

func (w tsvLineWriter) flush() error { return w.w.Flush() }

type delimLineWriter struct {
	w     *bufio.Writer
	delim string
}

func (w delimLineWriter) writeLine(fields []string) error {
	for i, f := range fields {
		if i > 0 {
			w.w.WriteString(w.delim)
		}
		w.w.WriteString(f)
	}
	return w.w.WriteByte('\n')
}

func (w delimLineWriter) flush() error { return w.w.Flush() }

func newLineWriter(w io.Writer, opts WriteOpts) lineWriter {
	if opts.Delimiter == 0 || opts.Delimiter == '\t' {
		return tsvLineWriter{tsv.NewWriter(w)}
	}
	return delimLineWriter{w: bufio.NewWriter(w), delim: string(opts.Delimiter)}
}

// Write serializes t: leading rows verbatim, then the header, then each data
// row with its trailing empty values stripped.  A row with no values at all is
// written as two empty cells, except in a single-column table, where it comes
// out as a blank line and is lost on the next Parse.
func Write(w io.Writer, t *Table, opts WriteOpts) error {
	lw := newLineWriter(w, opts)
	for _, row := range t.Leading {
		if err := lw.writeLine(row); err != nil {
			return err
		}
	}
	if err := lw.writeLine(t.Header); err != nil {
		return err
	}
	for _, row := range t.Rows {
		vals := t.Values(row)
		if len(vals) == 0 && len(t.Header) > 1 {
			// A blank line is not read back as a row.
			vals = []string{"", ""}
		}
		if err := lw.writeLine(vals); err != nil {
			return err
		}
	}
	return lw.flush()
}

// WriteFile writes t to path.  The file only becomes visible under path once
// everything has been written; on error nothing is left behind.
func WriteFile(ctx context.Context, path string, t *Table) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	if err = Write(out.Writer(ctx), t, WriteOpts{}); err != nil {
		out.Discard(ctx)
		return errors.E(err, "write", path)
	}
	return out.Close(ctx)
}

// Checksum returns a seahash fingerprint of the serialized form of t.  Two
// tables with the same checksum serialize to the same bytes with
// overwhelming probability.
func Checksum(t *Table) (uint64, error) {
	var buf bytes.Buffer
	if err := Write(&buf, t, WriteOpts{}); err != nil {
		return 0, err
	}
	return seahash.Sum64(buf.Bytes()), nil
}
