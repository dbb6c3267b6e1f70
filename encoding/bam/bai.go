package bam

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/bam"
)

// WriteIndex reads a coordinate-sorted .bam file from r, and writes the
// matching .bai index to w.  parallelism controls the .bam file read
// parallelism.
func WriteIndex(w io.Writer, r io.Reader, parallelism int) error {
	br, err := bam.NewReader(r, parallelism)
	if err != nil {
		return err
	}
	defer br.Close() // nolint: errcheck
	var (
		idx bam.Index
		n   int
	)
	for {
		rec, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := idx.Add(rec, br.LastChunk()); err != nil {
			return errors.E(err, "record", rec.Name)
		}
		n++
	}
	log.Debug.Printf("bam.WriteIndex: indexed %d records", n)
	return bam.WriteIndex(w, &idx)
}

// IndexFile creates the .bai index for the BAM file at bamPath and stores it
// at baiPath.  The index only becomes visible under baiPath once it is
// complete.
func IndexFile(ctx context.Context, bamPath, baiPath string) (err error) {
	in, err := file.Open(ctx, bamPath)
	if err != nil {
		return errors.E(err, "open", bamPath)
	}
	defer file.CloseAndReport(ctx, in, &err)
	out, err := file.Create(ctx, baiPath)
	if err != nil {
		return errors.E(err, "create", baiPath)
	}
	if err = WriteIndex(out.Writer(ctx), in.Reader(ctx), 1); err != nil {
		out.Discard(ctx)
		return errors.E(err, "index", bamPath)
	}
	return out.Close(ctx)
}

// IndexExists reports whether baiPath can be opened.
func IndexExists(ctx context.Context, baiPath string) bool {
	_, err := file.Stat(ctx, baiPath)
	return err == nil
}
