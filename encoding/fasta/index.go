package fasta

import (
	"bufio"
	"bytes"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// IndexEntry is one line of a .fai index: where a sequence starts in the
// FASTA file and how its lines are laid out.
type IndexEntry struct {
	Name string
	// Length is the number of bases in the sequence.
	Length uint64
	// Offset is the byte offset of the first base.
	Offset uint64
	// LineBases is the number of bases on each full line.
	LineBases uint64
	// LineWidth is the number of bytes on each full line, terminator included.
	LineWidth uint64
}

// ReadIndex parses a .fai index.
func ReadIndex(r io.Reader) ([]IndexEntry, error) {
	tr := tsv.NewReader(r)
	var entries []IndexEntry
	for {
		var e IndexEntry
		if err := tr.Read(&e); err != nil {
			if err == io.EOF {
				return entries, nil
			}
			return nil, errors.E(err, "read FASTA index")
		}
		entries = append(entries, e)
	}
}

// WriteIndex writes entries in .fai format.
func WriteIndex(w io.Writer, entries []IndexEntry) error {
	tw := tsv.NewWriter(w)
	for _, e := range entries {
		tw.WriteString(e.Name)
		tw.WriteInt64(int64(e.Length))
		tw.WriteInt64(int64(e.Offset))
		tw.WriteInt64(int64(e.LineBases))
		tw.WriteInt64(int64(e.LineWidth))
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// BuildIndex scans the FASTA data in r and returns its index entries.  The
// layout of each sequence is taken from its first line.
func BuildIndex(r io.Reader) ([]IndexEntry, error) {
	var (
		br      = bufio.NewReader(r)
		entries []IndexEntry
		cur     *IndexEntry
		off     uint64
	)
	for {
		raw, err := br.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, errors.E(err, "read FASTA")
		}
		off += uint64(len(raw))
		line := bytes.TrimRight(raw, "\r\n")
		switch {
		case len(line) == 0:
		case line[0] == '>':
			name := line[1:]
			if i := bytes.IndexByte(name, ' '); i >= 0 {
				name = name[:i]
			}
			entries = append(entries, IndexEntry{Name: string(name), Offset: off})
			cur = &entries[len(entries)-1]
		case cur == nil:
			return nil, errors.E("malformed FASTA file: sequence data before the first '>' line")
		default:
			if cur.LineWidth == 0 {
				cur.LineWidth = uint64(len(raw))
				cur.LineBases = uint64(len(line))
			}
			cur.Length += uint64(len(line))
		}
		if err == io.EOF {
			break
		}
	}
	if off == 0 {
		return nil, errors.E("empty FASTA file")
	}
	return entries, nil
}

// GenerateIndex generates an index (*.fai) from FASTA.  The index can be later
// passed to NewIndexed() to random-access the FASTA file quickly.
func GenerateIndex(out io.Writer, in io.Reader) error {
	entries, err := BuildIndex(in)
	if err != nil {
		return err
	}
	return WriteIndex(out, entries)
}
