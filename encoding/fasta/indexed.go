package fasta

import (
	"io"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

type indexedFasta struct {
	seqs     map[string]IndexEntry
	seqNames []string // sorted by file offset

	mu        sync.Mutex
	reader    io.ReadSeeker
	bufOff    int64
	buf       []byte // caches file contents starting at bufOff.
	resultBuf []byte
}

// NewIndexed creates a Fasta that reads sequences from fasta on demand, using
// the .fai index read from index.
func NewIndexed(fasta io.ReadSeeker, index io.Reader) (Fasta, error) {
	entries, err := ReadIndex(index)
	if err != nil {
		return nil, err
	}
	f := &indexedFasta{seqs: make(map[string]IndexEntry, len(entries)), reader: fasta}
	for _, e := range entries {
		if e.LineBases == 0 || e.LineWidth < e.LineBases {
			return nil, errors.Errorf("invalid index entry for %s: %d bases per %d-byte line", e.Name, e.LineBases, e.LineWidth)
		}
		f.seqs[e.Name] = e
		f.seqNames = append(f.seqNames, e.Name)
	}
	sort.SliceStable(f.seqNames, func(i, j int) bool {
		return f.seqs[f.seqNames[i]].Offset < f.seqs[f.seqNames[j]].Offset
	})
	return f, nil
}

// Len implements Fasta.Len().
func (f *indexedFasta) Len(seqName string) (uint64, error) {
	e, ok := f.seqs[seqName]
	if !ok {
		return 0, errors.Errorf("sequence not found in index: %s", seqName)
	}
	return e.Length, nil
}

// SeqNames implements Fasta.SeqNames().
func (f *indexedFasta) SeqNames() []string {
	return f.seqNames
}

func grow(buf []byte, n int) []byte {
	if cap(buf) < n {
		return make([]byte, n)
	}
	return buf[:n]
}

// read returns the file bytes [off, off+n).  The result aliases f.buf.
func (f *indexedFasta) read(off int64, n int) ([]byte, error) {
	limit := off + int64(n)
	if off >= f.bufOff && limit <= f.bufOff+int64(len(f.buf)) {
		return f.buf[off-f.bufOff : limit-f.bufOff], nil
	}
	if _, err := f.reader.Seek(off, io.SeekStart); err != nil {
		return nil, errors.Wrapf(err, "seek to %d", off)
	}
	size := 8192
	if size < n {
		size = n
	}
	f.buf = grow(f.buf, size)
	got, err := io.ReadAtLeast(f.reader, f.buf, n)
	if err != nil {
		return nil, errors.Wrap(err, "unexpected end of FASTA file (bad index?)")
	}
	f.bufOff = off
	f.buf = f.buf[:got]
	return f.buf[:n], nil
}

// Get implements Fasta.Get().
func (f *indexedFasta) Get(seqName string, start, end uint64) (string, error) {
	e, ok := f.seqs[seqName]
	if !ok {
		return "", errors.Errorf("sequence not found in index: %s", seqName)
	}
	if err := checkRange(seqName, start, end, e.Length); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	// Byte range covering [start, end), line terminators included.
	pad := e.LineWidth - e.LineBases
	first := e.Offset + start + pad*(start/e.LineBases)
	last := e.Offset + (end - 1) + pad*((end-1)/e.LineBases)
	raw, err := f.read(int64(first), int(last-first+1))
	if err != nil {
		return "", err
	}
	f.resultBuf = grow(f.resultBuf, int(end-start))
	n := 0
	col := start % e.LineBases
	for i := 0; i < len(raw) && n < len(f.resultBuf); {
		if col == e.LineBases {
			i += int(pad)
			col = 0
			continue
		}
		f.resultBuf[n] = raw[i]
		n++
		i++
		col++
	}
	return string(f.resultBuf[:n]), nil
}
