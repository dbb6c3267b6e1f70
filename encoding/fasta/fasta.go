// Package fasta reads reference sequences from FASTA files, either fully into
// memory or through a samtools-style .fai index.  See
// http://www.htslib.org/doc/faidx.html.  For example:
//
// >chr7
// ACGTAC
// GAGGAC
// GCG
// >chr8
// ACGT
//
// The sequence name is the text after '>' up to the first space, so
// '>chr1 A viral sequence' names 'chr1'.
package fasta

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const maxLineLen = 1024 * 1024 * 300 // 300 MB

// Fasta represents FASTA-formatted data, consisting of a set of named
// sequences.
type Fasta interface {
	// Get returns a substring of the given sequence name at the given
	// coordinates, which are treated as a 0-based half-open interval
	// [start, end). Get is thread-safe.
	Get(seqName string, start, end uint64) (string, error)

	// Len returns the length of the given sequence.
	Len(seqName string) (uint64, error)

	// SeqNames returns the names of all sequences, in the order of appearance in
	// the FASTA file.
	SeqNames() []string
}

type memFasta struct {
	seqs     map[string]string
	seqNames []string
}

// New reads all the FASTA data from r into memory.
func New(r io.Reader) (Fasta, error) {
	f := &memFasta{seqs: make(map[string]string)}
	var (
		name    string
		started bool
		seq     strings.Builder
	)
	add := func() error {
		if _, ok := f.seqs[name]; ok {
			return errors.Errorf("duplicate sequence name: %s", name)
		}
		f.seqs[name] = seq.String()
		f.seqNames = append(f.seqNames, name)
		seq.Reset()
		return nil
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, maxLineLen)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if len(line) == 0 {
			continue
		}
		if line[0] != '>' {
			if !started {
				return nil, errors.Errorf("malformed FASTA file: sequence data before the first '>' line")
			}
			seq.WriteString(line)
			continue
		}
		if started {
			if err := add(); err != nil {
				return nil, err
			}
		}
		name = strings.SplitN(line[1:], " ", 2)[0]
		started = true
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "couldn't read FASTA data")
	}
	if !started {
		return nil, errors.Errorf("empty FASTA file")
	}
	if err := add(); err != nil {
		return nil, err
	}
	return f, nil
}

func checkRange(seqName string, start, end, length uint64) error {
	if end <= start {
		return errors.Errorf("start must be less than end")
	}
	if end > length {
		return errors.Errorf("end is past end of sequence %s: %d", seqName, length)
	}
	return nil
}

// Get implements Fasta.Get().
func (f *memFasta) Get(seqName string, start, end uint64) (string, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return "", errors.Errorf("sequence not found: %s", seqName)
	}
	if err := checkRange(seqName, start, end, uint64(len(s))); err != nil {
		return "", err
	}
	return s[start:end], nil
}

// Len implements Fasta.Len().
func (f *memFasta) Len(seqName string) (uint64, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return 0, errors.Errorf("sequence not found: %s", seqName)
	}
	return uint64(len(s)), nil
}

// SeqNames implements Fasta.SeqNames().
func (f *memFasta) SeqNames() []string {
	return f.seqNames
}
