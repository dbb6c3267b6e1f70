// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package fillout

import (
	"context"
	"strconv"
	"strings"

	"github.com/grailbio/fillout/encoding/bamprovider"
	"github.com/grailbio/fillout/maf"
	"github.com/grailbio/fillout/pileup"
	"github.com/grailbio/hts/sam"
)

// Stat holds the per-strand read support for one locus in one sample.
type Stat struct {
	RefFwd, RefRev     int
	AltFwd, AltRev     int
	OtherFwd, OtherRev int
}

// Ref returns the number of reads carrying the reference allele.
func (s Stat) Ref() int { return s.RefFwd + s.RefRev }

// Alt returns the number of reads carrying the alternate allele.
func (s Stat) Alt() int { return s.AltFwd + s.AltRev }

// Depth returns the number of reads counted at the locus.  Reads carrying a
// third allele only contribute when they were counted, see
// Opts.CountOtherAlleles.
func (s Stat) Depth() int { return s.Ref() + s.Alt() + s.OtherFwd + s.OtherRev }

// DepthFwd is Depth restricted to forward-strand reads.
func (s Stat) DepthFwd() int { return s.RefFwd + s.AltFwd + s.OtherFwd }

// VAF returns Alt()/Depth(), or 0 when nothing was counted.
func (s Stat) VAF() float64 {
	d := s.Depth()
	if d == 0 {
		return 0
	}
	return float64(s.Alt()) / float64(d)
}

// FormatVAF renders a variant allele frequency with six significant digits.
func FormatVAF(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func (s *Stat) add(a allele, strand pileup.StrandType) {
	rev := strand == pileup.StrandRev
	switch a {
	case alleleRef:
		if rev {
			s.RefRev++
		} else {
			s.RefFwd++
		}
	case alleleAlt:
		if rev {
			s.AltRev++
		} else {
			s.AltFwd++
		}
	case alleleOther:
		if rev {
			s.OtherRev++
		} else {
			s.OtherFwd++
		}
	}
}

type allele int

const (
	alleleNone allele = iota // read skipped
	alleleRef
	alleleAlt
	alleleOther
)

// target is a locus translated to 0-based reference coordinates.  The read's
// bases aligned to [start, end) are compared with ref and alt.  For an
// insertion start == end, and the bases inserted before reference position
// start are compared instead.
//
// When the alleles differ in length, the read must also carry an aligned base
// right before and right after the target, so that a read whose own deletion
// swallows the site is not mistaken for either allele.
type target struct {
	start, end int
	insertion  bool
	anchored   bool
	ref, alt   string
	refLen     int
}

func newTarget(l maf.Locus) target {
	t := target{
		ref: strings.ToUpper(maf.AlleleBases(l.Ref)),
		alt: strings.ToUpper(maf.AlleleBases(l.Alt)),
	}
	if l.Ref == maf.EmptyAllele {
		t.start, t.end, t.insertion = l.Start, l.Start, true
	} else {
		t.start, t.end = l.Start-1, l.End
	}
	t.anchored = t.insertion || len(t.ref) != len(t.alt)
	return t
}

// queryRange is the reference range whose overlapping reads may inform t: t
// plus one anchor base on each side.
func (t target) queryRange(refLen int) (int, int) {
	start, limit := t.start-1, t.end+1
	if start < 0 {
		start = 0
	}
	if limit > refLen {
		limit = refLen
	}
	return start, limit
}

// spans reports whether r covers the target.  Insertions need an aligned
// anchor on both sides.
func (t target) spans(r *sam.Record) bool {
	if t.insertion {
		return r.Pos < t.start && r.End() > t.start
	}
	return r.Pos <= t.start && r.End() >= t.end
}

// realize returns the bases r carries at t, whether all of them pass
// minQual, and whether r is aligned on both sides of t when t requires it.
func (t target) realize(r *sam.Record, buf []byte, minQual byte) ([]byte, bool, bool) {
	buf = buf[:0]
	refPos, qPos := r.Pos, 0
	passed := true
	// No anchor exists past either end of the reference.
	leftOK := !t.anchored || t.start == 0
	rightOK := !t.anchored || t.end >= t.refLen
	take := func(q int) {
		buf = append(buf, pileup.ReadBase(r, q))
		if q < len(r.Qual) && r.Qual[q] != 0xff && r.Qual[q] < minQual {
			passed = false
		}
	}
	for _, co := range r.Cigar {
		n := co.Len()
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			lo, hi := refPos, refPos+n
			if lo <= t.start-1 && t.start-1 < hi {
				leftOK = true
			}
			if lo <= t.end && t.end < hi {
				rightOK = true
			}
			if lo < t.start {
				lo = t.start
			}
			if hi > t.end {
				hi = t.end
			}
			for p := lo; p < hi; p++ {
				take(qPos + p - refPos)
			}
			refPos += n
			qPos += n
		case sam.CigarInsertion:
			inside := t.start < refPos && refPos < t.end
			if t.insertion {
				inside = refPos == t.start
			}
			if inside {
				for q := qPos; q < qPos+n; q++ {
					take(q)
				}
			}
			qPos += n
		case sam.CigarDeletion, sam.CigarSkipped:
			refPos += n
		case sam.CigarSoftClipped:
			qPos += n
		}
		if refPos > t.end {
			break
		}
	}
	return buf, passed, leftOK && rightOK
}

func (t target) classify(seq []byte) allele {
	s := strings.ToUpper(string(seq))
	switch s {
	case t.ref:
		return alleleRef
	case t.alt:
		return alleleAlt
	}
	return alleleOther
}

// Compute counts the reads of p that support the reference and alternate
// alleles of l.  Reads matching opts.FlagExclude, with MAPQ below
// opts.MinMapQ, that don't span the locus, or with a base below
// opts.MinBaseQual inside the locus are ignored.  The caller must check
// beforehand that l.Chromosome is present in the header of p.
func Compute(ctx context.Context, p bamprovider.Provider, l maf.Locus, opts *Opts) (Stat, error) {
	var st Stat
	if err := ctx.Err(); err != nil {
		return st, err
	}
	header, err := p.GetHeader()
	if err != nil {
		return st, err
	}
	ref := bamprovider.RefByName(header, l.Chromosome)
	if ref == nil {
		return st, &UnknownReferenceError{Chromosome: l.Chromosome, Locus: l}
	}
	t := newTarget(l)
	t.refLen = ref.Len()
	start, limit := t.queryRange(ref.Len())
	if start >= limit {
		return st, nil
	}
	var (
		buf         []byte
		flagExclude = sam.Flags(opts.FlagExclude)
		minQual     = byte(opts.MinBaseQual)
	)
	iter := p.NewOverlapIterator(ref, start, limit)
	for iter.Scan() {
		r := iter.Record()
		if r.Flags&flagExclude != 0 || int(r.MapQ) < opts.MinMapQ || r.Seq.Length == 0 || !t.spans(r) {
			continue
		}
		var passed, anchored bool
		buf, passed, anchored = t.realize(r, buf, minQual)
		if !passed {
			continue
		}
		a := alleleOther
		if anchored {
			a = t.classify(buf)
		}
		if a == alleleOther && !opts.CountOtherAlleles {
			continue
		}
		st.add(a, pileup.GetStrand(r))
	}
	return st, iter.Close()
}
