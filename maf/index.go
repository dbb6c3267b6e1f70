package maf

import "sort"

// VariantList is the set of variants reported for one sample.
type VariantList struct {
	SampleID string
	Variants []Variant
}

// LocusIndex is the ordered, deduplicated union of loci across samples.
// Origin[i] is the variant that first introduced Loci[i].
type LocusIndex struct {
	Loci   []Locus
	Origin []Variant
	pos    map[Locus]int
}

// BuildLocusIndex returns the union of the loci of lists.  Loci appear in
// first-occurrence order: the lists in the given order, and within a list the
// variants in order.
func BuildLocusIndex(lists []VariantList) *LocusIndex {
	idx := &LocusIndex{pos: map[Locus]int{}}
	for _, list := range lists {
		for _, v := range list.Variants {
			if _, ok := idx.pos[v.Locus]; ok {
				continue
			}
			idx.pos[v.Locus] = len(idx.Loci)
			idx.Loci = append(idx.Loci, v.Locus)
			idx.Origin = append(idx.Origin, v)
		}
	}
	return idx
}

// Len returns the number of distinct loci.
func (idx *LocusIndex) Len() int { return len(idx.Loci) }

// Index returns the position of l in idx.
func (idx *LocusIndex) Index(l Locus) (int, bool) {
	i, ok := idx.pos[l]
	return i, ok
}

func (idx *LocusIndex) reindex() {
	idx.pos = make(map[Locus]int, len(idx.Loci))
	for i, l := range idx.Loci {
		idx.pos[l] = i
	}
}

// Filter drops the loci for which keep returns false.  The relative order of
// the remaining loci is unchanged.
func (idx *LocusIndex) Filter(keep func(Locus) bool) {
	n := 0
	for i, l := range idx.Loci {
		if !keep(l) {
			continue
		}
		idx.Loci[n] = l
		idx.Origin[n] = idx.Origin[i]
		n++
	}
	idx.Loci = idx.Loci[:n]
	idx.Origin = idx.Origin[:n]
	idx.reindex()
}

// SortByReference reorders the loci by chromosome, following order (usually
// the sequence order of the reference FASTA), then by start, end, ref and alt.
// Chromosomes missing from order sort after the known ones, by name.
func (idx *LocusIndex) SortByReference(order []string) {
	rank := make(map[string]int, len(order))
	for i, name := range order {
		rank[name] = i
	}
	chromRank := func(c string) int {
		if r, ok := rank[c]; ok {
			return r
		}
		return len(order)
	}
	sort.Stable(byReference{idx, chromRank})
	idx.reindex()
}

type byReference struct {
	idx  *LocusIndex
	rank func(string) int
}

func (s byReference) Len() int { return len(s.idx.Loci) }

func (s byReference) Swap(i, j int) {
	s.idx.Loci[i], s.idx.Loci[j] = s.idx.Loci[j], s.idx.Loci[i]
	s.idx.Origin[i], s.idx.Origin[j] = s.idx.Origin[j], s.idx.Origin[i]
}

func (s byReference) Less(i, j int) bool {
	a, b := s.idx.Loci[i], s.idx.Loci[j]
	if a.Chromosome != b.Chromosome {
		ra, rb := s.rank(a.Chromosome), s.rank(b.Chromosome)
		if ra != rb {
			return ra < rb
		}
		return a.Chromosome < b.Chromosome
	}
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	if a.End != b.End {
		return a.End < b.End
	}
	if a.Ref != b.Ref {
		return a.Ref < b.Ref
	}
	return a.Alt < b.Alt
}
