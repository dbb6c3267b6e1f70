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
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	gbam "github.com/grailbio/fillout/encoding/bam"
	"github.com/grailbio/fillout/encoding/bamprovider"
	"github.com/grailbio/fillout/encoding/fasta"
	"github.com/grailbio/fillout/encoding/table"
	"github.com/grailbio/fillout/interval"
	"github.com/grailbio/fillout/maf"
	"github.com/grailbio/fillout/pileup"
)

// Sample is one alignment file plus the variants reported for it.
type Sample struct {
	ID string
	// NormalID names the matched normal.  Empty means unpaired.
	NormalID string
	Provider bamprovider.Provider
	Variants []maf.Variant
	// BAMPath is informational.
	BAMPath string
}

// UnknownReferenceError is returned when a locus names a chromosome that the
// alignment header of a sample, or the reference FASTA, lacks.  Sample is
// empty in the latter case.
type UnknownReferenceError struct {
	Chromosome string
	Sample     string
	Locus      maf.Locus
}

func (e *UnknownReferenceError) Error() string {
	if e.Sample == "" {
		return fmt.Sprintf("locus %v: chromosome %s not found in the reference", e.Locus, e.Chromosome)
	}
	return fmt.Sprintf("locus %v: chromosome %s not found in the alignment header of sample %s", e.Locus, e.Chromosome, e.Sample)
}

// firstLocusByChrom maps each chromosome of idx to its first locus.
func firstLocusByChrom(idx *maf.LocusIndex) (map[string]maf.Locus, []string) {
	first := map[string]maf.Locus{}
	var order []string
	for _, l := range idx.Loci {
		if _, ok := first[l.Chromosome]; !ok {
			first[l.Chromosome] = l
			order = append(order, l.Chromosome)
		}
	}
	return first, order
}

// checkSamples verifies up front that every chromosome named by idx is known
// to every sample, and to ref when it is non-nil.
func checkSamples(ref fasta.Fasta, idx *maf.LocusIndex, samples []Sample) error {
	first, chroms := firstLocusByChrom(idx)
	if ref != nil {
		for _, chrom := range chroms {
			if _, err := ref.Len(chrom); err != nil {
				return &UnknownReferenceError{Chromosome: chrom, Locus: first[chrom]}
			}
		}
	}
	for i := range samples {
		s := &samples[i]
		header, err := s.Provider.GetHeader()
		if err != nil {
			return errors.E(err, "sample", s.ID, s.BAMPath)
		}
		for _, chrom := range chroms {
			if bamprovider.RefByName(header, chrom) == nil {
				return &UnknownReferenceError{Chromosome: chrom, Sample: s.ID, Locus: first[chrom]}
			}
		}
		if ref != nil {
			if err := pileup.CheckRefs(ref, header.Refs()); err != nil {
				return errors.E(err, "sample", s.ID)
			}
		}
	}
	return nil
}

// countRefMismatches returns the number of loci whose reference allele
// disagrees with ref.
func countRefMismatches(ref fasta.Fasta, idx *maf.LocusIndex) int {
	n := 0
	for _, l := range idx.Loci {
		if l.Ref == maf.EmptyAllele || l.Start < 1 || l.End < l.Start {
			continue
		}
		seq, err := ref.Get(l.Chromosome, uint64(l.Start-1), uint64(l.End))
		if err != nil || !strings.EqualFold(seq, l.Ref) {
			log.Debug.Printf("fillout: reference allele of %v does not match the reference (%q)", l, seq)
			n++
		}
	}
	return n
}

// Build computes the fillout table of idx over samples: one row per (locus,
// sample) pair, |loci|*|samples| rows in all.  ref may be nil; when given, it
// is checked against the alignment headers and the reference alleles.  The
// loci and samples are split into contiguous blocks and processed by
// opts.Parallelism workers; the output does not depend on the parallelism.
func Build(ctx context.Context, ref fasta.Fasta, idx *maf.LocusIndex, samples []Sample, opts *Opts) (*table.Table, error) {
	if err := checkSamples(ref, idx, samples); err != nil {
		return nil, err
	}
	if ref != nil {
		if n := countRefMismatches(ref, idx); n > 0 {
			log.Printf("fillout: warning: %d of %d loci have a reference allele that disagrees with the reference", n, idx.Len())
		}
	}

	nSample := len(samples)
	nTask := idx.Len() * nSample
	results := make([]Stat, nTask)
	parallelism := opts.parallelism()
	if parallelism > nTask {
		parallelism = nTask
	}
	log.Printf("fillout: computing %d loci x %d samples (%d jobs)", idx.Len(), nSample, parallelism)
	if nTask > 0 {
		err := traverse.Each(parallelism, func(jobIdx int) error {
			startIdx := (jobIdx * nTask) / parallelism
			endIdx := ((jobIdx + 1) * nTask) / parallelism
			for taskIdx := startIdx; taskIdx < endIdx; taskIdx++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				l, s := idx.Loci[taskIdx/nSample], &samples[taskIdx%nSample]
				st, err := Compute(ctx, s.Provider, l, opts)
				if err != nil {
					if e, ok := err.(*UnknownReferenceError); ok {
						e.Sample = s.ID
						return e
					}
					return errors.E(err, "sample", s.ID, "locus", l.String())
				}
				results[taskIdx] = st
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	out := &table.Table{
		Header: append([]string(nil), maf.FilloutColumns...),
		Rows:   make([]table.Row, 0, nTask),
	}
	add := func(li, si int) {
		out.Rows = append(out.Rows, newRecord(idx.Origin[li], idx.Loci[li], &samples[si], results[li*nSample+si]))
	}
	switch opts.Order {
	case OrderSampleMajor:
		for si := range samples {
			for li := range idx.Loci {
				add(li, si)
			}
		}
	default:
		for li := range idx.Loci {
			for si := range samples {
				add(li, si)
			}
		}
	}
	return out, nil
}

// SampleSpec names the files of one sample.
type SampleSpec struct {
	ID       string
	NormalID string
	BAMPath  string
	// BAMIndexPath defaults to BAMPath + ".bai".
	BAMIndexPath string
	MAFPath      string
}

func (s SampleSpec) indexPath() string {
	if s.BAMIndexPath != "" {
		return s.BAMIndexPath
	}
	return s.BAMPath + ".bai"
}

// locusFilter returns the intersection of the -bed and -region restrictions
// as a predicate, or nil when there is none.
func locusFilter(ctx context.Context, opts *Opts) (func(maf.Locus) bool, error) {
	var unions []interval.BEDUnion
	if opts.BedPath != "" {
		u, err := interval.NewBEDUnionFromPath(ctx, opts.BedPath, interval.NewBEDOpts{})
		if err != nil {
			return nil, err
		}
		unions = append(unions, u)
	}
	if opts.Region != "" {
		u, err := interval.NewBEDUnionFromRegions(strings.Fields(opts.Region))
		if err != nil {
			return nil, err
		}
		unions = append(unions, u)
	}
	if len(unions) == 0 {
		return nil, nil
	}
	for _, u := range unions {
		log.Printf("fillout: interval filter covers %d base(s) on %d chromosome(s)", u.NBases(), len(u.ChrNames()))
	}
	return func(l maf.Locus) bool {
		t := newTarget(l)
		for i := range unions {
			if !unions[i].OverlapsByName(l.Chromosome, interval.PosType(t.start), interval.PosType(t.end)) {
				return false
			}
		}
		return true
	}, nil
}

func openSamples(ctx context.Context, specs []SampleSpec, opts *Opts) ([]Sample, error) {
	seen := map[string]bool{}
	for _, spec := range specs {
		if spec.ID == "" {
			return nil, errors.E(errors.Invalid, "fillout: empty sample ID for", spec.BAMPath)
		}
		if seen[spec.ID] {
			return nil, errors.E(errors.Invalid, "fillout: duplicate sample ID", spec.ID)
		}
		seen[spec.ID] = true
	}
	samples := make([]Sample, len(specs))
	err := traverse.Each(len(specs), func(i int) error {
		spec := specs[i]
		variants, err := maf.ReadVariants(ctx, spec.MAFPath)
		if err != nil {
			return err
		}
		if opts.IndexBAMs && !gbam.IndexExists(ctx, spec.indexPath()) {
			log.Printf("fillout: indexing %s", spec.BAMPath)
			if err := gbam.IndexFile(ctx, spec.BAMPath, spec.indexPath()); err != nil {
				return err
			}
		}
		samples[i] = Sample{
			ID:       spec.ID,
			NormalID: spec.NormalID,
			Provider: bamprovider.NewProvider(spec.BAMPath, bamprovider.ProviderOpts{Index: spec.indexPath()}),
			Variants: variants,
			BAMPath:  spec.BAMPath,
		}
		return nil
	})
	if err != nil {
		closeSamples(samples) // nolint: errcheck
		return nil, err
	}
	return samples, nil
}

func closeSamples(samples []Sample) error {
	var e errors.Once
	for _, s := range samples {
		if s.Provider != nil {
			e.Set(s.Provider.Close())
		}
	}
	return e.Err()
}

// Fillout reads the MAF of every sample, takes the union of their loci and
// writes the fillout table of all samples over that union to outPath.
// refPath may be empty, in which case no reference checks are done and
// opts.SortLoci orders chromosomes by name.  Nothing is written on error.
func Fillout(ctx context.Context, refPath string, specs []SampleSpec, outPath string, opts *Opts) (err error) {
	var ref fasta.Fasta
	if refPath != "" {
		if ref, err = pileup.LoadFa(ctx, refPath, opts.IndexRef); err != nil {
			return err
		}
	}
	samples, err := openSamples(ctx, specs, opts)
	if err != nil {
		return err
	}
	defer func() {
		if e := closeSamples(samples); e != nil && err == nil {
			err = e
		}
	}()

	lists := make([]maf.VariantList, len(samples))
	for i, s := range samples {
		lists[i] = maf.VariantList{SampleID: s.ID, Variants: s.Variants}
	}
	idx := maf.BuildLocusIndex(lists)
	log.Printf("fillout: %d distinct loci across %d samples", idx.Len(), len(samples))
	keep, err := locusFilter(ctx, opts)
	if err != nil {
		return err
	}
	if keep != nil {
		n := idx.Len()
		idx.Filter(keep)
		log.Printf("fillout: %d of %d loci kept by the interval filter", idx.Len(), n)
	}
	if opts.SortLoci {
		var order []string
		if ref != nil {
			order = ref.SeqNames()
		}
		idx.SortByReference(order)
	}

	out, err := Build(ctx, ref, idx, samples, opts)
	if err != nil {
		return err
	}
	if err = table.WriteFile(ctx, outPath, out); err != nil {
		return err
	}
	sum, err := table.Checksum(out)
	if err != nil {
		return err
	}
	log.Printf("fillout: wrote %d rows to %s (checksum %016x)", len(out.Rows), outPath, sum)
	return nil
}
