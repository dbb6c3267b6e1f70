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
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/grailbio/fillout/encoding/bamprovider"
	"github.com/grailbio/fillout/encoding/fasta"
	"github.com/grailbio/fillout/encoding/table"
	"github.com/grailbio/fillout/maf"
	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const refLen = 1000

// refBases returns the test reference over the 0-based range [start, end).
// Every chromosome repeats ACGT.
func refBases(start, end int) string {
	var b strings.Builder
	for i := start; i < end; i++ {
		b.WriteByte("ACGT"[i%4])
	}
	return b.String()
}

type testData struct {
	header     *sam.Header
	chr1, chr2 *sam.Reference
	recs       []*sam.Record
}

func newTestData(t *testing.T) *testData {
	chr1, err := sam.NewReference("chr1", "", "", refLen, nil, nil)
	require.NoError(t, err)
	chr2, err := sam.NewReference("chr2", "", "", refLen, nil, nil)
	require.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{chr1, chr2})
	require.NoError(t, err)
	return &testData{header: header, chr1: chr1, chr2: chr2}
}

// add appends a read with the given alignment.  All bases have quality 30
// unless qual is given.
func (d *testData) add(name string, ref *sam.Reference, pos int, cigar sam.Cigar, seq string, flags sam.Flags, qual ...byte) {
	if qual == nil {
		qual = make([]byte, len(seq))
		for i := range qual {
			qual[i] = 30
		}
	}
	d.recs = append(d.recs, &sam.Record{
		Name:    name,
		Ref:     ref,
		Pos:     pos,
		MapQ:    60,
		Cigar:   cigar,
		Flags:   flags,
		MatePos: -1,
		Seq:     sam.NewSeq([]byte(seq)),
		Qual:    qual,
	})
}

func (d *testData) provider() bamprovider.Provider {
	sort.SliceStable(d.recs, func(i, j int) bool {
		if d.recs[i].Ref.ID() != d.recs[j].Ref.ID() {
			return d.recs[i].Ref.ID() < d.recs[j].Ref.ID()
		}
		return d.recs[i].Pos < d.recs[j].Pos
	})
	return bamprovider.NewFakeProvider(d.header, d.recs)
}

func m(n int) sam.CigarOp { return sam.NewCigarOp(sam.CigarMatch, n) }
func ins(n int) sam.CigarOp { return sam.NewCigarOp(sam.CigarInsertion, n) }
func del(n int) sam.CigarOp { return sam.NewCigarOp(sam.CigarDeletion, n) }

// withBase returns the reference over [start, end) with the base at pos
// replaced by b.
func withBase(start, end, pos int, b string) string {
	s := refBases(start, end)
	return s[:pos-start] + b + s[pos-start+1:]
}

var (
	snpLocus = maf.Locus{Chromosome: "chr1", Start: 101, End: 101, Ref: "A", Alt: "G"}
	delLocus = maf.Locus{Chromosome: "chr1", Start: 201, End: 203, Ref: "ACG", Alt: "-"}
	insLocus = maf.Locus{Chromosome: "chr1", Start: 301, End: 302, Ref: "-", Alt: "TT"}
)

func addSNPReads(d *testData) {
	d.add("alt.fwd", d.chr1, 90, sam.Cigar{m(20)}, withBase(90, 110, 100, "G"), 0)
	d.add("ref.rev", d.chr1, 95, sam.Cigar{m(20)}, refBases(95, 115), sam.Reverse)
	d.add("ref.starts.at.locus", d.chr1, 100, sam.Cigar{m(10)}, refBases(100, 110), 0)
	d.add("starts.after", d.chr1, 101, sam.Cigar{m(10)}, refBases(101, 111), 0)
	d.add("ends.before", d.chr1, 80, sam.Cigar{m(20)}, refBases(80, 100), 0)
	d.add("dup", d.chr1, 92, sam.Cigar{m(20)}, withBase(92, 112, 100, "G"), sam.Duplicate)
	d.add("other", d.chr1, 93, sam.Cigar{m(20)}, withBase(93, 113, 100, "T"), sam.Reverse)
	lowQual := make([]byte, 20)
	for i := range lowQual {
		lowQual[i] = 30
	}
	lowQual[100-94] = 5
	d.add("lowqual", d.chr1, 94, sam.Cigar{m(20)}, withBase(94, 114, 100, "G"), 0, lowQual...)
	d.add("alt.rev", d.chr1, 96, sam.Cigar{m(20)}, withBase(96, 116, 100, "G"), sam.Reverse)
}

func TestComputeSNP(t *testing.T) {
	d := newTestData(t)
	addSNPReads(d)
	lowMapQ := *d.recs[0]
	lowMapQ.Name = "lowmapq"
	lowMapQ.MapQ = 10
	d.recs = append(d.recs, &lowMapQ)
	p := d.provider()
	ctx := context.Background()

	opts := DefaultOpts
	st, err := Compute(ctx, p, snpLocus, &opts)
	require.NoError(t, err)
	assert.Equal(t, Stat{RefFwd: 1, RefRev: 1, AltFwd: 2, AltRev: 1}, st)
	assert.Equal(t, 5, st.Depth())
	assert.Equal(t, 3, st.DepthFwd())
	assert.Equal(t, "0.6", FormatVAF(st.VAF()))

	opts.MinBaseQual = 20
	st, err = Compute(ctx, p, snpLocus, &opts)
	require.NoError(t, err)
	assert.Equal(t, Stat{RefFwd: 1, RefRev: 1, AltFwd: 1, AltRev: 1}, st)

	opts = DefaultOpts
	opts.CountOtherAlleles = true
	opts.FlagExclude = 0
	opts.MinMapQ = 0
	st, err = Compute(ctx, p, snpLocus, &opts)
	require.NoError(t, err)
	assert.Equal(t, Stat{RefFwd: 1, RefRev: 1, AltFwd: 4, AltRev: 1, OtherRev: 1}, st)

	// Alleles compare case-insensitively.
	opts = DefaultOpts
	lower := snpLocus
	lower.Ref, lower.Alt = "a", "g"
	st, err = Compute(ctx, p, lower, &opts)
	require.NoError(t, err)
	assert.Equal(t, Stat{RefFwd: 1, RefRev: 1, AltFwd: 2, AltRev: 1}, st)
	require.NoError(t, p.Close())
}

func TestComputeIndels(t *testing.T) {
	d := newTestData(t)
	// Deletion of chr1:201-203.
	d.add("del.alt", d.chr1, 190, sam.Cigar{m(10), del(3), m(10)}, refBases(190, 200)+refBases(203, 213), 0)
	d.add("del.ref", d.chr1, 190, sam.Cigar{m(30)}, refBases(190, 220), sam.Reverse)
	d.add("del.other", d.chr1, 190, sam.Cigar{m(11), del(1), m(10)}, refBases(190, 201)+refBases(202, 212), 0)
	d.add("del.partial", d.chr1, 201, sam.Cigar{m(20)}, refBases(201, 221), 0)
	// A longer deletion, chr1:200-204, swallows the locus.
	d.add("del.longer", d.chr1, 190, sam.Cigar{m(9), del(5), m(10)}, refBases(190, 199)+refBases(204, 214), sam.Reverse)
	// Insertion of TT between chr1:301 and chr1:302.
	d.add("ins.alt", d.chr1, 290, sam.Cigar{m(11), ins(2), m(10)}, refBases(290, 301)+"TT"+refBases(301, 311), sam.Reverse)
	d.add("ins.ref", d.chr1, 290, sam.Cigar{m(21)}, refBases(290, 311), 0)
	d.add("ins.other", d.chr1, 290, sam.Cigar{m(11), ins(1), m(10)}, refBases(290, 301)+"T"+refBases(301, 311), 0)
	d.add("ins.no.anchor", d.chr1, 301, sam.Cigar{m(10)}, refBases(301, 311), 0)
	// Deletion of chr1:299-305, across the insertion site.
	d.add("ins.deleted", d.chr1, 290, sam.Cigar{m(8), del(7), m(10)}, refBases(290, 298)+refBases(305, 315), sam.Reverse)
	p := d.provider()
	ctx := context.Background()
	opts := DefaultOpts

	st, err := Compute(ctx, p, delLocus, &opts)
	require.NoError(t, err)
	assert.Equal(t, Stat{AltFwd: 1, RefRev: 1}, st)

	st, err = Compute(ctx, p, insLocus, &opts)
	require.NoError(t, err)
	assert.Equal(t, Stat{AltRev: 1, RefFwd: 1}, st)

	opts.CountOtherAlleles = true
	st, err = Compute(ctx, p, delLocus, &opts)
	require.NoError(t, err)
	assert.Equal(t, Stat{AltFwd: 1, RefRev: 1, OtherFwd: 1, OtherRev: 1}, st)

	st, err = Compute(ctx, p, insLocus, &opts)
	require.NoError(t, err)
	assert.Equal(t, Stat{AltRev: 1, RefFwd: 1, OtherFwd: 1, OtherRev: 1}, st)
	assert.Equal(t, "0.25", FormatVAF(st.VAF()))
	require.NoError(t, p.Close())
}

func TestComputeUnknownReference(t *testing.T) {
	d := newTestData(t)
	p := d.provider()
	opts := DefaultOpts
	_, err := Compute(context.Background(), p, maf.Locus{Chromosome: "chr9", Start: 5, End: 5, Ref: "A", Alt: "C"}, &opts)
	var e *UnknownReferenceError
	require.True(t, errors.As(err, &e), "%v", err)
	assert.Equal(t, "chr9", e.Chromosome)

	// Loci at the chromosome edges are clamped, not rejected.
	st, err := Compute(context.Background(), p, maf.Locus{Chromosome: "chr2", Start: 1, End: 1, Ref: "A", Alt: "C"}, &opts)
	require.NoError(t, err)
	assert.Equal(t, Stat{}, st)
	st, err = Compute(context.Background(), p, maf.Locus{Chromosome: "chr2", Start: refLen, End: refLen, Ref: "T", Alt: "C"}, &opts)
	require.NoError(t, err)
	assert.Equal(t, Stat{}, st)
	require.NoError(t, p.Close())
}

func TestStat(t *testing.T) {
	var st Stat
	assert.Equal(t, 0.0, st.VAF())
	assert.Equal(t, "0", FormatVAF(st.VAF()))
	st = Stat{RefFwd: 10, RefRev: 7, AltFwd: 1}
	assert.Equal(t, "0.0555556", FormatVAF(st.VAF()))
	st = Stat{AltRev: 3}
	assert.Equal(t, "1", FormatVAF(st.VAF()))
}

func TestParseOrder(t *testing.T) {
	o, err := ParseOrder("sample")
	require.NoError(t, err)
	assert.Equal(t, OrderSampleMajor, o)
	o, err = ParseOrder("")
	require.NoError(t, err)
	assert.Equal(t, OrderLocusMajor, o)
	_, err = ParseOrder("chromosome")
	assert.Error(t, err)
}

func variant(l maf.Locus, gene string) maf.Variant {
	return maf.Variant{Locus: l, Fields: map[string]string{maf.HugoSymbol: gene, maf.Center: "grail"}}
}

// scenario returns two samples with no reads: s1 reports loci A, B and C, s2
// reports C and D.
func scenario(t *testing.T) ([]Sample, *maf.LocusIndex) {
	d := newTestData(t)
	a := variant(maf.Locus{Chromosome: "chr1", Start: 11, End: 11, Ref: "G", Alt: "A"}, "GA")
	b := variant(maf.Locus{Chromosome: "chr1", Start: 51, End: 51, Ref: "G", Alt: "T"}, "GB")
	c := variant(maf.Locus{Chromosome: "chr2", Start: 7, End: 8, Ref: "GT", Alt: "-"}, "GC")
	d2 := variant(maf.Locus{Chromosome: "chr2", Start: 20, End: 21, Ref: "-", Alt: "A"}, "GD")
	samples := []Sample{
		{ID: "s1", Provider: d.provider(), Variants: []maf.Variant{a, b, c}},
		{ID: "s2", Provider: d.provider(), Variants: []maf.Variant{c, d2}},
	}
	idx := maf.BuildLocusIndex([]maf.VariantList{
		{SampleID: "s1", Variants: samples[0].Variants},
		{SampleID: "s2", Variants: samples[1].Variants},
	})
	return samples, idx
}

func TestBuildScenario(t *testing.T) {
	samples, idx := scenario(t)
	require.Equal(t, 4, idx.Len())
	opts := DefaultOpts
	out, err := Build(context.Background(), nil, idx, samples, &opts)
	require.NoError(t, err)
	assert.Equal(t, maf.FilloutColumns, out.Header)
	require.Len(t, out.Rows, 8)

	var got []string
	for _, row := range out.Rows {
		got = append(got, row[maf.HugoSymbol]+"/"+row[maf.TumorSampleBarcode])
		assert.Len(t, row, len(maf.FilloutColumns))
		assert.Equal(t, "UNPAIRED", row[maf.MutationStatus])
		assert.Equal(t, "Normal", row[maf.MatchedNormBarcode])
		assert.Equal(t, "0", row[maf.TRefCount])
		assert.Equal(t, "0", row[maf.TAltCount])
		assert.Equal(t, "0", row[maf.TTotalCount])
		assert.Equal(t, "0", row[maf.TVariantFrequency])
		assert.Equal(t, "+", row[maf.Strand])
		assert.Equal(t, "grail", row[maf.Center])
		assert.Equal(t, ".", row[maf.DbSNPRS])
		assert.Equal(t, ".", row[maf.TumorSeqAllele2])
		assert.Equal(t, ".", row["n_ref_count"])
		assert.Equal(t, ".", row[maf.BAMFile])
	}
	assert.Equal(t, []string{"GA/s1", "GA/s2", "GB/s1", "GB/s2", "GC/s1", "GC/s2", "GD/s1", "GD/s2"}, got)
	assert.Equal(t, "DEL", out.Rows[4][maf.VariantTypeField])
	assert.Equal(t, "GT", out.Rows[4][maf.ReferenceAllele])
	assert.Equal(t, "-", out.Rows[4][maf.TumorSeqAllele1])
	assert.Equal(t, "20", out.Rows[6][maf.StartPosition])
	assert.Equal(t, "21", out.Rows[6][maf.EndPosition])
	assert.Equal(t, "INS", out.Rows[6][maf.VariantTypeField])

	opts.Order = OrderSampleMajor
	out, err = Build(context.Background(), nil, idx, samples, &opts)
	require.NoError(t, err)
	got = nil
	for _, row := range out.Rows {
		got = append(got, row[maf.HugoSymbol]+"/"+row[maf.TumorSampleBarcode])
	}
	assert.Equal(t, []string{"GA/s1", "GB/s1", "GC/s1", "GD/s1", "GA/s2", "GB/s2", "GC/s2", "GD/s2"}, got)
	for _, s := range samples {
		require.NoError(t, s.Provider.Close())
	}
}

func TestBuildPaired(t *testing.T) {
	samples, idx := scenario(t)
	samples[1].NormalID = "s2-normal"
	opts := DefaultOpts
	out, err := Build(context.Background(), nil, idx, samples, &opts)
	require.NoError(t, err)
	assert.Equal(t, "s2-normal", out.Rows[1][maf.MatchedNormBarcode])
	assert.Equal(t, ".", out.Rows[1][maf.MutationStatus])
	assert.Equal(t, "UNPAIRED", out.Rows[0][maf.MutationStatus])
}

func TestBuildEmpty(t *testing.T) {
	samples, _ := scenario(t)
	opts := DefaultOpts
	out, err := Build(context.Background(), nil, maf.BuildLocusIndex(nil), samples, &opts)
	require.NoError(t, err)
	assert.Len(t, out.Rows, 0)
	assert.Equal(t, maf.FilloutColumns, out.Header)

	_, idx := scenario(t)
	out, err = Build(context.Background(), nil, idx, nil, &opts)
	require.NoError(t, err)
	assert.Len(t, out.Rows, 0)
}

func TestBuildDeterministic(t *testing.T) {
	d := newTestData(t)
	addSNPReads(d)
	var variants []maf.Variant
	for i, l := range []maf.Locus{snpLocus, delLocus, insLocus} {
		variants = append(variants, variant(l, string(rune('A'+i))))
	}
	for pos := 400; pos < 900; pos += 37 {
		l := maf.Locus{Chromosome: "chr1", Start: pos + 1, End: pos + 1, Ref: refBases(pos, pos+1), Alt: "N"}
		variants = append(variants, variant(l, "tile"))
		d.add("tile", d.chr1, pos-5, sam.Cigar{m(30)}, refBases(pos-5, pos+25), sam.Flags(pos%2)*sam.Reverse)
	}
	p := d.provider()
	var samples []Sample
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		samples = append(samples, Sample{ID: id, Provider: p, Variants: variants})
	}
	idx := maf.BuildLocusIndex([]maf.VariantList{{SampleID: "a", Variants: variants}})

	var sums []uint64
	for _, parallelism := range []int{1, 2, 7, 64} {
		opts := DefaultOpts
		opts.Parallelism = parallelism
		out, err := Build(context.Background(), nil, idx, samples, &opts)
		require.NoError(t, err)
		require.Len(t, out.Rows, idx.Len()*len(samples))
		sum, err := table.Checksum(out)
		require.NoError(t, err)
		sums = append(sums, sum)
	}
	for _, sum := range sums[1:] {
		assert.Equal(t, sums[0], sum)
	}
	require.NoError(t, p.Close())
}

func testFasta(t *testing.T) fasta.Fasta {
	fa, err := fasta.New(strings.NewReader(">chr1\n" + refBases(0, refLen) + "\n>chr2\n" + refBases(0, refLen) + "\n"))
	require.NoError(t, err)
	return fa
}

func TestBuildUnknownReference(t *testing.T) {
	samples, idx := scenario(t)
	opts := DefaultOpts

	d := newTestData(t)
	chr1Only, err := sam.NewHeader(nil, []*sam.Reference{d.chr1})
	require.NoError(t, err)
	samples[1].Provider = bamprovider.NewFakeProvider(chr1Only, nil)
	_, err = Build(context.Background(), nil, idx, samples, &opts)
	var e *UnknownReferenceError
	require.True(t, errors.As(err, &e), "%v", err)
	assert.Equal(t, "chr2", e.Chromosome)
	assert.Equal(t, "s2", e.Sample)
	assert.Equal(t, idx.Loci[2], e.Locus)
	assert.Contains(t, err.Error(), "sample s2")

	fa, err := fasta.New(strings.NewReader(">chr1\n" + refBases(0, refLen) + "\n"))
	require.NoError(t, err)
	samples, idx = scenario(t)
	_, err = Build(context.Background(), fa, idx, samples, &opts)
	require.True(t, errors.As(err, &e), "%v", err)
	assert.Equal(t, "chr2", e.Chromosome)
	assert.Equal(t, "", e.Sample)
}

func TestBuildWithReference(t *testing.T) {
	d := newTestData(t)
	addSNPReads(d)
	p := d.provider()
	samples := []Sample{{ID: "t", Provider: p}}
	bad := maf.Locus{Chromosome: "chr1", Start: 101, End: 101, Ref: "C", Alt: "G"}
	idx := maf.BuildLocusIndex([]maf.VariantList{{
		SampleID: "t",
		Variants: []maf.Variant{variant(snpLocus, "X"), variant(bad, "Y"), variant(insLocus, "Z")},
	}})
	fa := testFasta(t)
	assert.Equal(t, 1, countRefMismatches(fa, idx))

	opts := DefaultOpts
	out, err := Build(context.Background(), fa, idx, samples, &opts)
	require.NoError(t, err)
	require.Len(t, out.Rows, 3)
	assert.Equal(t, "2", out.Rows[0][maf.TRefCount])
	assert.Equal(t, "3", out.Rows[0][maf.TAltCount])
	assert.Equal(t, "5", out.Rows[0][maf.TTotalCount])
	assert.Equal(t, "0.6", out.Rows[0][maf.TVariantFrequency])
	assert.Equal(t, "3", out.Rows[0][maf.TTotalCountForward])
	assert.Equal(t, "1", out.Rows[0][maf.TRefCountForward])
	assert.Equal(t, "2", out.Rows[0][maf.TAltCountForward])
	// The mismatching locus is reported, its reads all count as alt or other.
	assert.Equal(t, "0", out.Rows[1][maf.TRefCount])

	// A header whose lengths disagree with the reference is rejected.
	short, err := sam.NewReference("chr1", "", "", refLen-1, nil, nil)
	require.NoError(t, err)
	h, err := sam.NewHeader(nil, []*sam.Reference{short, d.chr2})
	require.NoError(t, err)
	samples[0].Provider = bamprovider.NewFakeProvider(h, nil)
	_, err = Build(context.Background(), fa, idx, samples, &opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inconsistent lengths")
	require.NoError(t, p.Close())
}

func TestBuildCanceled(t *testing.T) {
	samples, idx := scenario(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := DefaultOpts
	_, err := Build(ctx, nil, idx, samples, &opts)
	require.Error(t, err)
}
