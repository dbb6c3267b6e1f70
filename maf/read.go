package maf

import (
	"context"
	"fmt"

	"github.com/grailbio/base/log"
	"github.com/grailbio/fillout/encoding/table"
)

var requiredFields = []string{Chromosome, StartPosition, EndPosition, ReferenceAllele}

// VariantsFromTable converts the rows of a MAF table into variants, in row
// order.  The table must carry the Chromosome, Start_Position, End_Position
// and Reference_Allele columns; the alternate allele comes from
// Tumor_Seq_Allele2 or Tumor_Seq_Allele1, and a row where both are empty or
// "." is malformed.
func VariantsFromTable(t *table.Table, path string) ([]Variant, error) {
	if err := checkHeader(t.Header, path); err != nil {
		return nil, err
	}
	variants := make([]Variant, 0, len(t.Rows))
	for i, row := range t.Rows {
		v, err := rowToVariant(row)
		if err != nil {
			return nil, &table.MalformedTableError{Path: path, Msg: fmt.Sprintf("row %d: %v", i+1, err)}
		}
		variants = append(variants, v)
	}
	return variants, nil
}

// ReadVariants reads the MAF file at path.  Gzipped files are accepted.
func ReadVariants(ctx context.Context, path string) ([]Variant, error) {
	r, err := table.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := checkHeader(r.FieldNames(), path); err != nil {
		return nil, err
	}
	var (
		variants []Variant
		n        int
	)
	err = r.Read(ctx, func(row table.Row) error {
		n++
		v, err := rowToVariant(row)
		if err != nil {
			return &table.MalformedTableError{Path: path, Msg: fmt.Sprintf("row %d: %v", n, err)}
		}
		variants = append(variants, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Debug.Printf("%s: read %d variants", path, len(variants))
	return variants, nil
}

func checkHeader(header []string, path string) error {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[h] = true
	}
	for _, f := range requiredFields {
		if !have[f] {
			return &table.MissingKeyError{Key: f, Table: path}
		}
	}
	return nil
}

func rowToVariant(row table.Row) (Variant, error) {
	start, err := parsePosition(row[StartPosition])
	if err != nil {
		return Variant{}, fmt.Errorf("bad %s %q: %v", StartPosition, row[StartPosition], err)
	}
	end, err := parsePosition(row[EndPosition])
	if err != nil {
		return Variant{}, fmt.Errorf("bad %s %q: %v", EndPosition, row[EndPosition], err)
	}
	ref := row[ReferenceAllele]
	if row[Chromosome] == "" || ref == "" {
		return Variant{}, fmt.Errorf("empty %s or %s", Chromosome, ReferenceAllele)
	}
	alt := altAllele(ref, row[TumorSeqAllele1], row[TumorSeqAllele2])
	if alt == "" || alt == Missing {
		return Variant{}, fmt.Errorf("no alternate allele in %s or %s", TumorSeqAllele1, TumorSeqAllele2)
	}
	return Variant{
		Locus: Locus{
			Chromosome: row[Chromosome],
			Start:      start,
			End:        end,
			Ref:        ref,
			Alt:        alt,
		},
		Fields: row,
	}, nil
}
