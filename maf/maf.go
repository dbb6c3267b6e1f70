// Package maf models the variant loci carried by Mutation Annotation Format
// tables and builds the deduplicated union of loci across samples.
package maf

import (
	"fmt"
	"strconv"
)

// Field names of the MAF columns read or written by this package.
const (
	HugoSymbol            = "Hugo_Symbol"
	EntrezGeneID          = "Entrez_Gene_Id"
	Center                = "Center"
	NCBIBuild             = "NCBI_Build"
	Chromosome            = "Chromosome"
	StartPosition         = "Start_Position"
	EndPosition           = "End_Position"
	Strand                = "Strand"
	VariantClassification = "Variant_Classification"
	VariantTypeField      = "Variant_Type"
	ReferenceAllele       = "Reference_Allele"
	TumorSeqAllele1       = "Tumor_Seq_Allele1"
	TumorSeqAllele2       = "Tumor_Seq_Allele2"
	DbSNPRS               = "dbSNP_RS"
	DbSNPValStatus        = "dbSNP_Val_Status"
	TumorSampleBarcode    = "Tumor_Sample_Barcode"
	MatchedNormBarcode    = "Matched_Norm_Sample_Barcode"
	MutationStatus        = "Mutation_Status"
	BAMFile               = "BAM_File"
	TRefCount             = "t_ref_count"
	TAltCount             = "t_alt_count"
	TTotalCount           = "t_total_count"
	TVariantFrequency     = "t_variant_frequency"
	TTotalCountForward    = "t_total_count_forward"
	TRefCountForward      = "t_ref_count_forward"
	TAltCountForward      = "t_alt_count_forward"
)

// FilloutColumns is the header of a fillout table, in output order.
var FilloutColumns = []string{
	HugoSymbol,
	EntrezGeneID,
	Center,
	NCBIBuild,
	Chromosome,
	StartPosition,
	EndPosition,
	Strand,
	VariantClassification,
	VariantTypeField,
	ReferenceAllele,
	TumorSeqAllele1,
	TumorSeqAllele2,
	DbSNPRS,
	DbSNPValStatus,
	TumorSampleBarcode,
	MatchedNormBarcode,
	"Match_Norm_Seq_Allele1",
	"Match_Norm_Seq_Allele2",
	"Tumor_Validation_Allele1",
	"Tumor_Validation_Allele2",
	"Match_Norm_Validation_Allele1",
	"Match_Norm_Validation_Allele2",
	"Verification_Status",
	"Validation_Status",
	MutationStatus,
	"Sequencing_Phase",
	"Sequence_Source",
	"Validation_Method",
	"Score",
	BAMFile,
	"Sequencer",
	TRefCount,
	TAltCount,
	"n_ref_count",
	"n_alt_count",
	"Caller",
	TTotalCount,
	TVariantFrequency,
	TTotalCountForward,
	TRefCountForward,
	TAltCountForward,
}

// Missing is the placeholder MAF uses for an absent value or an empty allele.
const Missing = "."

// EmptyAllele marks the missing side of an insertion or deletion.
const EmptyAllele = "-"

// Locus identifies a candidate variant: a reference interval plus the
// reference and alternate alleles observed there.  Start and End are 1-based
// and inclusive, as in MAF.  For an insertion Ref is "-" and the inserted
// bases sit between Start and End.  Loci compare equal only when all five
// fields are identical; no allele normalization is done.
type Locus struct {
	Chromosome string
	Start, End int
	Ref, Alt   string
}

// String renders the locus as chr:start-end:ref>alt.
func (l Locus) String() string {
	return fmt.Sprintf("%s:%d-%d:%s>%s", l.Chromosome, l.Start, l.End, l.Ref, l.Alt)
}

// Type classifies the locus the way MAF's Variant_Type column does.
func (l Locus) Type() string {
	return VariantType(l.Ref, l.Alt)
}

// VariantType returns SNP, DNP, TNP, ONP, INS or DEL for a ref/alt pair.
func VariantType(ref, alt string) string {
	switch {
	case ref == EmptyAllele || ref == "":
		return "INS"
	case alt == EmptyAllele || alt == "":
		return "DEL"
	case len(ref) == len(alt):
		switch len(ref) {
		case 1:
			return "SNP"
		case 2:
			return "DNP"
		case 3:
			return "TNP"
		}
		return "ONP"
	case len(ref) < len(alt):
		return "INS"
	}
	return "DEL"
}

// AlleleBases returns the bases of a MAF allele, with "-" mapped to the empty
// string.
func AlleleBases(a string) string {
	if a == EmptyAllele {
		return ""
	}
	return a
}

// Variant is one MAF row: the locus it reports plus the row itself, which
// carries the annotation columns.
type Variant struct {
	Locus
	Fields map[string]string
}

// Field returns the named annotation value, or Missing when it is absent or
// empty.
func (v Variant) Field(name string) string {
	if s, ok := v.Fields[name]; ok && s != "" {
		return s
	}
	return Missing
}

// altAllele picks the alternate allele of a MAF row.  Tumor_Seq_Allele2 is
// used unless it is empty, "." or just restates the reference, in which case
// Tumor_Seq_Allele1 is used.
func altAllele(ref, allele1, allele2 string) string {
	if allele2 != "" && allele2 != Missing && allele2 != ref {
		return allele2
	}
	return allele1
}

func parsePosition(s string) (int, error) {
	pos, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if pos < 0 {
		return 0, fmt.Errorf("negative position %d", pos)
	}
	return pos, nil
}
