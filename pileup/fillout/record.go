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
	"strconv"

	"github.com/grailbio/fillout/encoding/table"
	"github.com/grailbio/fillout/maf"
)

const (
	// NormalPlaceholder fills Matched_Norm_Sample_Barcode for a sample
	// without a matched normal.
	NormalPlaceholder = "Normal"
	// Unpaired is the Mutation_Status of a sample without a matched normal.
	Unpaired = "UNPAIRED"
)

// annotationColumns are carried over from the variant that introduced a
// locus.
var annotationColumns = []string{
	maf.HugoSymbol,
	maf.Center,
	maf.NCBIBuild,
	maf.VariantClassification,
	maf.DbSNPRS,
	maf.DbSNPValStatus,
}

// newRecord renders one fillout row for locus l in sample s.  origin is the
// variant that introduced l into the locus index.  Every column of
// maf.FilloutColumns is set.
func newRecord(origin maf.Variant, l maf.Locus, s *Sample, st Stat) table.Row {
	row := make(table.Row, len(maf.FilloutColumns))
	for _, col := range maf.FilloutColumns {
		row[col] = maf.Missing
	}
	for _, col := range annotationColumns {
		row[col] = origin.Field(col)
	}
	row[maf.Chromosome] = l.Chromosome
	row[maf.StartPosition] = strconv.Itoa(l.Start)
	row[maf.EndPosition] = strconv.Itoa(l.End)
	row[maf.Strand] = "+"
	row[maf.VariantTypeField] = l.Type()
	row[maf.ReferenceAllele] = l.Ref
	row[maf.TumorSeqAllele1] = l.Alt

	row[maf.TumorSampleBarcode] = s.ID
	if s.NormalID == "" {
		row[maf.MatchedNormBarcode] = NormalPlaceholder
		row[maf.MutationStatus] = Unpaired
	} else {
		row[maf.MatchedNormBarcode] = s.NormalID
	}

	row[maf.TRefCount] = strconv.Itoa(st.Ref())
	row[maf.TAltCount] = strconv.Itoa(st.Alt())
	row[maf.TTotalCount] = strconv.Itoa(st.Depth())
	row[maf.TVariantFrequency] = FormatVAF(st.VAF())
	row[maf.TTotalCountForward] = strconv.Itoa(st.DepthFwd())
	row[maf.TRefCountForward] = strconv.Itoa(st.RefFwd)
	row[maf.TAltCountForward] = strconv.Itoa(st.AltFwd)
	return row
}
