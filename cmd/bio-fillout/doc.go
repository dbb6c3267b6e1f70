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

/*
bio-fillout reports, for every sample of a cohort, the read support at every
variant locus reported in any sample of the cohort.

Each sample is an alignment (BAM, coordinate sorted and indexed) plus a MAF of
the variants called in it.  The loci of all the MAFs are pooled, deduplicated
on (chromosome, start, end, reference allele, alternate allele), and every
sample is piled up at every locus.  The output is a MAF with one row per
(locus, sample) pair carrying t_ref_count, t_alt_count, t_total_count and
t_variant_frequency, plus the forward-strand counts.

Sample usage:
bio-fillout fillout \
    -ref hg19.fa \
    -sample tumor1,tumor1.bam,tumor1.maf \
    -sample tumor2,tumor2.bam,tumor2.maf,normal2 \
    -output cohort.fillout.maf

Samples can also be listed in a tab-separated sheet with the columns
sample_id, bam_file and maf_file, and optionally normal_id and bam_index:
bio-fillout fillout -ref hg19.fa -samples cohort.tsv -output cohort.fillout.maf

The merge-tables subcommand left-joins two annotated tables (e.g. a MAF and a
clinical sheet) on a key column of each:
bio-fillout merge-tables -key1 Tumor_Sample_Barcode -key2 SAMPLE_ID \
    cohort.maf clinical.tsv cohort.clinical.maf
*/
package main
