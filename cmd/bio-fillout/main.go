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
package main

import (
	"fmt"
	"os"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/fillout/encoding/table"
	"github.com/grailbio/fillout/pileup/fillout"
	"v.io/x/lib/cmdline"
)

func newCmdMergeTables() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "merge-tables",
		Short:    "Left-join two annotated tables on a key column",
		ArgsName: "table1 table2 output",
		Long: `
Every row of table1 is written out, extended with the non-key columns of the
table2 row whose key2 value equals its key1 value.  Comment lines before the
header of table1 are preserved; those of table2 are dropped.`,
	}
	key1 := cmd.Flags.String("key1", "", "Key column of table1")
	key2 := cmd.Flags.String("key2", "", "Key column of table2")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 3 {
			return fmt.Errorf("merge-tables takes table1 table2 output, but got %v", argv)
		}
		if *key1 == "" || *key2 == "" {
			return fmt.Errorf("merge-tables: -key1 and -key2 are required")
		}
		return table.MergeFiles(vcontext.Background(), argv[0], argv[1], *key1, *key2, argv[2])
	})
	return cmd
}

func newCmdFillout() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "fillout",
		Short: "Pile up every sample at the union of the variant loci of all samples",
		Long: `
Each sample is given either with a repeated -sample id,bam,maf[,normal] flag or
as a row of the -samples sheet.  The output has one row per (locus, sample)
pair.`,
	}
	var samples sampleFlags
	cmd.Flags.Var(&samples, "sample", "Sample as id,bam,maf[,normal_id]; may be repeated")
	var (
		refPath     = cmd.Flags.String("ref", "", "Reference FASTA. Optional; when set, loci and alignment headers are checked against it")
		samplesPath = cmd.Flags.String("samples", "", "Sample sheet with sample_id, bam_file and maf_file columns, and optional normal_id and bam_index columns")
		outPath     = cmd.Flags.String("output", "", "Output MAF path")
		bedPath     = cmd.Flags.String("bed", fillout.DefaultOpts.BedPath, "Only report loci overlapping the intervals of this BED file")
		region      = cmd.Flags.String("region", fillout.DefaultOpts.Region, "Only report loci in these space-separated regions, each formatted as <contig ID>:<1-based first pos>-<last pos>, <contig ID>:<1-based pos>, or just <contig ID>")
		flagExclude = cmd.Flags.Int("flag-exclude", fillout.DefaultOpts.FlagExclude, "Reads with a FLAG bit intersecting this value are skipped")
		mapq        = cmd.Flags.Int("mapq", fillout.DefaultOpts.MinMapQ, "Reads with MAPQ below this level are skipped")
		minBaseQual = cmd.Flags.Int("min-base-qual", fillout.DefaultOpts.MinBaseQual, "Reads with a base below this quality inside the locus are skipped")
		countOther  = cmd.Flags.Bool("count-other-alleles", fillout.DefaultOpts.CountOtherAlleles, "Count reads carrying neither the reference nor the alternate allele in t_total_count")
		order       = cmd.Flags.String("order", "locus", "Row order: 'locus' (all samples of a locus together) or 'sample' (all loci of a sample together)")
		sortLoci    = cmd.Flags.Bool("sort-loci", fillout.DefaultOpts.SortLoci, "Sort loci in reference order instead of first-reported order")
		indexBAMs   = cmd.Flags.Bool("index-bams", fillout.DefaultOpts.IndexBAMs, "Create missing BAM indexes")
		indexRef    = cmd.Flags.Bool("index-ref", fillout.DefaultOpts.IndexRef, "Create a missing .fai index for -ref")
		parallelism = cmd.Flags.Int("parallelism", fillout.DefaultOpts.Parallelism, "Maximum number of simultaneous pileup jobs; 0 = runtime.NumCPU()")
	)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("fillout takes no positional arguments, but got %v", argv)
		}
		if *outPath == "" {
			return fmt.Errorf("fillout: -output is required")
		}
		ctx := vcontext.Background()
		specs := []fillout.SampleSpec(samples)
		if *samplesPath != "" {
			sheet, err := readSampleSheet(ctx, *samplesPath)
			if err != nil {
				return err
			}
			specs = append(specs, sheet...)
		}
		if len(specs) == 0 {
			return fmt.Errorf("fillout: no samples; use -sample or -samples")
		}
		rowOrder, err := fillout.ParseOrder(*order)
		if err != nil {
			return err
		}
		opts := fillout.Opts{
			BedPath:           *bedPath,
			Region:            *region,
			FlagExclude:       *flagExclude,
			MinMapQ:           *mapq,
			MinBaseQual:       *minBaseQual,
			CountOtherAlleles: *countOther,
			Order:             rowOrder,
			SortLoci:          *sortLoci,
			IndexBAMs:         *indexBAMs,
			IndexRef:          *indexRef,
			Parallelism:       *parallelism,
		}
		return fillout.Fillout(ctx, *refPath, specs, *outPath, &opts)
	})
	return cmd
}

func main() {
	shutdown := grail.Init()
	cmdline.HideGlobalFlagsExcept()
	env := cmdline.EnvFromOS()
	err := cmdline.ParseAndRun(&cmdline.Command{
		Name:     "bio-fillout",
		Short:    "Multi-sample MAF fillout and table merging",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdFillout(),
			newCmdMergeTables(),
		},
	}, env, os.Args[1:])
	log.Debug.Printf("exiting")
	shutdown()
	os.Exit(cmdline.ExitCode(err, env.Stderr))
}
