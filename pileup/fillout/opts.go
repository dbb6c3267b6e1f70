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
	"fmt"
	"runtime"

	"github.com/grailbio/hts/sam"
)

// Order selects how Build arranges the output rows.
type Order int

const (
	// OrderLocusMajor emits, for each locus in index order, one row per
	// sample in input order.
	OrderLocusMajor Order = iota
	// OrderSampleMajor emits, for each sample in input order, one row per
	// locus in index order.
	OrderSampleMajor
)

// ParseOrder parses "locus" or "sample".
func ParseOrder(s string) (Order, error) {
	switch s {
	case "locus", "":
		return OrderLocusMajor, nil
	case "sample":
		return OrderSampleMajor, nil
	}
	return 0, fmt.Errorf("unknown row order %q (want locus or sample)", s)
}

type Opts struct {
	// Commandline options.
	//
	// BedPath and Region restrict the loci; Region is a space-separated list
	// of samtools-style region strings.  A locus is kept when it overlaps every
	// restriction that is set.
	BedPath           string
	Region            string
	FlagExclude       int
	MinMapQ           int
	MinBaseQual       int
	CountOtherAlleles bool
	Order             Order
	SortLoci          bool
	IndexBAMs         bool
	IndexRef          bool
	Parallelism       int
}

// DefaultOpts skips unmapped, secondary, QC-failed and duplicate reads, and
// reads with MAPQ below 20.
var DefaultOpts = Opts{
	FlagExclude:       int(sam.Unmapped | sam.Secondary | sam.QCFail | sam.Duplicate),
	MinMapQ:           20,
	MinBaseQual:       0,
	CountOtherAlleles: false,
	Order:             OrderLocusMajor,
	Parallelism:       0,
}

func (o *Opts) parallelism() int {
	if o.Parallelism <= 0 {
		return runtime.NumCPU()
	}
	return o.Parallelism
}
