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
	"context"
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/fillout/encoding/table"
	"github.com/grailbio/fillout/pileup/fillout"
)

// Sample sheet columns.
const (
	colSampleID = "sample_id"
	colBAM      = "bam_file"
	colMAF      = "maf_file"
	colNormalID = "normal_id"
	colBAMIndex = "bam_index"
)

// sampleFlags collects repeated -sample id,bam,maf[,normal_id] flags.
type sampleFlags []fillout.SampleSpec

func (s *sampleFlags) String() string {
	var parts []string
	for _, spec := range *s {
		parts = append(parts, spec.ID)
	}
	return strings.Join(parts, " ")
}

func (s *sampleFlags) Set(value string) error {
	spec, err := parseSampleFlag(value)
	if err != nil {
		return err
	}
	*s = append(*s, spec)
	return nil
}

func parseSampleFlag(value string) (fillout.SampleSpec, error) {
	fields := strings.Split(value, ",")
	if len(fields) < 3 || len(fields) > 4 {
		return fillout.SampleSpec{}, fmt.Errorf("-sample %q: want id,bam,maf[,normal_id]", value)
	}
	for _, f := range fields[:3] {
		if f == "" {
			return fillout.SampleSpec{}, fmt.Errorf("-sample %q: empty field", value)
		}
	}
	spec := fillout.SampleSpec{ID: fields[0], BAMPath: fields[1], MAFPath: fields[2]}
	if len(fields) == 4 {
		spec.NormalID = fields[3]
	}
	return spec, nil
}

// readSampleSheet reads the samples listed in the table at path, in row order.
func readSampleSheet(ctx context.Context, path string) ([]fillout.SampleSpec, error) {
	sheet, err := table.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	for _, col := range []string{colSampleID, colBAM, colMAF} {
		if !sheet.HasField(col) {
			return nil, &table.MissingKeyError{Key: col, Table: path}
		}
	}
	specs := make([]fillout.SampleSpec, 0, len(sheet.Rows))
	for i, row := range sheet.Rows {
		spec := fillout.SampleSpec{
			ID:           row[colSampleID],
			BAMPath:      row[colBAM],
			MAFPath:      row[colMAF],
			NormalID:     row[colNormalID],
			BAMIndexPath: row[colBAMIndex],
		}
		if spec.ID == "" || spec.BAMPath == "" || spec.MAFPath == "" {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("%s: row %d: %s, %s and %s are required", path, i+1, colSampleID, colBAM, colMAF))
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
