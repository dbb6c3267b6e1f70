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
package pileup

import (
	"context"
	"fmt"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/fillout/encoding/fasta"
	"github.com/grailbio/hts/sam"
)

// Common pileup components.

// Seq8ToASCIITable is the .bam seq nibble -> ASCII mapping.
var Seq8ToASCIITable = [...]byte{'=', 'A', 'C', 'M', 'G', 'R', 'S', 'V', 'T', 'W', 'Y', 'H', 'K', 'D', 'B', 'N'}

// ReadBase returns the ASCII base at query position i of samr.
func ReadBase(samr *sam.Record, i int) byte {
	d := samr.Seq.Seq[i>>1]
	if i&1 == 0 {
		return Seq8ToASCIITable[d>>4]
	}
	return Seq8ToASCIITable[d&0xf]
}

// StrandType describes which strand a read is aligned to.
type StrandType int

const (
	// StrandFwd means that the read is aligned to the forward strand.
	StrandFwd StrandType = iota
	// StrandRev means that the read is reverse-complemented in the alignment.
	StrandRev
)

// StrandTypeToASCIITable is the StrandType -> ASCII mapping.
var StrandTypeToASCIITable = [...]byte{'+', '-'}

// GetStrand returns the strand the read is aligned to.
func GetStrand(samr *sam.Record) StrandType {
	if samr.Flags&sam.Reverse != 0 {
		return StrandRev
	}
	return StrandFwd
}

// LoadFa opens the reference FASTA at fapath.  When a "<fapath>.fai" index
// exists, sequences are read on demand through it; when makeIndex is set and
// the index is missing, it is generated first.  Otherwise the whole file is
// loaded into memory, decompressing it if needed.
func LoadFa(ctx context.Context, fapath string, makeIndex bool) (fa fasta.Fasta, err error) {
	faiPath := fapath + ".fai"
	_, statErr := file.Stat(ctx, faiPath)
	if statErr != nil && makeIndex {
		if err = writeFai(ctx, fapath, faiPath); err != nil {
			return nil, err
		}
		statErr = nil
	}
	if statErr == nil {
		return loadIndexedFa(ctx, fapath, faiPath)
	}

	var infile file.File
	if infile, err = file.Open(ctx, fapath); err != nil {
		return nil, errors.E(err, "open", fapath)
	}
	defer file.CloseAndReport(ctx, infile, &err)
	reader, _ := compress.NewReader(infile.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if fa, err = fasta.New(reader); err != nil {
		return nil, errors.E(err, fapath)
	}
	return fa, nil
}

func writeFai(ctx context.Context, fapath, faiPath string) (err error) {
	in, err := file.Open(ctx, fapath)
	if err != nil {
		return errors.E(err, "open", fapath)
	}
	defer file.CloseAndReport(ctx, in, &err)
	out, err := file.Create(ctx, faiPath)
	if err != nil {
		return errors.E(err, "create", faiPath)
	}
	if err = fasta.GenerateIndex(out.Writer(ctx), in.Reader(ctx)); err != nil {
		out.Discard(ctx)
		return errors.E(err, "index", fapath)
	}
	log.Printf("pileup.LoadFa: wrote %s", faiPath)
	return out.Close(ctx)
}

// loadIndexedFa keeps the FASTA file open for the lifetime of the process,
// since the returned Fasta reads from it lazily.
func loadIndexedFa(ctx context.Context, fapath, faiPath string) (fasta.Fasta, error) {
	in, err := file.Open(ctx, fapath)
	if err != nil {
		return nil, errors.E(err, "open", fapath)
	}
	idx, err := file.Open(ctx, faiPath)
	if err != nil {
		_ = in.Close(ctx)
		return nil, errors.E(err, "open", faiPath)
	}
	defer idx.Close(ctx) // nolint: errcheck
	fa, err := fasta.NewIndexed(in.Reader(ctx), idx.Reader(ctx))
	if err != nil {
		_ = in.Close(ctx)
		return nil, errors.E(err, faiPath)
	}
	return fa, nil
}

// CheckRefs compares the references of an alignment header against fa.  It
// returns an error when a contig is present in both with different lengths,
// and logs how many contigs are present on only one side.
func CheckRefs(fa fasta.Fasta, headerRefs []*sam.Reference) error {
	nMissingFromFa := 0
	for _, curRef := range headerRefs {
		refName := curRef.Name()
		refLen, e := fa.Len(refName)
		if e != nil {
			nMissingFromFa++
			continue
		}
		if refLen != uint64(curRef.Len()) {
			return fmt.Errorf("pileup.CheckRefs: inconsistent lengths for contig %s (%d in BAM header, %d in .fa)", refName, curRef.Len(), refLen)
		}
	}
	if nMissingFromFa != 0 {
		log.Printf("pileup.CheckRefs: warning: %d reference(s) present in BAM header but missing from .fa", nMissingFromFa)
	}
	nMissingFromXam := len(fa.SeqNames()) + nMissingFromFa - len(headerRefs)
	if nMissingFromXam != 0 {
		log.Debug.Printf("pileup.CheckRefs: %d reference(s) present in .fa but missing from BAM header", nMissingFromXam)
	}
	return nil
}
