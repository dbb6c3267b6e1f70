package interval

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/klauspost/compress/gzip"
)

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

// NewBEDOpts defines behavior of this package's BED-loading function(s).
type NewBEDOpts struct {
	// OneBasedInput interprets the BED interval boundaries as one-based [start,
	// end] instead of the usual zero-based [start, end).
	OneBasedInput bool
}

// PosType is BEDUnion's coordinate type.
type PosType int32

const posTypeMax = math.MaxInt32

// searchPosType returns the index of x in a[], or the position where x would
// be inserted if x isn't in a (this could be len(a)).  It's exactly the same
// as sort.SearchInt(), except for PosType.
func searchPosType(a []PosType, x PosType) int {
	return sort.Search(len(a), func(i int) bool { return a[i] >= x })
}

// BEDUnion is a collection of length-2N sequences, one per chromosome, where
// N is the number of disjoint intervals on it.  The (0-based) start of
// interval #k is in element [2k], its end in element [2k+1], and the
// intervals are stored in increasing order.  A position p is covered iff
// searchPosType(seq, p+1) is odd.
//
// A BEDUnion is immutable once built, so it may be queried from many
// goroutines at once.
type BEDUnion struct {
	// nameMap is a chromosome-keyed map with disjoint-interval-set values.
	// Always initialized.
	nameMap map[string]([]PosType)
}

// ContainsByName checks whether the (0-based) interval [pos, pos+1) is
// contained within the BEDUnion, where chromosome is specified by name.
func (u *BEDUnion) ContainsByName(chrName string, pos PosType) bool {
	chrIntervals := u.nameMap[chrName]
	if chrIntervals == nil {
		return false
	}
	return searchPosType(chrIntervals, pos+1)&1 == 1
}

// OverlapsByName checks whether the (0-based) interval [start, end) on
// chrName shares at least one position with the BEDUnion.  An empty interval
// (start == end) is treated as the single position [start, start+1), which is
// how an insertion between two reference bases is tested.
func (u *BEDUnion) OverlapsByName(chrName string, start, end PosType) bool {
	if end <= start {
		return u.ContainsByName(chrName, start)
	}
	chrIntervals := u.nameMap[chrName]
	if chrIntervals == nil {
		return false
	}
	idx := searchPosType(chrIntervals, start+1)
	if idx&1 == 1 {
		return true
	}
	return idx != len(chrIntervals) && end > chrIntervals[idx]
}

// ChrNames returns the sorted names of the chromosomes with at least one
// nonempty interval.
func (u *BEDUnion) ChrNames() []string {
	var names []string
	for name, chrIntervals := range u.nameMap {
		if len(chrIntervals) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// NBases returns the number of positions covered.
func (u *BEDUnion) NBases() int {
	n := 0
	for _, chrIntervals := range u.nameMap {
		for i := 0; i < len(chrIntervals); i += 2 {
			n += int(chrIntervals[i+1] - chrIntervals[i])
		}
	}
	return n
}

// isHeaderLine reports whether a BED line carries no interval.
func isHeaderLine(line []byte) bool {
	return bytes.HasPrefix(line, []byte("#")) ||
		bytes.HasPrefix(line, []byte("track")) ||
		bytes.HasPrefix(line, []byte("browser"))
}

func scanBEDEntries(scanner *bufio.Scanner, opts NewBEDOpts) ([]Entry, error) {
	var startSubtract int
	if opts.OneBasedInput {
		startSubtract++
	}

	var (
		tokens  [3][]byte
		entries []Entry
		lineIdx int
	)
	for scanner.Scan() {
		lineIdx++
		curLine := scanner.Bytes()
		if isHeaderLine(curLine) {
			continue
		}
		nToken := getTokens(tokens[:], curLine)
		if nToken != 3 {
			if nToken == 0 {
				continue
			}
			return nil, fmt.Errorf("interval.scanBEDEntries: line %d has fewer tokens than expected", lineIdx)
		}
		parsedStart, err := strconv.Atoi(gunsafe.BytesToString(tokens[1]))
		if err != nil {
			return nil, fmt.Errorf("interval.scanBEDEntries: line %d: %v", lineIdx, err)
		}
		parsedStart -= startSubtract
		if parsedStart < 0 {
			return nil, fmt.Errorf("interval.scanBEDEntries: negative start coordinate %s on line %d", tokens[1], lineIdx)
		}
		parsedEnd, err := strconv.Atoi(gunsafe.BytesToString(tokens[2]))
		if err != nil {
			return nil, fmt.Errorf("interval.scanBEDEntries: line %d: %v", lineIdx, err)
		}
		if parsedEnd < parsedStart || parsedEnd >= posTypeMax {
			return nil, fmt.Errorf("interval.scanBEDEntries: invalid coordinate pair on line %d", lineIdx)
		}
		// The chromosome name must be copied out of the scanner buffer.
		entries = append(entries, Entry{
			ChrName: string(tokens[0]),
			Start0:  PosType(parsedStart),
			End:     PosType(parsedEnd),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// NewBEDUnion loads the intervals of a BED file, merging touching/overlapping
// intervals and eliminating empty ones in the process.  Only the first three
// columns are read; "#", "track" and "browser" lines are skipped.  The input
// need not be sorted.
func NewBEDUnion(reader io.Reader, opts NewBEDOpts) (BEDUnion, error) {
	scanner := bufio.NewScanner(reader)
	entries, err := scanBEDEntries(scanner, opts)
	if err != nil {
		return BEDUnion{}, err
	}
	bedUnion := NewBEDUnionFromEntries(entries)
	log.Printf("BED loaded, %d base(s) covered.", bedUnion.NBases())
	return bedUnion, nil
}

// NewBEDUnionFromPath is a wrapper for NewBEDUnion that takes a path instead
// of an io.Reader.  Gzipped files are decompressed.
func NewBEDUnionFromPath(ctx context.Context, path string, opts NewBEDOpts) (bedUnion BEDUnion, err error) {
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return BEDUnion{}, errors.E(err, "open", path)
	}
	defer file.CloseAndReport(ctx, infile, &err)
	reader := io.Reader(infile.Reader(ctx))
	switch fileio.DetermineType(path) {
	case fileio.Gzip:
		gz, gzErr := gzip.NewReader(reader)
		if gzErr != nil {
			return BEDUnion{}, errors.E(gzErr, path)
		}
		defer gz.Close() // nolint: errcheck
		reader = gz
	}
	if bedUnion, err = NewBEDUnion(reader, opts); err != nil {
		return BEDUnion{}, errors.E(err, path)
	}
	return bedUnion, nil
}

// Entry represents a single interval, with 0-based coordinates.
type Entry struct {
	ChrName string
	Start0  PosType
	End     PosType
}

// ParseRegionString parses a region string of one of the forms
//   [contig ID]:[1-based first pos]-[last pos]
//   [contig ID]:[1-based pos]
//   [contig ID]
// returning a contig ID and 0-based interval boundaries.  The interval
// [0, posTypeMax - 1] is returned if there is no positional restriction.
// Commas inside positions ("chr1:1,000-2,000") are ignored.
func ParseRegionString(region string) (result Entry, err error) {
	if len(region) == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty region string")
		return
	}
	colonPos := strings.LastIndexByte(region, ':')
	if colonPos == -1 {
		result.ChrName = region
		result.Start0 = 0
		result.End = posTypeMax - 1
		return
	}
	if colonPos == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty contig ID")
		return
	}
	result.ChrName = region[0:colonPos]
	rangeStr := strings.Replace(region[colonPos+1:], ",", "", -1)
	dashPos := strings.IndexByte(rangeStr, '-')
	if dashPos == -1 {
		var pos1 int64
		if pos1, err = strconv.ParseInt(rangeStr, 10, 32); err != nil {
			return
		}
		if pos1 <= 0 {
			err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", rangeStr)
			return
		}
		result.Start0 = PosType(pos1 - 1)
		result.End = PosType(pos1)
		return
	}
	start1Str := rangeStr[:dashPos]
	endStr := rangeStr[dashPos+1:]
	var start1 int
	if start1, err = strconv.Atoi(start1Str); err != nil {
		return
	}
	if start1 <= 0 {
		err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", start1Str)
		return
	}
	var end0 int
	if end0, err = strconv.Atoi(endStr); err != nil {
		return
	}
	// end0 == posTypeMax is prohibited so that the interval-array is
	// guaranteed to contain no repeats.
	if end0 < start1 || end0 >= posTypeMax {
		err = fmt.Errorf("interval.ParseRegionString: invalid range string %v", rangeStr)
		return
	}
	result.Start0 = PosType(start1 - 1)
	result.End = PosType(end0)
	return
}

// NewBEDUnionFromRegions parses a list of region strings (see
// ParseRegionString) into a BEDUnion.
func NewBEDUnionFromRegions(regions []string) (BEDUnion, error) {
	entries := make([]Entry, 0, len(regions))
	for _, region := range regions {
		e, err := ParseRegionString(region)
		if err != nil {
			return BEDUnion{}, errors.E(err, "region", region)
		}
		entries = append(entries, e)
	}
	return NewBEDUnionFromEntries(entries), nil
}

// NewBEDUnionFromEntries initializes a BEDUnion from entries in any order.
// Entries must have 0 <= Start0 <= End.
func NewBEDUnionFromEntries(entries []Entry) BEDUnion {
	sorted := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.End > e.Start0 {
			sorted = append(sorted, e)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ChrName != sorted[j].ChrName {
			return sorted[i].ChrName < sorted[j].ChrName
		}
		return sorted[i].Start0 < sorted[j].Start0
	})
	bedUnion := BEDUnion{nameMap: make(map[string]([]PosType))}
	for i := 0; i < len(sorted); {
		curChr := sorted[i].ChrName
		prevStart, prevEnd := sorted[i].Start0, sorted[i].End
		var chrIntervals []PosType
		for i++; i < len(sorted) && sorted[i].ChrName == curChr; i++ {
			entry := sorted[i]
			if entry.Start0 > prevEnd {
				// New interval doesn't touch the previous one, so we can save the
				// previous one.
				chrIntervals = append(chrIntervals, prevStart, prevEnd)
				prevStart, prevEnd = entry.Start0, entry.End
				continue
			}
			if entry.End > prevEnd {
				prevEnd = entry.End
			}
		}
		bedUnion.nameMap[curChr] = append(chrIntervals, prevStart, prevEnd)
	}
	return bedUnion
}
