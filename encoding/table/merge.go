package table

import (
	"context"

	"github.com/grailbio/base/log"
)

// Merge left-joins t2 onto t1: every row of t1 is kept in order, and the
// non-key columns of the t2 row whose key2 value equals the row's key1 value
// are appended to it.  Rows of t1 without a match get no value for the new
// columns, so they serialize shorter than matched rows.  When several t2 rows
// share a key, the last one wins.
//
// The result carries t1's leading rows; t2's are dropped.  Neither input is
// modified.
func Merge(t1, t2 *Table, key1, key2 string) (*Table, error) {
	if !t1.HasField(key1) {
		return nil, &MissingKeyError{Key: key1, Table: "table1"}
	}
	if !t2.HasField(key2) {
		return nil, &MissingKeyError{Key: key2, Table: "table2"}
	}

	byKey := make(map[string]Row, len(t2.Rows))
	for _, row := range t2.Rows {
		byKey[row[key2]] = row
	}

	out := &Table{
		Leading: make([][]string, len(t1.Leading)),
		Header:  append([]string(nil), t1.Header...),
		Rows:    make([]Row, 0, len(t1.Rows)),
	}
	for i, row := range t1.Leading {
		out.Leading[i] = append([]string(nil), row...)
	}
	var added []string
	for _, name := range t2.Header {
		if name == key2 {
			continue
		}
		added = append(added, name)
		if !out.HasField(name) {
			out.Header = append(out.Header, name)
		}
	}

	nMatched := 0
	for _, row := range t1.Rows {
		merged := row.Clone()
		if match, ok := byKey[row[key1]]; ok {
			nMatched++
			for _, name := range added {
				if v, ok := match[name]; ok {
					merged[name] = v
				}
			}
		}
		out.Rows = append(out.Rows, merged)
	}
	log.Debug.Printf("table.Merge: %d/%d rows matched on %s=%s", nMatched, len(t1.Rows), key1, key2)
	return out, nil
}

// MergeFiles merges the tables at path1 and path2 and writes the result to
// outPath.
func MergeFiles(ctx context.Context, path1, path2, key1, key2, outPath string) error {
	t1, err := ReadFile(ctx, path1)
	if err != nil {
		return err
	}
	t2, err := ReadFile(ctx, path2)
	if err != nil {
		return err
	}
	merged, err := Merge(t1, t2, key1, key2)
	if err != nil {
		if mk, ok := err.(*MissingKeyError); ok {
			if mk.Table == "table1" {
				mk.Table = path1
			} else {
				mk.Table = path2
			}
		}
		return err
	}
	if err := WriteFile(ctx, outPath, merged); err != nil {
		return err
	}
	log.Printf("table.MergeFiles: wrote %d rows to %s", len(merged.Rows), outPath)
	return nil
}
