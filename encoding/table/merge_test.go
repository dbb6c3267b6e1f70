package table_test

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/fillout/encoding/table"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

var clinical = lines(
	[]string{"#Sample Identifier", "Patient Identifier", "Age"},
	[]string{"#Identifier to uniquely specify a sample.", "Identifier to uniquely specify a patient.", "Age at diagnosis."},
	[]string{"#STRING", "STRING", "NUMBER"},
	[]string{"#1", "1", "1"},
	[]string{"SAMPLE_ID", "PATIENT_ID", "AGE"},
	[]string{"Sample1-T", "Patient1", "45"},
	[]string{"Sample1-N", "Patient2", "58"},
	[]string{"Sample2-T", "Patient3", "62"},
	[]string{"Sample2-N", "Patient4", "21"},
)

var tmb = lines(
	[]string{"SampleID", "TMB"},
	[]string{"Sample1-T", "100"},
	[]string{"Sample2-T", "200"},
)

func TestMerge(t *testing.T) {
	merged, err := table.Merge(mustParse(t, clinical), mustParse(t, tmb), "SAMPLE_ID", "SampleID")
	assert.NoError(t, err)
	expect.EQ(t, serialize(t, merged), lines(
		[]string{"#Sample Identifier", "Patient Identifier", "Age"},
		[]string{"#Identifier to uniquely specify a sample.", "Identifier to uniquely specify a patient.", "Age at diagnosis."},
		[]string{"#STRING", "STRING", "NUMBER"},
		[]string{"#1", "1", "1"},
		[]string{"SAMPLE_ID", "PATIENT_ID", "AGE", "TMB"},
		[]string{"Sample1-T", "Patient1", "45", "100"},
		[]string{"Sample1-N", "Patient2", "58"},
		[]string{"Sample2-T", "Patient3", "62", "200"},
		[]string{"Sample2-N", "Patient4", "21"},
	))
}

func TestMergeDoesNotModifyInputs(t *testing.T) {
	t1, t2 := mustParse(t, clinical), mustParse(t, tmb)
	before1, before2 := serialize(t, t1), serialize(t, t2)
	merged, err := table.Merge(t1, t2, "SAMPLE_ID", "SampleID")
	require.NoError(t, err)
	merged.Leading[0][0] = "#changed"
	merged.Rows[0]["AGE"] = "0"
	require.Equal(t, before1, serialize(t, t1))
	require.Equal(t, before2, serialize(t, t2))
}

func TestMergeNameClashAndDuplicateKeys(t *testing.T) {
	t1 := mustParse(t, lines(
		[]string{"id", "x", "y"},
		[]string{"a", "1", "2"},
		[]string{"b", "3", "4"},
	))
	t2 := mustParse(t, lines(
		[]string{"key", "y", "z"},
		[]string{"a", "first", "f"},
		[]string{"a", "second", "s"},
	))
	merged, err := table.Merge(t1, t2, "id", "key")
	assert.NoError(t, err)
	expect.EQ(t, merged.Header, []string{"id", "x", "y", "z"})
	expect.EQ(t, serialize(t, merged), lines(
		[]string{"id", "x", "y", "z"},
		[]string{"a", "1", "second", "s"},
		[]string{"b", "3", "4"},
	))
}

func TestMergeMissingKey(t *testing.T) {
	t1, t2 := mustParse(t, clinical), mustParse(t, tmb)
	_, err := table.Merge(t1, t2, "NOPE", "SampleID")
	mk, ok := err.(*table.MissingKeyError)
	assert.True(t, ok, "%v", err)
	expect.EQ(t, *mk, table.MissingKeyError{Key: "NOPE", Table: "table1"})

	_, err = table.Merge(t1, t2, "SAMPLE_ID", "SAMPLE_ID")
	mk, ok = err.(*table.MissingKeyError)
	assert.True(t, ok, "%v", err)
	expect.EQ(t, mk.Table, "table2")
}

func TestMergeFiles(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	p1 := filepath.Join(tmpdir, "clinical.txt")
	p2 := filepath.Join(tmpdir, "tmb.txt")
	out := filepath.Join(tmpdir, "merged.txt")
	assert.NoError(t, ioutil.WriteFile(p1, []byte(clinical), 0644))
	assert.NoError(t, ioutil.WriteFile(p2, []byte(tmb), 0644))

	assert.NoError(t, table.MergeFiles(ctx, p1, p2, "SAMPLE_ID", "SampleID", out))
	got, err := ioutil.ReadFile(out)
	assert.NoError(t, err)
	want, err := table.Merge(mustParse(t, clinical), mustParse(t, tmb), "SAMPLE_ID", "SampleID")
	assert.NoError(t, err)
	expect.EQ(t, string(got), serialize(t, want))

	bad := filepath.Join(tmpdir, "bad.txt")
	err = table.MergeFiles(ctx, p1, p2, "SAMPLE_ID", "missing", bad)
	mk, ok := err.(*table.MissingKeyError)
	assert.True(t, ok, "%v", err)
	expect.EQ(t, mk.Table, p2)
	_, statErr := ioutil.ReadFile(bad)
	expect.NotNil(t, statErr)
}
