package commands

import (
	"os"
	"path/filepath"
	"testing"

	"hubrunner/domain/task"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParam(t *testing.T) {
	p, err := parseParam("6:text=a cat=on a mat")
	require.NoError(t, err)
	assert.Equal(t, task.NodeInfo{NodeID: "6", FieldName: "text", FieldValue: "a cat=on a mat"}, p)

	p, err = parseParam("3:seed=")
	require.NoError(t, err)
	assert.Equal(t, "", p.FieldValue)

	for _, bad := range []string{"6text=x", "6:text", ":text=x", "6:=x"} {
		_, err := parseParam(bad)
		assert.Error(t, err, bad)
	}
}

func TestMergeParams(t *testing.T) {
	base := []task.NodeInfo{
		{NodeID: "6", FieldName: "text", FieldValue: "default"},
		{NodeID: "3", FieldName: "seed", FieldValue: "1"},
	}
	merged := mergeParams(base, []task.NodeInfo{
		{NodeID: "3", FieldName: "seed", FieldValue: "42"},
		{NodeID: "9", FieldName: "steps", FieldValue: "20"},
	})

	assert.Equal(t, []task.NodeInfo{
		{NodeID: "6", FieldName: "text", FieldValue: "default"},
		{NodeID: "3", FieldName: "seed", FieldValue: "42"},
		{NodeID: "9", FieldName: "steps", FieldValue: "20"},
	}, merged)
	assert.Equal(t, "1", base[1].FieldValue)
}

func TestReadParamSets(t *testing.T) {
	path := writeBatchFile(t, "# prompts\n6:text=\"a red fox\" 3:seed=1\n\n6:text='a blue whale'\n")
	base := []task.NodeInfo{{NodeID: "3", FieldName: "seed", FieldValue: "7"}}

	sets, err := readParamSets(path, base)

	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, []task.NodeInfo{
		{NodeID: "3", FieldName: "seed", FieldValue: "1"},
		{NodeID: "6", FieldName: "text", FieldValue: "a red fox"},
	}, sets[0])
	assert.Equal(t, []task.NodeInfo{
		{NodeID: "3", FieldName: "seed", FieldValue: "7"},
		{NodeID: "6", FieldName: "text", FieldValue: "a blue whale"},
	}, sets[1])
}

func TestReadParamSets_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := readParamSets("/nonexistent/batch.txt", nil)
		assert.Error(t, err)
	})

	t.Run("only comments", func(t *testing.T) {
		_, err := readParamSets(writeBatchFile(t, "# nothing\n\n"), nil)
		assert.ErrorContains(t, err, "no parameter sets")
	})

	t.Run("bad assignment reports line", func(t *testing.T) {
		_, err := readParamSets(writeBatchFile(t, "6:text=ok\nbroken\n"), nil)
		assert.ErrorContains(t, err, "line 2")
	})

	t.Run("unterminated quote", func(t *testing.T) {
		_, err := readParamSets(writeBatchFile(t, "6:text=\"open\n"), nil)
		assert.ErrorContains(t, err, "line 1")
	})
}

func writeBatchFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
