package table

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/aibatch/internal/progress"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("prompt and image columns", func(t *testing.T) {
		path := writeCSV(t, "id,user_prompt,image_path\n1,hello,img1.png\n2,world,\n")

		tbl, err := Load(path, "user_prompt", "image_path")
		require.NoError(t, err)
		require.Equal(t, 2, tbl.Len())

		rows := tbl.Rows()
		assert.Equal(t, 0, rows[0].ID)
		assert.Equal(t, "hello", rows[0].Prompt)
		assert.Equal(t, "img1.png", rows[0].ImagePath)
		assert.Equal(t, 1, rows[1].ID)
		assert.Empty(t, rows[1].ImagePath)
	})

	t.Run("missing prompt column", func(t *testing.T) {
		path := writeCSV(t, "id,text\n1,hello\n")
		_, err := Load(path, "user_prompt", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "user_prompt")
	})
}

func TestColumnNames(t *testing.T) {
	assert.Equal(t, "reasoning_gpt_4o", ReasoningColumn("gpt-4o"))
	assert.Equal(t, "classification_kimi_k2_0905_preview", ClassificationColumn("kimi-k2-0905-preview"))
	assert.Equal(t, "reasoning_gpt_4_1", ReasoningColumn("gpt-4.1"))
}

func TestMerge_PreservesRowOrder(t *testing.T) {
	path := writeCSV(t, "user_prompt\na\nb\nc\nd\n")
	tbl, err := Load(path, "user_prompt", "")
	require.NoError(t, err)

	// completion order deliberately scrambled: only 3 and 0 are done
	statuses := map[int]progress.RowStatus{
		3: {State: progress.StateDone, Reasoning: "r3", Classification: "c3"},
		1: {State: progress.StateFailed, LastError: "x"},
		0: {State: progress.StateDone, Reasoning: "r0", Classification: "c0"},
	}

	header, records := tbl.Merge(statuses, "gpt-4o")
	require.Equal(t, []string{"user_prompt", "reasoning_gpt_4o", "classification_gpt_4o"}, header)
	require.Len(t, records, 4)

	assert.Equal(t, []string{"a", "r0", "c0"}, records[0])
	assert.Equal(t, []string{"b", "", ""}, records[1], "failed rows leave cells empty")
	assert.Equal(t, []string{"c", "", ""}, records[2], "pending rows leave cells empty")
	assert.Equal(t, []string{"d", "r3", "c3"}, records[3])
}

func TestMerge_ReusesExistingColumns(t *testing.T) {
	path := writeCSV(t, "user_prompt,reasoning_gpt_4o,classification_gpt_4o\na,stale,stale\n")
	tbl, err := Load(path, "user_prompt", "")
	require.NoError(t, err)

	statuses := map[int]progress.RowStatus{
		0: {State: progress.StateDone, Reasoning: "fresh", Classification: "c"},
	}

	header, records := tbl.Merge(statuses, "gpt-4o")
	assert.Len(t, header, 3, "re-running in place must not duplicate columns")
	assert.Equal(t, []string{"a", "fresh", "c"}, records[0])
}

func TestWriteMerged(t *testing.T) {
	t.Run("writes in place", func(t *testing.T) {
		path := writeCSV(t, "user_prompt\nhello\n")
		tbl, err := Load(path, "user_prompt", "")
		require.NoError(t, err)

		statuses := map[int]progress.RowStatus{
			0: {State: progress.StateDone, Reasoning: "R", Classification: "C"},
		}
		require.NoError(t, WriteMerged(path, tbl, statuses, "gpt-4o"))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		assert.Equal(t, "user_prompt,reasoning_gpt_4o,classification_gpt_4o", lines[0])
		assert.Equal(t, "hello,R,C", lines[1])
	})

	t.Run("source intact when output path is unwritable", func(t *testing.T) {
		path := writeCSV(t, "user_prompt\nhello\n")
		tbl, err := Load(path, "user_prompt", "")
		require.NoError(t, err)

		bad := filepath.Join(t.TempDir(), "missing", "out.csv")
		err = WriteMerged(bad, tbl, nil, "gpt-4o")
		require.Error(t, err)

		data, readErr := os.ReadFile(path)
		require.NoError(t, readErr)
		assert.Equal(t, "user_prompt\nhello\n", string(data))
	})
}
