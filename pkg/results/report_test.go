package results

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/odvcencio/miser/pkg/solver"
)

var testSummaries = []Summary{
	{Mode: "adaptive", Tasks: 10, Successes: 7, SuccessRate: 0.7, TotalTokens: 15000, AvgTokens: 1500, AvgAttempted: 2.1},
	{Mode: "fixed", Tasks: 10, Successes: 8, SuccessRate: 0.8, TotalTokens: 52000, AvgTokens: 5200, AvgAttempted: 10},
}

func TestMarkdown(t *testing.T) {
	md := Markdown(testSummaries)

	lines := strings.Split(strings.TrimSpace(md), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "| mode |")
	assert.Contains(t, lines[2], "| adaptive | 10 | 7 | 70.0% |")
	assert.Contains(t, lines[3], "| fixed |")
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, WriteCSV(path, testSummaries))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, summaryHeader, records[0])
	assert.Equal(t, "adaptive", records[1][0])
	assert.Equal(t, "0.7000", records[1][3])
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, WriteXLSX(path, testSummaries))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Summary")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "mode", rows[0][0])
	assert.Equal(t, "adaptive", rows[1][0])
	assert.Equal(t, "fixed", rows[2][0])
}

func TestWritePredictions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictions.jsonl")

	results := []*solver.Result{
		{TaskID: "t-1", Model: "gpt-5.1", Patch: "diff --git a/x b/x\n", Success: true},
		{TaskID: "t-2", Model: "gpt-5.1", Success: false},
	}
	require.NoError(t, WritePredictions(path, results, "miser-adaptive"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first Prediction
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "t-1", first.InstanceID)
	assert.Equal(t, "miser-adaptive", first.ModelNameOrPath)
	assert.Equal(t, "diff --git a/x b/x\n", first.ModelPatch)

	var second Prediction
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "", second.ModelPatch, "failed tasks still appear, with an empty patch")
}
