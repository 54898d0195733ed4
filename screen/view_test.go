package screen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowcast/rowcast/pipelines"
)

func TestRenderTable(t *testing.T) {
	rendered := RenderTable([]pipelines.ResultRecord{
		{Label: "A", Value: 3},
		{Label: "B", Value: 7},
	})
	lines := strings.Split(strings.TrimRight(rendered, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Label  Model Output", lines[0])
	assert.Equal(t, "A      3", lines[1])
	assert.Equal(t, "B      7", lines[2])
}

func TestRenderTableClassification(t *testing.T) {
	rendered := RenderTable([]pipelines.ResultRecord{
		{Label: "S1", Value: 0.75, Class: "mid"},
	})
	assert.Contains(t, rendered, "mid (0.75)")
}

func TestRenderTableEmpty(t *testing.T) {
	assert.Equal(t, "no results\n", RenderTable(nil))
}

func TestSummarize(t *testing.T) {
	summary := Summarize([]pipelines.ResultRecord{
		{Label: "A", Value: 3},
		{Label: "B", Value: 7},
	})
	assert.Equal(t, 2, summary.Count)
	assert.InDelta(t, 5.0, summary.Mean, 1e-9)
	assert.InDelta(t, 2.8284271, summary.StdDev, 1e-6)
	assert.InDelta(t, 3.0, summary.Min, 1e-9)
	assert.InDelta(t, 7.0, summary.Max, 1e-9)
	assert.Nil(t, summary.PerClass)
}

func TestSummarizeSingleValue(t *testing.T) {
	summary := Summarize([]pipelines.ResultRecord{{Label: "A", Value: 4}})
	assert.Equal(t, 1, summary.Count)
	assert.InDelta(t, 4.0, summary.Mean, 1e-9)
	assert.Equal(t, 0.0, summary.StdDev)
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil)
	assert.Equal(t, 0, summary.Count)
	assert.Equal(t, "no results\n", RenderSummary(summary))
}

func TestSummarizeClasses(t *testing.T) {
	summary := Summarize([]pipelines.ResultRecord{
		{Label: "S1", Value: 0.9, Class: "high"},
		{Label: "S2", Value: 0.8, Class: "low"},
		{Label: "S3", Value: 0.7, Class: "high"},
	})
	assert.Equal(t, map[string]int{"high": 2, "low": 1}, summary.PerClass)

	rendered := RenderSummary(summary)
	assert.Contains(t, rendered, "results: 3")
	assert.Less(t, strings.Index(rendered, "high: 2"), strings.Index(rendered, "low: 1"))
}
