package main

import (
	"bytes"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"

	"github.com/rowcast/rowcast/pipelines"
)

func TestWriteJSONL(t *testing.T) {
	var buf bytes.Buffer
	records := []pipelines.ResultRecord{
		{Label: "A", Value: 3},
		{Label: "S1", Value: 0.75, Class: "mid"},
	}
	check(t, writeJSONL(&buf, records))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var first struct {
		Label  string  `json:"label"`
		Value  float32 `json:"value"`
		Output string  `json:"output"`
	}
	check(t, jsoniter.Unmarshal([]byte(lines[0]), &first))
	if first.Label != "A" || first.Value != 3 || first.Output != "3" {
		t.Fatalf("unexpected first line: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"class":"mid"`) {
		t.Fatalf("class missing from second line: %s", lines[1])
	}
}

func TestWriteJSONLEmpty(t *testing.T) {
	var buf bytes.Buffer
	check(t, writeJSONL(&buf, nil))
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestPipelineOptionsFromFlags(t *testing.T) {
	problemType = "classification"
	aggregation = "softmax"
	defer func() {
		problemType = "regression"
		aggregation = ""
	}()
	opts, err := pipelineOptionsFromFlags()
	check(t, err)
	if len(opts) != 2 {
		t.Fatalf("expected 2 options, got %d", len(opts))
	}

	aggregation = "median"
	if _, err = pipelineOptionsFromFlags(); err == nil {
		t.Fatal("expected an error for an unknown aggregation")
	}

	problemType = "ranking"
	aggregation = ""
	if _, err = pipelineOptionsFromFlags(); err == nil {
		t.Fatal("expected an error for an unknown problem type")
	}
}

func TestSessionOptionsFromFlags(t *testing.T) {
	optimizationLevel = "aggressive"
	defer func() {
		optimizationLevel = ""
		intraOpThreads = 0
	}()
	if _, err := sessionOptionsFromFlags(); err == nil {
		t.Fatal("expected an error for an unknown optimization level")
	}

	optimizationLevel = "extended"
	intraOpThreads = 2
	opts, err := sessionOptionsFromFlags()
	check(t, err)
	if len(opts) != 2 {
		t.Fatalf("expected 2 options, got %d", len(opts))
	}
}

func check(t *testing.T, err error) {
	if err != nil {
		t.Fatalf("%s", err.Error())
	}
}
