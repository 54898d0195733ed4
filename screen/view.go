package screen

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"golang.org/x/exp/maps"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/rowcast/rowcast/pipelines"
	"github.com/rowcast/rowcast/util/vectorutil"
)

// RenderTable renders the records as a two column table, one row per record.
func RenderTable(records []pipelines.ResultRecord) string {
	if len(records) == 0 {
		return "no results\n"
	}
	var builder strings.Builder
	writer := tabwriter.NewWriter(&builder, 0, 0, 2, ' ', 0)
	fmt.Fprintln(writer, "Label\tModel Output")
	for _, record := range records {
		output := record.Output()
		if record.Class != "" {
			output = fmt.Sprintf("%s (%s)", record.Class, record.Output())
		}
		fmt.Fprintf(writer, "%s\t%s\n", record.Label, output)
	}
	_ = writer.Flush()
	return builder.String()
}

// Summary aggregates the model outputs of one run.
type Summary struct {
	Count    int
	Mean     float64
	StdDev   float64
	Min      float64
	Max      float64
	PerClass map[string]int // classification only
}

func Summarize(records []pipelines.ResultRecord) Summary {
	summary := Summary{Count: len(records)}
	if len(records) == 0 {
		return summary
	}
	values := make([]float32, len(records))
	for i, record := range records {
		values[i] = record.Value
		if record.Class != "" {
			if summary.PerClass == nil {
				summary.PerClass = map[string]int{}
			}
			summary.PerClass[record.Class]++
		}
	}
	wide := vectorutil.ToFloat64(values)
	summary.Mean = stat.Mean(wide, nil)
	if len(wide) > 1 {
		summary.StdDev = stat.StdDev(wide, nil)
	}
	summary.Min = floats.Min(wide)
	summary.Max = floats.Max(wide)
	return summary
}

func RenderSummary(summary Summary) string {
	if summary.Count == 0 {
		return "no results\n"
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "results: %d\n", summary.Count)
	fmt.Fprintf(&builder, "mean: %g\n", summary.Mean)
	fmt.Fprintf(&builder, "std dev: %g\n", summary.StdDev)
	fmt.Fprintf(&builder, "min: %g\n", summary.Min)
	fmt.Fprintf(&builder, "max: %g\n", summary.Max)
	if summary.PerClass != nil {
		classes := maps.Keys(summary.PerClass)
		sort.Strings(classes)
		for _, class := range classes {
			fmt.Fprintf(&builder, "  %s: %d\n", class, summary.PerClass[class])
		}
	}
	return builder.String()
}
