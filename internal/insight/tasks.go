package insight

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/nutrilens-cli/internal/record"
	"github.com/KaramelBytes/nutrilens-cli/internal/stats"
)

// Task is one independent analysis. Prompt builds the generation prompt
// from the run's population snapshot.
type Task struct {
	Title  string
	Prompt func(records []record.Record) string
}

// DefaultTasks returns the standard analyses in display order.
func DefaultTasks() []Task {
	return []Task{
		{Title: "Top scoring categories", Prompt: topCategoriesPrompt},
		{Title: "Healthy Eating Index distribution", Prompt: distributionPrompt},
		{Title: "Male vs female comparison", Prompt: sexComparisonPrompt},
	}
}

func writeSection(b *strings.Builder, name, body string) {
	fmt.Fprintf(b, "[%s]\n%s\n\n", name, strings.TrimRight(body, "\n"))
}

func topCategoriesPrompt(records []record.Record) string {
	type row struct {
		label string
		mean  float64
		max   float64
	}
	comps := record.FieldsIn(record.GroupComponent)
	rows := make([]row, 0, len(comps))
	for _, f := range comps {
		var sum float64
		for _, r := range records {
			sum += f.Number(r)
		}
		mean := 0.0
		if len(records) > 0 {
			mean = sum / float64(len(records))
		}
		rows = append(rows, row{label: f.Label, mean: mean, max: f.Max})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].mean/rows[i].max > rows[j].mean/rows[j].max
	})

	var data strings.Builder
	fmt.Fprintf(&data, "Respondents: %d\n", len(records))
	for i, r := range rows {
		fmt.Fprintf(&data, "%d. %s: %.2f of %.0f points (%.1f%%)\n", i+1, r.label, r.mean, r.max, 100*r.mean/r.max)
	}

	var b strings.Builder
	writeSection(&b, "TASK", "Identify the Healthy Eating Index components this population scores best and worst on, "+
		"ranked by the share of maximum points achieved. Explain briefly what the top and bottom categories mean for diet quality.")
	writeSection(&b, "DATA", data.String())
	return b.String()
}

func distributionPrompt(records []record.Record) string {
	scores := stats.Scores(records)
	var data strings.Builder
	med, err := stats.Median(scores)
	if err != nil {
		data.WriteString("No respondents have a score.\n")
	} else {
		summary, _ := stats.ComputeScores(scores, med)
		fmt.Fprintf(&data, "Respondents: %d\n", summary.Population)
		fmt.Fprintf(&data, "Minimum: %.1f\nMedian: %.1f\nMaximum: %.1f\n", summary.Minimum, summary.Median, summary.Maximum)
		fmt.Fprintf(&data, "Share strictly below the median: %.1f%%\n", summary.PercentileRank)
		data.WriteString("Respondents per 10-point band:\n")
		for _, band := range bands(summary.Distribution, 10) {
			fmt.Fprintf(&data, "  %3.0f-%3.0f: %d\n", band.Score, band.Score+10, band.Count)
		}
	}

	var b strings.Builder
	writeSection(&b, "TASK", "Describe the distribution of total Healthy Eating Index scores (0-100) in this population. "+
		"Comment on its center, spread and skew, and what share of people have a poor diet.")
	writeSection(&b, "DATA", data.String())
	return b.String()
}

// bands merges exact-score buckets into fixed-width bands keyed by their lower bound.
func bands(dist []stats.Bucket, width float64) []stats.Bucket {
	var out []stats.Bucket
	for _, bk := range dist {
		lo := math.Floor(bk.Score/width) * width
		if n := len(out); n > 0 && out[n-1].Score == lo {
			out[n-1].Count += bk.Count
			continue
		}
		out = append(out, stats.Bucket{Score: lo, Count: bk.Count})
	}
	return out
}

func sexComparisonPrompt(records []record.Record) string {
	var data strings.Builder
	for _, s := range []record.Sex{record.Male, record.Female} {
		var group []record.Record
		for _, r := range records {
			if r.Sex == s {
				group = append(group, r)
			}
		}
		fmt.Fprintf(&data, "%s (n=%d)\n", s, len(group))
		if len(group) == 0 {
			continue
		}
		writeMeanSD(&data, "HEI total", stats.Scores(group))
		for _, f := range record.FieldsIn(record.GroupComponent) {
			xs := make([]float64, len(group))
			for i, r := range group {
				xs[i] = f.Number(r)
			}
			writeMeanSD(&data, f.Label, xs)
		}
	}

	var b strings.Builder
	writeSection(&b, "TASK", "Compare diet quality between male and female respondents. "+
		"Point out the components with the largest differences and whether the gap in total score is meaningful given the spread.")
	writeSection(&b, "DATA", data.String())
	return b.String()
}

func writeMeanSD(b *strings.Builder, label string, xs []float64) {
	mean, sd := stat.MeanStdDev(xs, nil)
	if len(xs) < 2 {
		sd = 0
	}
	fmt.Fprintf(b, "  %s: mean %.2f, sd %.2f\n", label, mean, sd)
}
