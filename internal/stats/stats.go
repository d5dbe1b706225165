package stats

import (
	"errors"
	"sort"

	mstats "github.com/montanaflynn/stats"

	"github.com/KaramelBytes/nutrilens-cli/internal/record"
)

// ErrEmptyPopulation signals that no scores were available. It is distinct
// from a legitimate statistic of zero.
var ErrEmptyPopulation = errors.New("statistics undefined for an empty population")

// Bucket counts the respondents sharing one exact score.
type Bucket struct {
	Score float64 `json:"score"`
	Count int     `json:"count"`
}

// ScoreStatistics summarizes the population relative to one target score.
type ScoreStatistics struct {
	Population     int      `json:"population"`
	Target         float64  `json:"target"`
	Minimum        float64  `json:"minimum"`
	Maximum        float64  `json:"maximum"`
	Median         float64  `json:"median"`
	PercentileRank float64  `json:"percentile_rank"`
	Distribution   []Bucket `json:"distribution"`
}

// Scores extracts the HEI total of every record.
func Scores(records []record.Record) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.HEITotal
	}
	return out
}

// Compute derives statistics for target over the HEI totals of records.
func Compute(records []record.Record, target float64) (ScoreStatistics, error) {
	return ComputeScores(Scores(records), target)
}

// ComputeScores derives statistics for target over scores.
func ComputeScores(scores []float64, target float64) (ScoreStatistics, error) {
	if len(scores) == 0 {
		return ScoreStatistics{Target: target}, ErrEmptyPopulation
	}
	data := mstats.Float64Data(scores)
	min, err := data.Min()
	if err != nil {
		return ScoreStatistics{}, err
	}
	max, err := data.Max()
	if err != nil {
		return ScoreStatistics{}, err
	}
	med, err := Median(scores)
	if err != nil {
		return ScoreStatistics{}, err
	}
	pr, err := PercentileRank(scores, target)
	if err != nil {
		return ScoreStatistics{}, err
	}
	return ScoreStatistics{
		Population:     len(scores),
		Target:         target,
		Minimum:        min,
		Maximum:        max,
		Median:         med,
		PercentileRank: pr,
		Distribution:   Distribution(scores),
	}, nil
}

// Distribution groups scores by exact value, ascending by score.
func Distribution(scores []float64) []Bucket {
	counts := make(map[float64]int, len(scores))
	for _, s := range scores {
		counts[s]++
	}
	out := make([]Bucket, 0, len(counts))
	for s, n := range counts {
		out = append(out, Bucket{Score: s, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}

// Median is the middle score, or the mean of the two middle scores for an
// even population.
func Median(scores []float64) (float64, error) {
	if len(scores) == 0 {
		return 0, ErrEmptyPopulation
	}
	return mstats.Median(scores)
}

// PercentileRank is the share of scores strictly below target, times 100.
// Ties with target are not counted as beaten.
func PercentileRank(scores []float64, target float64) (float64, error) {
	if len(scores) == 0 {
		return 0, ErrEmptyPopulation
	}
	below := 0
	for _, s := range scores {
		if s < target {
			below++
		}
	}
	return 100 * float64(below) / float64(len(scores)), nil
}
