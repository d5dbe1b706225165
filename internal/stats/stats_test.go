package stats

import (
	"context"
	"math/rand"
	"testing"

	"github.com/KaramelBytes/nutrilens-cli/internal/record"
	"github.com/KaramelBytes/nutrilens-cli/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedian(t *testing.T) {
	m, err := Median([]float64{30, 10, 20})
	require.NoError(t, err)
	assert.Equal(t, 20.0, m)

	m, err = Median([]float64{40, 10, 30, 20})
	require.NoError(t, err)
	assert.Equal(t, 25.0, m)

	_, err = Median(nil)
	assert.ErrorIs(t, err, ErrEmptyPopulation)
}

func TestPercentileRank_StrictlyLess(t *testing.T) {
	scores := []float64{10, 20, 20, 30}

	pr, err := PercentileRank(scores, 20)
	require.NoError(t, err)
	// ties are not beaten
	assert.Equal(t, 25.0, pr)

	pr, _ = PercentileRank(scores, 10)
	assert.Zero(t, pr, "unique minimum beats nobody")

	pr, _ = PercentileRank(scores, 30)
	assert.Equal(t, 75.0, pr, "unique maximum never reaches 100")

	_, err = PercentileRank(nil, 1)
	assert.ErrorIs(t, err, ErrEmptyPopulation)
}

func TestDistribution_SortedAndSumsToPopulation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 50; n++ {
		scores := make([]float64, n)
		for i := range scores {
			scores[i] = float64(rng.Intn(10))
		}
		buckets := Distribution(scores)
		total := 0
		for i, b := range buckets {
			total += b.Count
			if i > 0 {
				assert.Less(t, buckets[i-1].Score, b.Score)
			}
		}
		assert.Equal(t, n, total)
	}
}

func TestCompute(t *testing.T) {
	records := []record.Record{
		{ID: "1", HEITotal: 40}, {ID: "2", HEITotal: 55}, {ID: "3", HEITotal: 55}, {ID: "4", HEITotal: 70},
	}
	s, err := Compute(records, 55)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Population)
	assert.Equal(t, 40.0, s.Minimum)
	assert.Equal(t, 70.0, s.Maximum)
	assert.Equal(t, 55.0, s.Median)
	assert.Equal(t, 25.0, s.PercentileRank)
	assert.Equal(t, []Bucket{{40, 1}, {55, 2}, {70, 1}}, s.Distribution)

	_, err = Compute(nil, 10)
	assert.ErrorIs(t, err, ErrEmptyPopulation)
}

func seeded(t *testing.T) *record.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := record.NewMemoryStore()
	for _, r := range []record.Record{
		{ID: "1", Sex: record.Male, HEITotal: 40},
		{ID: "2", Sex: record.Female, HEITotal: 60},
		{ID: "3", Sex: record.Female, HEITotal: 80},
	} {
		require.NoError(t, s.Upsert(ctx, r))
	}
	return s
}

func TestService(t *testing.T) {
	ctx := context.Background()
	svc := NewService(seeded(t))

	st, err := svc.ForRecord(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, 60.0, st.Target)
	assert.InDelta(t, 100.0/3, st.PercentileRank, 1e-9)

	_, err = svc.ForRecord(ctx, "404")
	assert.ErrorIs(t, err, record.ErrNotFound)

	avg, err := svc.AverageBy(ctx, record.BySex(record.Female))
	require.NoError(t, err)
	assert.Equal(t, 70.0, avg)

	_, err = svc.ForSession(ctx)
	assert.ErrorIs(t, err, ErrNoSession)

	st, err = svc.ForSession(session.WithSession(ctx, session.Session{PatientID: "3"}))
	require.NoError(t, err)
	assert.InDelta(t, 200.0/3, st.PercentileRank, 1e-9)
}
