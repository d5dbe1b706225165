package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/nutrilens-cli/internal/ai"
	"github.com/KaramelBytes/nutrilens-cli/internal/insight"
	"github.com/KaramelBytes/nutrilens-cli/internal/record"
	"github.com/KaramelBytes/nutrilens-cli/internal/stats"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := record.NewMemoryStore()
	ctx := context.Background()
	for _, r := range []record.Record{
		{ID: "1", Sex: record.Male, HEITotal: 10},
		{ID: "2", Sex: record.Female, HEITotal: 20},
		{ID: "3", Sex: record.Female, HEITotal: 30},
	} {
		require.NoError(t, store.Upsert(ctx, r))
	}
	gen := ai.GeneratorFunc(func(context.Context, string) (string, error) { return "insightful", nil })
	return NewServer(store, insight.New(store, gen), nil)
}

func do(t *testing.T, s *Server, method, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","records":3}`, rec.Body.String())
}

func TestPatientLookup(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/patients/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got record.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, record.Female, got.Sex)

	rec = do(t, s, http.MethodGet, "/api/patients/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatientStatistics(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/patients/2/statistics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st stats.ScoreStatistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 3, st.Population)
	assert.Equal(t, 20.0, st.Median)
	assert.InDelta(t, 100.0/3, st.PercentileRank, 1e-9)

	rec = do(t, s, http.MethodGet, "/api/patients/404/statistics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionStatistics(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/me/statistics", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/me/statistics", http.Header{PatientHeader: {"3"}})
	require.Equal(t, http.StatusOK, rec.Code)
	var st stats.ScoreStatistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 30.0, st.Target)
	assert.InDelta(t, 200.0/3, st.PercentileRank, 1e-9)
}

func TestAverageBySex(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/statistics/average?sex=female", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sex":"female","average":25}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/statistics/average", nil)
	assert.JSONEq(t, `{"sex":"","average":20}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/statistics/average?sex=other", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInsightLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/insights", nil)
	assert.JSONEq(t, `{"status":"idle"}`, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/insights", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started insight.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.Equal(t, insight.StatusLoading, started.Status)
	require.NotEmpty(t, started.RunID)

	require.Eventually(t, func() bool {
		var v insight.View
		rec := do(t, s, http.MethodGet, "/api/insights", nil)
		if json.Unmarshal(rec.Body.Bytes(), &v) != nil {
			return false
		}
		return v.Status == insight.StatusSuccess && v.RunID == started.RunID && len(v.Insights) == 3
	}, 2*time.Second, 10*time.Millisecond)
}
