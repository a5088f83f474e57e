package api_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robalyx/marginalia/internal/api"
	"github.com/robalyx/marginalia/internal/engine"
	"github.com/robalyx/marginalia/internal/engine/vote"
	"github.com/robalyx/marginalia/internal/metrics"
	"github.com/robalyx/marginalia/internal/setup/config"
	"github.com/robalyx/marginalia/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func newServer(t *testing.T) http.Handler {
	t.Helper()

	store, _ := testutil.NewStore(t)
	cfg := config.Default()
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	e := engine.New(engine.Options{
		Store:          store,
		Contents:       testutil.NewContents(testutil.Comment("c1", "author", now, "go")),
		Ledger:         &testutil.Ledger{},
		Metrics:        m,
		Logger:         zap.NewNop(),
		Now:            testutil.FixedClock(now),
		Risk:           engine.RiskParams(&cfg.Common.Scoring),
		TasteThreshold: cfg.Common.Scoring.TasteScoreDeltaThreshold,
	})

	apiCfg := cfg.Common.API
	apiCfg.EnableMetrics = true

	return api.NewServer(e, registry, m, &apiCfg, zap.NewNop())
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequestWithContext(t.Context(), method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCastVote(t *testing.T) {
	t.Parallel()

	h := newServer(t)

	rec := do(t, h, http.MethodPost, "/v1/votes", `{"itemId":"c1","voterId":"v1","type":"upvote"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res api.VoteResponse
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.Vote)
	assert.Equal(t, vote.TypeUpvote, res.Vote.Type)
	assert.Equal(t, uint64(1), res.Counts.Up)

	// Same click rolls back
	rec = do(t, h, http.MethodPost, "/v1/votes", `{"itemId":"c1","voterId":"v1","type":"upvote"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	res = api.VoteResponse{}
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &res))
	assert.Nil(t, res.Vote)
	assert.Zero(t, res.Counts.Up)
}

func TestErrorStatuses(t *testing.T) {
	t.Parallel()

	h := newServer(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{name: "malformed body", path: "/v1/votes", body: `{`, status: http.StatusBadRequest},
		{name: "missing field", path: "/v1/votes", body: `{"itemId":"c1","type":"upvote"}`, status: http.StatusBadRequest},
		{name: "unknown vote type", path: "/v1/votes", body: `{"itemId":"c1","voterId":"v","type":"meh"}`, status: http.StatusBadRequest},
		{name: "missing content", path: "/v1/votes", body: `{"itemId":"nope","voterId":"v","type":"upvote"}`, status: http.StatusNotFound},
		{name: "unknown reason", path: "/v1/flags", body: `{"sourceId":"s","flaggerId":"f","reason":"meh"}`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := do(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			var res api.ErrorResponse
			require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &res))
			assert.NotEmpty(t, res.Error)
		})
	}
}

func TestFlagAndAssess(t *testing.T) {
	t.Parallel()

	h := newServer(t)

	for range 3 {
		rec := do(t, h, http.MethodPost, "/v1/impressions", `{"sourceId":"example.com"}`)
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/v1/flags", `{"sourceId":"example.com","flaggerId":"f","reason":"spam"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/v1/sources/example.com/risk", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"eligible":true`)
}

func TestEngagementEndpoints(t *testing.T) {
	t.Parallel()

	h := newServer(t)

	rec := do(t, h, http.MethodPost, "/v1/bookmarks", `{"itemId":"c1","userId":"u1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"changed":true}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/v1/unbookmarks", `{"itemId":"c1","userId":"u1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"changed":true}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/v1/replies", `{"parentId":"c1","replierId":"u2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"replies":1}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/v1/not-interested", `{"itemId":"c1","userId":"u1"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/contents/c1/index", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/contents/c1/retopic", `{"previous":["go"]}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/contents/c1/remove", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	h := newServer(t)

	do(t, h, http.MethodPost, "/v1/impressions", `{"sourceId":"example.com"}`)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "marginalia_http_requests_total")
	assert.Contains(t, rec.Body.String(), "marginalia_events_total")
}
