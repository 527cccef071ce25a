package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/botcore/market"
	"github.com/rustyeddy/botcore/session"
)

func newTestServer(t *testing.T) (*Server, *session.Session, *session.Store) {
	t.Helper()

	sess := session.New()
	store := session.NewStore(sess)
	srv := New(Config{Version: "test", Symbol: "EURUSD", Mode: "paper"}, store)
	return srv, sess, store
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := get(t, srv.Handler(), "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "botcore", body["service"])
	assert.Equal(t, "test", body["version"])
}

func TestStatusReflectsPublishedSession(t *testing.T) {
	t.Parallel()

	srv, sess, store := newTestServer(t)

	rec := get(t, srv.Handler(), "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INIT", resp.Phase)
	assert.Nil(t, resp.NextReviewAt)
	assert.Empty(t, resp.MonitoringTimeframes)

	next := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	sess.Phase = session.InTrade
	sess.ActivePosition = 1001
	sess.SetupID = "setup-1"
	sess.NextReviewAt = next
	sess.MonitoringTimeframes = []market.Timeframe{market.M15, market.H1}

	// unpublished changes are not visible
	rec = get(t, srv.Handler(), "/api/status")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INIT", resp.Phase)

	store.Publish(sess)
	rec = get(t, srv.Handler(), "/api/status")
	resp = StatusResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "operational", resp.Status)
	assert.Equal(t, "EURUSD", resp.Symbol)
	assert.Equal(t, "paper", resp.Mode)
	assert.Equal(t, "IN_TRADE", resp.Phase)
	assert.Equal(t, uint64(1001), resp.ActivePosition)
	assert.Equal(t, "setup-1", resp.SetupID)
	require.NotNil(t, resp.NextReviewAt)
	assert.True(t, next.Equal(*resp.NextReviewAt))
	assert.Equal(t, []string{"M15", "H1"}, resp.MonitoringTimeframes)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := get(t, srv.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNotFound(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := get(t, srv.Handler(), "/api/trading/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/status")
}
