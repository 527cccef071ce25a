package decision

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/botcore/broker"
	"github.com/rustyeddy/botcore/market"
	"github.com/rustyeddy/botcore/snapshot"
)

func testSnapshot() snapshot.Snapshot {
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	candles := []market.Candle{{Time: at, Open: 1.1, High: 1.2, Low: 1.0, Close: 1.15, Volume: 42}}
	return snapshot.Snapshot{
		Symbol:  "EURUSD",
		Time:    at,
		Tick:    market.Tick{Symbol: "EURUSD", Bid: 1.1, Ask: 1.1001},
		Account: broker.Account{Balance: 10_000, Equity: 9_500},
		Positions: []broker.Position{{
			Ticket:       7,
			Symbol:       "EURUSD",
			Direction:    market.Sell,
			EntryPrice:   1.12,
			CurrentPrice: 1.1001,
			Volume:       0.3,
			OpenedAt:     at,
		}},
		Candles: map[market.Timeframe][]market.Candle{
			market.H1: candles,
			market.D1: candles,
		},
	}
}

func TestDataKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind Kind
		tf   market.Timeframe
		want string
	}{
		{StartOfSession, market.H1, "1h_DATA"},
		{StartOfSession, market.H4, "4h_DATA"},
		{StartOfSession, market.D1, "1D_DATA"},
		{StartOfSession, market.W1, "1W_DATA"},
		{StartOfSession, market.M15, "M15_DATA"},
		{Intraday, market.H1, "H1_DATA"},
		{Intraday, market.M15, "M15_DATA"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DataKey(tt.kind, tt.tf))
	}
}

func TestRequest_MarshalJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(NewRequest(StartOfSession, testSnapshot()))
	require.NoError(t, err)

	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Contains(t, got, "1h_DATA")
	assert.Contains(t, got, "1D_DATA")
	assert.JSONEq(t, `"EURUSD"`, string(got["symbol"]))
	assert.JSONEq(t, `{"balance":10000,"equity":9500,"drawdown":0.05}`, string(got["account_state"]))
	assert.JSONEq(t, `[{"ticket":7,"type":"SELL","entry_price":1.12,"current_price":1.1001,"stop_loss":0,
		"take_profit":0,"entry_time":"2026-03-02T08:00:00Z","lot_size":0.3}]`, string(got["positions"]))
	assert.JSONEq(t, `[{"time":"2026-03-02T08:00:00Z","open":1.1,"high":1.2,"low":1,"close":1.15,"volume":42}]`,
		string(got["1h_DATA"]))
}

func TestDecide(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth, gotReqID string
	var gotBody map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-ID")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"action":"WAIT","setup_id":"x"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "secret", Timeout: time.Second})
	data, err := c.Decide(context.Background(), Intraday, testSnapshot())
	require.NoError(t, err)

	assert.JSONEq(t, `{"action":"WAIT","setup_id":"x"}`, string(data))
	assert.Equal(t, PathIntraday, gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Len(t, gotReqID, 36)
	assert.Contains(t, gotBody, "H1_DATA")
	assert.Contains(t, gotBody, "D1_DATA")
}

func TestPost_StatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).Decide(context.Background(), StartOfSession, testSnapshot())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.Equal(t, PathStartOfSession, se.Path)
}

func TestPost_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}).
		Decide(context.Background(), Intraday, testSnapshot())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetworkTimeout)
}

func TestPost_ConnectionRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(Config{BaseURL: url, Timeout: time.Second}).Decide(context.Background(), Intraday, testSnapshot())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.NotErrorIs(t, err, ErrNetworkTimeout)
}

func TestConfirmExecution(t *testing.T) {
	t.Parallel()

	var got Execution
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathExecute, r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"executed"}`))
	}))
	defer srv.Close()

	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	exec := NewExecution("s-9", broker.OrderBuyLimit, "EURUSD", 1001, 1.095, 1.09, 1.11, 0.4, at)
	require.NoError(t, NewClient(Config{BaseURL: srv.URL}).ConfirmExecution(context.Background(), exec))

	assert.Equal(t, "s-9", got.SetupID)
	assert.Equal(t, "BUY_LIMIT", got.OrderType)
	assert.Equal(t, uint64(1001), got.Ticket)
	assert.Equal(t, "2026-03-02T09:30:00Z", got.ExecutionTime)
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	// One request per minute: the second call cannot get a token
	// before the client timeout.
	c := NewClient(Config{BaseURL: srv.URL, Timeout: 100 * time.Millisecond, RatePerMinute: 1})
	_, err := c.Post(context.Background(), PathStorePositions, map[string]any{})
	require.NoError(t, err)

	_, err = c.Post(context.Background(), PathStorePositions, map[string]any{})
	assert.ErrorIs(t, err, ErrNetwork)
}
