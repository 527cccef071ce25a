package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/botcore/broker"
	"github.com/rustyeddy/botcore/decision"
	"github.com/rustyeddy/botcore/market"
)

type scriptedPoster struct {
	errs  []error
	calls int
	paths []string
	last  any
}

func (p *scriptedPoster) Post(ctx context.Context, path string, body any) ([]byte, error) {
	p.calls++
	p.paths = append(p.paths, path)
	p.last = body
	if len(p.errs) == 0 {
		return []byte(`{"status":"success"}`), nil
	}
	err := p.errs[0]
	p.errs = p.errs[1:]
	return nil, err
}

func positions() []broker.Position {
	return []broker.Position{{
		Ticket:       12345,
		Symbol:       "GBPUSD",
		Direction:    market.Buy,
		EntryPrice:   1.34205,
		CurrentPrice: 1.34305,
		StopLoss:     1.341,
		TakeProfit:   1.345,
		Volume:       0.5,
		OpenedAt:     time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC),
	}}
}

func TestNewPayload(t *testing.T) {
	t.Parallel()

	p := NewPayload("GBPUSD", positions())
	require.Len(t, p.Positions, 1)
	assert.Equal(t, Position{
		Ticket:       12345,
		Asset:        "GBPUSD",
		Direction:    "BUY",
		EntryPrice:   1.34205,
		CurrentPrice: 1.34305,
		StopLoss:     1.341,
		TakeProfit:   1.345,
		LotSize:      0.5,
		EntryTime:    "2024-01-15T08:00:00Z",
	}, p.Positions[0])

	empty := NewPayload("GBPUSD", nil)
	assert.NotNil(t, empty.Positions)
}

func TestReport_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	p := &scriptedPoster{errs: []error{
		decision.ErrNetwork,
		&decision.StatusError{Code: 502},
	}}
	require.NoError(t, New(p, "GBPUSD", 5*time.Second).Report(context.Background(), positions()))
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, decision.PathStorePositions, p.paths[0])

	payload, ok := p.last.(Payload)
	require.True(t, ok)
	assert.Equal(t, "GBPUSD", payload.Symbol)
}

func TestReport_ClientErrorIsPermanent(t *testing.T) {
	t.Parallel()

	p := &scriptedPoster{errs: []error{&decision.StatusError{Code: 400, Body: "bad"}}}
	err := New(p, "GBPUSD", 5*time.Second).Report(context.Background(), positions())
	require.Error(t, err)
	assert.Equal(t, 1, p.calls)

	var se *decision.StatusError
	assert.True(t, errors.As(err, &se))
}

func TestReport_GivesUp(t *testing.T) {
	t.Parallel()

	errs := make([]error, 100)
	for i := range errs {
		errs[i] = decision.ErrNetwork
	}
	p := &scriptedPoster{errs: errs}
	err := New(p, "GBPUSD", 300*time.Millisecond).Report(context.Background(), positions())
	assert.ErrorIs(t, err, decision.ErrNetwork)
	assert.Greater(t, p.calls, 1)
}
