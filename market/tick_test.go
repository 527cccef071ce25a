package market

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickMid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		bid      float64
		ask      float64
		expected float64
	}{
		{"simple", 1.0, 3.0, 2.0},
		{"same", 2.5, 2.5, 2.5},
		{"zero", 0.0, 0.0, 0.0},
		{"fractional", 1.1, 1.3, 1.2},
	}

	const tol = 1e-9

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := Tick{Bid: tt.bid, Ask: tt.ask}
			got := p.Mid()
			if math.Abs(got-tt.expected) > tol {
				t.Fatalf("Mid() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestTickSides(t *testing.T) {
	t.Parallel()

	tk := Tick{Symbol: "GBPUSD", Bid: 1.2999, Ask: 1.3001}

	assert.Equal(t, 1.3001, tk.Open(Buy))
	assert.Equal(t, 1.2999, tk.Open(Sell))
	assert.Equal(t, 1.2999, tk.Close(Buy))
	assert.Equal(t, 1.3001, tk.Close(Sell))
	assert.True(t, tk.Valid())
	assert.False(t, Tick{Bid: 1.3, Ask: 1.2}.Valid())
	assert.False(t, Tick{Bid: 0, Ask: 1.2}.Valid())
}

func TestTickStore(t *testing.T) {
	t.Parallel()

	ts := NewTickStore()
	_, err := ts.Get("EURUSD")
	assert.ErrorIs(t, err, ErrNoTick)

	ts.Set(Tick{Symbol: "EURUSD", Bid: 1.1, Ask: 1.1002})
	got, err := ts.Get("EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 1.1002, got.Ask)
}

func TestParseDirection(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Direction{"buy": Buy, "SELL": Sell, " long ": Buy, "Short": Sell} {
		got, err := ParseDirection(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDirection("hold")
	assert.Error(t, err)
	assert.Equal(t, Sell, Buy.Opposite())
}
