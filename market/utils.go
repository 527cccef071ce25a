package market

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is an MT5-style timeframe identifier (M1, M15, H1, D1, ...).
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	M30 Timeframe = "M30"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
	W1  Timeframe = "W1"
	MN1 Timeframe = "MN1"
)

var tfSeconds = map[Timeframe]int32{
	M1:  60,
	M5:  300,
	M15: 900,
	M30: 1800,
	H1:  3600,
	H4:  14400,
	D1:  86400,
	W1:  604800,
	MN1: 2592000,
}

// ParseTimeframe accepts the MT5 names and the aliases the decision
// service uses in payload keys (1h, 4h, 1D, 1W, 15m).
func ParseTimeframe(s string) (Timeframe, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	if _, ok := tfSeconds[Timeframe(u)]; ok {
		return Timeframe(u), nil
	}
	switch u {
	case "1M", "1MIN":
		return M1, nil
	case "5M", "5MIN":
		return M5, nil
	case "15M", "15MIN":
		return M15, nil
	case "30M", "30MIN":
		return M30, nil
	case "1H":
		return H1, nil
	case "4H":
		return H4, nil
	case "1D", "D":
		return D1, nil
	case "1W", "W":
		return W1, nil
	}
	return "", fmt.Errorf("unsupported timeframe string: %s", s)
}

func (tf Timeframe) Seconds() int32 { return tfSeconds[tf] }

func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tfSeconds[tf]) * time.Second
}

func (tf Timeframe) Valid() bool {
	_, ok := tfSeconds[tf]
	return ok
}

// UniqueTimeframes drops invalid and repeated entries, keeping order.
func UniqueTimeframes(tfs []Timeframe) []Timeframe {
	seen := make(map[Timeframe]bool, len(tfs))
	out := make([]Timeframe, 0, len(tfs))
	for _, tf := range tfs {
		if !tf.Valid() || seen[tf] {
			continue
		}
		seen[tf] = true
		out = append(out, tf)
	}
	return out
}
