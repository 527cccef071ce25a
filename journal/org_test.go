package journal

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatCycleOrg(t *testing.T) {
	t.Parallel()

	started := time.Date(2024, 3, 15, 10, 30, 45, 0, time.UTC)
	c := testCycle("01HQXYZABCDEFG", started)

	execs := []ExecutionRecord{{
		CycleID:  c.CycleID,
		Time:     started.Add(time.Second),
		Op:       "place_order",
		Ticket:   1001,
		Volume:   0.4,
		Price:    1.1,
		StopLoss: 1.095,
		Retcode:  10009,
	}}

	result := FormatCycleOrg(c, execs)

	assert.Contains(t, result, "** Cycle: EURUSD intraday ENTER (01HQXYZA)")
	assert.Contains(t, result, ":PROPERTIES:")
	assert.Contains(t, result, ":CYCLE_ID: 01HQXYZABCDEFG")
	assert.Contains(t, result, ":STARTED_AT: 2024-03-15T10:30:45Z")
	assert.Contains(t, result, ":PHASE: WATCH -> IN_TRADE")
	assert.Contains(t, result, ":OUTCOME: confirmed")
	assert.Contains(t, result, ":SETUP_ID: setup-1")
	assert.Contains(t, result, ":NEXT_REVIEW_AT: 2024-03-15T10:45:45Z")
	assert.Contains(t, result, ":END:")
	assert.Contains(t, result, "*** Executions")
	assert.Contains(t, result, "place_order ticket=1001 vol=0.40 price=1.10000 sl=1.09500")
	assert.Contains(t, result, "*** Review")

	assert.NotContains(t, result, ":VIOLATIONS:")
	assert.NotContains(t, result, ":ERROR:")
}

func TestFormatCycleOrgFailed(t *testing.T) {
	t.Parallel()

	c := testCycle("C1", time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC))
	c.Action = ""
	c.SetupID = ""
	c.Outcome = "network_error"
	c.Error = "decision service unreachable"
	c.NextReviewAt = time.Time{}

	result := FormatCycleOrg(c, nil)

	assert.Contains(t, result, "** Cycle: EURUSD intraday NONE (C1)")
	assert.Contains(t, result, ":ERROR: decision service unreachable")
	assert.NotContains(t, result, ":SETUP_ID:")
	assert.NotContains(t, result, ":NEXT_REVIEW_AT:")
	assert.NotContains(t, result, "*** Executions")
}

func TestFormatCyclesOrg(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	cycles := []CycleRecord{testCycle("A", at), testCycle("B", at.Add(time.Hour))}
	execs := map[string][]ExecutionRecord{"B": {{Op: "close_position", Ticket: 7, Time: at}}}

	result := FormatCyclesOrg(cycles, execs)

	assert.Equal(t, 2, strings.Count(result, "** Cycle:"))
	assert.Equal(t, 1, strings.Count(result, "*** Executions"))
	assert.Contains(t, result, "\n\n\n** Cycle")
	assert.Less(t, strings.Index(result, "(A)"), strings.Index(result, "(B)"))
	assert.Empty(t, FormatCyclesOrg(nil, nil))
}

func TestShortID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", shortID("abc"))
	assert.Equal(t, "12345678", shortID("123456789"))
}
