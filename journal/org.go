package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatCycleOrg renders a cycle and its broker calls as an Org-mode
// block. Structured facts go into a PROPERTIES drawer so they stay
// searchable; the Review heading is left for notes.
func FormatCycleOrg(c CycleRecord, execs []ExecutionRecord) string {
	action := c.Action
	if action == "" {
		action = "NONE"
	}
	heading := fmt.Sprintf("** Cycle: %s %s %s (%s)", c.Symbol, c.Kind, action, shortID(c.CycleID))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":CYCLE_ID: %s\n", c.CycleID))
	b.WriteString(fmt.Sprintf(":KIND: %s\n", c.Kind))
	b.WriteString(fmt.Sprintf(":SYMBOL: %s\n", c.Symbol))
	b.WriteString(fmt.Sprintf(":STARTED_AT: %s\n", orgTime(c.StartedAt)))
	b.WriteString(fmt.Sprintf(":FINISHED_AT: %s\n", orgTime(c.FinishedAt)))
	b.WriteString(fmt.Sprintf(":ACTION: %s\n", action))
	if c.SetupID != "" {
		b.WriteString(fmt.Sprintf(":SETUP_ID: %s\n", c.SetupID))
	}
	b.WriteString(fmt.Sprintf(":PHASE: %s -> %s\n", c.PhaseBefore, c.PhaseAfter))
	b.WriteString(fmt.Sprintf(":OUTCOME: %s\n", c.Outcome))
	if c.Violations != "" {
		b.WriteString(fmt.Sprintf(":VIOLATIONS: %s\n", c.Violations))
	}
	if c.Error != "" {
		b.WriteString(fmt.Sprintf(":ERROR: %s\n", c.Error))
	}
	if !c.NextReviewAt.IsZero() {
		b.WriteString(fmt.Sprintf(":NEXT_REVIEW_AT: %s\n", orgTime(c.NextReviewAt)))
	}
	b.WriteString(":END:\n")

	if len(execs) > 0 {
		b.WriteString("\n*** Executions\n")
		for _, e := range execs {
			b.WriteString(fmt.Sprintf("- %s %s ticket=%d vol=%.2f price=%.5f sl=%.5f tp=%.5f retcode=%d",
				orgTime(e.Time), e.Op, e.Ticket, e.Volume, e.Price, e.StopLoss, e.TakeProfit, e.Retcode))
			if e.Error != "" {
				b.WriteString(fmt.Sprintf(" error=%q", e.Error))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n*** Review\n- \n")
	return b.String()
}

// FormatCyclesOrg renders several cycles separated by blank lines.
// execs maps cycle id to its broker calls and may be nil.
func FormatCyclesOrg(cycles []CycleRecord, execs map[string][]ExecutionRecord) string {
	var b strings.Builder
	for i, c := range cycles {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatCycleOrg(c, execs[c.CycleID]))
	}
	return b.String()
}

func orgTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
