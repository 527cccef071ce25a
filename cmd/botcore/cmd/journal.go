package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/botcore/id"
	"github.com/rustyeddy/botcore/journal"
	"github.com/rustyeddy/botcore/session"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query journaled cycles and broker calls",
	Long: `Query and display journal records from a SQLite or PostgreSQL journal.

Subcommands:
  cycle   - Get details of a specific cycle by ID
  today   - List cycles started today
  day     - List cycles started on a specific day
  ticket  - List broker calls for a position ticket

Examples:
  botcore journal cycle 01J8Z3V0K8X9T5S6R7Q4P2N1M0
  botcore journal today --phase IN_TRADE
  botcore journal day 2026-03-02
  botcore journal ticket 1001`,
}

var journalCycleCmd = &cobra.Command{
	Use:   "cycle <cycle-id>",
	Short: "Get details of a specific cycle",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalCycle,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List cycles started today",
	Args:  cobra.NoArgs,
	RunE:  runJournalToday,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List cycles started on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalTicketCmd = &cobra.Command{
	Use:   "ticket <ticket>",
	Short: "List broker calls for a position ticket",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTicket,
}

var (
	journalDSN   string
	journalPhase string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalCycleCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalDayCmd)
	journalCmd.AddCommand(journalTicketCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDSN, "db", "d", "./botcore.db", "SQLite path or postgres:// DSN of the journal")
	for _, c := range []*cobra.Command{journalTodayCmd, journalDayCmd} {
		c.Flags().StringVar(&journalPhase, "phase", "", "only list cycles that ended in this phase")
	}
}

func runJournalCycle(cmd *cobra.Command, args []string) error {
	if _, err := id.Time(args[0]); err != nil {
		return fmt.Errorf("cycle id %q: %w", args[0], err)
	}

	j, err := journal.Open(journalDSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	rec, err := j.GetCycle(args[0])
	if err != nil {
		return fmt.Errorf("get cycle: %w", err)
	}
	execs, err := j.ListExecutionsByCycle(rec.CycleID)
	if err != nil {
		return fmt.Errorf("query executions: %w", err)
	}

	fmt.Println(journal.FormatCycleOrg(rec, execs))
	return nil
}

func runJournalToday(cmd *cobra.Command, args []string) error {
	loc := time.Local
	return printDay(loc, time.Now().In(loc).Format(time.DateOnly))
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	return printDay(time.Local, args[0])
}

func printDay(loc *time.Location, day string) error {
	start, end, err := journal.DayBounds(loc, day)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	var phase session.Phase
	if journalPhase != "" {
		if phase, err = session.ParsePhase(journalPhase); err != nil {
			return err
		}
	}

	j, err := journal.Open(journalDSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	recs, err := j.ListCyclesBetween(start, end)
	if err != nil {
		return fmt.Errorf("query cycles: %w", err)
	}
	recs = filterPhase(recs, phase)
	execs := make(map[string][]journal.ExecutionRecord, len(recs))
	for _, r := range recs {
		es, err := j.ListExecutionsByCycle(r.CycleID)
		if err != nil {
			return fmt.Errorf("query executions: %w", err)
		}
		execs[r.CycleID] = es
	}

	fmt.Println(journal.FormatCyclesOrg(recs, execs))
	return nil
}

// filterPhase keeps the cycles that ended in phase. An empty phase keeps all.
func filterPhase(recs []journal.CycleRecord, phase session.Phase) []journal.CycleRecord {
	if phase == "" {
		return recs
	}
	out := recs[:0:0]
	for _, r := range recs {
		if session.Phase(r.PhaseAfter) == phase {
			out = append(out, r)
		}
	}
	return out
}

func runJournalTicket(cmd *cobra.Command, args []string) error {
	ticket, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("ticket: %w", err)
	}

	j, err := journal.Open(journalDSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	execs, err := j.ListExecutionsByTicket(ticket)
	if err != nil {
		return fmt.Errorf("query executions: %w", err)
	}
	if len(execs) == 0 {
		fmt.Printf("no broker calls for ticket %d\n", ticket)
		return nil
	}
	for _, e := range execs {
		status := "ok"
		if e.Error != "" {
			status = e.Error
		}
		fmt.Printf("%s  %-14s cycle=%s vol=%.2f price=%.5f sl=%.5f tp=%.5f retcode=%d  %s\n",
			e.Time.Local().Format(time.DateTime), e.Op, e.CycleID, e.Volume, e.Price,
			e.StopLoss, e.TakeProfit, e.Retcode, status)
	}
	return nil
}
