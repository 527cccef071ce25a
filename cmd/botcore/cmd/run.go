package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/botcore/broker"
	"github.com/rustyeddy/botcore/broker/bridge"
	"github.com/rustyeddy/botcore/config"
	"github.com/rustyeddy/botcore/decision"
	"github.com/rustyeddy/botcore/engine"
	"github.com/rustyeddy/botcore/journal"
	"github.com/rustyeddy/botcore/market"
	"github.com/rustyeddy/botcore/report"
	"github.com/rustyeddy/botcore/safety"
	"github.com/rustyeddy/botcore/schedule"
	"github.com/rustyeddy/botcore/sim"
	"github.com/rustyeddy/botcore/status"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the decision loop",
	Long: `Run the scheduled decision loop from a configuration file.

Broker mode "bridge" trades through the HTTP bridge to the terminal.
Broker mode "paper" trades against an in-memory broker seeded from the
paper section, optionally replaying scripted price steps.

Example:
  botcore run -f botcore.yaml`,
	RunE: runRun,
}

var runConfigPath string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	flags := cmd.Flags()
	if !flags.Changed("log-level") && !flags.Changed("console") {
		setupLogging(cfg.Log.Level, cfg.Log.Console)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer j.Close()

	b, paper, err := newBroker(cfg)
	if err != nil {
		return err
	}

	client := decision.NewClient(decision.Config{
		BaseURL:       cfg.Decision.URL,
		APIKey:        cfg.Decision.APIKey,
		Timeout:       cfg.Decision.TimeoutDuration(),
		RatePerMinute: cfg.Decision.RatePerMinute,
	})

	eng := engine.New(engine.Config{
		Symbol:        cfg.Symbol,
		PollInterval:  cfg.Schedule.PollDuration(),
		DefaultReview: cfg.Schedule.DefaultReviewDuration(),
		CycleTimeout:  cfg.Schedule.CycleTimeoutDuration(),
		Candles:       cfg.Schedule.Candles,
	}, engine.Deps{
		Broker:   b,
		Decider:  client,
		Reporter: report.New(client, cfg.Symbol, cfg.Decision.ReportTimeoutDuration()),
		Journal:  j,
		Validator: safety.NewValidator(safety.Config{
			Symbol:           cfg.Symbol,
			MaxOpenPositions: cfg.Safety.MaxOpenPositions,
			MaxDrawdown:      cfg.Safety.MaxDrawdown,
		}),
		Scheduler: schedule.New(schedule.Config{
			SessionHour:   cfg.Schedule.SessionHour,
			Location:      cfg.Schedule.Location(),
			BaseTimeframe: cfg.Schedule.Timeframe(),
		}),
	})

	if paper != nil {
		paper.SetTradeClosedListener(eng)
		go replaySteps(ctx, paper, cfg.Symbol, cfg.Paper.PriceSteps)
	}

	if cfg.Status.Enabled {
		srv := status.New(status.Config{
			Addr:    cfg.Status.Addr,
			Version: version,
			Symbol:  cfg.Symbol,
			Mode:    cfg.Broker.Mode,
		}, eng.Store())
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Error().Err(err).Msg("status server stopped")
			}
		}()
	}

	log.Info().
		Str("symbol", cfg.Symbol).
		Str("broker", cfg.Broker.Mode).
		Str("decision", cfg.Decision.URL).
		Str("journal", cfg.Journal.Type).
		Msg("botcore starting")

	return eng.Run(ctx)
}

// newBroker returns the configured broker, and the paper engine when
// running in paper mode.
func newBroker(cfg *config.Config) (broker.Broker, *sim.Engine, error) {
	if cfg.Broker.Mode == "bridge" {
		return bridge.New(cfg.Broker.URL, cfg.Broker.Token, cfg.Broker.TimeoutDuration()), nil, nil
	}

	in, ok := market.Instruments[cfg.Symbol]
	if !ok {
		return nil, nil, fmt.Errorf("paper broker: %w: %s", broker.ErrUnknownSymbol, cfg.Symbol)
	}
	paper := sim.NewEngine(broker.Account{
		ID:       cfg.Paper.AccountID,
		Currency: cfg.Paper.Currency,
		Balance:  cfg.Paper.Balance,
		Equity:   cfg.Paper.Balance,
	}, in)
	err := paper.UpdatePrice(market.Tick{
		Symbol: cfg.Symbol,
		Time:   time.Now(),
		Bid:    cfg.Paper.Bid,
		Ask:    cfg.Paper.Ask,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("paper broker: %w", err)
	}

	if cfg.Paper.HistoryFile != "" {
		m1, stats, err := market.LoadHistory(cfg.Paper.HistoryFile)
		if err != nil {
			return nil, nil, fmt.Errorf("paper history: %w", err)
		}
		for _, tf := range []market.Timeframe{market.M1, market.M5, market.M15, market.M30,
			market.H1, market.H4, market.D1, market.W1} {
			paper.SetCandles(cfg.Symbol, tf, market.Aggregate(m1, tf))
		}
		log.Info().
			Str("file", cfg.Paper.HistoryFile).
			Int("bars", stats.Loaded).
			Int("duplicates", stats.Duplicates).
			Int("bad_lines", stats.BadLines).
			Msg("paper history loaded")
	}
	return paper, paper, nil
}

func openJournal(jc config.JournalConfig) (journal.Journal, error) {
	switch jc.Type {
	case "none":
		return journal.Nop{}, nil
	case "csv":
		return journal.NewCSV(jc.CyclesFile, jc.ExecutionsFile)
	case "postgres":
		return journal.NewPostgres(jc.DSN)
	}
	return journal.NewSQLite(jc.DSN)
}

// replaySteps feeds scripted prices to the paper broker, each after its
// delay.
func replaySteps(ctx context.Context, paper *sim.Engine, symbol string, steps []config.PriceStep) {
	for i, step := range steps {
		delay, err := step.ParseDuration()
		if err != nil {
			log.Error().Err(err).Int("step", i).Msg("invalid price step delay")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		err = paper.UpdatePrice(market.Tick{
			Symbol: symbol,
			Time:   time.Now(),
			Bid:    step.Bid,
			Ask:    step.Ask,
		})
		if err != nil {
			log.Error().Err(err).Int("step", i).Msg("price step rejected")
			continue
		}
		log.Debug().Int("step", i).Float64("bid", step.Bid).Float64("ask", step.Ask).Msg("paper price updated")
	}
}
