package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"stratlab/internal/compare"
	"stratlab/internal/config"
	"stratlab/internal/domain"
	"stratlab/internal/loader"
	"stratlab/internal/store"
	"stratlab/internal/strategy"
	"stratlab/internal/strategy/builtins"
	"stratlab/internal/strategy/custom"
	"stratlab/internal/util"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: stratlab-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version    Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  stocks     List available tickers\n")
		fmt.Fprintf(os.Stderr, "  run        Run the experiments from the config file\n")
		fmt.Fprintf(os.Stderr, "  compare    Run one strategy across tickers and rank the results\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("stratlab-cli %s\n", version)

	case "stocks":
		_, runner := setup()
		tickers, err := runner.Loader.Tickers(context.Background())
		if err != nil {
			log.Fatalf("listing tickers: %v", err)
		}
		for _, t := range tickers {
			fmt.Println(t)
		}

	case "run":
		cfg, runner := setup()
		if len(cfg.Experiments) == 0 {
			log.Fatal("no experiments in config")
		}
		outcomes := make(map[string]compare.Outcome, len(cfg.Experiments))
		for _, exp := range cfg.Experiments {
			if exp.InitialCapital == 0 {
				exp.InitialCapital = cfg.Backtest.DefaultCapital
			}
			key := fmt.Sprintf("%s/%s", exp.Ticker, exp.Strategy)
			out := runner.Run(context.Background(), exp)
			out.Ticker = key
			outcomes[key] = out
		}
		printRanked(compare.Rank(outcomes))

	case "compare":
		fs := flag.NewFlagSet("compare", flag.ExitOnError)
		tickers := fs.String("tickers", "", "comma-separated tickers (required)")
		strategyID := fs.String("strategy", config.StrategyBuyAndHold, "strategy identifier")
		start := fs.String("start", "", "start date YYYY-MM-DD")
		end := fs.String("end", "", "end date YYYY-MM-DD")
		capital := fs.Float64("capital", 0, "initial capital (default from config)")
		cost := fs.Float64("cost", 0, "transaction cost rate")
		short := fs.Int("short", 0, "short moving-average window")
		long := fs.Int("long", 0, "long moving-average window")
		vol := fs.Float64("vol", 0, "volatility trigger threshold")
		takeProfit := fs.Float64("tp", 0, "take-profit level")
		stopLoss := fs.Float64("sl", 0, "stop-loss level")
		script := fs.String("script", "", "path to a custom strategy script")
		fs.Parse(os.Args[2:])

		if *tickers == "" {
			fs.Usage()
			os.Exit(1)
		}

		cfg, runner := setup()
		exp := config.Experiment{
			Strategy:           *strategyID,
			BuyDate:            *start,
			EndDate:            *end,
			InitialCapital:     *capital,
			TransactionCostPct: *cost,
			ShortWindow:        *short,
			LongWindow:         *long,
			VolThreshold:       *vol,
			TakeProfit:         *takeProfit,
			StopLoss:           *stopLoss,
		}
		if exp.InitialCapital == 0 {
			exp.InitialCapital = cfg.Backtest.DefaultCapital
		}
		if *script != "" {
			source, err := os.ReadFile(*script)
			if err != nil {
				log.Fatalf("reading script: %v", err)
			}
			exp.Strategy = config.StrategyCustom
			exp.CustomSource = string(source)
		}

		list := strings.Split(*tickers, ",")
		for i := range list {
			list[i] = strings.TrimSpace(list[i])
		}
		outcomes := runner.Compare(context.Background(), list, exp)
		printRanked(compare.Rank(outcomes))

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
}

// setup loads config and wires the comparison runner.
func setup() (*config.Config, *compare.Runner) {
	cfgPath := "config/stratlab.yaml"
	if p := os.Getenv("STRATLAB_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	src, err := newSource(cfg)
	if err != nil {
		log.Fatalf("opening price source: %v", err)
	}

	registry := strategy.NewRegistry()
	builtins.RegisterAll(registry)
	registry.Register(&custom.ScriptStrategy{Timeout: time.Duration(cfg.Backtest.ScriptTimeout)})

	return cfg, &compare.Runner{
		Loader:             loader.New(src),
		Registry:           registry,
		TradingDaysPerYear: cfg.Backtest.TradingDaysPerYear,
		MaxWorkers:         cfg.Backtest.MaxWorkers,
		Log:                logger,
	}
}

// newSource selects the price source by configured backend.
func newSource(cfg *config.Config) (loader.Source, error) {
	switch cfg.Storage.Backend {
	case "csv", "":
		return loader.NewCSVSource(cfg.Storage.DataDir), nil
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		return loader.NewStoreSource(s), nil
	case "parquet":
		return loader.NewStoreSource(store.NewParquetStore(cfg.Storage.DataDir)), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// printRanked renders outcomes as a ranked table, best Sharpe first.
func printRanked(ranked []compare.Outcome) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TICKER\tFINAL\tRETURN\tANN.RET\tANN.VOL\tSHARPE\tMAX DD\tDD DAYS\tERROR")
	for _, out := range ranked {
		if out.Err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\t-\t-\t%v\n", out.Ticker, out.Err)
			continue
		}
		m := out.Metrics
		fmt.Fprintf(w, "%s\t%.2f\t%s\t%s\t%s\t%s\t%s\t%d\t\n",
			out.Ticker,
			m.FinalValue,
			fmtPct(m.TotalReturn),
			fmtPctPtr(m.AnnualizedReturn),
			fmtPctPtr(m.AnnualizedVol),
			fmtRatio(m.SharpeLike),
			fmtPct(m.MaxDrawdown),
			m.MaxDrawdownDurationDays,
		)
	}
	w.Flush()
}

func fmtPct(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func fmtPctPtr(v *float64) string {
	if v == nil || !domain.IsFinite(*v) {
		return "n/a"
	}
	return fmtPct(*v)
}

func fmtRatio(v *float64) string {
	if v == nil || !domain.IsFinite(*v) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}
