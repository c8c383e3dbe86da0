// The backtest command runs one replay against stored history and prints
// the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quantpulse/quantpulse/internal/config"
	"github.com/quantpulse/quantpulse/internal/models"
	"github.com/quantpulse/quantpulse/internal/store"
	"github.com/quantpulse/quantpulse/pkg/backtest"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	symbol := flag.String("symbol", "", "symbol to replay")
	start := flag.String("start", "", "range start (2006-01-02 or RFC3339)")
	end := flag.String("end", "", "range end (2006-01-02 or RFC3339)")
	capital := flag.Float64("capital", 100000, "initial capital")
	fraction := flag.Float64("fraction", 0.5, "fraction of equity per position")
	buy := flag.Float64("buy", 50, "BUY threshold")
	sell := flag.Float64("sell", 50, "SELL threshold magnitude")
	asJSON := flag.Bool("json", false, "print the full result as JSON")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	startTime, err := parseTime(*start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start: %v\n", err)
		os.Exit(1)
	}
	endTime, err := parseTime(*end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "end: %v\n", err)
		os.Exit(1)
	}

	btCfg := models.BacktestConfig{
		Symbol:           *symbol,
		Start:            startTime,
		End:              endTime,
		InitialCapital:   *capital,
		PositionFraction: *fraction,
		BuyThreshold:     *buy,
		SellThreshold:    *sell,
	}
	if err := btCfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid backtest config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	st, err := store.New(ctx, store.Config{
		DSN:      cfg.Database.GetDSN(),
		MaxConns: 4,
	})
	if err != nil {
		log.Error().Err(err).Msg("Store connection failed")
		os.Exit(1)
	}
	defer st.Close()

	result := backtest.NewEngine(st).Run(ctx, uuid.New(), btCfg)
	if err := st.SaveBacktestResult(ctx, result); err != nil {
		log.Warn().Err(err).Msg("Result not persisted")
	}

	if *asJSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("Result marshal failed")
			os.Exit(1)
		}
		fmt.Println(string(out))
	} else {
		fmt.Print(backtest.Report(result))
	}

	if result.Status == models.BacktestFailed {
		os.Exit(1)
	}
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("required")
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
