// Command etl runs a full reconciliation from the terminal:
//
//	etl                       # configured lookback ending now
//	etl 2025-10-01 2025-12-12 # explicit range
//
// With SYNC_SCHEDULE set to a cron expression it stays resident and runs
// the lookback on that schedule instead.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/marginlens/reconciler/internal/aggregate"
	"github.com/marginlens/reconciler/internal/config"
	"github.com/marginlens/reconciler/internal/etl"
	"github.com/marginlens/reconciler/internal/ingest"
	"github.com/marginlens/reconciler/internal/repository"
	"github.com/marginlens/reconciler/internal/resolver"
	"github.com/marginlens/reconciler/internal/upstream"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.ValidateSeller(); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("init db")
	}
	defer db.Close()

	orders := repository.NewOrderRepo(db)
	fees := repository.NewFeeItemRepo(db)
	attrib := repository.NewAttributionRepo(db)
	costs := repository.NewPeriodCostRepo(db)

	res := resolver.New(orders, resolver.PreferLatest{}, log)
	seller := upstream.NewSellerClient(cfg, log)
	perf := upstream.NewPerfClient(cfg, log)

	posting := ingest.NewPostingAdapter(seller, orders, fees, log)
	txns := ingest.NewTransactionAdapter(seller, res, fees, log)
	ads := ingest.NewAdsAdapter(perf, res, attrib, orders, cfg.ReportTimeout, log)
	engine := aggregate.NewEngine(orders, fees, log)

	svc := etl.NewService(cfg, posting, txns, ads, engine, fees, costs, res, log)

	ctx := context.Background()

	if cfg.SyncSchedule != "" {
		runScheduled(ctx, cfg.SyncSchedule, svc, log)
		return
	}

	if err := runOnce(ctx, svc); err != nil {
		log.Fatal().Err(err).Msg("run failed")
	}
}

func runOnce(ctx context.Context, svc *etl.Service) error {
	args := os.Args[1:]
	switch len(args) {
	case 0:
		return svc.RunLookback(ctx)
	case 2:
		from, err := time.Parse("2006-01-02", args[0])
		if err != nil {
			return fmt.Errorf("bad from date %q: %w", args[0], err)
		}
		to, err := time.Parse("2006-01-02", args[1])
		if err != nil {
			return fmt.Errorf("bad to date %q: %w", args[1], err)
		}
		// Make the end date inclusive through end of day.
		to = to.AddDate(0, 0, 1).Add(-time.Second)
		return svc.RunRange(ctx, from, to)
	default:
		return fmt.Errorf("usage: etl [YYYY-MM-DD YYYY-MM-DD]")
	}
}

func runScheduled(ctx context.Context, schedule string, svc *etl.Service, log zerolog.Logger) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := svc.RunLookback(ctx); err != nil {
			log.Error().Err(err).Msg("scheduled run failed")
		}
	})
	if err != nil {
		log.Fatal().Err(err).Str("schedule", schedule).Msg("bad cron expression")
	}

	log.Info().Str("schedule", schedule).Msg("scheduler started")
	c.Run()
}
