package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/marginlens/reconciler/internal/aggregate"
	"github.com/marginlens/reconciler/internal/config"
	"github.com/marginlens/reconciler/internal/domain"
	"github.com/marginlens/reconciler/internal/ingest"
	"github.com/marginlens/reconciler/internal/repository"
	"github.com/marginlens/reconciler/internal/resolver"
)

// Service wires the adapters, the resolver backfill, the period-cost
// aggregation and the recompute into one sequential run.
type Service struct {
	cfg     *config.Config
	posting *ingest.PostingAdapter
	txns    *ingest.TransactionAdapter
	ads     *ingest.AdsAdapter
	engine  *aggregate.Engine
	fees    *repository.FeeItemRepo
	costs   *repository.PeriodCostRepo
	res     *resolver.Resolver
	runner  *Runner
	log     zerolog.Logger
}

func NewService(cfg *config.Config, posting *ingest.PostingAdapter,
	txns *ingest.TransactionAdapter, ads *ingest.AdsAdapter,
	engine *aggregate.Engine, fees *repository.FeeItemRepo,
	costs *repository.PeriodCostRepo, res *resolver.Resolver,
	log zerolog.Logger) *Service {
	return &Service{
		cfg: cfg, posting: posting, txns: txns, ads: ads, engine: engine,
		fees: fees, costs: costs, res: res,
		runner: NewRunner(log), log: log,
	}
}

// RunRange executes a full reconciliation over [from, to].
func (s *Service) RunRange(ctx context.Context, from, to time.Time) error {
	steps := []Step{
		{
			Name:     "orders (posting financials)",
			Required: true,
			Fn: func(ctx context.Context) error {
				_, err := s.posting.IngestWindow(ctx, from, to)
				return err
			},
		},
		{
			Name:     "finance transaction feed",
			Required: !s.cfg.FinanceBestEffort,
			Fn: func(ctx context.Context) error {
				_, err := s.txns.IngestRange(ctx, from, to)
				return err
			},
		},
		{
			Name:     "re-resolve ledger references",
			Required: false,
			Fn:       func(ctx context.Context) error { return s.ReResolve() },
		},
		{
			Name:     "period costs",
			Required: false,
			Fn: func(ctx context.Context) error {
				return s.RecalcPeriodCosts(from, to.AddDate(0, 0, 1))
			},
		},
		{
			Name:     "ad-spend attribution",
			Required: !s.cfg.AdsBestEffort,
			Fn: func(ctx context.Context) error {
				_, err := s.ads.IngestRange(ctx, from, to)
				return err
			},
		},
		{
			Name:     "recompute aggregates",
			Required: true,
			Fn:       func(ctx context.Context) error { return s.engine.RecomputeAll(ctx) },
		},
	}

	return s.runner.Run(ctx, steps)
}

// RunLookback runs over the configured default lookback ending now.
func (s *Service) RunLookback(ctx context.Context) error {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -s.cfg.LookbackDays)
	return s.RunRange(ctx, from, to)
}

// ReResolve retries resolution for ledger rows that only carry a raw
// reference; orders ingested after the row first arrived may now match.
func (s *Service) ReResolve() error {
	unresolved, err := s.fees.ListUnresolved()
	if err != nil {
		return fmt.Errorf("list unresolved: %w", err)
	}

	bound := 0
	for i := range unresolved {
		it := &unresolved[i]
		orderID, _, err := s.res.Resolve(it.ExtOrderID)
		if err != nil {
			return err
		}
		if orderID == "" {
			continue
		}
		if err := s.fees.BindOrder(it.ID, orderID); err != nil {
			return err
		}
		bound++
	}

	if bound > 0 {
		s.log.Info().Int("bound", bound).Int("remaining", len(unresolved)-bound).
			Msg("re-resolved ledger references")
	}
	return nil
}

// RecalcPeriodCosts rebuilds the daily aggregates of finance charges that
// never attached to an order, over [from, to).
func (s *Service) RecalcPeriodCosts(from, to time.Time) error {
	sums, err := s.fees.SumUnattributedByDay(from, to)
	if err != nil {
		return fmt.Errorf("sum unattributed: %w", err)
	}

	costs := make([]domain.PeriodCost, 0, len(sums))
	for _, u := range sums {
		costs = append(costs, domain.PeriodCost{
			CostDate: u.CostDate,
			FeeGroup: u.FeeGroup,
			FeeName:  u.FeeName,
			Amount:   u.Amount,
		})
	}

	if err := s.costs.ReplaceWindow(from, to, costs); err != nil {
		return fmt.Errorf("replace period costs: %w", err)
	}
	return nil
}
