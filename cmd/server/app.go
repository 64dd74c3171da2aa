package main

import (
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/marginlens/reconciler/internal/aggregate"
	"github.com/marginlens/reconciler/internal/config"
	"github.com/marginlens/reconciler/internal/etl"
	"github.com/marginlens/reconciler/internal/ingest"
	"github.com/marginlens/reconciler/internal/repository"
	"github.com/marginlens/reconciler/internal/resolver"
	"github.com/marginlens/reconciler/internal/upstream"
)

// app wires the full dependency graph: db → repos → resolver → clients →
// adapters → engine → etl service.
type app struct {
	db     *sql.DB
	orders *repository.OrderRepo
	fees   *repository.FeeItemRepo
	costs  *repository.PeriodCostRepo
	attrib *repository.AttributionRepo
	etl    *etl.Service
}

func buildApp(cfg *config.Config, log zerolog.Logger) (*app, error) {
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}

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

	return &app{db: db, orders: orders, fees: fees, costs: costs, attrib: attrib, etl: svc}, nil
}
