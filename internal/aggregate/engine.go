// Package aggregate recomputes per-order financial totals from the fee
// ledger. The recompute is a pure function of the ledger rows plus the
// order's revenue: it overwrites every derived column on each run and keeps
// no incremental state.
package aggregate

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/marginlens/reconciler/internal/domain"
	"github.com/marginlens/reconciler/internal/repository"
)

type Engine struct {
	orders *repository.OrderRepo
	fees   *repository.FeeItemRepo
	log    zerolog.Logger
}

func NewEngine(orders *repository.OrderRepo, fees *repository.FeeItemRepo, log zerolog.Logger) *Engine {
	return &Engine{orders: orders, fees: fees, log: log}
}

// RecomputeAll recomputes every known order.
func (e *Engine) RecomputeAll(ctx context.Context) error {
	ids, err := e.orders.AllOrderIDs()
	if err != nil {
		return fmt.Errorf("list orders: %w", err)
	}
	return e.Recompute(ctx, ids)
}

// Recompute overwrites the derived aggregate columns for the given orders.
func (e *Engine) Recompute(ctx context.Context, orderIDs []string) error {
	for _, id := range orderIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.recomputeOne(id); err != nil {
			return fmt.Errorf("recompute %s: %w", id, err)
		}
	}
	e.log.Info().Int("orders", len(orderIDs)).Msg("aggregates recomputed")
	return nil
}

// excluded reports whether a (group, source) slice is left out of fee
// totals. The posting payload reliably carries the sale commission, and the
// finance feed sometimes reports the same commission again; dropping the
// feed's commission slice is what prevents counting it twice. Every other
// finance-feed category is included normally.
func excluded(group domain.FeeGroup, source domain.Source) bool {
	return source == domain.SourceFinanceAPI && group == domain.GroupCommission
}

func (e *Engine) recomputeOne(orderID string) error {
	sums, err := e.fees.GroupSums(orderID)
	if err != nil {
		return err
	}

	var salesReport, feesTotal decimal.Decimal
	byGroup := make(map[domain.FeeGroup]decimal.Decimal)

	for _, s := range sums {
		if s.FeeGroup == domain.GroupSales {
			salesReport = salesReport.Add(s.Amount)
		}
		if excluded(s.FeeGroup, s.Source) {
			continue
		}
		feesTotal = feesTotal.Add(s.Amount)
		byGroup[s.FeeGroup] = byGroup[s.FeeGroup].Add(s.Amount)
	}

	revenue, err := e.orders.GetRevenue(orderID)
	if err != nil {
		return err
	}
	rev := decimal.Zero
	if revenue != nil {
		rev = *revenue
	}

	// Known buckets; everything else lands in other_fee_real.
	otherTotal := decimal.Zero
	for group, amount := range byGroup {
		switch group {
		case domain.GroupDelivery, domain.GroupAcquiring, domain.GroupAdvertising,
			domain.GroupCommission, domain.GroupDiscount, domain.GroupSales:
		default:
			otherTotal = otherTotal.Add(amount)
		}
	}

	o := domain.Order{
		OrderID:        orderID,
		SalesReport:    salesReport,
		FeesTotal:      feesTotal,
		DeliveryFee:    byGroup[domain.GroupDelivery],
		AcquiringFee:   byGroup[domain.GroupAcquiring],
		AdsFee:         byGroup[domain.GroupAdvertising],
		SaleCommission: byGroup[domain.GroupCommission],
		Discount:       byGroup[domain.GroupDiscount],
		OtherFeeReal:   otherTotal,
		Payout:         rev.Add(feesTotal),
		Profit:         rev.Add(feesTotal),
	}

	return e.orders.UpdateAggregates(&o)
}
