package aggregate

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/marginlens/reconciler/internal/domain"
	"github.com/marginlens/reconciler/internal/repository"
)

func setup(t *testing.T) (*repository.OrderRepo, *repository.FeeItemRepo, *Engine) {
	t.Helper()
	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	orders := repository.NewOrderRepo(db)
	fees := repository.NewFeeItemRepo(db)
	return orders, fees, NewEngine(orders, fees, zerolog.Nop())
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func seedOrder(t *testing.T, orders *repository.OrderRepo, id, revenue string) {
	t.Helper()
	require.NoError(t, orders.Upsert(&domain.Order{OrderID: id, Revenue: dec(revenue)}))
}

func TestRecomputeCommissionNotDoubleCounted(t *testing.T) {
	orders, fees, engine := setup(t)
	seedOrder(t, orders, "A-1", "1000")

	require.NoError(t, fees.ReplaceForOrder("A-1", domain.SourcePostingFinancial, []domain.FeeItem{{
		OrderID: "A-1", FeeGroup: domain.GroupCommission,
		FeeName: "Sale commission", Amount: dec("-100"),
		Source: domain.SourcePostingFinancial,
	}}))

	when := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	_, err := fees.ReplaceFinanceWindow(
		when.AddDate(0, 0, -1), when.AddDate(0, 0, 1),
		[]domain.FeeItem{{
			OrderID: "A-1", FeeGroup: domain.GroupCommission,
			FeeName: "Sale commission", Amount: dec("-100"),
			Source: domain.SourceFinanceAPI, OccurredAt: &when, UID: "1:0",
		}},
	)
	require.NoError(t, err)

	require.NoError(t, engine.Recompute(context.Background(), []string{"A-1"}))

	o, err := orders.GetByID("A-1")
	require.NoError(t, err)
	require.NotNil(t, o)
	require.True(t, o.FeesTotal.Equal(dec("-100")), "fees_total %s", o.FeesTotal)
	require.True(t, o.SaleCommission.Equal(dec("-100")), "sale_commission %s", o.SaleCommission)
	require.True(t, o.Payout.Equal(dec("900")), "payout %s", o.Payout)
	require.True(t, o.Profit.Equal(o.Payout))
}

func TestRecomputeBucketsAndOther(t *testing.T) {
	orders, fees, engine := setup(t)
	seedOrder(t, orders, "B-1", "500")

	when := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	items := []domain.FeeItem{
		{OrderID: "B-1", FeeGroup: domain.GroupDelivery, FeeName: "Logistics",
			Amount: dec("-20"), Source: domain.SourceFinanceAPI, OccurredAt: &when, UID: "10:0"},
		{OrderID: "B-1", FeeGroup: domain.GroupAcquiring, FeeName: "Acquiring",
			Amount: dec("-5"), Source: domain.SourceFinanceAPI, OccurredAt: &when, UID: "10:1"},
		{OrderID: "B-1", FeeGroup: domain.GroupAdvertising, FeeName: "Promotion",
			Amount: dec("-15"), Source: domain.SourceFinanceAPI, OccurredAt: &when, UID: "10:2"},
		{OrderID: "B-1", FeeGroup: domain.GroupOther, FeeName: "Storage",
			Amount: dec("-2.50"), Source: domain.SourceFinanceAPI, OccurredAt: &when, UID: "10:3"},
	}
	_, err := fees.ReplaceFinanceWindow(when.AddDate(0, 0, -1), when.AddDate(0, 0, 1), items)
	require.NoError(t, err)

	require.NoError(t, engine.RecomputeAll(context.Background()))

	o, err := orders.GetByID("B-1")
	require.NoError(t, err)
	require.True(t, o.DeliveryFee.Equal(dec("-20")))
	require.True(t, o.AcquiringFee.Equal(dec("-5")))
	require.True(t, o.AdsFee.Equal(dec("-15")))
	require.True(t, o.OtherFeeReal.Equal(dec("-2.50")))
	require.True(t, o.FeesTotal.Equal(dec("-42.50")), "fees_total %s", o.FeesTotal)
	require.True(t, o.Payout.Equal(dec("457.50")), "payout %s", o.Payout)
}

func TestRecomputeSalesIncludedInTotals(t *testing.T) {
	orders, fees, engine := setup(t)
	seedOrder(t, orders, "C-1", "0")

	when := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := fees.ReplaceFinanceWindow(
		when.AddDate(0, 0, -1), when.AddDate(0, 0, 1),
		[]domain.FeeItem{{
			OrderID: "C-1", FeeGroup: domain.GroupSales, FeeName: "Delivered to customer",
			Amount: dec("750"), Source: domain.SourceFinanceAPI, OccurredAt: &when, UID: "20:0",
		}},
	)
	require.NoError(t, err)

	require.NoError(t, engine.Recompute(context.Background(), []string{"C-1"}))

	o, err := orders.GetByID("C-1")
	require.NoError(t, err)
	// Sales proceeds land both in the sales_report column and in fees_total.
	require.True(t, o.SalesReport.Equal(dec("750")))
	require.True(t, o.FeesTotal.Equal(dec("750")))
	require.True(t, o.Payout.Equal(dec("750")))
}

func TestRecomputeDeterministic(t *testing.T) {
	orders, fees, engine := setup(t)
	seedOrder(t, orders, "D-1", "300")

	require.NoError(t, fees.ReplaceForOrder("D-1", domain.SourcePostingFinancial, []domain.FeeItem{
		{OrderID: "D-1", FeeGroup: domain.GroupCommission, FeeName: "Sale commission",
			Amount: dec("-30"), Source: domain.SourcePostingFinancial},
		{OrderID: "D-1", FeeGroup: domain.GroupDiscount, FeeName: "Discount",
			Amount: dec("-10"), Source: domain.SourcePostingFinancial},
	}))

	require.NoError(t, engine.Recompute(context.Background(), []string{"D-1"}))
	first, err := orders.GetByID("D-1")
	require.NoError(t, err)

	require.NoError(t, engine.Recompute(context.Background(), []string{"D-1"}))
	second, err := orders.GetByID("D-1")
	require.NoError(t, err)

	require.True(t, first.FeesTotal.Equal(second.FeesTotal))
	require.True(t, first.Payout.Equal(second.Payout))
	require.True(t, first.FeesTotal.Equal(dec("-40")))
	require.True(t, first.Payout.Equal(dec("260")))
}

func TestRecomputeStopsOnCancelledContext(t *testing.T) {
	orders, _, engine := setup(t)
	seedOrder(t, orders, "F-1", "10")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, engine.RecomputeAll(ctx), context.Canceled)
}

func TestRecomputeOrderWithoutFees(t *testing.T) {
	orders, _, engine := setup(t)
	seedOrder(t, orders, "E-1", "120")

	require.NoError(t, engine.RecomputeAll(context.Background()))

	o, err := orders.GetByID("E-1")
	require.NoError(t, err)
	require.True(t, o.FeesTotal.IsZero())
	require.True(t, o.Payout.Equal(dec("120")))
}
