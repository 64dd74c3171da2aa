package repository

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/marginlens/reconciler/internal/domain"
)

func newTestDB(t *testing.T) (*OrderRepo, *FeeItemRepo) {
	t.Helper()
	db, err := InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewOrderRepo(db), NewFeeItemRepo(db)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestReplaceForOrderScopeIsolation(t *testing.T) {
	_, fees := newTestDB(t)

	posting := []domain.FeeItem{{
		OrderID: "A-1", FeeGroup: domain.GroupCommission,
		FeeName: "Sale commission", Amount: dec("-50"),
		Source: domain.SourcePostingFinancial,
	}}
	finance := []domain.FeeItem{{
		OrderID: "A-1", FeeGroup: domain.GroupDelivery,
		FeeName: "Logistics", Amount: dec("-7.5"),
		Source:     domain.SourceFinanceAPI,
		OccurredAt: ts("2025-01-05T10:00:00Z"), UID: "900:0",
	}}

	require.NoError(t, fees.ReplaceForOrder("A-1", domain.SourcePostingFinancial, posting))
	_, err := fees.ReplaceFinanceWindow(
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 10, 23, 59, 59, 0, time.UTC),
		finance,
	)
	require.NoError(t, err)

	// Re-replacing the posting scope must not touch the finance row.
	require.NoError(t, fees.ReplaceForOrder("A-1", domain.SourcePostingFinancial, posting))

	items, err := fees.ListByOrder("A-1")
	require.NoError(t, err)
	require.Len(t, items, 2)

	bySource := map[domain.Source]int{}
	for _, it := range items {
		bySource[it.Source]++
	}
	require.Equal(t, 1, bySource[domain.SourcePostingFinancial])
	require.Equal(t, 1, bySource[domain.SourceFinanceAPI])
}

func TestReplaceFinanceWindowIdempotent(t *testing.T) {
	_, fees := newTestDB(t)

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 10, 23, 59, 59, 0, time.UTC)

	items := []domain.FeeItem{
		{
			OrderID: "A-1", FeeGroup: domain.GroupDelivery, FeeName: "Logistics",
			Amount: dec("-7.5"), Source: domain.SourceFinanceAPI,
			OccurredAt: ts("2025-01-05T10:00:00Z"), UID: "900:0",
		},
		{
			OrderID: "A-1", FeeGroup: domain.GroupAcquiring, FeeName: "Acquiring",
			Amount: dec("-2.25"), Source: domain.SourceFinanceAPI,
			OccurredAt: ts("2025-01-06T10:00:00Z"), UID: "901:0",
		},
	}

	for i := 0; i < 3; i++ {
		_, err := fees.ReplaceFinanceWindow(from, to, items)
		require.NoError(t, err)
	}

	got, err := fees.ListByOrder("A-1")
	require.NoError(t, err)
	require.Len(t, got, 2, "re-ingestion must not drift")

	sums, err := fees.GroupSums("A-1")
	require.NoError(t, err)
	total := decimal.Zero
	for _, s := range sums {
		total = total.Add(s.Amount)
	}
	require.True(t, total.Equal(dec("-9.75")), "got %s", total)
}

func TestUIDDedupAcrossOverlappingWindows(t *testing.T) {
	_, fees := newTestDB(t)

	item := domain.FeeItem{
		OrderID: "B-1", FeeGroup: domain.GroupOther, FeeName: "Storage",
		Amount: dec("-1"), Source: domain.SourceFinanceAPI,
		OccurredAt: ts("2025-01-09T00:00:00Z"), UID: "42:0",
	}

	_, err := fees.ReplaceFinanceWindow(
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		[]domain.FeeItem{item},
	)
	require.NoError(t, err)

	// An overlapping window carrying the same operation line: the uid
	// backstop keeps it single.
	_, err = fees.ReplaceFinanceWindow(
		time.Date(2025, 1, 9, 12, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC),
		[]domain.FeeItem{item},
	)
	require.NoError(t, err)

	got, err := fees.ListByOrder("B-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestReplaceFinanceWindowNormalizesZones(t *testing.T) {
	_, fees := newTestDB(t)

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 9, 23, 59, 59, 0, time.UTC)

	// 01:00+03:00 on Jan 10 is 22:00Z on Jan 9, chronologically inside the
	// window even though the local date is past its end.
	at := time.Date(2025, 1, 10, 1, 0, 0, 0, time.FixedZone("", 3*3600))
	item := domain.FeeItem{
		OrderID: "Z-1", FeeGroup: domain.GroupDelivery, FeeName: "Logistics",
		Amount: dec("-10"), Source: domain.SourceFinanceAPI,
		OccurredAt: &at, UID: "70:0",
	}
	_, err := fees.ReplaceFinanceWindow(from, to, []domain.FeeItem{item})
	require.NoError(t, err)

	item.Amount = dec("-20")
	_, err = fees.ReplaceFinanceWindow(from, to, []domain.FeeItem{item})
	require.NoError(t, err)

	items, err := fees.ListByOrder("Z-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.True(t, items[0].Amount.Equal(dec("-20")),
		"corrected amount must replace the stale row, got %s", items[0].Amount)
}

func TestUnresolvedRoundTrip(t *testing.T) {
	_, fees := newTestDB(t)

	items := []domain.FeeItem{{
		ExtOrderID: "999", FeeGroup: domain.GroupOther, FeeName: "Penalty",
		Amount: dec("-3"), Source: domain.SourceFinanceAPI,
		OccurredAt: ts("2025-02-01T00:00:00Z"), UID: "7:0",
	}}
	_, err := fees.ReplaceFinanceWindow(
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
		items,
	)
	require.NoError(t, err)

	unresolved, err := fees.ListUnresolved()
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	require.Equal(t, "999", unresolved[0].ExtOrderID)

	require.NoError(t, fees.BindOrder(unresolved[0].ID, "999-1"))

	unresolved, err = fees.ListUnresolved()
	require.NoError(t, err)
	require.Empty(t, unresolved)

	bound, err := fees.ListByOrder("999-1")
	require.NoError(t, err)
	require.Len(t, bound, 1)
	require.Equal(t, "999", bound[0].ExtOrderID, "raw reference kept after binding")
}

func TestSumUnattributedByDay(t *testing.T) {
	_, fees := newTestDB(t)

	items := []domain.FeeItem{
		{
			ExtOrderID: "x1", FeeGroup: domain.GroupOther, FeeName: "Storage",
			Amount: dec("-1.10"), Source: domain.SourceFinanceAPI,
			OccurredAt: ts("2025-03-02T08:00:00Z"), UID: "1:0",
		},
		{
			ExtOrderID: "x2", FeeGroup: domain.GroupOther, FeeName: "Storage",
			Amount: dec("-2.20"), Source: domain.SourceFinanceAPI,
			OccurredAt: ts("2025-03-02T19:00:00Z"), UID: "2:0",
		},
		{
			OrderID: "C-1", FeeGroup: domain.GroupOther, FeeName: "Storage",
			Amount: dec("-50"), Source: domain.SourceFinanceAPI,
			OccurredAt: ts("2025-03-02T12:00:00Z"), UID: "3:0",
		},
	}
	_, err := fees.ReplaceFinanceWindow(
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		items,
	)
	require.NoError(t, err)

	sums, err := fees.SumUnattributedByDay(
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	require.Len(t, sums, 1, "attributed rows excluded, same day/group/name merged")
	require.True(t, sums[0].Amount.Equal(dec("-3.30")), "got %s", sums[0].Amount)
	require.Equal(t, "2025-03-02", sums[0].CostDate.Format("2006-01-02"))
}
