package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/marginlens/reconciler/internal/resolver"
	"github.com/marginlens/reconciler/internal/upstream"
)

type fakeAdsSource struct {
	rows      []upstream.ReportRow
	generated int
	waited    int
}

func (f *fakeAdsSource) GenerateOrdersReport(ctx context.Context, from, to time.Time) (string, error) {
	f.generated++
	return "report-uuid", nil
}

func (f *fakeAdsSource) WaitReport(ctx context.Context, uuid string, timeout time.Duration) error {
	f.waited++
	return nil
}

func (f *fakeAdsSource) FetchReportRows(ctx context.Context, uuid string) ([]upstream.ReportRow, error) {
	return f.rows, nil
}

func TestAdsIngestAppliesSpendToOrders(t *testing.T) {
	orders, _, attrib := newRepos(t)
	seedResolvedOrder(t, orders, "123-1", "2025-01-02")

	src := &fakeAdsSource{rows: []upstream.ReportRow{
		{
			CampaignID: "42", CampaignTitle: "Search promo",
			OrderNumber: "123-1", SKU: 111, Name: "Widget",
			Date: "2025-01-05", MoneySpent: "12,50", Quantity: 1,
		},
		{
			CampaignID: "42", CampaignTitle: "Search promo",
			OrderNumber: "123-1", SKU: 111, Name: "Widget",
			Date: "06.01.2025", MoneySpent: "7.50", Quantity: 1,
		},
	}}

	res := resolver.New(orders, resolver.PreferLatest{}, zerolog.Nop())
	adapter := NewAdsAdapter(src, res, attrib, orders, time.Minute, zerolog.Nop())

	result, err := adapter.IngestRange(context.Background(),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, result.Windows)
	require.Equal(t, 2, result.Rows)
	require.Equal(t, 2, result.Matched)

	o, err := orders.GetByID("123-1")
	require.NoError(t, err)
	require.Equal(t, "42", o.CampaignID)
	require.Equal(t, "Search promo", o.CampaignTitle)
	require.True(t, o.AdsAttributed.Equal(dec("20")), "ads_attributed %s", o.AdsAttributed)

	total, err := attrib.TotalSpendForOrder("123-1")
	require.NoError(t, err)
	require.True(t, total.Equal(dec("20")))
}

func TestAdsIngestWritesNoLedgerRows(t *testing.T) {
	orders, fees, attrib := newRepos(t)
	seedResolvedOrder(t, orders, "9-1", "2025-01-02")

	src := &fakeAdsSource{rows: []upstream.ReportRow{{
		CampaignID: "7", OrderNumber: "9-1", Date: "2025-01-05", MoneySpent: "3",
	}}}

	res := resolver.New(orders, resolver.PreferLatest{}, zerolog.Nop())
	adapter := NewAdsAdapter(src, res, attrib, orders, time.Minute, zerolog.Nop())

	_, err := adapter.IngestRange(context.Background(),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	items, err := fees.ListByOrder("9-1")
	require.NoError(t, err)
	require.Empty(t, items, "attribution must not create fee ledger rows")
}

func TestAdsIngestCountsMalformedRows(t *testing.T) {
	orders, _, attrib := newRepos(t)
	seedResolvedOrder(t, orders, "9-1", "2025-01-02")

	src := &fakeAdsSource{rows: []upstream.ReportRow{
		{CampaignID: "7", OrderNumber: "9-1", Date: "not-a-date", MoneySpent: "3"},
		{CampaignID: "7", OrderNumber: "9-1", Date: "2025-01-05", MoneySpent: "3"},
	}}

	res := resolver.New(orders, resolver.PreferLatest{}, zerolog.Nop())
	adapter := NewAdsAdapter(src, res, attrib, orders, time.Minute, zerolog.Nop())

	result, err := adapter.IngestRange(context.Background(),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, result.Malformed)
	require.Equal(t, 1, result.Rows, "malformed row skipped, batch continues")
}

func TestAdsIngestKeepsUnmatchedRows(t *testing.T) {
	orders, _, attrib := newRepos(t)

	src := &fakeAdsSource{rows: []upstream.ReportRow{{
		CampaignID: "", OrderNumber: "ghost-1", Date: "2025-01-05", MoneySpent: "5",
	}}}

	res := resolver.New(orders, resolver.PreferLatest{}, zerolog.Nop())
	adapter := NewAdsAdapter(src, res, attrib, orders, time.Minute, zerolog.Nop())

	result, err := adapter.IngestRange(context.Background(),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, result.Unmatched)
	require.Equal(t, 1, result.Rows, "unresolved spend is kept, not dropped")
}

func TestAdsIngestSlicesLongRanges(t *testing.T) {
	orders, _, attrib := newRepos(t)

	src := &fakeAdsSource{}
	res := resolver.New(orders, resolver.PreferLatest{}, zerolog.Nop())
	adapter := NewAdsAdapter(src, res, attrib, orders, time.Minute, zerolog.Nop())

	// 100 days at a 60-day cap means two report windows.
	result, err := adapter.IngestRange(context.Background(),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 2, result.Windows)
	require.Equal(t, 2, src.generated)
	require.Equal(t, 2, src.waited)
}
