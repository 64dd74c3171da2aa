package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/marginlens/reconciler/internal/domain"
	"github.com/marginlens/reconciler/internal/repository"
	"github.com/marginlens/reconciler/internal/resolver"
	"github.com/marginlens/reconciler/internal/upstream"
)

// The performance API caps report lookback, so long ranges are sliced.
const adsWindowDays = 60

// AdsSource is the asynchronous report flow of the performance API.
type AdsSource interface {
	GenerateOrdersReport(ctx context.Context, from, to time.Time) (string, error)
	WaitReport(ctx context.Context, uuid string, timeout time.Duration) error
	FetchReportRows(ctx context.Context, uuid string) ([]upstream.ReportRow, error)
}

// AdsAdapter ingests ad-spend attribution reports. Its output is the
// order-to-campaign attribution table plus a per-order attributed-spend
// scalar on the order row; it writes no fee ledger rows, so advertising
// spend is never double-booked against finance-feed ad charges.
type AdsAdapter struct {
	source  AdsSource
	res     *resolver.Resolver
	attrib  *repository.AttributionRepo
	orders  *repository.OrderRepo
	timeout time.Duration
	log     zerolog.Logger
}

func NewAdsAdapter(source AdsSource, res *resolver.Resolver,
	attrib *repository.AttributionRepo, orders *repository.OrderRepo,
	reportTimeout time.Duration, log zerolog.Logger) *AdsAdapter {
	return &AdsAdapter{
		source: source, res: res, attrib: attrib, orders: orders,
		timeout: reportTimeout, log: log,
	}
}

// AdsResult summarises one attribution run.
type AdsResult struct {
	Windows   int `json:"windows"`
	Rows      int `json:"rows"`
	Matched   int `json:"matched"`
	Unmatched int `json:"unmatched"`
	Malformed int `json:"malformed"`
}

// IngestRange runs the report flow per sub-window, then folds attributed
// spend back onto the affected orders.
func (a *AdsAdapter) IngestRange(ctx context.Context, from, to time.Time) (*AdsResult, error) {
	res := &AdsResult{}

	for cur := from; !cur.After(to); {
		end := cur.AddDate(0, 0, adsWindowDays-1)
		if end.After(to) {
			end = to
		}

		a.log.Info().Time("from", cur).Time("to", end).Msg("ads window")
		if err := a.ingestWindow(ctx, cur, end, res); err != nil {
			return res, fmt.Errorf("window %s..%s: %w",
				cur.Format("2006-01-02"), end.Format("2006-01-02"), err)
		}
		res.Windows++

		cur = end.AddDate(0, 0, 1)
	}

	if err := a.applyToOrders(from, to); err != nil {
		return res, err
	}

	a.log.Info().Int("windows", res.Windows).Int("rows", res.Rows).
		Int("matched", res.Matched).Int("unmatched", res.Unmatched).
		Int("malformed", res.Malformed).Msg("ads ingestion done")
	return res, nil
}

func (a *AdsAdapter) ingestWindow(ctx context.Context, from, to time.Time, res *AdsResult) error {
	uuid, err := a.source.GenerateOrdersReport(ctx, from, to)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	if err := a.source.WaitReport(ctx, uuid, a.timeout); err != nil {
		return fmt.Errorf("wait: %w", err)
	}

	rows, err := a.source.FetchReportRows(ctx, uuid)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	attributions := make([]domain.AdAttribution, 0, len(rows))
	for i := range rows {
		attr, ok, err := a.attributionFromRow(&rows[i])
		if err != nil {
			return err
		}
		if !ok {
			res.Malformed++
			continue
		}
		if attr.OrderID != "" {
			res.Matched++
		} else {
			res.Unmatched++
		}
		attributions = append(attributions, *attr)
	}

	n, err := a.attrib.ReplaceWindow(from, to, attributions)
	if err != nil {
		return fmt.Errorf("replace window: %w", err)
	}
	res.Rows += n
	return nil
}

func (a *AdsAdapter) attributionFromRow(row *upstream.ReportRow) (*domain.AdAttribution, bool, error) {
	statDate, ok := parseStatDate(row.Date)
	if !ok {
		// Malformed row: counted by the caller, batch continues.
		return nil, false, nil
	}

	orderID, extRef, err := a.res.Resolve(row.OrderNumber)
	if err != nil {
		return nil, false, fmt.Errorf("resolve %q: %w", row.OrderNumber, err)
	}

	campaignID := row.CampaignID.String()
	if campaignID == "" {
		// The orders report omits the campaign for some row kinds; keep the
		// row under a sentinel id rather than dropping spend.
		campaignID = "0"
	}

	return &domain.AdAttribution{
		CampaignID:    campaignID,
		CampaignTitle: row.CampaignTitle,
		OrderID:       orderID,
		ExtOrderID:    extRef,
		SKU:           row.SKU,
		ProductName:   row.Name,
		StatDate:      statDate,
		Spent:         parseAmount(row.MoneySpent),
		Quantity:      row.Quantity,
	}, true, nil
}

// applyToOrders writes campaign attribution and total attributed spend onto
// each order touched in the window.
func (a *AdsAdapter) applyToOrders(from, to time.Time) error {
	spends, err := a.attrib.SpendByOrder(from, to)
	if err != nil {
		return fmt.Errorf("spend by order: %w", err)
	}

	for _, s := range spends {
		if err := a.orders.SetCampaign(s.OrderID, s.CampaignID, s.CampaignTitle, s.Spent); err != nil {
			return err
		}
	}
	return nil
}

var statDateFormats = []string{"2006-01-02", "02.01.2006", "02/01/2006", time.RFC3339}

func parseStatDate(raw string) (time.Time, bool) {
	for _, f := range statDateFormats {
		if t, err := time.Parse(f, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
