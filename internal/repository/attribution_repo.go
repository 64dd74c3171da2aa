package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marginlens/reconciler/internal/domain"
)

type AttributionRepo struct {
	db *sql.DB
}

func NewAttributionRepo(db *sql.DB) *AttributionRepo {
	return &AttributionRepo{db: db}
}

const dateOnly = "2006-01-02"

// ReplaceWindow atomically swaps all attribution rows whose stat date falls
// inside [from, to].
func (r *AttributionRepo) ReplaceWindow(from, to time.Time, rows []domain.AdAttribution) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"DELETE FROM ad_attribution WHERE stat_date >= ? AND stat_date <= ?",
		from.Format(dateOnly), to.Format(dateOnly),
	); err != nil {
		return 0, fmt.Errorf("delete window: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO ad_attribution
		(campaign_id, campaign_title, order_id, ext_order_id, sku,
		 product_name, stat_date, spent, qty)
		VALUES (?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := range rows {
		a := &rows[i]
		var sku any
		if a.SKU != 0 {
			sku = a.SKU
		}
		if _, err := stmt.Exec(
			a.CampaignID, nullableString(a.CampaignTitle),
			nullableString(a.OrderID), nullableString(a.ExtOrderID), sku,
			nullableString(a.ProductName), a.StatDate.Format(dateOnly),
			a.Spent.String(), a.Quantity,
		); err != nil {
			return i, fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(rows), nil
}

// OrderSpend is the total attributed ad spend for one order in a window,
// with the latest campaign seen for it.
type OrderSpend struct {
	OrderID       string
	CampaignID    string
	CampaignTitle string
	Spent         decimal.Decimal
}

// SpendByOrder sums attributed spend per resolved order over [from, to].
func (r *AttributionRepo) SpendByOrder(from, to time.Time) ([]OrderSpend, error) {
	rows, err := r.db.Query(
		`SELECT order_id, campaign_id, COALESCE(campaign_title, ''), spent
		FROM ad_attribution
		WHERE order_id IS NOT NULL AND stat_date >= ? AND stat_date <= ?
		ORDER BY order_id, campaign_id`,
		from.Format(dateOnly), to.Format(dateOnly),
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]*OrderSpend)
	var order []string

	for rows.Next() {
		var orderID, campaignID, campaignTitle, raw string
		if err := rows.Scan(&orderID, &campaignID, &campaignTitle, &raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		spent, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse spent %q: %w", raw, err)
		}
		s, ok := totals[orderID]
		if !ok {
			s = &OrderSpend{OrderID: orderID}
			totals[orderID] = s
			order = append(order, orderID)
		}
		s.Spent = s.Spent.Add(spent)
		// Rows are ordered by campaign id; keep the max, matching how the
		// attribution is surfaced when an order touched several campaigns.
		if campaignID >= s.CampaignID {
			s.CampaignID = campaignID
			s.CampaignTitle = campaignTitle
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]OrderSpend, 0, len(order))
	for _, id := range order {
		result = append(result, *totals[id])
	}
	return result, nil
}

// CampaignDailySpend is total attributed spend for one campaign on one day.
type CampaignDailySpend struct {
	CampaignID    string          `json:"campaign_id"`
	CampaignTitle string          `json:"campaign_title,omitempty"`
	StatDate      time.Time       `json:"stat_date"`
	Spent         decimal.Decimal `json:"spent"`
	Rows          int             `json:"rows"`
}

// DailyByCampaign sums spend per (campaign, day) over [from, to],
// oldest first.
func (r *AttributionRepo) DailyByCampaign(from, to time.Time) ([]CampaignDailySpend, error) {
	rows, err := r.db.Query(
		`SELECT campaign_id, COALESCE(campaign_title, ''), stat_date, spent
		FROM ad_attribution
		WHERE stat_date >= ? AND stat_date <= ?
		ORDER BY stat_date, campaign_id`,
		from.Format(dateOnly), to.Format(dateOnly),
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	type key struct {
		campaign, day string
	}
	totals := make(map[key]*CampaignDailySpend)
	var order []key

	for rows.Next() {
		var campaignID, campaignTitle, raw string
		var statDate time.Time
		// The driver hands DATE columns back as time.Time.
		if err := rows.Scan(&campaignID, &campaignTitle, &statDate, &raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		spent, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse spent %q: %w", raw, err)
		}
		k := key{campaignID, statDate.Format(dateOnly)}
		s, ok := totals[k]
		if !ok {
			s = &CampaignDailySpend{
				CampaignID: campaignID, CampaignTitle: campaignTitle,
				StatDate: statDate,
			}
			totals[k] = s
			order = append(order, k)
		}
		s.Spent = s.Spent.Add(spent)
		s.Rows++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]CampaignDailySpend, 0, len(order))
	for _, k := range order {
		result = append(result, *totals[k])
	}
	return result, nil
}

// TotalSpendForOrder sums all attributed spend for one order across all
// windows ever ingested.
func (r *AttributionRepo) TotalSpendForOrder(orderID string) (decimal.Decimal, error) {
	rows, err := r.db.Query(
		"SELECT spent FROM ad_attribution WHERE order_id = ?", orderID,
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, err
		}
		spent, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse spent %q: %w", raw, err)
		}
		total = total.Add(spent)
	}
	return total, rows.Err()
}
