package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marginlens/reconciler/internal/domain"
)

// PeriodCostRepo stores daily aggregates of charges that never attached to
// an order (subscription fees, storage, penalties billed per period).
type PeriodCostRepo struct {
	db *sql.DB
}

func NewPeriodCostRepo(db *sql.DB) *PeriodCostRepo {
	return &PeriodCostRepo{db: db}
}

// ReplaceWindow swaps the aggregates for [from, to) in one transaction.
func (r *PeriodCostRepo) ReplaceWindow(from, to time.Time, costs []domain.PeriodCost) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"DELETE FROM period_costs WHERE cost_date >= ? AND cost_date < ?",
		from.Format(dateOnly), to.Format(dateOnly),
	); err != nil {
		return fmt.Errorf("delete window: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO period_costs (cost_date, fee_group, fee_name, amount)
		VALUES (?,?,?,?)
		ON CONFLICT(cost_date, fee_group, fee_name) DO UPDATE SET
			amount = excluded.amount`,
	)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := range costs {
		c := &costs[i]
		if _, err := stmt.Exec(
			c.CostDate.Format(dateOnly), string(c.FeeGroup), c.FeeName,
			c.Amount.String(),
		); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListWindow returns the stored aggregates for [from, to), oldest first.
func (r *PeriodCostRepo) ListWindow(from, to time.Time) ([]domain.PeriodCost, error) {
	rows, err := r.db.Query(
		`SELECT cost_date, fee_group, fee_name, amount FROM period_costs
		WHERE cost_date >= ? AND cost_date < ?
		ORDER BY cost_date, fee_group, fee_name`,
		from.Format(dateOnly), to.Format(dateOnly),
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var costs []domain.PeriodCost
	for rows.Next() {
		var c domain.PeriodCost
		var group, raw string
		// The driver hands DATE columns back as time.Time.
		if err := rows.Scan(&c.CostDate, &group, &c.FeeName, &raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		c.FeeGroup = domain.FeeGroup(group)
		if c.Amount, err = decimal.NewFromString(raw); err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", raw, err)
		}
		costs = append(costs, c)
	}
	return costs, rows.Err()
}

// TotalsByGroup sums stored period costs per fee group over [from, to).
func (r *PeriodCostRepo) TotalsByGroup(from, to time.Time) (map[domain.FeeGroup]decimal.Decimal, error) {
	rows, err := r.db.Query(
		`SELECT fee_group, amount FROM period_costs
		WHERE cost_date >= ? AND cost_date < ?`,
		from.Format(dateOnly), to.Format(dateOnly),
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	totals := make(map[domain.FeeGroup]decimal.Decimal)
	for rows.Next() {
		var group, raw string
		if err := rows.Scan(&group, &raw); err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", raw, err)
		}
		g := domain.FeeGroup(group)
		totals[g] = totals[g].Add(amount)
	}
	return totals, rows.Err()
}
