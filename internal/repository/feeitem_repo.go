package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marginlens/reconciler/internal/domain"
)

// FeeItemRepo is the only write path into the fee ledger. Adapters replace
// whole scopes; nothing updates individual rows in place.
type FeeItemRepo struct {
	db *sql.DB
}

func NewFeeItemRepo(db *sql.DB) *FeeItemRepo {
	return &FeeItemRepo{db: db}
}

const feeItemInsert = `INSERT OR IGNORE INTO order_fee_items
	(order_id, ext_order_id, fee_group, fee_name, amount, percent,
	 product_id, sku, source, occurred_at, operation_type, uid)
	VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`

// ReplaceForOrder atomically swaps the posting-derived items of one order.
// Items from other sources or orders are untouched.
func (r *FeeItemRepo) ReplaceForOrder(orderID string, source domain.Source, items []domain.FeeItem) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"DELETE FROM order_fee_items WHERE order_id = ? AND source = ?",
		orderID, string(source),
	); err != nil {
		return fmt.Errorf("delete scope %s/%s: %w", orderID, source, err)
	}

	if _, err := insertItems(tx, items); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ReplaceFinanceWindow atomically swaps all finance_api items whose event
// time falls inside [from, to]. The uid unique index deduplicates reinserted
// rows as a backstop, so overlapping windows cannot double-book a line.
func (r *FeeItemRepo) ReplaceFinanceWindow(from, to time.Time, items []domain.FeeItem) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM order_fee_items
		WHERE source = ? AND occurred_at >= ? AND occurred_at <= ?`,
		string(domain.SourceFinanceAPI),
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339),
	); err != nil {
		return 0, fmt.Errorf("delete window: %w", err)
	}

	inserted, err := insertItems(tx, items)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func insertItems(tx *sql.Tx, items []domain.FeeItem) (int, error) {
	stmt, err := tx.Prepare(feeItemInsert)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range items {
		it := &items[i]

		var percent any
		if it.Percent != nil {
			percent = it.Percent.String()
		}
		var productID, sku any
		if it.ProductID != 0 {
			productID = it.ProductID
		}
		if it.SKU != 0 {
			sku = it.SKU
		}
		var uid any
		if it.UID != "" {
			uid = it.UID
		}

		res, err := stmt.Exec(
			nullableString(it.OrderID), nullableString(it.ExtOrderID),
			string(it.FeeGroup), it.FeeName, it.Amount.String(), percent,
			productID, sku, string(it.Source), formatNullableTime(it.OccurredAt),
			nullableString(it.OperationType), uid,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert row %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}
	return inserted, nil
}

// GroupSum is the exact sum of one (fee_group, source) slice of an order's
// ledger rows. Amounts are summed in Go to keep full decimal precision.
type GroupSum struct {
	FeeGroup domain.FeeGroup
	Source   domain.Source
	Amount   decimal.Decimal
}

// GroupSums returns per-(group, source) totals for one order.
func (r *FeeItemRepo) GroupSums(orderID string) ([]GroupSum, error) {
	rows, err := r.db.Query(
		"SELECT fee_group, source, amount FROM order_fee_items WHERE order_id = ?",
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("query sums %s: %w", orderID, err)
	}
	defer rows.Close()

	type key struct {
		group  domain.FeeGroup
		source domain.Source
	}
	totals := make(map[key]decimal.Decimal)
	var order []key

	for rows.Next() {
		var group, source, raw string
		if err := rows.Scan(&group, &source, &raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", raw, err)
		}
		k := key{domain.FeeGroup(group), domain.Source(source)}
		if _, ok := totals[k]; !ok {
			order = append(order, k)
		}
		totals[k] = totals[k].Add(amount)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sums := make([]GroupSum, 0, len(order))
	for _, k := range order {
		sums = append(sums, GroupSum{FeeGroup: k.group, Source: k.source, Amount: totals[k]})
	}
	return sums, nil
}

// ListByOrder returns all ledger rows for one order, oldest first.
func (r *FeeItemRepo) ListByOrder(orderID string) ([]domain.FeeItem, error) {
	rows, err := r.db.Query(
		`SELECT id, order_id, ext_order_id, fee_group, fee_name, amount,
			percent, product_id, sku, source, occurred_at, operation_type, uid
		FROM order_fee_items WHERE order_id = ? ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanFeeItems(rows)
}

// ListUnresolved returns rows that still carry only a raw reference,
// eligible for re-resolution once the canonical order appears.
func (r *FeeItemRepo) ListUnresolved() ([]domain.FeeItem, error) {
	rows, err := r.db.Query(
		`SELECT id, order_id, ext_order_id, fee_group, fee_name, amount,
			percent, product_id, sku, source, occurred_at, operation_type, uid
		FROM order_fee_items
		WHERE order_id IS NULL AND ext_order_id IS NOT NULL ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanFeeItems(rows)
}

// BindOrder attaches a canonical order id to a previously unresolved row.
func (r *FeeItemRepo) BindOrder(id int64, orderID string) error {
	_, err := r.db.Exec("UPDATE order_fee_items SET order_id = ? WHERE id = ?", orderID, id)
	if err != nil {
		return fmt.Errorf("bind order %d: %w", id, err)
	}
	return nil
}

// OrderIDsWithItems returns the distinct set of orders that have ledger rows.
func (r *FeeItemRepo) OrderIDsWithItems() ([]string, error) {
	rows, err := r.db.Query(
		"SELECT DISTINCT order_id FROM order_fee_items WHERE order_id IS NOT NULL",
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UnattributedDailySum is one (day, group, name) total over finance rows
// that never resolved to an order.
type UnattributedDailySum struct {
	CostDate time.Time
	FeeGroup domain.FeeGroup
	FeeName  string
	Amount   decimal.Decimal
}

// SumUnattributedByDay aggregates unresolved finance_api rows per day,
// group and name over [from, to).
func (r *FeeItemRepo) SumUnattributedByDay(from, to time.Time) ([]UnattributedDailySum, error) {
	rows, err := r.db.Query(
		`SELECT DATE(occurred_at), fee_group, fee_name, amount
		FROM order_fee_items
		WHERE source = ? AND order_id IS NULL AND occurred_at IS NOT NULL
		  AND occurred_at >= ? AND occurred_at < ?
		ORDER BY DATE(occurred_at), fee_group, fee_name`,
		string(domain.SourceFinanceAPI),
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	type key struct {
		day, group, name string
	}
	totals := make(map[key]decimal.Decimal)
	var order []key

	for rows.Next() {
		var day, group, name, raw string
		if err := rows.Scan(&day, &group, &name, &raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", raw, err)
		}
		k := key{day, group, name}
		if _, ok := totals[k]; !ok {
			order = append(order, k)
		}
		totals[k] = totals[k].Add(amount)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sums := make([]UnattributedDailySum, 0, len(order))
	for _, k := range order {
		day, err := time.Parse("2006-01-02", k.day)
		if err != nil {
			return nil, fmt.Errorf("parse day %q: %w", k.day, err)
		}
		sums = append(sums, UnattributedDailySum{
			CostDate: day,
			FeeGroup: domain.FeeGroup(k.group),
			FeeName:  k.name,
			Amount:   totals[k],
		})
	}
	return sums, nil
}

// CountBySource returns ledger row counts per source.
func (r *FeeItemRepo) CountBySource() (map[domain.Source]int, error) {
	rows, err := r.db.Query(
		"SELECT source, COUNT(*) FROM order_fee_items GROUP BY source",
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Source]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, err
		}
		counts[domain.Source(source)] = n
	}
	return counts, rows.Err()
}

// --- helpers ---

func scanFeeItems(rows *sql.Rows) ([]domain.FeeItem, error) {
	var items []domain.FeeItem
	for rows.Next() {
		var it domain.FeeItem
		var orderID, extOrderID, percent, occurredAt, opType, uid sql.NullString
		var productID, sku sql.NullInt64
		var group, source, amount string

		err := rows.Scan(
			&it.ID, &orderID, &extOrderID, &group, &it.FeeName, &amount,
			&percent, &productID, &sku, &source, &occurredAt, &opType, &uid,
		)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		it.OrderID = orderID.String
		it.ExtOrderID = extOrderID.String
		it.FeeGroup = domain.FeeGroup(group)
		it.Source = domain.Source(source)
		it.OperationType = opType.String
		it.UID = uid.String
		it.ProductID = productID.Int64
		it.SKU = sku.Int64

		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		it.Amount = d

		if percent.Valid {
			p, err := decimal.NewFromString(percent.String)
			if err != nil {
				return nil, fmt.Errorf("parse percent %q: %w", percent.String, err)
			}
			it.Percent = &p
		}
		if occurredAt.Valid {
			if t, err := time.Parse(time.RFC3339, occurredAt.String); err == nil {
				it.OccurredAt = &t
			}
		}

		items = append(items, it)
	}
	return items, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
