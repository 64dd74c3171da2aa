package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marginlens/reconciler/internal/domain"
)

type OrderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) *OrderRepo {
	return &OrderRepo{db: db}
}

// Upsert inserts or updates the authored order fields. Derived aggregate
// columns are left untouched; they belong to the aggregation engine.
func (r *OrderRepo) Upsert(o *domain.Order) error {
	_, err := r.db.Exec(
		`INSERT INTO orders (order_id, customer_id, order_date, status, revenue)
		VALUES (?,?,?,?,?)
		ON CONFLICT(order_id) DO UPDATE SET
			customer_id = excluded.customer_id,
			order_date  = excluded.order_date,
			status      = excluded.status,
			revenue     = excluded.revenue`,
		o.OrderID, o.CustomerID, formatNullableTime(o.OrderDate), o.Status,
		o.Revenue.String(),
	)
	if err != nil {
		return fmt.Errorf("upsert order %s: %w", o.OrderID, err)
	}
	return nil
}

// Exists reports whether the canonical order id is known.
func (r *OrderRepo) Exists(orderID string) (bool, error) {
	var one int
	err := r.db.QueryRow("SELECT 1 FROM orders WHERE order_id = ? LIMIT 1", orderID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", orderID, err)
	}
	return true, nil
}

// PrefixMatch is one candidate from a prefix lookup.
type PrefixMatch struct {
	OrderID   string
	OrderDate *time.Time
}

// FindByPrefix returns all orders whose id starts with prefix + "-",
// newest first.
func (r *OrderRepo) FindByPrefix(prefix string) ([]PrefixMatch, error) {
	rows, err := r.db.Query(
		"SELECT order_id, order_date FROM orders WHERE order_id LIKE ? ORDER BY order_date DESC",
		prefix+"-%",
	)
	if err != nil {
		return nil, fmt.Errorf("prefix query %s: %w", prefix, err)
	}
	defer rows.Close()

	var matches []PrefixMatch
	for rows.Next() {
		var m PrefixMatch
		var date sql.NullString
		if err := rows.Scan(&m.OrderID, &date); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if date.Valid {
			if t, err := time.Parse(time.RFC3339, date.String); err == nil {
				m.OrderDate = &t
			}
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// GetRevenue returns the order's revenue, or nil if the order is unknown.
func (r *OrderRepo) GetRevenue(orderID string) (*decimal.Decimal, error) {
	var raw string
	err := r.db.QueryRow("SELECT revenue FROM orders WHERE order_id = ?", orderID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get revenue %s: %w", orderID, err)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("parse revenue %q: %w", raw, err)
	}
	return &d, nil
}

func (r *OrderRepo) GetByID(orderID string) (*domain.Order, error) {
	row := r.db.QueryRow(`SELECT `+orderColumns+` FROM orders WHERE order_id = ?`, orderID)
	o, err := scanOrder(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return o, nil
}

// AllOrderIDs returns every known canonical order id.
func (r *OrderRepo) AllOrderIDs() ([]string, error) {
	rows, err := r.db.Query("SELECT order_id FROM orders")
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

// UpdateAggregates overwrites the derived financial columns for one order.
func (r *OrderRepo) UpdateAggregates(o *domain.Order) error {
	_, err := r.db.Exec(
		`UPDATE orders SET
			sales_report = ?, fees_total = ?, delivery_fee = ?,
			acquiring_fee = ?, ads_fee = ?, sale_commission = ?,
			discount = ?, other_fee_real = ?, payout = ?, profit = ?
		WHERE order_id = ?`,
		o.SalesReport.String(), o.FeesTotal.String(), o.DeliveryFee.String(),
		o.AcquiringFee.String(), o.AdsFee.String(), o.SaleCommission.String(),
		o.Discount.String(), o.OtherFeeReal.String(), o.Payout.String(),
		o.Profit.String(), o.OrderID,
	)
	if err != nil {
		return fmt.Errorf("update aggregates %s: %w", o.OrderID, err)
	}
	return nil
}

// SetCampaign writes the campaign attribution columns for one order.
func (r *OrderRepo) SetCampaign(orderID, campaignID, campaignTitle string, spend decimal.Decimal) error {
	_, err := r.db.Exec(
		`UPDATE orders SET campaign_id = ?, campaign_title = ?, ads_attributed = ?
		WHERE order_id = ?`,
		campaignID, campaignTitle, spend.String(), orderID,
	)
	if err != nil {
		return fmt.Errorf("set campaign %s: %w", orderID, err)
	}
	return nil
}

// ReplaceItems swaps the product lines for one order in a single transaction.
func (r *OrderRepo) ReplaceItems(orderID string, items []domain.OrderItem) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM order_items WHERE order_id = ?", orderID); err != nil {
		return fmt.Errorf("delete items %s: %w", orderID, err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO order_items (order_id, sku, name, quantity, price, revenue)
		VALUES (?,?,?,?,?,?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := range items {
		it := &items[i]
		if _, err := stmt.Exec(
			it.OrderID, it.SKU, it.Name, it.Quantity,
			it.Price.String(), it.Revenue.String(),
		); err != nil {
			return fmt.Errorf("insert item %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type OrderFilter struct {
	Status string
	From   *time.Time
	To     *time.Time
	Page   int
	Limit  int
}

func (r *OrderRepo) List(f OrderFilter) ([]domain.Order, int, error) {
	where, args := buildOrderWhere(f)

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM orders"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := `SELECT ` + orderColumns + ` FROM orders` + where + ` ORDER BY order_date DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, offset)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, total, rows.Err()
}

func (r *OrderRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM orders").Scan(&count)
	return count, err
}

// --- helpers ---

const orderColumns = `order_id, customer_id, order_date, status, revenue,
	sales_report, fees_total, delivery_fee, acquiring_fee, ads_fee,
	sale_commission, discount, other_fee_real, payout, profit,
	campaign_id, campaign_title, ads_attributed`

func buildOrderWhere(f OrderFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.From != nil {
		clauses = append(clauses, "order_date >= ?")
		args = append(args, f.From.Format(time.RFC3339))
	}
	if f.To != nil {
		clauses = append(clauses, "order_date <= ?")
		args = append(args, f.To.Format(time.RFC3339))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanOrder(scan func(...any) error) (*domain.Order, error) {
	var o domain.Order
	var orderDate, campaignID, campaignTitle, customerID, status sql.NullString
	var revenue, salesReport, feesTotal, deliveryFee, acquiringFee,
		adsFee, saleCommission, discount, otherFeeReal, payout, profit,
		adsAttributed string

	err := scan(
		&o.OrderID, &customerID, &orderDate, &status, &revenue,
		&salesReport, &feesTotal, &deliveryFee, &acquiringFee, &adsFee,
		&saleCommission, &discount, &otherFeeReal, &payout, &profit,
		&campaignID, &campaignTitle, &adsAttributed,
	)
	if err != nil {
		return nil, err
	}

	o.CustomerID = customerID.String
	o.Status = status.String
	o.CampaignID = campaignID.String
	o.CampaignTitle = campaignTitle.String
	if orderDate.Valid {
		if t, err := time.Parse(time.RFC3339, orderDate.String); err == nil {
			o.OrderDate = &t
		}
	}

	fields := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{revenue, &o.Revenue}, {salesReport, &o.SalesReport},
		{feesTotal, &o.FeesTotal}, {deliveryFee, &o.DeliveryFee},
		{acquiringFee, &o.AcquiringFee}, {adsFee, &o.AdsFee},
		{saleCommission, &o.SaleCommission}, {discount, &o.Discount},
		{otherFeeReal, &o.OtherFeeReal}, {payout, &o.Payout},
		{profit, &o.Profit}, {adsAttributed, &o.AdsAttributed},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, fmt.Errorf("parse decimal %q: %w", f.raw, err)
		}
		*f.dst = d
	}

	return &o, nil
}

// formatNullableTime normalizes to UTC before formatting: window deletes
// compare these strings lexicographically against UTC bounds, so a stored
// offset would let a row escape its window.
func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
