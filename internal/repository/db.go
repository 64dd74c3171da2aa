package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	// Money columns are TEXT: sqlite REAL would round-trip through float64
	// and break exact decimal sums.
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			customer_id TEXT,
			order_date DATETIME,
			status TEXT,
			revenue TEXT NOT NULL DEFAULT '0',
			sales_report TEXT NOT NULL DEFAULT '0',
			fees_total TEXT NOT NULL DEFAULT '0',
			delivery_fee TEXT NOT NULL DEFAULT '0',
			acquiring_fee TEXT NOT NULL DEFAULT '0',
			ads_fee TEXT NOT NULL DEFAULT '0',
			sale_commission TEXT NOT NULL DEFAULT '0',
			discount TEXT NOT NULL DEFAULT '0',
			other_fee_real TEXT NOT NULL DEFAULT '0',
			payout TEXT NOT NULL DEFAULT '0',
			profit TEXT NOT NULL DEFAULT '0',
			campaign_id TEXT,
			campaign_title TEXT,
			ads_attributed TEXT NOT NULL DEFAULT '0'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_order_date ON orders(order_date)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id)`,

		`CREATE TABLE IF NOT EXISTS order_items (
			order_id TEXT NOT NULL,
			sku INTEGER,
			name TEXT,
			quantity INTEGER NOT NULL DEFAULT 0,
			price TEXT NOT NULL DEFAULT '0',
			revenue TEXT NOT NULL DEFAULT '0'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id)`,

		`CREATE TABLE IF NOT EXISTS order_fee_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT,
			ext_order_id TEXT,
			fee_group TEXT NOT NULL,
			fee_name TEXT NOT NULL,
			amount TEXT NOT NULL,
			percent TEXT,
			product_id INTEGER,
			sku INTEGER,
			source TEXT NOT NULL,
			occurred_at DATETIME,
			operation_type TEXT,
			uid TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fee_items_order ON order_fee_items(order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fee_items_source ON order_fee_items(source)`,
		`CREATE INDEX IF NOT EXISTS idx_fee_items_group ON order_fee_items(fee_group, fee_name)`,
		`CREATE INDEX IF NOT EXISTS idx_fee_items_occurred ON order_fee_items(occurred_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_fee_items_uid ON order_fee_items(uid) WHERE uid IS NOT NULL`,

		`CREATE TABLE IF NOT EXISTS ad_attribution (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			campaign_id TEXT NOT NULL,
			campaign_title TEXT,
			order_id TEXT,
			ext_order_id TEXT,
			sku INTEGER,
			product_name TEXT,
			stat_date DATE NOT NULL,
			spent TEXT NOT NULL DEFAULT '0',
			qty INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ad_attribution_order ON ad_attribution(order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ad_attribution_date ON ad_attribution(stat_date)`,
		`CREATE INDEX IF NOT EXISTS idx_ad_attribution_campaign ON ad_attribution(campaign_id, stat_date)`,

		`CREATE TABLE IF NOT EXISTS period_costs (
			cost_date DATE NOT NULL,
			fee_group TEXT NOT NULL,
			fee_name TEXT NOT NULL,
			amount TEXT NOT NULL DEFAULT '0',
			PRIMARY KEY (cost_date, fee_group, fee_name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_period_costs_date ON period_costs(cost_date)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}
