package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeGroup is the closed cost taxonomy every ledger line is bucketed into.
type FeeGroup string

const (
	GroupCommission  FeeGroup = "commission"
	GroupDelivery    FeeGroup = "delivery"
	GroupAcquiring   FeeGroup = "acquiring"
	GroupAdvertising FeeGroup = "advertising"
	GroupSales       FeeGroup = "sales"
	GroupDiscount    FeeGroup = "discount"
	GroupOther       FeeGroup = "other"
)

// Source identifies which upstream feed produced a fee item.
type Source string

const (
	SourcePostingFinancial Source = "posting_financial"
	SourceFinanceAPI       Source = "finance_api"
	SourceAdsAttribution   Source = "ads_attribution"
)

// FeeItem is one normalized charge or credit line in the ledger.
// Negative amounts are deductions from the seller, positive are credits.
type FeeItem struct {
	ID            int64           `json:"id"`
	OrderID       string          `json:"order_id,omitempty"`
	ExtOrderID    string          `json:"ext_order_id,omitempty"`
	FeeGroup      FeeGroup        `json:"fee_group"`
	FeeName       string          `json:"fee_name"`
	Amount        decimal.Decimal `json:"amount"`
	Percent       *decimal.Decimal `json:"percent,omitempty"`
	ProductID     int64           `json:"product_id,omitempty"`
	SKU           int64           `json:"sku,omitempty"`
	Source        Source          `json:"source"`
	OccurredAt    *time.Time      `json:"occurred_at,omitempty"`
	OperationType string          `json:"operation_type,omitempty"`

	// UID is the deterministic dedup key for finance_api items
	// (operation id + line index). Empty for other sources.
	UID string `json:"uid,omitempty"`
}

// Resolved reports whether the item is bound to a canonical order.
func (f *FeeItem) Resolved() bool {
	return f.OrderID != ""
}
