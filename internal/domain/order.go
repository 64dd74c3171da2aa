package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is one marketplace posting. The aggregate fields below Revenue are
// derived: they are recomputed from the fee ledger and carry no independent
// state.
type Order struct {
	OrderID    string     `json:"order_id"`
	CustomerID string     `json:"customer_id,omitempty"`
	OrderDate  *time.Time `json:"order_date,omitempty"`
	Status     string     `json:"status,omitempty"`

	Revenue decimal.Decimal `json:"revenue"`

	SalesReport    decimal.Decimal `json:"sales_report"`
	FeesTotal      decimal.Decimal `json:"fees_total"`
	DeliveryFee    decimal.Decimal `json:"delivery_fee"`
	AcquiringFee   decimal.Decimal `json:"acquiring_fee"`
	AdsFee         decimal.Decimal `json:"ads_fee"`
	SaleCommission decimal.Decimal `json:"sale_commission"`
	Discount       decimal.Decimal `json:"discount"`
	OtherFeeReal   decimal.Decimal `json:"other_fee_real"`
	Payout         decimal.Decimal `json:"payout"`
	Profit         decimal.Decimal `json:"profit"`

	CampaignID    string          `json:"campaign_id,omitempty"`
	CampaignTitle string          `json:"campaign_title,omitempty"`
	AdsAttributed decimal.Decimal `json:"ads_attributed"`
}

// OrderItem is one product line within an order.
type OrderItem struct {
	OrderID  string          `json:"order_id"`
	SKU      int64           `json:"sku"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// AdAttribution is one row of the ad-spend attribution report: spend from a
// campaign attributed to an order on a stat date.
type AdAttribution struct {
	ID            int64           `json:"id"`
	CampaignID    string          `json:"campaign_id"`
	CampaignTitle string          `json:"campaign_title,omitempty"`
	OrderID       string          `json:"order_id,omitempty"`
	ExtOrderID    string          `json:"ext_order_id,omitempty"`
	SKU           int64           `json:"sku,omitempty"`
	ProductName   string          `json:"product_name,omitempty"`
	StatDate      time.Time       `json:"stat_date"`
	Spent         decimal.Decimal `json:"spent"`
	Quantity      int             `json:"quantity,omitempty"`
}

// PeriodCost is a daily aggregate of finance-feed charges that could not be
// attributed to any order.
type PeriodCost struct {
	CostDate time.Time       `json:"cost_date"`
	FeeGroup FeeGroup        `json:"fee_group"`
	FeeName  string          `json:"fee_name"`
	Amount   decimal.Decimal `json:"amount"`
}
