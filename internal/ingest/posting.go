// Package ingest holds the three source adapters that feed the fee ledger:
// posting-embedded financials, the finance transaction feed, and the
// asynchronous ad-spend attribution report. Each adapter owns one replace
// scope and never touches rows outside it.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/marginlens/reconciler/internal/domain"
	"github.com/marginlens/reconciler/internal/repository"
	"github.com/marginlens/reconciler/internal/upstream"
)

// PostingSource fetches FBO postings with embedded financial data.
type PostingSource interface {
	GetPostingsFBO(ctx context.Context, from, to time.Time) ([]upstream.Posting, error)
}

// PostingAdapter ingests per-order embedded financial payloads.
// Replace scope: (order_id, source=posting_financial).
type PostingAdapter struct {
	source PostingSource
	orders *repository.OrderRepo
	fees   *repository.FeeItemRepo
	log    zerolog.Logger
}

func NewPostingAdapter(source PostingSource, orders *repository.OrderRepo,
	fees *repository.FeeItemRepo, log zerolog.Logger) *PostingAdapter {
	return &PostingAdapter{source: source, orders: orders, fees: fees, log: log}
}

// PostingResult summarises one posting-ingestion run.
type PostingResult struct {
	Postings int `json:"postings"`
	Skipped  int `json:"skipped"`
	FeeItems int `json:"fee_items"`
}

// IngestWindow pulls all postings in [from, to] and upserts each one.
func (a *PostingAdapter) IngestWindow(ctx context.Context, from, to time.Time) (*PostingResult, error) {
	postings, err := a.source.GetPostingsFBO(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch postings: %w", err)
	}

	res := &PostingResult{}
	for i := range postings {
		n, err := a.IngestPosting(&postings[i])
		if err != nil {
			return res, fmt.Errorf("posting %s: %w", postings[i].PostingNumber, err)
		}
		if n < 0 {
			res.Skipped++
			continue
		}
		res.Postings++
		res.FeeItems += n
	}

	a.log.Info().Int("postings", res.Postings).Int("skipped", res.Skipped).
		Int("fee_items", res.FeeItems).Msg("posting ingestion done")
	return res, nil
}

// IngestPosting upserts one order from its posting and swaps its
// posting-derived ledger rows. Returns the number of fee items written, or
// -1 if the posting was skipped.
func (a *PostingAdapter) IngestPosting(p *upstream.Posting) (int, error) {
	if p.PostingNumber == "" {
		a.log.Warn().Msg("skipping posting without posting_number")
		return -1, nil
	}

	order := domain.Order{
		OrderID:    p.PostingNumber,
		CustomerID: customerIDFromPosting(p.PostingNumber),
		Status:     p.Status,
		Revenue:    postingRevenue(p),
	}
	if t, err := time.Parse(time.RFC3339, p.InProcessAt); err == nil {
		order.OrderDate = &t
	}

	if err := a.orders.Upsert(&order); err != nil {
		return 0, err
	}

	items := orderItemsFromPosting(p)
	if err := a.orders.ReplaceItems(p.PostingNumber, items); err != nil {
		return 0, err
	}

	feeItems := FeeItemsFromPosting(p)
	if err := a.fees.ReplaceForOrder(p.PostingNumber, domain.SourcePostingFinancial, feeItems); err != nil {
		return 0, err
	}
	return len(feeItems), nil
}

// FeeItemsFromPosting extracts the commission and discount lines embedded in
// a posting's financial payload. One commission item per product line when
// the commission is non-zero, and one sign-flipped discount item when a
// discount is present (a positive discount reduces seller proceeds).
func FeeItemsFromPosting(p *upstream.Posting) []domain.FeeItem {
	if p.FinancialData == nil {
		return nil
	}

	var items []domain.FeeItem
	for _, fp := range p.FinancialData.Products {
		commission := parseAmount(fp.CommissionAmount.String())
		if !commission.IsZero() {
			item := domain.FeeItem{
				OrderID:   p.PostingNumber,
				FeeGroup:  domain.GroupCommission,
				FeeName:   "Sale commission",
				Amount:    commission, // upstream already signs deductions
				ProductID: fp.ProductID,
				Source:    domain.SourcePostingFinancial,
			}
			if pct := parseAmount(fp.CommissionPercent.String()); !pct.IsZero() {
				item.Percent = &pct
			}
			items = append(items, item)
		}

		discount := parseAmount(fp.TotalDiscountValue.String())
		if !discount.IsZero() {
			item := domain.FeeItem{
				OrderID:   p.PostingNumber,
				FeeGroup:  domain.GroupDiscount,
				FeeName:   "Discount",
				Amount:    discount.Neg(),
				ProductID: fp.ProductID,
				Source:    domain.SourcePostingFinancial,
			}
			if pct := parseAmount(fp.TotalDiscountPercent.String()); !pct.IsZero() {
				item.Percent = &pct
			}
			items = append(items, item)
		}
	}
	return items
}

func postingRevenue(p *upstream.Posting) decimal.Decimal {
	total := decimal.Zero
	for _, prod := range p.Products {
		price := parseAmount(prod.Price.String())
		total = total.Add(price.Mul(decimal.NewFromInt(int64(prod.Quantity))))
	}
	return total
}

func orderItemsFromPosting(p *upstream.Posting) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(p.Products))
	for _, prod := range p.Products {
		price := parseAmount(prod.Price.String())
		items = append(items, domain.OrderItem{
			OrderID:  p.PostingNumber,
			SKU:      prod.SKU,
			Name:     prod.Name,
			Quantity: prod.Quantity,
			Price:    price,
			Revenue:  price.Mul(decimal.NewFromInt(int64(prod.Quantity))),
		})
	}
	return items
}

// customerIDFromPosting derives the customer key from a posting number:
// the segment before the first dash.
func customerIDFromPosting(postingNumber string) string {
	if i := strings.Index(postingNumber, "-"); i > 0 {
		return postingNumber[:i]
	}
	return postingNumber
}
