package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/marginlens/reconciler/internal/config"
)

// SellerClient talks to the seller API: FBO postings with embedded financial
// data, and the paginated finance transaction feed.
type SellerClient struct {
	baseURL  string
	clientID string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
	log      zerolog.Logger
}

func NewSellerClient(cfg *config.Config, log zerolog.Logger) *SellerClient {
	return &SellerClient{
		baseURL:  cfg.SellerBaseURL,
		clientID: cfg.SellerClientID,
		apiKey:   cfg.SellerAPIKey,
		http:     &http.Client{Timeout: 90 * time.Second},
		// The seller API throttles aggressively; 2 rps keeps us clear.
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		log:     log,
	}
}

func (c *SellerClient) headers() map[string]string {
	return map[string]string{
		"Client-Id": c.clientID,
		"Api-Key":   c.apiKey,
	}
}

func (c *SellerClient) post(ctx context.Context, path string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return postJSON(ctx, c.http, c.log, c.baseURL+path, c.headers(), payload, out)
}

// Posting is one FBO shipment as the seller API returns it.
type Posting struct {
	PostingNumber string           `json:"posting_number"`
	Status        string           `json:"status"`
	InProcessAt   string           `json:"in_process_at"`
	Products      []PostingProduct `json:"products"`
	FinancialData *FinancialData   `json:"financial_data"`
}

type PostingProduct struct {
	SKU      int64       `json:"sku"`
	Name     string      `json:"name"`
	Quantity int         `json:"quantity"`
	Price    json.Number `json:"price"`
}

type FinancialData struct {
	Products []FinancialProduct `json:"products"`
}

type FinancialProduct struct {
	ProductID            int64       `json:"product_id"`
	CommissionAmount     json.Number `json:"commission_amount"`
	CommissionPercent    json.Number `json:"commission_percent"`
	Payout               json.Number `json:"payout"`
	TotalDiscountValue   json.Number `json:"total_discount_value"`
	TotalDiscountPercent json.Number `json:"total_discount_percent"`
}

type postingListRequest struct {
	Dir    string            `json:"dir"`
	Filter postingListFilter `json:"filter"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
	With   postingListWith   `json:"with"`
}

type postingListFilter struct {
	Since string `json:"since"`
	To    string `json:"to"`
}

type postingListWith struct {
	FinancialData bool `json:"financial_data"`
}

type postingListResponse struct {
	Result []Posting `json:"result"`
}

// GetPostingsFBO fetches all FBO postings in [from, to], paginating until a
// short page.
func (c *SellerClient) GetPostingsFBO(ctx context.Context, from, to time.Time) ([]Posting, error) {
	const pageSize = 100

	var all []Posting
	for offset := 0; ; offset += pageSize {
		req := postingListRequest{
			Dir: "ASC",
			Filter: postingListFilter{
				Since: iso(from),
				To:    iso(to),
			},
			Limit:  pageSize,
			Offset: offset,
			With:   postingListWith{FinancialData: true},
		}

		var resp postingListResponse
		if err := c.post(ctx, "/v2/posting/fbo/list", req, &resp); err != nil {
			return nil, fmt.Errorf("posting list offset %d: %w", offset, err)
		}

		all = append(all, resp.Result...)
		if len(resp.Result) < pageSize {
			break
		}
	}
	return all, nil
}

// Transaction is one operation from the finance transaction feed.
type Transaction struct {
	OperationID       int64                `json:"operation_id"`
	OperationType     string               `json:"operation_type"`
	OperationTypeName string               `json:"operation_type_name"`
	OperationDate     string               `json:"operation_date"`
	Amount            json.Number          `json:"amount"`
	Posting           TransactionPosting   `json:"posting"`
	Services          []TransactionService `json:"services"`
}

type TransactionPosting struct {
	PostingNumber string `json:"posting_number"`
}

type TransactionService struct {
	Name  string      `json:"name"`
	Price json.Number `json:"price"`
	SKU   int64       `json:"sku"`
}

type transactionListRequest struct {
	Filter   transactionListFilter `json:"filter"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
}

type transactionListFilter struct {
	Date transactionDateRange `json:"date"`
}

type transactionDateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type transactionListResponse struct {
	Result struct {
		Operations []Transaction `json:"operations"`
	} `json:"result"`
}

// ListTransactions fetches one page of the finance transaction feed.
func (c *SellerClient) ListTransactions(ctx context.Context, from, to time.Time, page, pageSize int) ([]Transaction, error) {
	req := transactionListRequest{
		Filter: transactionListFilter{
			Date: transactionDateRange{From: iso(from), To: iso(to)},
		},
		Page:     page,
		PageSize: pageSize,
	}

	var resp transactionListResponse
	if err := c.post(ctx, "/v3/finance/transaction/list", req, &resp); err != nil {
		return nil, fmt.Errorf("transaction list page %d: %w", page, err)
	}
	return resp.Result.Operations, nil
}

func iso(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
