package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/marginlens/reconciler/internal/config"
	"github.com/marginlens/reconciler/internal/domain"
)

const tokenCacheKey = "bearer"

// PerfClient talks to the performance (advertising) API. Report retrieval is
// asynchronous: submit, poll for completion, then fetch the rows.
type PerfClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	http         *http.Client
	tokens       *gocache.Cache
	pollInterval time.Duration
	log          zerolog.Logger
}

func NewPerfClient(cfg *config.Config, log zerolog.Logger) *PerfClient {
	return &PerfClient{
		baseURL:      cfg.PerfBaseURL,
		clientID:     cfg.PerfClientID,
		clientSecret: cfg.PerfClientSecret,
		http:         &http.Client{Timeout: 90 * time.Second},
		tokens:       gocache.New(25*time.Minute, 10*time.Minute),
		pollInterval: 1500 * time.Millisecond,
		log:          log,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *PerfClient) token(ctx context.Context) (string, error) {
	if tok, ok := c.tokens.Get(tokenCacheKey); ok {
		return tok.(string), nil
	}

	payload := map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"grant_type":    "client_credentials",
	}

	var resp tokenResponse
	if err := postJSON(ctx, c.http, c.log, c.baseURL+"/api/client/token", nil, payload, &resp); err != nil {
		return "", fmt.Errorf("acquire token: %w", err)
	}
	if resp.AccessToken == "" {
		return "", &domain.FatalUpstreamError{StatusCode: 200, Body: "empty access token"}
	}

	ttl := time.Duration(resp.ExpiresIn)*time.Second - time.Minute
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c.tokens.Set(tokenCacheKey, resp.AccessToken, ttl)
	return resp.AccessToken, nil
}

func (c *PerfClient) authHeaders(ctx context.Context) (map[string]string, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + tok}, nil
}

type generateResponse struct {
	UUID string `json:"UUID"`
}

// GenerateOrdersReport submits an order-attribution report request and
// returns the report UUID.
func (c *PerfClient) GenerateOrdersReport(ctx context.Context, from, to time.Time) (string, error) {
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return "", err
	}

	payload := map[string]string{
		"from": from.UTC().Format("2006-01-02") + "T00:00:00Z",
		"to":   to.UTC().Format("2006-01-02") + "T23:59:59Z",
	}

	var resp generateResponse
	err = postJSON(ctx, c.http, c.log,
		c.baseURL+"/api/client/statistic/orders/generate/json", headers, payload, &resp)
	if err != nil {
		return "", fmt.Errorf("generate report: %w", err)
	}
	if resp.UUID == "" {
		return "", &domain.FatalUpstreamError{StatusCode: 200, Body: "report UUID missing"}
	}
	return resp.UUID, nil
}

type reportStatus struct {
	State string `json:"state"`
}

// WaitReport polls the report status until it completes or the wall-clock
// timeout elapses. Timeout is terminal for the window, not retried.
func (c *PerfClient) WaitReport(ctx context.Context, uuid string, timeout time.Duration) error {
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	for {
		var st reportStatus
		err := getJSON(ctx, c.http, c.baseURL+"/api/client/statistics/"+uuid, headers, &st)
		if err != nil && !domain.IsTransient(err) {
			return fmt.Errorf("report status %s: %w", uuid, err)
		}

		switch st.State {
		case "OK":
			return nil
		case "ERROR", "FAILED":
			return &domain.FatalUpstreamError{
				StatusCode: 200,
				Body:       fmt.Sprintf("report %s failed with state %s", uuid, st.State),
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("report %s (last state %q): %w", uuid, st.State, domain.ErrReportTimeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// ReportRow is one row of the completed attribution report.
type ReportRow struct {
	CampaignID    json.Number `json:"campaignId"`
	CampaignTitle string      `json:"campaignTitle"`
	OrderNumber   string      `json:"orderNumber"`
	SKU           int64       `json:"sku"`
	Name          string      `json:"name"`
	Date          string      `json:"date"`
	MoneySpent    string      `json:"moneySpent"`
	Quantity      int         `json:"quantity"`
}

type reportResponse struct {
	Rows []ReportRow `json:"rows"`
}

// FetchReportRows downloads the completed report.
func (c *PerfClient) FetchReportRows(ctx context.Context, uuid string) ([]ReportRow, error) {
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	var resp reportResponse
	err = getJSON(ctx, c.http, c.baseURL+"/api/client/statistics/report?UUID="+uuid, headers, &resp)
	if err != nil {
		return nil, fmt.Errorf("fetch report %s: %w", uuid, err)
	}
	return resp.Rows, nil
}
