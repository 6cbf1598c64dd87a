// Package scoring is the HTTP client for the merchant scoring service,
// the external collaborator behind the recommend_product and
// recommend_pricing tools. The service hosts the ranking and pricing
// models; this client only moves JSON.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paydesk/paydesk/internal/tools"
)

// ErrBadStatus indicates a non-2xx response from the scoring service.
var ErrBadStatus = errors.New("scoring service error")

// maxErrorBodyBytes caps how much of an error response body is read for
// diagnostics.
const maxErrorBodyBytes = 2048

// Client calls the scoring service. It satisfies tools.ProductRanker and
// tools.PricePlanner.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient validates the base URL and builds a client with the given
// per-request timeout.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid scoring service URL %q", baseURL)
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

type productRequest struct {
	Channel     string  `json:"cp_cnp"`
	MISDivision string  `json:"mis_division"`
	MCC         int     `json:"mcc"`
	Postcode    int     `json:"postcode"`
	Revenue     float64 `json:"revenue"`
}

type productResponse struct {
	Products []string `json:"products"`
}

// RankProducts posts the applicant profile and returns the ranked product
// codes, most likely recommendation first.
func (c *Client) RankProducts(ctx context.Context, q tools.ProductQuery) ([]string, error) {
	req := productRequest{
		Channel:     string(q.Side),
		MISDivision: q.MISDivision,
		MCC:         q.MCC,
		Postcode:    q.Postcode,
		Revenue:     q.Revenue,
	}
	var resp productResponse
	if err := c.post(ctx, "/v1/product-recommendations", req, &resp); err != nil {
		return nil, err
	}
	return resp.Products, nil
}

type pricingRequest struct {
	ProductCode string  `json:"product_code"`
	MISDivision string  `json:"mis_division"`
	MCC         int     `json:"mcc"`
	Postcode    int     `json:"postcode"`
	Revenue     float64 `json:"revenue"`
}

type pricingResponse struct {
	Plan string `json:"plan"`
}

// RecommendPlan posts the chosen product and profile and returns the single
// recommended pricing plan identifier.
func (c *Client) RecommendPlan(ctx context.Context, q tools.PricingQuery) (string, error) {
	req := pricingRequest{
		ProductCode: q.ProductCode,
		MISDivision: q.MISDivision,
		MCC:         q.MCC,
		Postcode:    q.Postcode,
		Revenue:     q.Revenue,
	}
	var resp pricingResponse
	if err := c.post(ctx, "/v1/pricing-recommendations", req, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Plan) == "" {
		return "", fmt.Errorf("scoring service returned an empty plan")
	}
	return resp.Plan, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling scoring service: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("scoring service call", "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("%w: %s returned %d: %s", ErrBadStatus, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding scoring response: %w", err)
	}
	return nil
}
