// Package market proxies commodity price insights from the AgMarknet API.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"krishimitra/config"
)

// ErrMissingParam is returned when a required query parameter is blank.
var ErrMissingParam = errors.New("missing query parameter")

// maxBody caps how much of an upstream response is read.
const maxBody = 4 << 20

// UpstreamError carries a non-200 upstream status so it can be passed
// through to the caller.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("failed to fetch market data: %s", e.Body)
}

// Query selects one commodity in one market.
type Query struct {
	Commodity string
	State     string
	Market    string
}

// Normalize trims surrounding whitespace. Casing is left as sent: AgMarknet
// matches names such as "NCT of Delhi" exactly.
func (q Query) Normalize() Query {
	return Query{
		Commodity: strings.TrimSpace(q.Commodity),
		State:     strings.TrimSpace(q.State),
		Market:    strings.TrimSpace(q.Market),
	}
}

var fold = cases.Fold()

// logKey is a case-folded form of q for grouping log lines only.
func (q Query) logKey() string {
	return fold.String(q.Commodity + "|" + q.State + "|" + q.Market)
}

// Validate reports the first blank field.
func (q Query) Validate() error {
	switch {
	case q.Commodity == "":
		return fmt.Errorf("%w: commodity", ErrMissingParam)
	case q.State == "":
		return fmt.Errorf("%w: state", ErrMissingParam)
	case q.Market == "":
		return fmt.Errorf("%w: market", ErrMissingParam)
	}
	return nil
}

// Client fetches insights from the upstream API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(cfg config.MarketConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.Named("market"),
	}
}

// Insights returns the upstream JSON body unchanged.
func (c *Client) Insights(ctx context.Context, q Query) (json.RawMessage, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("commodity", q.Commodity)
	params.Set("state", q.State)
	params.Set("market", q.Market)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch market data: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("upstream rejected market query",
			zap.Int("status", resp.StatusCode),
			zap.String("query", q.logKey()))
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}
	if !json.Valid(body) {
		return nil, errors.New("market upstream returned invalid JSON")
	}
	return json.RawMessage(body), nil
}
