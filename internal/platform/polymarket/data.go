package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/calweaver/whalebot/internal/domain"
)

// DataClient is the REST client for the Polymarket Data API, which serves
// recent on-chain trade activity. The endpoint has no reliable "since
// timestamp" filter, so callers always request the newest window and rely on
// the deduplication layer for incrementality.
type DataClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewDataClient creates a new Data API client.
//
// baseURL is the Data API root, e.g. "https://data-api.polymarket.com".
// limiter paces outbound requests; pass nil to disable pacing.
func NewDataClient(baseURL string, limiter *rate.Limiter) *DataClient {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &DataClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: limiter,
	}
}

// SetTimeout overrides the default per-request timeout. Non-positive values
// are ignored.
func (d *DataClient) SetTimeout(t time.Duration) {
	if t > 0 {
		d.httpClient.Timeout = t
	}
}

// RecentTrades returns the most recent taker fills, newest first.
//
// limit bounds the fetch window. minNotional, when positive, asks the API to
// drop fills below that cash value before returning. Entries that fail
// validation in ToDomainFill are discarded.
func (d *DataClient) RecentTrades(ctx context.Context, limit int, minNotional float64) ([]domain.Fill, error) {
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{}
	params.Set("takerOnly", "true")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("filterType", "CASH")
	if minNotional > 0 {
		params.Set("filterAmount", strconv.FormatFloat(minNotional, 'f', -1, 64))
	}

	body, err := d.doGet(ctx, "/trades?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: get trades: %w", err)
	}

	var apiTrades []APITrade
	if err := json.Unmarshal(body, &apiTrades); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode trades: %w", err)
	}

	fills := make([]domain.Fill, 0, len(apiTrades))
	for i := range apiTrades {
		fill, err := apiTrades[i].ToDomainFill()
		if err != nil {
			continue
		}
		fills = append(fills, fill)
	}

	sort.SliceStable(fills, func(i, j int) bool {
		return fills[i].Timestamp > fills[j].Timestamp
	})

	return fills, nil
}

// doGet sends an unauthenticated GET request to the Data API.
func (d *DataClient) doGet(ctx context.Context, path string) ([]byte, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
