package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/calweaver/whalebot/internal/domain"
)

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market metadata, tag, and sports lookups.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
// limiter paces outbound requests; pass nil to disable pacing.
func NewGammaClient(baseURL string, limiter *rate.Limiter) *GammaClient {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: limiter,
	}
}

// SetTimeout overrides the default per-request timeout. Non-positive values
// are ignored.
func (g *GammaClient) SetTimeout(t time.Duration) {
	if t > 0 {
		g.httpClient.Timeout = t
	}
}

// MarketByCondition returns metadata for the open market identified by the
// given condition id. Returns domain.ErrNotFound when no open market carries
// that condition.
func (g *GammaClient) MarketByCondition(ctx context.Context, conditionID string) (domain.MarketMetadata, error) {
	params := url.Values{}
	params.Set("condition_ids", conditionID)
	params.Set("include_tag", "true")
	params.Set("closed", "false")
	params.Set("limit", "1")

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return domain.MarketMetadata{}, fmt.Errorf("polymarket/gamma: get market %s: %w", conditionID, err)
	}

	var apiMarkets []APIMarket
	if err := json.Unmarshal(body, &apiMarkets); err != nil {
		return domain.MarketMetadata{}, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	if len(apiMarkets) == 0 {
		return domain.MarketMetadata{}, fmt.Errorf("polymarket/gamma: %w: condition=%s", domain.ErrNotFound, conditionID)
	}

	meta := apiMarkets[0].ToDomainMetadata()
	if meta.ConditionID == "" {
		meta.ConditionID = conditionID
	}
	return meta, nil
}

// MarketsByConditions returns metadata for every condition id the API
// resolves in one query, keyed by condition id. Conditions missing from the
// response are simply absent from the result; only transport and decode
// failures return an error, so callers can fall back to per-item lookups for
// the unresolved remainder.
func (g *GammaClient) MarketsByConditions(ctx context.Context, conditionIDs []string) (map[string]domain.MarketMetadata, error) {
	if len(conditionIDs) == 0 {
		return map[string]domain.MarketMetadata{}, nil
	}

	params := url.Values{}
	for _, id := range conditionIDs {
		params.Add("condition_ids", id)
	}
	params.Set("include_tag", "true")
	params.Set("closed", "false")
	params.Set("limit", strconv.Itoa(len(conditionIDs)))

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get markets batch: %w", err)
	}

	var apiMarkets []APIMarket
	if err := json.Unmarshal(body, &apiMarkets); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}

	out := make(map[string]domain.MarketMetadata, len(apiMarkets))
	for i := range apiMarkets {
		meta := apiMarkets[i].ToDomainMetadata()
		if meta.ConditionID == "" {
			continue
		}
		out[meta.ConditionID] = meta
	}
	return out, nil
}

// SportsTagIDs returns the set of tag ids associated with any sport.
func (g *GammaClient) SportsTagIDs(ctx context.Context) (map[string]bool, error) {
	body, err := g.doGet(ctx, "/sports")
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get sports: %w", err)
	}

	var sports []APISport
	if err := json.Unmarshal(body, &sports); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode sports: %w", err)
	}

	ids := make(map[string]bool)
	for i := range sports {
		for _, id := range sports[i].TagIDs() {
			ids[id] = true
		}
	}
	return ids, nil
}

// AllTags returns the full tag dictionary, paging through the tags endpoint
// until a short page signals the end.
func (g *GammaClient) AllTags(ctx context.Context) ([]domain.Tag, error) {
	const pageSize = 500

	var tags []domain.Tag
	for offset := 0; ; offset += pageSize {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(pageSize))
		params.Set("offset", strconv.Itoa(offset))

		body, err := g.doGet(ctx, "/tags?"+params.Encode())
		if err != nil {
			return nil, fmt.Errorf("polymarket/gamma: get tags offset=%d: %w", offset, err)
		}

		var page []APITag
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("polymarket/gamma: decode tags: %w", err)
		}

		for i := range page {
			tag := page[i].ToDomainTag()
			if tag.ID == "" {
				continue
			}
			tags = append(tags, tag)
		}

		if len(page) < pageSize {
			return tags, nil
		}
	}
}

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
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
