// Package registry provides the ClinicalTrials.gov API v2 client. It
// normalizes raw study records into Trial entities and consults a cache so
// repeated searches inside the TTL window never hit the upstream service.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/trialscout/trialscout/internal/config"
	"github.com/trialscout/trialscout/internal/domain"
	"github.com/trialscout/trialscout/internal/domain/trial"
	"github.com/trialscout/trialscout/internal/port/cache"
)

// recruitingStatus is the fixed recruitment filter applied to every search.
const recruitingStatus = "RECRUITING"

// Client talks to the ClinicalTrials.gov studies API.
type Client struct {
	baseURL    string
	userAgent  string
	pageSize   int
	maxRetries uint64
	ttl        time.Duration
	httpClient *http.Client
	store      cache.Cache
}

// NewClient creates a registry client backed by the given cache store.
func NewClient(cfg config.Registry, store cache.Cache, ttl time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		pageSize:   cfg.PageSize,
		maxRetries: uint64(max(cfg.MaxRetries, 0)),
		ttl:        ttl,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		store: store,
	}
}

// searchKey derives a deterministic cache key from the normalized query.
// Case and whitespace differences in the condition map to the same key.
// The dot separator keeps keys valid for every cache backend, including
// NATS KV which rejects colons.
func searchKey(condition string, maxResults int) string {
	norm := strings.Join(strings.Fields(strings.ToLower(condition)), " ")
	sum := sha256.Sum256([]byte("cond=" + norm + "&max=" + strconv.Itoa(maxResults) + "&status=" + recruitingStatus))
	return "search." + hex.EncodeToString(sum[:])
}

// trialKey is the cache key for a single trial fetched by NCT ID. It lives
// in a separate key space from search results.
func trialKey(nctID string) string {
	return "nct." + strings.ToUpper(strings.TrimSpace(nctID))
}

// Search returns up to maxResults recruiting trials for the condition, in
// the relevance order returned by the registry. Results are served from
// cache within the TTL window; a cache miss pages through the upstream
// search. Upstream failure surfaces as ErrRegistryUnavailable, never as a
// silent empty slice.
func (c *Client) Search(ctx context.Context, condition string, maxResults int) ([]trial.Trial, error) {
	key := searchKey(condition, maxResults)

	if trials, ok := c.cachedTrials(ctx, key); ok {
		slog.Debug("trial search served from cache", "condition", condition, "count", len(trials))
		return trials, nil
	}

	trials, err := c.fetchAllPages(ctx, condition, maxResults)
	if err != nil {
		return nil, fmt.Errorf("search trials %q: %w: %w", condition, domain.ErrRegistryUnavailable, err)
	}

	c.storeTrials(ctx, key, trials)
	slog.Info("trial search fetched from registry", "condition", condition, "count", len(trials))
	return trials, nil
}

// GetByID fetches a single trial by NCT identifier. It uses a dedicated
// single-entity cache entry, not the search key space.
func (c *Client) GetByID(ctx context.Context, nctID string) (trial.Trial, error) {
	key := trialKey(nctID)

	if data, ok, err := c.store.Get(ctx, key); err == nil && ok {
		var t trial.Trial
		if err := json.Unmarshal(data, &t); err == nil {
			return t, nil
		}
	} else if err != nil {
		slog.Warn("trial cache read failed", "key", key, "error", err)
	}

	body, status, err := c.get(ctx, c.baseURL+"/studies/"+url.PathEscape(strings.TrimSpace(nctID)), url.Values{"format": {"json"}})
	if err != nil {
		return trial.Trial{}, fmt.Errorf("fetch trial %s: %w: %w", nctID, domain.ErrRegistryUnavailable, err)
	}
	if status == http.StatusNotFound {
		return trial.Trial{}, fmt.Errorf("trial %s: %w", nctID, domain.ErrNotFound)
	}
	if status != http.StatusOK {
		return trial.Trial{}, fmt.Errorf("fetch trial %s: status %d: %w", nctID, status, domain.ErrRegistryUnavailable)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return trial.Trial{}, fmt.Errorf("fetch trial %s: decode: %w: %w", nctID, domain.ErrRegistryUnavailable, err)
	}
	if len(resp.Studies) == 0 {
		return trial.Trial{}, fmt.Errorf("trial %s: %w", nctID, domain.ErrNotFound)
	}

	t, err := normalizeStudy(resp.Studies[0])
	if err != nil {
		return trial.Trial{}, fmt.Errorf("fetch trial %s: %w: %w", nctID, domain.ErrRegistryUnavailable, err)
	}

	if data, err := json.Marshal(t); err == nil {
		if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
			slog.Warn("trial cache write failed", "key", key, "error", err)
		}
	}

	return t, nil
}

// cachedTrials returns the cached search payload if present and decodable.
// Cache errors degrade to a miss; the registry remains reachable.
func (c *Client) cachedTrials(ctx context.Context, key string) ([]trial.Trial, bool) {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		slog.Warn("trial cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var trials []trial.Trial
	if err := json.Unmarshal(data, &trials); err != nil {
		slog.Warn("trial cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	return trials, true
}

func (c *Client) storeTrials(ctx context.Context, key string, trials []trial.Trial) {
	data, err := json.Marshal(trials)
	if err != nil {
		slog.Warn("trial cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		slog.Warn("trial cache write failed", "key", key, "error", err)
	}
}

// fetchAllPages walks the paginated search until maxResults trials are
// collected or the registry runs out of pages. Upstream order is preserved.
func (c *Client) fetchAllPages(ctx context.Context, condition string, maxResults int) ([]trial.Trial, error) {
	trials := make([]trial.Trial, 0, maxResults)
	pageToken := ""

	for len(trials) < maxResults {
		params := url.Values{
			"format":               {"json"},
			"query.cond":           {strings.TrimSpace(condition)},
			"filter.overallStatus": {recruitingStatus},
			"pageSize":             {strconv.Itoa(min(c.pageSize, maxResults-len(trials)))},
		}
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		resp, err := c.searchPage(ctx, params)
		if err != nil {
			return nil, err
		}

		for _, raw := range resp.Studies {
			t, err := normalizeStudy(raw)
			if err != nil {
				slog.Warn("skipping unparseable study record", "error", err)
				continue
			}
			trials = append(trials, t)
			if len(trials) == maxResults {
				break
			}
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return trials, nil
}

// searchPage fetches one page, retrying transient failures with capped
// exponential backoff.
func (c *Client) searchPage(ctx context.Context, params url.Values) (*searchResponse, error) {
	var resp *searchResponse

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		body, status, err := c.get(ctx, c.baseURL+"/studies", params)
		if err != nil {
			return retry.RetryableError(err)
		}
		if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
			return retry.RetryableError(fmt.Errorf("registry status %d", status))
		}
		if status != http.StatusOK {
			return fmt.Errorf("registry status %d", status)
		}

		var sr searchResponse
		if err := json.Unmarshal(body, &sr); err != nil {
			return fmt.Errorf("decode search page: %w", err)
		}
		resp = &sr
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (c *Client) get(ctx context.Context, rawURL string, params url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}

	return body, resp.StatusCode, nil
}
