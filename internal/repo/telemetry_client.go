package repo

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/miradorstack/secops-investigator/internal/cache"
	"github.com/miradorstack/secops-investigator/internal/models"
	"github.com/miradorstack/secops-investigator/internal/utils"
)

// AgentPlaceholder is substituted with the agent type in the query path.
const AgentPlaceholder = "{agent}"

// StatusError reports a non-200 response from the telemetry API.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("telemetry API returned %s", e.Status)
}

// TelemetryClient queries a remote telemetry API, one POST per agent query.
type TelemetryClient struct {
	baseURL       string
	queryPath     string
	httpClient    *http.Client
	cache         cache.Provider
	cacheTTL      time.Duration
	maxRetries    int
	retryInterval time.Duration
	logger        *slog.Logger
}

// TelemetryClientOption customises a TelemetryClient.
type TelemetryClientOption func(*TelemetryClient)

// WithCache caches successful responses for ttl. A nil provider disables caching.
func WithCache(provider cache.Provider, ttl time.Duration) TelemetryClientOption {
	return func(c *TelemetryClient) {
		if provider != nil {
			c.cache = provider
		}
		c.cacheTTL = ttl
	}
}

// WithRetry retries transport errors and 5xx responses up to maxRetries extra attempts.
func WithRetry(maxRetries int, initialInterval time.Duration) TelemetryClientOption {
	return func(c *TelemetryClient) {
		c.maxRetries = max(maxRetries, 0)
		c.retryInterval = initialInterval
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) TelemetryClientOption {
	return func(c *TelemetryClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) TelemetryClientOption {
	return func(c *TelemetryClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewTelemetryClient constructs a client targeting baseURL. queryPath may contain {agent}.
func NewTelemetryClient(baseURL, queryPath string, timeout time.Duration, opts ...TelemetryClientOption) *TelemetryClient {
	c := &TelemetryClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		queryPath:     queryPath,
		httpClient:    &http.Client{Timeout: timeout},
		cache:         cache.NoopProvider{},
		retryInterval: 100 * time.Millisecond,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query implements engine.TelemetrySource.
func (c *TelemetryClient) Query(ctx context.Context, agent models.AgentType, q models.TelemetryQuery) (models.TelemetryResult, error) {
	if c == nil {
		return models.TelemetryResult{}, fmt.Errorf("telemetry client not initialised")
	}
	if c.baseURL == "" {
		return models.TelemetryResult{}, fmt.Errorf("telemetry base URL not configured")
	}

	key := cacheKey(agent, q)
	if result, ok := c.cached(ctx, key); ok {
		return result, nil
	}

	var result models.TelemetryResult
	operation := func() error {
		var err error
		result, err = c.post(ctx, c.queryURL(agent), q)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	policy.MaxElapsedTime = 0
	b := backoff.WithMaxRetries(policy, uint64(max(c.maxRetries, 0)))

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("retrying telemetry query",
			slog.String("agent", string(agent)),
			slog.Duration("wait", wait),
			slog.Any("error", err),
		)
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return models.TelemetryResult{}, utils.NewAppError("telemetry.query", fmt.Sprintf("%s query failed", agent), err)
	}

	c.store(ctx, key, result)
	return result, nil
}

func (c *TelemetryClient) cached(ctx context.Context, key string) (models.TelemetryResult, bool) {
	if c.cacheTTL <= 0 {
		return models.TelemetryResult{}, false
	}
	data, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn("telemetry cache read failed", slog.String("key", key), slog.Any("error", err))
		}
		return models.TelemetryResult{}, false
	}
	var result models.TelemetryResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("telemetry cache entry corrupt", slog.String("key", key), slog.Any("error", err))
		_ = c.cache.Del(ctx, key)
		return models.TelemetryResult{}, false
	}
	return result, true
}

func (c *TelemetryClient) store(ctx context.Context, key string, result models.TelemetryResult) {
	if c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
		c.logger.Warn("telemetry cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

func (c *TelemetryClient) queryURL(agent models.AgentType) string {
	p := strings.ReplaceAll(c.queryPath, AgentPlaceholder, url.PathEscape(string(agent)))
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *TelemetryClient) post(ctx context.Context, endpoint string, q models.TelemetryQuery) (models.TelemetryResult, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return models.TelemetryResult{}, fmt.Errorf("marshal query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return models.TelemetryResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.TelemetryResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return models.TelemetryResult{}, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var result models.TelemetryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.TelemetryResult{}, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// cacheKey identifies a query by agent, filters, fields and a minute-truncated window so
// repeated investigations within the same minute share entries.
func cacheKey(agent models.AgentType, q models.TelemetryQuery) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|%d|", agent,
		q.TimeRange.Start.Truncate(time.Minute).Unix(),
		q.TimeRange.End.Truncate(time.Minute).Unix(),
		q.Limit,
	)
	for _, f := range q.Filters {
		fmt.Fprintf(h, "%s=%s:%s;", f.Field, f.Operator, f.Value)
	}
	fmt.Fprintf(h, "|%s", strings.Join(q.Fields, ","))
	return "telemetry:" + string(agent) + ":" + hex.EncodeToString(h.Sum(nil))[:32]
}
