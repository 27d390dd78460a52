package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"coinalerts/internal/errs"
)

const providerName = "coingecko"

// Provider retrieves market data from the upstream price API.
type Provider interface {
	FetchAssets(ctx context.Context) ([]Asset, error)
	FetchStats(ctx context.Context) (Stats, error)
	FetchChart(ctx context.Context, assetID, days string) (json.RawMessage, error)
}

// CoingeckoOptions parameterise the CoinGecko client.
type CoingeckoOptions struct {
	BaseURL       string
	APIKey        string
	PerPage       int
	Timeout       time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
}

// Coingecko fetches asset listings and global stats from the CoinGecko API.
// Transient failures are retried a bounded number of times with a fixed backoff.
type Coingecko struct {
	opts    CoingeckoOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewCoingecko constructs a CoinGecko provider client.
func NewCoingecko(opts CoingeckoOptions, logger zerolog.Logger) *Coingecko {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if opts.PerPage <= 0 {
		opts.PerPage = 250
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	return &Coingecko{
		opts:    opts,
		logger:  logger.With().Str("component", "coingecko").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchAssets retrieves the full asset list ordered by market cap.
func (c *Coingecko) FetchAssets(ctx context.Context) ([]Asset, error) {
	query := url.Values{}
	query.Set("vs_currency", "usd")
	query.Set("order", "market_cap_desc")
	query.Set("per_page", strconv.Itoa(c.opts.PerPage))
	query.Set("page", "1")
	query.Set("sparkline", "false")

	var assets []Asset
	err := c.getWithRetry(ctx, "/coins/markets?"+query.Encode(), func(payload []byte) error {
		if err := json.Unmarshal(payload, &assets); err != nil {
			return fmt.Errorf("decode asset list: %w", err)
		}
		if len(assets) == 0 {
			return &errs.ExternalAPIError{Provider: providerName, Err: errors.New("empty asset list")}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info().Int("assets", len(assets)).Msg("fetched asset list")
	return assets, nil
}

// FetchStats retrieves the global market statistics.
func (c *Coingecko) FetchStats(ctx context.Context) (Stats, error) {
	var wrapper struct {
		Data Stats `json:"data"`
	}

	err := c.getWithRetry(ctx, "/global", func(payload []byte) error {
		if err := json.Unmarshal(payload, &wrapper); err != nil {
			return fmt.Errorf("decode market stats: %w", err)
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	c.logger.Info().Msg("fetched market stats")
	return wrapper.Data, nil
}

// FetchChart retrieves historical chart data for one asset.
func (c *Coingecko) FetchChart(ctx context.Context, assetID, days string) (json.RawMessage, error) {
	path := fmt.Sprintf("/coins/%s/market_chart?vs_currency=usd&days=%s", url.PathEscape(assetID), url.QueryEscape(days))

	var raw json.RawMessage
	err := c.getWithRetry(ctx, path, func(payload []byte) error {
		raw = append(json.RawMessage(nil), payload...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// getWithRetry issues a GET and retries ExternalAPIError responses with a fixed
// backoff until the attempt budget is exhausted.
func (c *Coingecko) getWithRetry(ctx context.Context, path string, decode func([]byte) error) error {
	var lastErr error
	for attempt := 1; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.opts.RetryBackoff):
			}
		}

		lastErr = c.get(ctx, path, decode)
		if lastErr == nil {
			return nil
		}

		var apiErr *errs.ExternalAPIError
		if !errors.As(lastErr, &apiErr) {
			return lastErr
		}
		c.logger.Warn().Err(lastErr).Int("attempt", attempt).Str("path", path).Msg("provider request failed")
	}
	return lastErr
}

func (c *Coingecko) get(ctx context.Context, path string, decode func([]byte) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.opts.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &errs.ExternalAPIError{Provider: providerName, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errs.ExternalAPIError{Provider: providerName, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return &errs.ExternalAPIError{
			Provider: providerName,
			Status:   resp.StatusCode,
			Err:      errors.New(strings.TrimSpace(string(payload))),
		}
	}
	if len(payload) == 0 {
		return &errs.ExternalAPIError{Provider: providerName, Err: errors.New("empty response body")}
	}

	return decode(payload)
}

var _ Provider = (*Coingecko)(nil)
