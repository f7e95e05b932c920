// Package provider_ex implements the authenticated-scrape favorites source:
// an HTML listing walk followed by bulk metadata lookups in batches.
package provider_ex

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"favorites-sync-service/internal/app/ingest"
	"favorites-sync-service/internal/domain"
	"favorites-sync-service/internal/infra/provider"
	"favorites-sync-service/internal/metrics"
)

// DefaultAPIURL is the bulk metadata endpoint.
const DefaultAPIURL = "https://api.e-hentai.org/api.php"

// MaxBatchSize is the upstream limit of ids per gdata call.
const MaxBatchSize = 25

// Config holds the scrape source settings.
type Config struct {
	FavoritesURL string
	APIURL       string

	MemberID string // ipb_member_id
	PassHash string // ipb_pass_hash
	Igneous  string

	BatchSize      int
	MaxRetryRounds int
	RetryDelay     time.Duration
	RequestRate    float64 // requests per second, <= 0 disables pacing
	MaxPages       int

	Client provider.ClientConfig
}

// Client implements domain.Provider for the scrape source.
type Client struct {
	name    string
	cfg     Config
	client  *resty.Client
	pageCB  *gobreaker.CircuitBreaker[*resty.Response]
	apiCB   *gobreaker.CircuitBreaker[*resty.Response]
	limiter *rate.Limiter
	logger  *zap.Logger

	breakerPoll time.Duration
}

// New creates a new scrape client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}

	limit := rate.Inf
	if cfg.RequestRate > 0 {
		limit = rate.Limit(cfg.RequestRate)
	}
	logger = logger.With(zap.String("provider", domain.ProviderEx))

	return &Client{
		name:    domain.ProviderEx,
		cfg:     cfg,
		client:  provider.NewRestyClient(cfg.Client),
		pageCB:  provider.NewCircuitBreaker[*resty.Response]("ex:listing", cfg.Client.CB, logger),
		apiCB:   provider.NewCircuitBreaker[*resty.Response]("ex:gdata", cfg.Client.CB, logger),
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,

		breakerPoll: provider.DefaultBreakerPoll,
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return c.name
}

// Fetch walks the favorites listing and resolves metadata for every entry.
// The result is all-or-nothing: if any batch stays failed after the retry
// rounds the run fails with ErrBatchFetchExhausted.
func (c *Client) Fetch(ctx context.Context) ([]domain.Record, error) {
	favs, err := c.listFavorites(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing favorites: %w", err)
	}
	if len(favs) == 0 {
		c.logger.Info("favorites listing is empty")
		return []domain.Record{}, nil
	}

	report := ingest.FetchBatches(ctx, favs, ingest.BatchConfig{
		Size:           c.cfg.BatchSize,
		MaxRetryRounds: c.cfg.MaxRetryRounds,
		RetryDelay:     c.cfg.RetryDelay,
		Limiter:        c.limiter,
		OnRetry: func(int, int) {
			metrics.BatchRetries.WithLabelValues(c.name).Inc()
		},
	}, c.fetchBatch, c.logger)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := report.Err(); err != nil {
		metrics.BatchesExhausted.WithLabelValues(c.name).Add(float64(len(report.Failed)))
		c.logger.Error("metadata fetch incomplete, aborting",
			zap.Int("batches", report.Batches),
			zap.Int("failed", len(report.Failed)),
			zap.Int("rounds", report.Rounds),
		)
		return nil, err
	}

	byGID := make(map[string]Favorite, len(favs))
	for _, f := range favs {
		byGID[f.GID] = f
	}

	records := make([]domain.Record, 0, len(report.Records))
	for _, meta := range report.Records {
		fav, ok := byGID[domain.Stringify(meta["gid"])]
		if !ok {
			fav = Favorite{FavCategory: unknown, FavTime: unknown}
		}
		records = append(records, ToRecord(meta, fav))
	}

	if len(records) != len(favs) {
		c.logger.Warn("metadata count mismatch",
			zap.Int("requested", len(favs)),
			zap.Int("received", len(records)),
		)
	}

	c.logger.Info("ex fetch completed",
		zap.Int("count", len(records)),
		zap.Int("batches", report.Batches),
		zap.Int("rounds", report.Rounds),
	)

	return records, nil
}

// HealthCheck verifies the favorites page is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetCookies(c.cookies()).
		Get(c.cfg.FavoritesURL)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("health check returned status %d", resp.StatusCode())
	}

	return nil
}

// listFavorites follows next links from the configured favorites URL.
// Duplicate gids keep their first occurrence.
func (c *Client) listFavorites(ctx context.Context) ([]Favorite, error) {
	var (
		favs    []Favorite
		seen    = make(map[string]bool)
		visited = make(map[string]bool)
		next    = c.cfg.FavoritesURL
	)

	for pages := 0; next != ""; pages++ {
		if c.cfg.MaxPages > 0 && pages >= c.cfg.MaxPages {
			c.logger.Warn("page limit reached, stopping listing", zap.Int("max_pages", c.cfg.MaxPages))
			break
		}
		if visited[next] {
			c.logger.Warn("next link repeats a visited page, stopping listing", zap.String("url", next))
			break
		}
		visited[next] = true

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		c.logger.Info("fetching favorites page", zap.Int("page", pages+1), zap.String("url", next))
		page, err := c.fetchPage(ctx, next, pages == 0)
		if err != nil {
			return nil, err
		}

		for _, f := range page.Favorites {
			if seen[f.GID] {
				continue
			}
			seen[f.GID] = true
			favs = append(favs, f)
		}
		next = page.Next
	}

	c.logger.Info("favorites listed", zap.Int("count", len(favs)), zap.Int("pages", len(visited)))

	return favs, nil
}

func (c *Client) fetchPage(ctx context.Context, pageURL string, first bool) (*Page, error) {
	resp, err := c.pageCB.Execute(func() (*resty.Response, error) {
		r, err := c.client.R().
			SetContext(ctx).
			SetCookies(c.cookies()).
			Get(pageURL)
		if err != nil {
			return nil, err
		}
		if r.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("favorites page returned status %d", r.StatusCode())
		}

		return r, nil
	})
	if err != nil {
		c.logger.Warn("favorites page failed",
			zap.String("url", pageURL),
			zap.String("state", c.pageCB.State().String()),
			zap.Error(err),
		)
		return nil, err
	}

	// An empty body instead of the listing means the cookies were refused.
	if first && len(resp.Body()) == 0 {
		return nil, fmt.Errorf("empty favorites page: %w", domain.ErrAuthentication)
	}

	return ParsePage(resp.Body(), c.cfg.FavoritesURL)
}

// fetchBatch resolves the metadata of one batch. Entries reported with an
// error are omitted. An open gdata breaker is waited out first so every
// attempt, retry rounds included, reaches the API.
func (c *Client) fetchBatch(ctx context.Context, b domain.FetchBatch[Favorite]) ([]map[string]any, error) {
	if c.apiCB.State() == gobreaker.StateOpen {
		c.logger.Info("gdata breaker open, waiting before batch", zap.Int("offset", b.Offset))
		if err := provider.AwaitBreaker(ctx, c.apiCB, c.breakerPoll); err != nil {
			return nil, err
		}
	}

	resp, err := c.apiCB.Execute(func() (*resty.Response, error) {
		r, err := c.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(NewGDataRequest(b.Items)).
			Post(c.cfg.APIURL)
		if err != nil {
			return nil, err
		}
		if r.IsError() {
			return nil, fmt.Errorf("gdata returned status %d", r.StatusCode())
		}

		return r, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			c.logger.Warn("gdata breaker open", zap.Int("offset", b.Offset))
		}
		return nil, err
	}

	var result GDataResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("decoding gdata: %w: %v", domain.ErrProtocol, err)
	}
	if result.GMetadata == nil {
		return nil, fmt.Errorf("gdata response without gmetadata: %w", domain.ErrProtocol)
	}

	out := make([]map[string]any, 0, len(result.GMetadata))
	for _, meta := range result.GMetadata {
		if e, ok := meta["error"]; ok {
			c.logger.Warn("gallery metadata unavailable",
				zap.String("gid", domain.Stringify(meta["gid"])),
				zap.Any("error", e),
			)
			continue
		}
		out = append(out, meta)
	}

	return out, nil
}

func (c *Client) cookies() []*http.Cookie {
	var out []*http.Cookie
	for name, value := range map[string]string{
		"ipb_member_id": c.cfg.MemberID,
		"ipb_pass_hash": c.cfg.PassHash,
		"igneous":       c.cfg.Igneous,
	} {
		if value != "" {
			out = append(out, &http.Cookie{Name: name, Value: value})
		}
	}

	return out
}
