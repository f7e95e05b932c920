// Package provider_jm implements the encrypted-API favorites source: request
// signing and response decryption, mirror failover, session re-login and
// concurrent per-album enrichment.
package provider_jm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"favorites-sync-service/internal/app/ingest"
	"favorites-sync-service/internal/domain"
	"favorites-sync-service/internal/infra/provider"
	"favorites-sync-service/internal/metrics"
)

// API paths.
const (
	LoginPath    = "/login"
	FavoritePath = "/favorite"
	AlbumPath    = "/album"

	// SessionCookie carries the session token.
	SessionCookie = "AVS"
)

// Config holds the encrypted source settings.
type Config struct {
	Mirrors      []string
	AppVersion   string
	TokenSecret  string
	DataSecret   string
	Username     string
	Password     string
	ProbeTimeout time.Duration
	Client       provider.ClientConfig

	Workers        int
	PerItemRetries int
	ItemBackoff    time.Duration
	SaveEvery      int

	MaxRetryRounds int
	RetryDelay     time.Duration
	MaxPages       int

	CoverURLTemplate string
}

// Client implements domain.Provider for the encrypted API.
type Client struct {
	name        string
	cfg         Config
	client      *resty.Client
	codec       *Codec
	mirrors     *MirrorSelector
	session     *SessionManager
	pool        *ingest.Pool
	checkpoints domain.CheckpointStore
	logger      *zap.Logger
	now         func() time.Time

	breakerPoll time.Duration

	mu           sync.Mutex
	lastDegraded []string
}

// maxBreakerWaits bounds how often one request waits for a mirror breaker.
const maxBreakerWaits = 3

// New creates a new encrypted-API client. checkpoints may be nil.
func New(cfg Config, checkpoints domain.CheckpointStore, logger *zap.Logger) *Client {
	logger = logger.With(zap.String("provider", domain.ProviderJM))
	httpClient := provider.NewRestyClient(cfg.Client)
	codec := NewCodec(cfg.TokenSecret, cfg.DataSecret, cfg.AppVersion)

	c := &Client{
		name:        domain.ProviderJM,
		cfg:         cfg,
		client:      httpClient,
		codec:       codec,
		mirrors:     NewMirrorSelector(cfg.Mirrors, httpClient, codec, cfg.Client.CB, cfg.ProbeTimeout, logger),
		checkpoints: checkpoints,
		logger:      logger,
		now:         time.Now,
		breakerPoll: provider.DefaultBreakerPoll,
		pool: ingest.NewPool(ingest.PoolConfig{
			Workers:        cfg.Workers,
			PerItemRetries: cfg.PerItemRetries,
			Backoff:        cfg.ItemBackoff,
			SaveEvery:      cfg.SaveEvery,
		}, logger),
	}
	c.session = NewSessionManager(c.login, logger)

	return c
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return c.name
}

// Mirrors returns the current mirror status.
func (c *Client) Mirrors() []domain.Mirror {
	return c.mirrors.Mirrors()
}

// LastDegraded returns the ids kept in base form by the last Fetch.
func (c *Client) LastDegraded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.lastDegraded...)
}

// Fetch selects a mirror, lists all favorites and enriches every album.
// Listing pages and album details are best-effort: failures are logged and
// the affected records are skipped (pages) or kept in base form (albums).
// A rejected login is never best-effort and fails the whole run.
func (c *Client) Fetch(ctx context.Context) ([]domain.Record, error) {
	c.session.Reset()
	if _, err := c.mirrors.Select(ctx); err != nil {
		return nil, err
	}

	bases, err := c.listFavorites(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing favorites: %w", err)
	}

	resumed := c.resume(ctx, bases)

	var checkpoint ingest.CheckpointFunc
	if c.checkpoints != nil {
		checkpoint = func(ctx context.Context, records []domain.Record) error {
			return c.checkpoints.SaveCheckpoint(ctx, c.name, records)
		}
	}

	report, err := c.pool.Run(ctx, bases, resumed, c.enrich, checkpoint)
	if err != nil {
		return nil, fmt.Errorf("enriching albums: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metrics.EnrichmentResults.WithLabelValues(c.name, "enriched").Add(float64(report.Enriched))
	metrics.EnrichmentResults.WithLabelValues(c.name, "reused").Add(float64(report.Reused))
	metrics.EnrichmentResults.WithLabelValues(c.name, "degraded").Add(float64(len(report.Degraded)))

	c.mu.Lock()
	c.lastDegraded = report.DegradedIDs()
	c.mu.Unlock()

	c.logger.Info("jm fetch completed",
		zap.Int("count", len(report.Records)),
		zap.Int("enriched", report.Enriched),
		zap.Int("reused", report.Reused),
		zap.Int("degraded", len(report.Degraded)),
	)

	return report.Records, nil
}

// HealthCheck verifies at least one mirror answers.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.mirrors.Select(ctx)
	return err
}

// favoritePage is the decrypted favorites payload.
type favoritePage struct {
	List  []map[string]any `json:"list"`
	Total any              `json:"total"`
}

// listFavorites fetches page 1 to learn the page size and total, then the
// remaining pages through the batch fetcher, one page per batch.
func (c *Client) listFavorites(ctx context.Context) ([]domain.Record, error) {
	first, err := c.favoritePage(ctx, 1)
	if err != nil {
		return nil, err
	}

	perPage := len(first.List)
	total := int(domain.ToInt(first.Total))
	if perPage == 0 {
		return []domain.Record{}, nil
	}

	pages := (total + perPage - 1) / perPage
	if c.cfg.MaxPages > 0 && pages > c.cfg.MaxPages {
		pages = c.cfg.MaxPages
	}

	rest := make([]int, 0, pages)
	for p := 2; p <= pages; p++ {
		rest = append(rest, p)
	}

	report := ingest.FetchBatches(ctx, rest, ingest.BatchConfig{
		Size:           1,
		MaxRetryRounds: c.cfg.MaxRetryRounds,
		RetryDelay:     c.cfg.RetryDelay,
		OnRetry: func(int, int) {
			metrics.BatchRetries.WithLabelValues(c.name).Inc()
		},
	}, func(ctx context.Context, b domain.FetchBatch[int]) ([]map[string]any, error) {
		page, err := c.favoritePage(ctx, b.Items[0])
		if err != nil {
			return nil, err
		}
		return page.List, nil
	}, c.logger)

	if report.Aborted != nil {
		return nil, report.Err()
	}
	if !report.Complete() {
		metrics.BatchesExhausted.WithLabelValues(c.name).Add(float64(len(report.Failed)))
		c.logger.Warn("some favorites pages failed, continuing with partial listing",
			zap.Int("failed_pages", len(report.Failed)),
			zap.Int("pages", pages),
			zap.Error(report.Err()),
		)
	}

	items := append(first.List, report.Records...)
	seen := make(map[string]bool, len(items))
	out := make([]domain.Record, 0, len(items))
	for _, item := range items {
		rec := Normalize(item, c.cfg.CoverURLTemplate)
		id := rec.ID()
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, rec)
	}

	c.logger.Info("favorites listed",
		zap.Int("count", len(out)),
		zap.Int("total", total),
		zap.Int("pages", pages),
	)

	return out, nil
}

func (c *Client) favoritePage(ctx context.Context, page int) (*favoritePage, error) {
	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	q.Set("folder_id", "0")
	q.Set("o", "mr")

	data, err := c.call(ctx, http.MethodGet, FavoritePath, q, nil)
	if err != nil {
		return nil, err
	}

	var out favoritePage
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("favorites page %d: %w: %v", page, domain.ErrProtocol, err)
	}

	return &out, nil
}

// enrich fetches album detail and merges it into base.
func (c *Client) enrich(ctx context.Context, base domain.Record) (domain.Record, error) {
	q := url.Values{}
	q.Set("id", base.ID())

	data, err := c.call(ctx, http.MethodGet, AlbumPath, q, nil)
	if err != nil {
		return nil, err
	}

	var detail map[string]any
	if err := json.Unmarshal(data, &detail); err != nil {
		return nil, fmt.Errorf("album %s: %w: %v", base.ID(), domain.ErrProtocol, err)
	}

	return MergeDetail(base, detail, c.now()), nil
}

// resume maps checkpointed, already enriched records onto base positions.
func (c *Client) resume(ctx context.Context, bases []domain.Record) map[int]domain.Record {
	if c.checkpoints == nil {
		return nil
	}

	saved, err := c.checkpoints.LoadCheckpoint(ctx, c.name)
	if err != nil {
		c.logger.Warn("ignoring unreadable checkpoint", zap.Error(err))
		return nil
	}
	if len(saved) == 0 {
		return nil
	}

	byID := make(map[string]domain.Record, len(saved))
	for _, r := range saved {
		if _, ok := r[EnrichedAtKey]; ok {
			byID[r.ID()] = r
		}
	}

	resumed := make(map[int]domain.Record)
	for i, b := range bases {
		if r, ok := byID[b.ID()]; ok {
			resumed[i] = r
		}
	}

	c.logger.Info("resuming from checkpoint",
		zap.Int("checkpointed", len(saved)),
		zap.Int("reused", len(resumed)),
	)

	return resumed
}

// login posts the account credentials without re-login handling.
func (c *Client) login(ctx context.Context) (string, error) {
	if c.cfg.Username == "" || c.cfg.Password == "" {
		return "", fmt.Errorf("no credentials configured: %w", domain.ErrAuthentication)
	}

	data, err := c.request(ctx, http.MethodPost, LoginPath, nil, map[string]string{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
	}, false)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%v: %w", apiErr, domain.ErrAuthentication)
		}
		return "", err
	}

	var out struct {
		S string `json:"s"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("login payload: %w: %v", domain.ErrProtocol, err)
	}

	return out.S, nil
}

// call performs a signed request with mirror failover and one re-login.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, form map[string]string) ([]byte, error) {
	return c.request(ctx, method, path, query, form, true)
}

// request walks the mirror candidates. Transport errors, 5xx and open
// breakers move on to the next mirror; protocol, API and auth errors are
// returned at once since another mirror would answer the same way. When
// every mirror's breaker rejected the call, request waits until one admits
// calls again and retries, at most maxBreakerWaits times.
func (c *Client) request(
	ctx context.Context,
	method, path string,
	query url.Values,
	form map[string]string,
	relogin bool,
) ([]byte, error) {
	for waits := 0; ; waits++ {
		data, rejected, err := c.tryMirrors(ctx, method, path, query, form, relogin)
		if !rejected || waits >= maxBreakerWaits {
			return data, err
		}

		c.logger.Info("every mirror breaker is rejecting calls, waiting",
			zap.String("path", path),
			zap.Int("wait", waits+1),
		)
		if err := c.mirrors.awaitAdmitting(ctx, c.breakerPoll); err != nil {
			return nil, err
		}
	}
}

// tryMirrors makes one pass over the candidates. rejected is true when no
// candidate was called because every breaker refused.
func (c *Client) tryMirrors(
	ctx context.Context,
	method, path string,
	query url.Values,
	form map[string]string,
	relogin bool,
) ([]byte, bool, error) {
	candidates := c.mirrors.candidates()
	if len(candidates) == 0 {
		return nil, false, domain.ErrNoMirrorAvailable
	}

	var lastErr error
	refused := 0
	for i, m := range candidates {
		data, err := c.requestMirror(ctx, m, method, path, query, form, relogin)
		if err == nil {
			c.mirrors.report(m, true)
			if i > 0 {
				metrics.MirrorFailovers.WithLabelValues(m.baseURL).Inc()
			}
			return data, false, nil
		}
		if !failoverable(err) || ctx.Err() != nil {
			return nil, false, err
		}
		if breakerRefused(err) {
			refused++
		}

		c.mirrors.report(m, false)
		c.logger.Debug("mirror request failed, trying next",
			zap.String("mirror", m.baseURL),
			zap.String("path", path),
			zap.Error(err),
		)
		lastErr = err
	}

	err := fmt.Errorf("%s %s failed on all %d mirrors: %w", method, path, len(candidates), lastErr)
	return nil, refused == len(candidates), err
}

func breakerRefused(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func (c *Client) requestMirror(
	ctx context.Context,
	m *mirror,
	method, path string,
	query url.Values,
	form map[string]string,
	relogin bool,
) ([]byte, error) {
	_, epoch := c.session.Current()

	data, err := c.send(ctx, m, method, path, query, form)
	if !errors.Is(err, errUnauthorized) || !relogin {
		return data, err
	}

	c.logger.Info("session expired, logging in", zap.String("path", path))
	if err := c.session.Refresh(ctx, epoch); err != nil {
		if errors.Is(err, domain.ErrAuthentication) {
			return nil, fmt.Errorf("re-login: %w", err)
		}
		return nil, fmt.Errorf("re-login: %w: %v", domain.ErrAuthentication, err)
	}

	data, err = c.send(ctx, m, method, path, query, form)
	if errors.Is(err, errUnauthorized) {
		return nil, fmt.Errorf("%s still unauthorized after re-login: %w", path, domain.ErrAuthentication)
	}

	return data, err
}

// send issues one signed request through the mirror's breaker and decodes it.
func (c *Client) send(
	ctx context.Context,
	m *mirror,
	method, path string,
	query url.Values,
	form map[string]string,
) ([]byte, error) {
	sig := c.codec.Sign(c.now().Unix())

	resp, err := m.cb.Execute(func() (*resty.Response, error) {
		req := c.client.R().
			SetContext(ctx).
			SetHeaders(sig.Headers()).
			SetQueryParamsFromValues(query)
		if token, _ := c.session.Current(); token != "" {
			req.SetCookie(&http.Cookie{Name: SessionCookie, Value: token})
		}
		if form != nil {
			req.SetFormData(form)
		}

		r, err := req.Execute(method, m.baseURL+path)
		if err != nil {
			return nil, err
		}
		if r.StatusCode() >= 500 {
			return nil, &statusError{code: r.StatusCode()}
		}

		return r, nil
	})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() == http.StatusUnauthorized {
		return nil, errUnauthorized
	}
	if resp.IsError() {
		return nil, &statusError{code: resp.StatusCode()}
	}

	return c.codec.Decode(sig.Timestamp, resp.Body())
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("jm returned status %d", e.code)
}

func failoverable(err error) bool {
	if errors.Is(err, domain.ErrProtocol) || errors.Is(err, domain.ErrAuthentication) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false
	}

	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500
	}

	return true
}
