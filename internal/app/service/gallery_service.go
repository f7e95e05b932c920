// Package service provides the sync orchestrator and the read-only gallery
// queries over the loaded snapshots.
package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"favorites-sync-service/internal/domain"
)

// DefaultCacheTTL is used when the gallery cache is enabled without a TTL.
const DefaultCacheTTL = 5 * time.Minute

// GalleryService answers listing, item and stats queries from the snapshot
// holder. Query pages are cached when a cache is configured; the orchestrator
// clears the cache after every reload.
type GalleryService struct {
	holder   *SnapshotHolder
	cache    domain.Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewGalleryService creates a new GalleryService. cache may be nil.
func NewGalleryService(holder *SnapshotHolder, cache domain.Cache, cacheTTL time.Duration, logger *zap.Logger) *GalleryService {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}

	return &GalleryService{
		holder:   holder,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// List filters, sorts and pages the snapshot of q.Provider.
func (s *GalleryService) List(ctx context.Context, q domain.GalleryQuery) (*domain.GalleryPage, error) {
	q.Normalize()

	snap, ok := s.holder.Get(q.Provider)
	if !ok {
		return nil, fmt.Errorf("%s: %w", q.Provider, domain.ErrProviderNotFound)
	}

	key := cacheKey(q)
	if page := s.cached(ctx, key); page != nil {
		return page, nil
	}

	page := q.Apply(snap)

	s.logger.Debug("gallery query",
		zap.String("provider", q.Provider),
		zap.String("keyword", q.Keyword),
		zap.String("sort", string(q.SortBy)),
		zap.Int("total", page.Total),
	)

	s.store(ctx, key, page)

	return page, nil
}

// Get returns one record by id, or nil when absent.
func (s *GalleryService) Get(_ context.Context, provider, id string) (domain.Record, error) {
	snap, ok := s.holder.Get(provider)
	if !ok {
		return nil, fmt.Errorf("%s: %w", provider, domain.ErrProviderNotFound)
	}

	for _, r := range snap {
		if r.ID() == id {
			return r, nil
		}
	}

	return nil, nil
}

// Stats returns aggregate counts for provider.
func (s *GalleryService) Stats(_ context.Context, provider string) (domain.GalleryStats, error) {
	snap, ok := s.holder.Get(provider)
	if !ok {
		return domain.GalleryStats{}, fmt.Errorf("%s: %w", provider, domain.ErrProviderNotFound)
	}

	return domain.ComputeStats(snap), nil
}

// Quarterly returns per-quarter publish counts for provider.
func (s *GalleryService) Quarterly(_ context.Context, provider string) ([]domain.QuarterCount, error) {
	snap, ok := s.holder.Get(provider)
	if !ok {
		return nil, fmt.Errorf("%s: %w", provider, domain.ErrProviderNotFound)
	}

	return domain.ComputeQuarterly(snap), nil
}

// TopTags returns the n most common tags of provider. jm tags carry no
// namespace, so namespace only applies to ex.
func (s *GalleryService) TopTags(_ context.Context, provider string, n int, namespace string) ([]domain.TagCount, error) {
	snap, ok := s.holder.Get(provider)
	if !ok {
		return nil, fmt.Errorf("%s: %w", provider, domain.ErrProviderNotFound)
	}
	if provider == domain.ProviderJM {
		namespace = ""
	}

	return domain.TopTags(snap, n, namespace), nil
}

func (s *GalleryService) cached(ctx context.Context, key string) *domain.GalleryPage {
	if s.cache == nil {
		return nil
	}

	data, err := s.cache.Get(ctx, key)
	if err != nil || data == nil {
		return nil
	}

	var page domain.GalleryPage
	if err := json.Unmarshal(data, &page); err != nil {
		s.logger.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = s.cache.Delete(ctx, key)
		return nil
	}

	return &page
}

func (s *GalleryService) store(ctx context.Context, key string, page *domain.GalleryPage) {
	if s.cache == nil {
		return
	}

	data, err := json.Marshal(page)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.logger.Warn("gallery cache write failed", zap.Error(err))
	}
}

// cacheKey identifies a normalized query.
func cacheKey(q domain.GalleryQuery) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%d", q.Keyword, q.Category, q.Subcategory, q.SortBy, q.Page, q.PageSize)
	sum := sha1.Sum([]byte(raw))

	return "gallery:" + q.Provider + ":" + hex.EncodeToString(sum[:])
}
