package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"favorites-sync-service/internal/domain"
)

func jmSnapshot() domain.Snapshot {
	return domain.Snapshot{
		{
			"id": "10", "name": "Alpha Story", "author": "Kei",
			"addtime": int64(100), "total_views": int64(50), "likes": int64(5),
			"tags":         []string{"romance"},
			"category":     map[string]any{"id": "1", "title": "Doujin"},
			"category_sub": map[string]any{"id": "7", "title": "Chinese"},
		},
		{
			"id": "11", "name": "Beta Quest", "author": "Rin",
			"addtime": int64(300), "total_views": int64(10), "likes": int64(30),
			"tags":     []string{"adventure"},
			"category": map[string]any{"id": "2", "title": "Single"},
		},
		{
			"id": "12", "name": "Gamma", "author": "Kei",
			"addtime": int64(200), "total_views": int64(90), "likes": int64(1),
			"tags":     []string{"romance", "comedy"},
			"category": map[string]any{"id": "1", "title": "Doujin"},
		},
	}
}

func newGalleryService(cache domain.Cache) *GalleryService {
	holder := NewSnapshotHolder()
	holder.Set(domain.ProviderJM, jmSnapshot())

	return NewGalleryService(holder, cache, 0, zap.NewNop())
}

func ids(page *domain.GalleryPage) []string {
	out := make([]string, len(page.Records))
	for i, r := range page.Records {
		out[i] = r.ID()
	}
	return out
}

// TestGalleryService_List tests filtering, sorting and paging.
func TestGalleryService_List(t *testing.T) {
	svc := newGalleryService(nil)

	tests := []struct {
		name     string
		query    domain.GalleryQuery
		expected []string
		total    int
	}{
		{
			name:     "source order",
			query:    domain.DefaultGalleryQuery(domain.ProviderJM),
			expected: []string{"10", "11", "12"},
			total:    3,
		},
		{
			name:     "keyword matches author",
			query:    domain.GalleryQuery{Provider: domain.ProviderJM, Keyword: "kei"},
			expected: []string{"10", "12"},
			total:    2,
		},
		{
			name:     "keyword matches tag",
			query:    domain.GalleryQuery{Provider: domain.ProviderJM, Keyword: "comedy"},
			expected: []string{"12"},
			total:    1,
		},
		{
			name:     "category by title sorted by views",
			query:    domain.GalleryQuery{Provider: domain.ProviderJM, Category: "Doujin", SortBy: domain.SortFieldViews},
			expected: []string{"12", "10"},
			total:    2,
		},
		{
			name:     "recent first",
			query:    domain.GalleryQuery{Provider: domain.ProviderJM, SortBy: domain.SortFieldRecent},
			expected: []string{"11", "12", "10"},
			total:    3,
		},
		{
			name:     "second page",
			query:    domain.GalleryQuery{Provider: domain.ProviderJM, SortBy: domain.SortFieldLikes, Page: 2, PageSize: 2},
			expected: []string{"12"},
			total:    3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.List(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ids(page))
			assert.Equal(t, tt.total, page.Total)
		})
	}
}

// TestGalleryService_List_UnknownProvider tests an unloaded provider.
func TestGalleryService_List_UnknownProvider(t *testing.T) {
	svc := newGalleryService(nil)

	_, err := svc.List(context.Background(), domain.DefaultGalleryQuery("nope"))

	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

// TestGalleryService_List_Cached tests pages are served from the cache and
// dropped once the cache is cleared.
func TestGalleryService_List_Cached(t *testing.T) {
	cache := newFakeCache()
	svc := newGalleryService(cache)
	ctx := context.Background()
	q := domain.DefaultGalleryQuery(domain.ProviderJM)

	first, err := svc.List(ctx, q)
	require.NoError(t, err)
	assert.Len(t, cache.data, 1)

	// swap the snapshot behind the cache's back
	svc.holder.Set(domain.ProviderJM, jmSnapshot()[:1])

	cached, err := svc.List(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, first.Total, cached.Total)
	assert.Equal(t, ids(first), ids(cached))

	require.NoError(t, cache.Clear(ctx))

	fresh, err := svc.List(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.Total)
}

// TestGalleryService_List_BadCacheEntry tests an undecodable entry is
// dropped and recomputed.
func TestGalleryService_List_BadCacheEntry(t *testing.T) {
	cache := newFakeCache()
	svc := newGalleryService(cache)
	q := domain.DefaultGalleryQuery(domain.ProviderJM)
	q.Normalize()
	cache.data[cacheKey(q)] = []byte("{not json")

	page, err := svc.List(context.Background(), q)

	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.NotEqual(t, "{not json", string(cache.data[cacheKey(q)]))
}

// TestGalleryService_Get tests lookup by id.
func TestGalleryService_Get(t *testing.T) {
	svc := newGalleryService(nil)
	ctx := context.Background()

	rec, err := svc.Get(ctx, domain.ProviderJM, "11")
	require.NoError(t, err)
	assert.Equal(t, "Beta Quest", rec.Title())

	missing, err := svc.Get(ctx, domain.ProviderJM, "99")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = svc.Get(ctx, "nope", "1")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

// TestGalleryService_Stats tests per-category counts.
func TestGalleryService_Stats(t *testing.T) {
	svc := newGalleryService(nil)

	stats, err := svc.Stats(context.Background(), domain.ProviderJM)

	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, map[string]int{"Doujin": 2, "Single": 1}, stats.Categories)
}

// TestGalleryService_List_Subcategory tests that subcategory filtering is
// part of the cache key.
func TestGalleryService_List_Subcategory(t *testing.T) {
	cache := newFakeCache()
	svc := newGalleryService(cache)
	ctx := context.Background()

	all, err := svc.List(ctx, domain.GalleryQuery{Provider: domain.ProviderJM})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)

	sub, err := svc.List(ctx, domain.GalleryQuery{Provider: domain.ProviderJM, Subcategory: "Chinese"})
	require.NoError(t, err)
	assert.Equal(t, []string{"10"}, ids(sub))
	assert.Len(t, cache.data, 2)
}

// TestGalleryService_Quarterly tests quarter buckets over addtime.
func TestGalleryService_Quarterly(t *testing.T) {
	holder := NewSnapshotHolder()
	holder.Set(domain.ProviderJM, domain.Snapshot{
		{"id": "1", "addtime": "1704067200"}, // 2024-01-01
		{"id": "2", "addtime": "1706745600"}, // 2024-02-01
		{"id": "3", "addtime": "1719792000"}, // 2024-07-01
	})
	svc := NewGalleryService(holder, nil, 0, zap.NewNop())

	quarters, err := svc.Quarterly(context.Background(), domain.ProviderJM)

	require.NoError(t, err)
	assert.Equal(t, []domain.QuarterCount{
		{Quarter: "2024-Q1", Count: 2},
		{Quarter: "2024-Q3", Count: 1},
	}, quarters)

	_, err = svc.Quarterly(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

// TestGalleryService_TopTags tests tag ranking and that jm ignores the
// namespace filter.
func TestGalleryService_TopTags(t *testing.T) {
	svc := newGalleryService(nil)
	ctx := context.Background()

	tags, err := svc.TopTags(ctx, domain.ProviderJM, 2, "artist")

	require.NoError(t, err)
	assert.Equal(t, []domain.TagCount{
		{Tag: "romance", Count: 2},
		{Tag: "adventure", Count: 1},
	}, tags)

	_, err = svc.TopTags(ctx, "nope", 5, "")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}
