package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"favorites-sync-service/internal/domain"
)

func newTestStore() (*FileStore, afero.Fs) {
	fs := afero.NewMemMapFs()
	return NewFileStore(fs, "/data", map[string]string{"custom": "custom.json"}, zap.NewNop()), fs
}

// TestFileStore_Path tests default, overridden and fallback file names.
func TestFileStore_Path(t *testing.T) {
	store, _ := newTestStore()

	assert.Equal(t, "/data/favorites_metadata.json", store.Path(domain.ProviderEx))
	assert.Equal(t, "/data/jm_favorites.json", store.Path(domain.ProviderJM))
	assert.Equal(t, "/data/custom.json", store.Path("custom"))
	assert.Equal(t, "/data/other.json", store.Path("other"))
}

// TestFileStore_SaveLoad tests a save is read back in order.
func TestFileStore_SaveLoad(t *testing.T) {
	store, fs := newTestStore()
	ctx := context.Background()

	records := []domain.Record{
		{"gid": float64(2), "title": "Second <b>"},
		{"gid": float64(1), "title": "First"},
	}
	require.NoError(t, store.Save(ctx, domain.ProviderEx, records))

	got, err := store.Load(ctx, domain.ProviderEx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID())
	assert.Equal(t, "Second <b>", got[0].Title())

	raw, err := afero.ReadFile(fs, "/data/favorites_metadata.json")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Second <b>")

	// no temp files left behind
	entries, err := afero.ReadDir(fs, "/data")
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp-"), e.Name())
	}
}

// TestFileStore_Load_Missing tests a missing file is an empty snapshot.
func TestFileStore_Load_Missing(t *testing.T) {
	store, _ := newTestStore()

	got, err := store.Load(context.Background(), domain.ProviderJM)

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

// TestFileStore_Load_NotAnArray tests a corrupt snapshot is a persistence error.
func TestFileStore_Load_NotAnArray(t *testing.T) {
	store, fs := newTestStore()
	require.NoError(t, afero.WriteFile(fs, "/data/jm_favorites.json", []byte(`{"id":"1"}`), 0o644))

	_, err := store.Load(context.Background(), domain.ProviderJM)

	assert.ErrorIs(t, err, domain.ErrPersistence)
}

// TestFileStore_Load_Normalizer tests registered normalizers run on load.
func TestFileStore_Load_Normalizer(t *testing.T) {
	store, fs := newTestStore()
	store.SetNormalizer(domain.ProviderJM, func(r domain.Record) domain.Record {
		return r.Merge(map[string]any{"likes": r.Int("likes")})
	})
	require.NoError(t, afero.WriteFile(fs, "/data/jm_favorites.json", []byte(`[{"id":"1","likes":"12"}]`), 0o644))

	got, err := store.Load(context.Background(), domain.ProviderJM)

	require.NoError(t, err)
	assert.Equal(t, int64(12), got[0]["likes"])
}

// TestFileStore_Save_Failure tests a failed write keeps the previous
// snapshot intact and reports a persistence error.
func TestFileStore_Save_Failure(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(base, "/data/favorites_metadata.json", []byte(`[{"gid":1}]`), 0o644))
	store := NewFileStore(afero.NewReadOnlyFs(base), "/data", nil, zap.NewNop())

	err := store.Save(context.Background(), domain.ProviderEx, []domain.Record{{"gid": 2}})

	assert.ErrorIs(t, err, domain.ErrPersistence)
	got, err := store.Load(context.Background(), domain.ProviderEx)
	require.NoError(t, err)
	assert.Equal(t, "1", got[0].ID())
}

// TestFileStore_Checkpoint tests the checkpoint lifecycle.
func TestFileStore_Checkpoint(t *testing.T) {
	store, fs := newTestStore()
	ctx := context.Background()

	cp, err := store.LoadCheckpoint(ctx, domain.ProviderJM)
	require.NoError(t, err)
	assert.Nil(t, cp)

	require.NoError(t, store.SaveCheckpoint(ctx, domain.ProviderJM, []domain.Record{{"id": "7", "enriched_at": 1}}))
	exists, err := afero.Exists(fs, "/data/jm_favorites.json.checkpoint")
	require.NoError(t, err)
	assert.True(t, exists)

	cp, err = store.LoadCheckpoint(ctx, domain.ProviderJM)
	require.NoError(t, err)
	require.Len(t, cp, 1)
	assert.Equal(t, "7", cp[0].ID())

	// snapshot untouched by checkpoints
	snap, err := store.Load(ctx, domain.ProviderJM)
	require.NoError(t, err)
	assert.Empty(t, snap)

	require.NoError(t, store.ClearCheckpoint(ctx, domain.ProviderJM))
	require.NoError(t, store.ClearCheckpoint(ctx, domain.ProviderJM))
	exists, err = afero.Exists(fs, "/data/jm_favorites.json.checkpoint")
	require.NoError(t, err)
	assert.False(t, exists)
}
