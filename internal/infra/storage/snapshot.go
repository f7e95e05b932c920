// Package storage persists provider snapshots, enrichment checkpoints and
// snapshot backups on a filesystem abstraction.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"favorites-sync-service/internal/domain"
)

// CheckpointSuffix is appended to a snapshot path to name its checkpoint.
const CheckpointSuffix = ".checkpoint"

// DefaultFiles maps providers to their snapshot file names.
var DefaultFiles = map[string]string{
	domain.ProviderEx: "favorites_metadata.json",
	domain.ProviderJM: "jm_favorites.json",
}

// NormalizeFunc adjusts a record read back from disk.
type NormalizeFunc func(domain.Record) domain.Record

// FileStore implements domain.SnapshotStore and domain.CheckpointStore with
// one JSON array file per provider. Writes are staged to a temporary file in
// the same directory and renamed over the target.
type FileStore struct {
	fs          afero.Fs
	dataDir     string
	files       map[string]string
	normalizers map[string]NormalizeFunc
	logger      *zap.Logger
}

// NewFileStore creates a store rooted at dataDir. files overrides
// DefaultFiles per provider.
func NewFileStore(fs afero.Fs, dataDir string, files map[string]string, logger *zap.Logger) *FileStore {
	merged := make(map[string]string, len(DefaultFiles))
	for k, v := range DefaultFiles {
		merged[k] = v
	}
	for k, v := range files {
		if v != "" {
			merged[k] = v
		}
	}

	return &FileStore{
		fs:          fs,
		dataDir:     dataDir,
		files:       merged,
		normalizers: make(map[string]NormalizeFunc),
		logger:      logger,
	}
}

// SetNormalizer registers fn to run on every record loaded for provider.
func (s *FileStore) SetNormalizer(provider string, fn NormalizeFunc) {
	s.normalizers[provider] = fn
}

// Path returns the snapshot file path for provider.
func (s *FileStore) Path(provider string) string {
	name, ok := s.files[provider]
	if !ok {
		name = provider + ".json"
	}

	return filepath.Join(s.dataDir, name)
}

// Load reads the snapshot of provider. A missing file is an empty snapshot.
func (s *FileStore) Load(_ context.Context, provider string) (domain.Snapshot, error) {
	records, err := s.read(s.Path(provider))
	if err != nil {
		return nil, err
	}
	if records == nil {
		return domain.Snapshot{}, nil
	}

	if fn, ok := s.normalizers[provider]; ok {
		for i, r := range records {
			records[i] = fn(r)
		}
	}

	return records, nil
}

// Save replaces the snapshot of provider.
func (s *FileStore) Save(_ context.Context, provider string, records []domain.Record) error {
	path := s.Path(provider)
	if err := s.write(path, records); err != nil {
		return err
	}

	s.logger.Info("snapshot saved",
		zap.String("provider", provider),
		zap.String("path", path),
		zap.Int("count", len(records)),
	)

	return nil
}

// SaveCheckpoint writes partial progress next to the snapshot.
func (s *FileStore) SaveCheckpoint(_ context.Context, provider string, records []domain.Record) error {
	return s.write(s.Path(provider)+CheckpointSuffix, records)
}

// LoadCheckpoint reads partial progress. Returns nil when there is none.
func (s *FileStore) LoadCheckpoint(_ context.Context, provider string) (domain.Snapshot, error) {
	return s.read(s.Path(provider) + CheckpointSuffix)
}

// ClearCheckpoint removes the checkpoint file if present.
func (s *FileStore) ClearCheckpoint(_ context.Context, provider string) error {
	err := s.fs.Remove(s.Path(provider) + CheckpointSuffix)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing checkpoint: %w: %v", domain.ErrPersistence, err)
	}

	return nil
}

// read returns nil, nil for a missing file.
func (s *FileStore) read(path string) (domain.Snapshot, error) {
	data, err := afero.ReadFile(s.fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w: %v", path, domain.ErrPersistence, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return domain.Snapshot{}, nil
	}

	var records domain.Snapshot
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding %s: %w: %v", path, domain.ErrPersistence, err)
	}

	return records, nil
}

func (s *FileStore) write(path string, records []domain.Record) error {
	if records == nil {
		records = []domain.Record{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encoding %s: %w: %v", path, domain.ErrPersistence, err)
	}

	if err := writeFileAtomic(s.fs, path, buf.Bytes()); err != nil {
		s.logger.Error("snapshot write failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("writing %s: %w: %v", path, domain.ErrPersistence, err)
	}

	return nil
}

// writeFileAtomic stages data in a temp file beside path and renames it over
// path. Readers see either the old or the new content, never a partial one.
func writeFileAtomic(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := afero.TempFile(fs, dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	fail := func(err error) error {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return err
	}
	if err := fs.Rename(tmpName, path); err != nil {
		_ = fs.Remove(tmpName)
		return err
	}

	return nil
}
