package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"favorites-sync-service/internal/domain"
	"favorites-sync-service/internal/metrics"
)

// DefaultBackupKeep is the number of backups retained per provider.
const DefaultBackupKeep = 10

const backupTimeLayout = "20060102-150405"

// backupName splits <provider>_YYYYMMDD-HHMMSS[-N].json into stem and N.
var backupName = regexp.MustCompile(`^(.+_\d{8}-\d{6})(?:-(\d+))?\.json$`)

// BackupManager copies a snapshot aside before it is replaced and prunes old
// copies. Backups of each provider live in their own subdirectory.
type BackupManager struct {
	fs     afero.Fs
	dir    string
	keep   int
	now    func() time.Time
	logger *zap.Logger
}

// NewBackupManager creates a manager writing under dir.
func NewBackupManager(fs afero.Fs, dir string, keep int, logger *zap.Logger) *BackupManager {
	if keep <= 0 {
		keep = DefaultBackupKeep
	}

	return &BackupManager{
		fs:     fs,
		dir:    dir,
		keep:   keep,
		now:    time.Now,
		logger: logger,
	}
}

// Backup copies path into the provider's backup directory as
// <provider>_YYYYMMDD-HHMMSS.json and prunes beyond the retention count.
// A missing source is not an error: there is nothing to back up yet.
// Without a backup directory nothing is written.
func (b *BackupManager) Backup(_ context.Context, provider, path string) error {
	if b.dir == "" {
		b.logger.Warn("backup directory not configured, skipping backup",
			zap.String("provider", provider),
			zap.String("path", path),
		)
		return nil
	}

	src, err := b.fs.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		b.logger.Debug("no snapshot to back up", zap.String("provider", provider), zap.String("path", path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening %s: %w: %v", path, domain.ErrPersistence, err)
	}
	defer src.Close()

	dir := filepath.Join(b.dir, provider)
	if err := b.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating backup dir: %w: %v", domain.ErrPersistence, err)
	}

	now := b.now()
	dst, name, err := b.create(dir, provider, now)
	if err != nil {
		return fmt.Errorf("creating backup: %w: %v", domain.ErrPersistence, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = b.fs.Remove(name)
		return fmt.Errorf("copying backup: %w: %v", domain.ErrPersistence, err)
	}
	if err := dst.Close(); err != nil {
		_ = b.fs.Remove(name)
		return fmt.Errorf("closing backup: %w: %v", domain.ErrPersistence, err)
	}
	_ = b.fs.Chtimes(name, now, now)

	b.logger.Info("snapshot backed up", zap.String("provider", provider), zap.String("backup", name))

	pruned, err := b.Prune(provider)
	if err != nil {
		b.logger.Warn("backup prune failed", zap.String("provider", provider), zap.Error(err))
	} else if pruned > 0 {
		metrics.BackupsPruned.WithLabelValues(provider).Add(float64(pruned))
	}

	return nil
}

// create opens a new backup file, adding a -N suffix when the name for this
// second is already taken.
func (b *BackupManager) create(dir, provider string, now time.Time) (afero.File, string, error) {
	stem := provider + "_" + now.Format(backupTimeLayout)

	for n := 0; n < 1000; n++ {
		name := stem + ".json"
		if n > 0 {
			name = fmt.Sprintf("%s-%d.json", stem, n)
		}
		full := filepath.Join(dir, name)

		f, err := b.fs.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return f, full, nil
	}

	return nil, "", fmt.Errorf("no free backup name for %s", stem)
}

// List returns the provider's backups, newest first.
func (b *BackupManager) List(provider string) ([]os.FileInfo, error) {
	entries, err := afero.ReadDir(b.fs, filepath.Join(b.dir, provider))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	prefix := provider + "_"
	var out []os.FileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModTime().Equal(out[j].ModTime()) {
			return out[i].ModTime().After(out[j].ModTime())
		}
		return newerName(out[i].Name(), out[j].Name())
	})

	return out, nil
}

// newerName orders backups created in the same second: a later timestamp
// first, then the higher collision suffix, an unsuffixed name counting as 0.
// Names outside the backup pattern fall back to reverse lexical order.
func newerName(a, b string) bool {
	ma, mb := backupName.FindStringSubmatch(a), backupName.FindStringSubmatch(b)
	if ma == nil || mb == nil || ma[1] != mb[1] {
		return a > b
	}

	return suffix(ma[2]) > suffix(mb[2])
}

func suffix(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// Prune removes all but the newest keep backups of provider.
func (b *BackupManager) Prune(provider string) (int, error) {
	backups, err := b.List(provider)
	if err != nil {
		return 0, err
	}
	if len(backups) <= b.keep {
		return 0, nil
	}

	removed := 0
	for _, fi := range backups[b.keep:] {
		full := filepath.Join(b.dir, provider, fi.Name())
		if err := b.fs.Remove(full); err != nil {
			return removed, err
		}
		removed++
		b.logger.Debug("backup pruned", zap.String("backup", full))
	}

	return removed, nil
}
