// Package backup copies the audit database to S3-compatible object storage
// and rotates old copies.
package backup

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

const (
	keyPrefix       = "aegis-audit-"
	keySuffix       = ".db.gz"
	timestampLayout = "2006-01-02-150405"

	// MinBackupsToKeep survive rotation regardless of age.
	MinBackupsToKeep = 3
)

// ObjectStore is the bucket the backups live in.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader) error
	List(ctx context.Context, prefix string) ([]types.Object, error)
	Delete(ctx context.Context, key string) error
}

// Source produces a consistent copy of a database file.
type Source interface {
	BackupTo(ctx context.Context, dest string) error
}

// Info describes one stored backup.
type Info struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
}

// Service uploads compressed audit database copies.
type Service struct {
	source  Source
	store   ObjectStore
	dataDir string
	now     func() time.Time
	log     zerolog.Logger
}

// NewService creates a backup service staging files under dataDir.
func NewService(source Source, store ObjectStore, dataDir string, log zerolog.Logger) *Service {
	return &Service{
		source:  source,
		store:   store,
		dataDir: dataDir,
		now:     time.Now,
		log:     log.With().Str("component", "backup").Logger(),
	}
}

// CreateAndUpload copies, compresses and uploads the database. It returns
// the object key.
func (s *Service) CreateAndUpload(ctx context.Context) (string, error) {
	start := s.now()

	stagingDir, err := os.MkdirTemp(s.dataDir, "backup-staging-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	dbCopy := filepath.Join(stagingDir, "aegis.db")
	if err := s.source.BackupTo(ctx, dbCopy); err != nil {
		return "", err
	}

	archive := dbCopy + ".gz"
	checksum, err := compress(dbCopy, archive)
	if err != nil {
		return "", err
	}

	f, err := os.Open(archive)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	key := keyPrefix + start.UTC().Format(timestampLayout) + keySuffix
	if err := s.store.Upload(ctx, key, f); err != nil {
		return "", err
	}

	s.log.Info().
		Str("key", key).
		Str("sha256", checksum).
		Dur("duration", s.now().Sub(start)).
		Msg("Audit backup uploaded")
	return key, nil
}

// List returns stored backups, newest first. Foreign objects are skipped.
func (s *Service) List(ctx context.Context) ([]Info, error) {
	objects, err := s.store.List(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}

	out := make([]Info, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		ts, ok := parseKey(*obj.Key)
		if !ok {
			s.log.Warn().Str("key", *obj.Key).Msg("Skipping object with unexpected name")
			continue
		}
		info := Info{Key: *obj.Key, Timestamp: ts}
		if obj.Size != nil {
			info.SizeBytes = *obj.Size
		}
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// Rotate deletes backups older than retentionDays, always keeping the
// MinBackupsToKeep newest. Zero retention keeps everything.
func (s *Service) Rotate(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	backups, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for i, b := range backups {
		if i < MinBackupsToKeep || !b.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, b.Key); err != nil {
			s.log.Error().Err(err).Str("key", b.Key).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.log.Info().Int("deleted", deleted).Int("retention_days", retentionDays).Msg("Old backups rotated")
	}
	return deleted, nil
}

func parseKey(key string) (time.Time, bool) {
	if !strings.HasPrefix(key, keyPrefix) || !strings.HasSuffix(key, keySuffix) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(key, keyPrefix), keySuffix)
	ts, err := time.Parse(timestampLayout, raw)
	return ts, err == nil
}

// compress gzips src into dest and returns the SHA-256 of src.
func compress(src, dest string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open database copy: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	hash := sha256.New()
	zw := gzip.NewWriter(out)
	if _, err := io.Copy(io.MultiWriter(zw, hash), in); err != nil {
		return "", fmt.Errorf("failed to compress database copy: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish archive: %w", err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
