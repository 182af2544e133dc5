package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// DiskStore implements Store using one file per key under a restricted
// directory. Keys are hashed to filesystem-safe names; the hashing is an
// implementation detail, not part of the contract.
type DiskStore struct {
	logger  *zap.Logger
	baseDir string
}

// NewDiskStore creates the base directory with owner-only permissions.
func NewDiskStore(logger *zap.Logger, baseDir string) (*DiskStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, err
	}
	// MkdirAll keeps existing permissions, tighten explicitly
	if err := os.Chmod(baseDir, 0700); err != nil {
		logger.Warn("could not set restrictive permissions on storage directory",
			zap.String("dir", baseDir),
			zap.Error(err))
	}

	return &DiskStore{
		logger:  logger.Named("storage.disk"),
		baseDir: baseDir,
	}, nil
}

func (s *DiskStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.baseDir, hex.EncodeToString(sum[:])+".json")
}

// Set writes the envelope to a temp file and renames it into place so a
// concurrent reader never observes a half-written record.
func (s *DiskStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	data, err := json.Marshal(newEnvelope(value, ttl, time.Now()))
	if err != nil {
		return err
	}

	target := s.path(key)
	tmp, err := os.CreateTemp(s.baseDir, "write-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), target)
}

func (s *DiskStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}

	if e.expired(time.Now()) {
		_ = s.Delete(ctx, key)
		return nil, ErrNotFound
	}
	return e.Data, nil
}

func (s *DiskStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// CleanupExpired sweeps the storage directory, dropping expired entries.
func (s *DiskStore) CleanupExpired(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return 0, err
	}

	removed := 0
	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(s.baseDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var e envelope
		if err := json.Unmarshal(data, &e); err != nil {
			s.logger.Warn("skipping unreadable storage entry",
				zap.String("file", entry.Name()),
				zap.Error(err))
			continue
		}
		if e.expired(now) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		s.logger.Info("cleaned up expired storage entries", zap.Int("removed", removed))
	}
	return removed, nil
}
