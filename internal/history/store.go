// Package history persists the record of every publish attempt so users can
// review, retry and fetch analytics for past posts.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/crosspost-io/crosspost/internal/common/config"
)

// ErrInvalidDatabaseType is returned for unknown history backends.
var ErrInvalidDatabaseType = errors.New("invalid database type")

// PostRecord is one publish attempt on one platform.
type PostRecord struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	UserID     string    `gorm:"index;size:128" json:"user_id"`
	Platform   string    `gorm:"index;size:32" json:"platform"`
	PlatformID string    `gorm:"size:256" json:"platform_id,omitempty"`
	URL        string    `gorm:"size:512" json:"url,omitempty"`
	Text       string    `gorm:"type:text" json:"text"`
	Success    bool      `json:"success"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// Store records publish attempts in a relational database.
type Store struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewStore opens the configured database and migrates the schema.
func NewStore(logger *zap.Logger, cfg *config.HistoryConfig) (*Store, error) {
	logger = logger.Named("history")

	var dialector gorm.Dialector
	switch cfg.Type {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, ErrInvalidDatabaseType
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&PostRecord{}); err != nil {
		return nil, err
	}

	return &Store{logger: logger, db: db}, nil
}

// Record stores one publish attempt. The ID is generated here so callers
// can correlate results immediately.
func (s *Store) Record(ctx context.Context, rec *PostRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		s.logger.Error("failed to record post",
			zap.String("platform", rec.Platform),
			zap.Error(err))
		return err
	}
	return nil
}

// Recent returns the newest records for a user, most recent first.
func (s *Store) Recent(ctx context.Context, userID string, limit int) ([]PostRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var records []PostRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// ByPlatform returns the newest records for a user on one platform.
func (s *Store) ByPlatform(ctx context.Context, userID, platform string, limit int) ([]PostRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var records []PostRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND platform = ?", userID, platform).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// Get returns one record by ID, or nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*PostRecord, error) {
	var rec PostRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
