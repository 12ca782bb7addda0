package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultCacheSize bounds the number of recently seen users whose username is remembered.
const DefaultCacheSize = 4096

// ErrInvalidUser indicates the update did not carry a usable user id.
var ErrInvalidUser = errors.New("users: invalid user id")

// ServiceConfig describes the dependencies required for user bookkeeping.
type ServiceConfig struct {
	Database  *gorm.DB
	Clock     func() time.Time
	CacheSize int
}

// Service upserts and enumerates bot users.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache *lru.Cache[int64, string]
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[int64, string](size)
	if err != nil {
		return nil, fmt.Errorf("users: cache: %w", err)
	}
	return &Service{
		db:    cfg.Database,
		now:   clock,
		cache: cache,
	}, nil
}

// Upsert records the user and their current username.
// Repeat calls with an unchanged username skip the write while the user stays in the
// bounded recent-users cache.
func (s *Service) Upsert(ctx context.Context, userID int64, username string) error {
	if userID == 0 {
		return ErrInvalidUser
	}
	handle := normalizeUsername(username)
	cacheValue := ""
	if handle != nil {
		cacheValue = *handle
	}
	if previous, ok := s.cache.Get(userID); ok && previous == cacheValue {
		return nil
	}

	user := User{
		UserID:     userID,
		Username:   handle,
		LastSeenAt: s.now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "last_seen_at", "updated_at"}),
	}).Create(&user).Error
	if err != nil {
		return fmt.Errorf("users: upsert %d: %w", userID, err)
	}

	s.cache.Add(userID, cacheValue)
	return nil
}

// Count returns the number of known users.
func (s *Service) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("users: count: %w", err)
	}
	return count, nil
}

// ListIDs returns every known user id in ascending order.
func (s *Service) ListIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.WithContext(ctx).Model(&User{}).Order("user_id ASC").Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("users: list ids: %w", err)
	}
	return ids, nil
}

// Get returns the stored user or nil.
func (s *Service) Get(ctx context.Context, userID int64) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("users: get %d: %w", userID, err)
	}
	return &user, nil
}
