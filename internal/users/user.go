package users

import (
	"strings"
	"time"
)

// User records a chat user the bot has interacted with.
type User struct {
	UserID     int64     `gorm:"column:user_id;primaryKey;autoIncrement:false;not null"`
	Username   *string   `gorm:"column:username;size:190"`
	LastSeenAt time.Time `gorm:"column:last_seen_at"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing bot users.
func (User) TableName() string {
	return "users"
}

// normalizeUsername maps blank handles to nil.
func normalizeUsername(value string) *string {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "@")
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
