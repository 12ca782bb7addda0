package tokens

import "time"

const (
	// ValidityWindow bounds how long an issued token can be redeemed.
	ValidityWindow = 600 * time.Second
	// RetentionWindow bounds how long any token row is kept before cleanup.
	RetentionWindow = 3600 * time.Second
)

// Record is a one-time access token scoped to a user and a movie part.
type Record struct {
	Token            string `gorm:"column:token;primaryKey;size:64;not null"`
	UserID           int64  `gorm:"column:user_id;not null;index"`
	MovieCode        string `gorm:"column:movie_code;size:190;not null"`
	Part             int    `gorm:"column:part;not null;default:1"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index"`
	Used             bool   `gorm:"column:used;not null;default:false"`
}

// TableName binds the record to the tokens table.
func (Record) TableName() string {
	return "tokens"
}

// CreatedAt exposes the issue time.
func (r Record) CreatedAt() time.Time {
	return time.Unix(r.CreatedAtSeconds, 0).UTC()
}
