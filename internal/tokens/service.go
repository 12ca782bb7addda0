package tokens

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tokenEntropyBytes = 16

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingMovie    = errors.New("movie code is required")
	errInvalidPart     = errors.New("part must be positive")
)

const (
	opServiceNew = "tokens.service.new"
	opCreate     = "tokens.create"
	opVerify     = "tokens.verify"
	opCleanup    = "tokens.cleanup"
)

// ServiceError carries an operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: operation + "." + reason, err: cause}
}

// ServiceConfig describes the dependencies of the token service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Entropy  io.Reader
	Logger   *zap.Logger
}

// Service issues and redeems one-time download tokens.
type Service struct {
	db      *gorm.DB
	clock   func() time.Time
	entropy io.Reader
	logger  *zap.Logger
}

// NewService constructs the token service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	entropy := cfg.Entropy
	if entropy == nil {
		entropy = rand.Reader
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, entropy: entropy, logger: logger}, nil
}

// Create persists a fresh unused token for the user and movie part and returns it.
func (s *Service) Create(ctx context.Context, userID int64, movieCode string, part int) (string, error) {
	code := strings.TrimSpace(movieCode)
	if code == "" {
		return "", newServiceError(opCreate, "missing_movie", errMissingMovie)
	}
	if part < 1 {
		return "", newServiceError(opCreate, "invalid_part", errInvalidPart)
	}

	buffer := make([]byte, tokenEntropyBytes)
	if _, err := io.ReadFull(s.entropy, buffer); err != nil {
		s.logError(opCreate, "entropy_failed", err)
		return "", newServiceError(opCreate, "entropy_failed", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buffer)

	record := Record{
		Token:            token,
		UserID:           userID,
		MovieCode:        code,
		Part:             part,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.Int64("user_id", userID), zap.String("movie_code", code))
		return "", newServiceError(opCreate, "insert_failed", err)
	}
	return token, nil
}

// Verify redeems the token for the user. The lookup and the used flag update happen in
// one transaction guarded by a conditional update, so a token is redeemed at most once.
// It returns the record as it was before redemption, or nil when the token is unknown,
// already used, owned by another user or older than ValidityWindow.
func (s *Service) Verify(ctx context.Context, token string, userID int64) (*Record, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, nil
	}
	validSince := s.clock().UTC().Add(-ValidityWindow).Unix()

	var redeemed *Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record Record
		err := tx.Where("token = ? AND user_id = ? AND used = ? AND created_at_s >= ?", trimmed, userID, false, validSince).
			Take(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return newServiceError(opVerify, "select_failed", err)
		}

		result := tx.Model(&Record{}).
			Where("token = ? AND user_id = ? AND used = ? AND created_at_s >= ?", trimmed, userID, false, validSince).
			Update("used", true)
		if result.Error != nil {
			return newServiceError(opVerify, "mark_used_failed", result.Error)
		}
		if result.RowsAffected != 1 {
			return nil
		}
		redeemed = &record
		return nil
	})
	if err != nil {
		s.logError(opVerify, "transaction_failed", err, zap.Int64("user_id", userID))
		return nil, err
	}
	return redeemed, nil
}

// Cleanup deletes every token older than RetentionWindow regardless of its used flag.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	cutoff := s.clock().UTC().Add(-RetentionWindow).Unix()
	result := s.db.WithContext(ctx).Where("created_at_s < ?", cutoff).Delete(&Record{})
	if result.Error != nil {
		s.logError(opCleanup, "delete_failed", result.Error)
		return 0, newServiceError(opCleanup, "delete_failed", result.Error)
	}
	if result.RowsAffected > 0 {
		s.logger.Info("expired tokens removed", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// Lookup returns the stored record without changing it.
func (s *Service) Lookup(ctx context.Context, token string) (*Record, error) {
	var record Record
	err := s.db.WithContext(ctx).Where("token = ?", token).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("token service error", attrs...)
}
