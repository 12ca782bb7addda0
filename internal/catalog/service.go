package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// SearchLimit caps the number of matches returned by Search.
	SearchLimit = 10
	// MaxParts is the highest part number AddPart accepts.
	MaxParts = 100
)

var (
	// ErrMovieNotFound indicates the requested movie code is not in the catalog.
	ErrMovieNotFound = errors.New("catalog: movie not found")
	// ErrInvalidPart indicates a part number outside 1..MaxParts.
	ErrInvalidPart = errors.New("catalog: invalid part number")
	// ErrInvalidMovie indicates a record without a code or file reference.
	ErrInvalidMovie = errors.New("catalog: invalid movie record")

	errMissingDatabase = errors.New("catalog: database connection required")
)

// ServiceConfig describes the dependencies of the catalog service.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service persists movie records.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService constructs the catalog service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

// Add upserts the record by its normalized code, replacing the stored title and files.
func (s *Service) Add(ctx context.Context, movie Movie) error {
	return s.save(s.db.WithContext(ctx), movie)
}

func (s *Service) save(tx *gorm.DB, movie Movie) error {
	movie.Code = NormalizeCode(movie.Code)
	if movie.Code == "" {
		return ErrInvalidMovie
	}
	movie.SetFileIDs(movie.FileIDs())
	movie.SearchKey = SearchKey(movie.Code, movie.Title)

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "file_ids", "parts", "search_key", "updated_at"}),
	}).Create(&movie).Error
	if err != nil {
		s.logger.Error("movie upsert failed", zap.String("code", movie.Code), zap.Error(err))
		return fmt.Errorf("catalog: save %q: %w", movie.Code, err)
	}
	return nil
}

// Get returns the movie for the code, or nil when the code is empty or unknown.
func (s *Service) Get(ctx context.Context, code string) (*Movie, error) {
	return s.get(s.db.WithContext(ctx), code)
}

func (s *Service) get(tx *gorm.DB, code string) (*Movie, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, nil
	}
	var movie Movie
	err := tx.Where("code = ?", normalized).Take(&movie).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get %q: %w", normalized, err)
	}
	return &movie, nil
}

// Search matches the query as a case-insensitive substring of the code or title.
func (s *Service) Search(ctx context.Context, query string) ([]Movie, error) {
	needle := strings.ToLower(strings.Join(strings.Fields(query), " "))
	if needle == "" {
		return nil, nil
	}
	pattern := "%" + escapeLike(needle) + "%"

	var movies []Movie
	err := s.db.WithContext(ctx).
		Where(`search_key LIKE ? ESCAPE '\'`, pattern).
		Limit(SearchLimit).
		Find(&movies).Error
	if err != nil {
		return nil, fmt.Errorf("catalog: search %q: %w", needle, err)
	}
	return movies, nil
}

// Delete removes the movie and reports whether it existed.
func (s *Service) Delete(ctx context.Context, code string) (bool, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return false, nil
	}
	result := s.db.WithContext(ctx).Where("code = ?", normalized).Delete(&Movie{})
	if result.Error != nil {
		return false, fmt.Errorf("catalog: delete %q: %w", normalized, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// List returns up to limit movies in insertion order; a non-positive limit returns all.
func (s *Service) List(ctx context.Context, limit int) ([]Movie, error) {
	query := s.db.WithContext(ctx).Order("created_at ASC").Order("code ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var movies []Movie
	if err := query.Find(&movies).Error; err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	return movies, nil
}

// Count returns the number of catalog records.
func (s *Service) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Movie{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("catalog: count: %w", err)
	}
	return count, nil
}

// AddPart stores fileID as the given 1-based part, padding missing parts with holes.
func (s *Service) AddPart(ctx context.Context, code string, part int, fileID string) (*Movie, error) {
	if part < 1 || part > MaxParts {
		return nil, ErrInvalidPart
	}
	if strings.TrimSpace(fileID) == "" {
		return nil, ErrInvalidMovie
	}

	var updated *Movie
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		movie, err := s.get(tx, code)
		if err != nil {
			return err
		}
		if movie == nil {
			return ErrMovieNotFound
		}
		movie.SetFileIDs(placePart(movie.FileIDs(), part, fileID))
		if err := s.save(tx, *movie); err != nil {
			return err
		}
		updated = movie
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func placePart(fileIDs FileIDs, part int, fileID string) FileIDs {
	padded := make(FileIDs, len(fileIDs), max(len(fileIDs), part))
	copy(padded, fileIDs)
	for len(padded) < part {
		padded = append(padded, nil)
	}
	padded[part-1] = FileRef(fileID)
	return padded
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
