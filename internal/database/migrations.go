package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/moviebot/internal/catalog"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeMovieCodes = "2026-10-01_normalize_movie_codes"
	migrationRecountMovieParts   = "2026-10-01_recount_movie_parts"
	migrationFoldMovieSearchKeys = "2026-10-17_fold_movie_search_keys"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeMovieCodes, apply: normalizeMovieCodes},
		{name: migrationRecountMovieParts, apply: recountMovieParts},
		{name: migrationFoldMovieSearchKeys, apply: foldMovieSearchKeys},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeMovieCodes lowercases codes imported from older catalogs. Rows whose
// normalized code already exists are left untouched.
func normalizeMovieCodes(db *gorm.DB) error {
	return db.Exec("UPDATE OR IGNORE movies SET code = lower(trim(code)) WHERE code <> lower(trim(code))").Error
}

// recountMovieParts rewrites parts as the number of stored files, ignoring holes.
func recountMovieParts(db *gorm.DB) error {
	var movies []catalog.Movie
	if err := db.Find(&movies).Error; err != nil {
		return err
	}
	for _, movie := range movies {
		expected := movie.FileIDs().Count()
		if movie.Parts == expected {
			continue
		}
		if err := db.Model(&catalog.Movie{}).Where("code = ?", movie.Code).Update("parts", expected).Error; err != nil {
			return err
		}
	}
	return nil
}

// foldMovieSearchKeys fills search_key for rows written before the column existed.
func foldMovieSearchKeys(db *gorm.DB) error {
	var movies []catalog.Movie
	if err := db.Find(&movies).Error; err != nil {
		return err
	}
	for _, movie := range movies {
		key := catalog.SearchKey(movie.Code, movie.Title)
		if movie.SearchKey == key {
			continue
		}
		if err := db.Model(&catalog.Movie{}).Where("code = ?", movie.Code).Update("search_key", key).Error; err != nil {
			return err
		}
	}
	return nil
}
