package catalog

import (
	"regexp"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// FileIDs is the ordered list of stored file references; a nil entry is a missing part.
type FileIDs []*string

// Present reports whether the 1-based part has a stored file.
func (ids FileIDs) Present(part int) bool {
	index := part - 1
	return index >= 0 && index < len(ids) && ids[index] != nil
}

// At returns the file reference for the 1-based part.
func (ids FileIDs) At(part int) (string, bool) {
	if !ids.Present(part) {
		return "", false
	}
	return *ids[part-1], true
}

// Count returns the number of non-missing entries.
func (ids FileIDs) Count() int {
	count := 0
	for _, id := range ids {
		if id != nil {
			count++
		}
	}
	return count
}

// AvailableParts lists the 1-based part numbers that have a stored file.
func (ids FileIDs) AvailableParts() []int {
	parts := make([]int, 0, len(ids))
	for index, id := range ids {
		if id != nil {
			parts = append(parts, index+1)
		}
	}
	return parts
}

// Movie is the catalog record keyed by its normalized code.
type Movie struct {
	Code      string                      `gorm:"column:code;primaryKey;size:190;not null"`
	Title     string                      `gorm:"column:title;size:512;not null"`
	Files     datatypes.JSONType[FileIDs] `gorm:"column:file_ids;not null"`
	Parts     int                         `gorm:"column:parts;not null;default:0"`
	SearchKey string                      `gorm:"column:search_key;size:1024;not null;default:''"`
	CreatedAt time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName binds the record to the movies table.
func (Movie) TableName() string {
	return "movies"
}

// NewMovie builds a record with parts derived from the file list.
func NewMovie(code, title string, fileIDs FileIDs) Movie {
	movie := Movie{Code: NormalizeCode(code), Title: strings.TrimSpace(title)}
	movie.SetFileIDs(fileIDs)
	return movie
}

// FileIDs returns the stored file references.
func (m Movie) FileIDs() FileIDs {
	return m.Files.Data()
}

// SetFileIDs replaces the file references and recomputes the part count.
func (m *Movie) SetFileIDs(fileIDs FileIDs) {
	copied := make(FileIDs, len(fileIDs))
	copy(copied, fileIDs)
	m.Files = datatypes.NewJSONType(copied)
	m.Parts = copied.Count()
}

// FileRef wraps a file id for insertion into FileIDs.
func FileRef(id string) *string {
	return &id
}

var nonWordPattern = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)

// NormalizeCode canonicalizes a lookup key.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// SearchKey folds the code and title into the lowercase text matched by Search.
// SQLite only folds ASCII case, so the folding happens here. The newline keeps a
// query from matching across the code and title, since queries never contain one.
func SearchKey(code, title string) string {
	return strings.ToLower(NormalizeCode(code) + "\n" + strings.Join(strings.Fields(title), " "))
}

// NormalizeName strips punctuation and lowercases free text used for codes and searches.
func NormalizeName(text string) string {
	return strings.ToLower(strings.TrimSpace(nonWordPattern.ReplaceAllString(text, "")))
}
