package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "catalog.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Movie{}); err != nil {
		t.Fatalf("failed to migrate movies: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create catalog service: %v", err)
	}
	return service
}

func TestAddAndGetNormalizeCode(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if err := service.Add(ctx, NewMovie("  Dune ", "Dune 2021", FileIDs{FileRef("file-1")})); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	movie, err := service.Get(ctx, "DUNE  ")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if movie == nil {
		t.Fatalf("expected movie to be found")
	}
	if movie.Code != "dune" || movie.Title != "Dune 2021" || movie.Parts != 1 {
		t.Fatalf("unexpected movie %+v", movie)
	}
	if fileID, ok := movie.FileIDs().At(1); !ok || fileID != "file-1" {
		t.Fatalf("unexpected part 1 file %q (present=%v)", fileID, ok)
	}

	missing, err := service.Get(ctx, "")
	if err != nil || missing != nil {
		t.Fatalf("expected empty code to return nothing, got %+v, %v", missing, err)
	}
}

func TestAddReplacesWholeRecord(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if err := service.Add(ctx, NewMovie("dune", "Dune", FileIDs{FileRef("a"), FileRef("b")})); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := service.Add(ctx, NewMovie("dune", "Dune Remastered", FileIDs{FileRef("c")})); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	movie, err := service.Get(ctx, "dune")
	if err != nil || movie == nil {
		t.Fatalf("get failed: %v", err)
	}
	if movie.Title != "Dune Remastered" || movie.Parts != 1 || len(movie.FileIDs()) != 1 {
		t.Fatalf("expected whole-record replace, got %+v files=%v", movie, movie.FileIDs())
	}
}

func TestAddPartPadsHoles(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if err := service.Add(ctx, NewMovie("kgf", "KGF", FileIDs{FileRef("f1")})); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	movie, err := service.AddPart(ctx, "kgf", 3, "f3")
	if err != nil {
		t.Fatalf("add part failed: %v", err)
	}
	files := movie.FileIDs()
	if len(files) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(files))
	}
	if files[1] != nil {
		t.Fatalf("expected hole at part 2")
	}
	if movie.Parts != 2 {
		t.Fatalf("expected parts to count non-holes, got %d", movie.Parts)
	}

	stored, err := service.Get(ctx, "kgf")
	if err != nil || stored == nil {
		t.Fatalf("reload failed: %v", err)
	}
	if stored.Parts != 2 || stored.FileIDs().Present(2) || !stored.FileIDs().Present(3) {
		t.Fatalf("unexpected stored files %v parts=%d", stored.FileIDs(), stored.Parts)
	}
	if parts := stored.FileIDs().AvailableParts(); len(parts) != 2 || parts[0] != 1 || parts[1] != 3 {
		t.Fatalf("unexpected available parts %v", parts)
	}

	filled, err := service.AddPart(ctx, "kgf", 2, "f2")
	if err != nil {
		t.Fatalf("fill hole failed: %v", err)
	}
	if filled.Parts != 3 {
		t.Fatalf("expected 3 parts after filling hole, got %d", filled.Parts)
	}
}

func TestAddPartRejectsUnknownMovieAndBadPart(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.AddPart(ctx, "ghost", 2, "f"); !errors.Is(err, ErrMovieNotFound) {
		t.Fatalf("expected ErrMovieNotFound, got %v", err)
	}
	if _, err := service.AddPart(ctx, "ghost", 0, "f"); !errors.Is(err, ErrInvalidPart) {
		t.Fatalf("expected ErrInvalidPart, got %v", err)
	}
}

func TestAddPartRejectsPartsAboveLimit(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if err := service.Add(ctx, NewMovie("dune", "Dune", FileIDs{FileRef("f1")})); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	for _, part := range []int{MaxParts + 1, 2_000_000_000, 1 << 62} {
		if _, err := service.AddPart(ctx, "dune", part, "f2"); !errors.Is(err, ErrInvalidPart) {
			t.Fatalf("expected ErrInvalidPart for part %d, got %v", part, err)
		}
	}

	movie, err := service.AddPart(ctx, "dune", MaxParts, "last")
	if err != nil {
		t.Fatalf("add part at the limit failed: %v", err)
	}
	if len(movie.FileIDs()) != MaxParts || movie.Parts != 2 {
		t.Fatalf("unexpected movie after filling the last slot: %d slots, %d parts", len(movie.FileIDs()), movie.Parts)
	}
}

func TestSearchMatchesCodeOrTitleAndCapsResults(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	fixtures := []Movie{
		NewMovie("dune", "Dune", FileIDs{FileRef("1")}),
		NewMovie("arrival", "Arrival", FileIDs{FileRef("2")}),
		NewMovie("bladerunner", "Blade Runner 2049", FileIDs{FileRef("3")}),
	}
	for i := 0; i < 12; i++ {
		fixtures = append(fixtures, NewMovie("saga"+string(rune('a'+i)), "Star Saga", FileIDs{FileRef("s")}))
	}
	for _, movie := range fixtures {
		if err := service.Add(ctx, movie); err != nil {
			t.Fatalf("add %s failed: %v", movie.Code, err)
		}
	}

	byTitle, err := service.Search(ctx, "RUNNER")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(byTitle) != 1 || byTitle[0].Code != "bladerunner" {
		t.Fatalf("unexpected title search results %+v", byTitle)
	}

	byCode, err := service.Search(ctx, "arri")
	if err != nil || len(byCode) != 1 {
		t.Fatalf("unexpected code search results %+v, %v", byCode, err)
	}

	capped, err := service.Search(ctx, "saga")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(capped) != SearchLimit {
		t.Fatalf("expected %d results, got %d", SearchLimit, len(capped))
	}

	crossField, err := service.Search(ctx, "dune dune")
	if err != nil || len(crossField) != 0 {
		t.Fatalf("expected no match across code and title, got %d, %v", len(crossField), err)
	}

	wildcard, err := service.Search(ctx, "%")
	if err != nil || len(wildcard) != 0 {
		t.Fatalf("expected escaped wildcard to match nothing, got %d, %v", len(wildcard), err)
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if err := service.Add(ctx, NewMovie("dune", "Dune", FileIDs{FileRef("1")})); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	removed, err := service.Delete(ctx, "Dune")
	if err != nil || !removed {
		t.Fatalf("expected delete to remove record, got %v, %v", removed, err)
	}
	removed, err = service.Delete(ctx, "dune")
	if err != nil || removed {
		t.Fatalf("expected second delete to report absence, got %v, %v", removed, err)
	}
	count, err := service.Count(ctx)
	if err != nil || count != 0 {
		t.Fatalf("expected empty catalog, got %d, %v", count, err)
	}
}

func TestNormalizeNameStripsPunctuation(t *testing.T) {
	if got := NormalizeName("  Spider-Man: No Way Home! "); got != "spiderman no way home" {
		t.Fatalf("unexpected normalized name %q", got)
	}
	if got := NormalizeName("the_matrix"); got != "the_matrix" {
		t.Fatalf("expected underscores to survive, got %q", got)
	}
}

func TestSearchFoldsNonASCIICase(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if err := service.Add(ctx, NewMovie("amelie", "ÉLITE Ästhetik", FileIDs{FileRef("a1")})); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	for _, query := range []string{NormalizeName("élite"), "ÄSTHETIK", "élite  ästhetik"} {
		matches, err := service.Search(ctx, query)
		if err != nil {
			t.Fatalf("search %q failed: %v", query, err)
		}
		if len(matches) != 1 || matches[0].Code != "amelie" {
			t.Fatalf("expected %q to match amelie, got %+v", query, matches)
		}
	}
}
