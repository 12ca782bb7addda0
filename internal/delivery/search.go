package delivery

import (
	"context"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/moviebot/internal/catalog"
	"github.com/MarcoPoloResearchLab/moviebot/internal/metadata"
	"github.com/MarcoPoloResearchLab/moviebot/internal/payload"
)

const minQueryLength = 2

// SearchState names the shape of a search answer.
type SearchState string

const (
	SearchTooShort SearchState = "too_short"
	SearchNotFound SearchState = "not_found"
	SearchResults  SearchState = "results"
)

// SearchResult is the answer to a free-text query.
type SearchResult struct {
	State  SearchState
	Movies []catalog.Movie
	// Suggestion is the TMDB match shown when the catalog has nothing.
	Suggestion *metadata.Info
}

// Search records the user and looks the text up in the catalog.
func (f *Flow) Search(ctx context.Context, userID int64, username, text string) (SearchResult, error) {
	f.recordUser(ctx, userID, username)

	query := catalog.NormalizeName(text)
	if utf8.RuneCountInString(query) < minQueryLength {
		return SearchResult{State: SearchTooShort}, nil
	}

	movies, err := f.catalog.Search(ctx, query)
	if err != nil {
		return SearchResult{}, err
	}
	if len(movies) == 0 {
		return SearchResult{State: SearchNotFound, Suggestion: f.lookupMetadata(ctx, text)}, nil
	}
	return SearchResult{State: SearchResults, Movies: movies}, nil
}

// Card is a catalog entry prepared for display with its plain deep link.
type Card struct {
	Movie catalog.Movie
	Info  *metadata.Info
	Link  string
}

// MovieCard enriches a catalog entry; nil is returned for unknown codes.
func (f *Flow) MovieCard(ctx context.Context, movieCode string) (*Card, error) {
	movie, err := f.catalog.Get(ctx, movieCode)
	if err != nil || movie == nil {
		return nil, err
	}
	card := f.CardFor(ctx, *movie)
	return &card, nil
}

// CardFor builds the card for an already loaded movie.
func (f *Flow) CardFor(ctx context.Context, movie catalog.Movie) Card {
	return Card{
		Movie: movie,
		Info:  f.lookupMetadata(ctx, movie.Title),
		Link:  payload.Link(f.botUsername, payload.Encode(movie.Code, payload.DefaultPart, "")),
	}
}
