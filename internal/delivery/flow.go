// Package delivery resolves deep-link starts, part selections and searches into
// transport-independent outcomes.
package delivery

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/moviebot/internal/catalog"
	"github.com/MarcoPoloResearchLab/moviebot/internal/metadata"
	"github.com/MarcoPoloResearchLab/moviebot/internal/metrics"
	"github.com/MarcoPoloResearchLab/moviebot/internal/payload"
	"github.com/MarcoPoloResearchLab/moviebot/internal/tokens"
	"go.uber.org/zap"
)

// State names a step of the start flow.
type State string

const (
	StateWelcome           State = "welcome"
	StateAwaitSubscription State = "await_subscription"
	StateResolveToken      State = "resolve_token"
	StateSelectPart        State = "select_part"
	StateDeliver           State = "deliver"
	StateIssueLink         State = "issue_link"
	StateErrorExpired      State = "error_expired"
	StateErrorNotFound     State = "error_not_found"
)

// reservedPayloadFragments are kept for an external configuration surface and never
// decoded for non-admin users.
var reservedPayloadFragments = []string{"connect", "controller", "setup", "config", "admin", "panel", "settings"}

var (
	errMissingCatalog = errors.New("delivery: catalog required")
	errMissingTokens  = errors.New("delivery: token store required")
	errMissingUsers   = errors.New("delivery: user store required")
	errMissingGate    = errors.New("delivery: subscription gate required")
)

// MovieCatalog reads catalog records.
type MovieCatalog interface {
	Get(ctx context.Context, code string) (*catalog.Movie, error)
	Search(ctx context.Context, query string) ([]catalog.Movie, error)
}

// TokenStore issues and redeems download tokens.
type TokenStore interface {
	Create(ctx context.Context, userID int64, movieCode string, part int) (string, error)
	Verify(ctx context.Context, token string, userID int64) (*tokens.Record, error)
}

// UserRecorder remembers users that interact with the bot.
type UserRecorder interface {
	Upsert(ctx context.Context, userID int64, username string) error
}

// SubscriptionGate decides whether a user passed the channel requirement.
type SubscriptionGate interface {
	Check(ctx context.Context, userID int64) bool
}

// MetadataLookup fetches optional display metadata.
type MetadataLookup interface {
	Lookup(ctx context.Context, query string) (*metadata.Info, error)
}

// LinkShortener shortens outbound download links.
type LinkShortener interface {
	Shorten(ctx context.Context, target string) (string, error)
}

// Config wires the flow's collaborators.
type Config struct {
	Catalog     MovieCatalog
	Tokens      TokenStore
	Users       UserRecorder
	Gate        SubscriptionGate
	Metadata    MetadataLookup
	Shortener   LinkShortener
	BotUsername string
	Logger      *zap.Logger
}

// Flow orchestrates catalog, token and gate checks for one interaction at a time.
type Flow struct {
	catalog     MovieCatalog
	tokens      TokenStore
	users       UserRecorder
	gate        SubscriptionGate
	metadata    MetadataLookup
	shortener   LinkShortener
	botUsername string
	logger      *zap.Logger
}

// NewFlow validates the configuration and builds a Flow.
func NewFlow(cfg Config) (*Flow, error) {
	switch {
	case cfg.Catalog == nil:
		return nil, errMissingCatalog
	case cfg.Tokens == nil:
		return nil, errMissingTokens
	case cfg.Users == nil:
		return nil, errMissingUsers
	case cfg.Gate == nil:
		return nil, errMissingGate
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{
		catalog:     cfg.Catalog,
		tokens:      cfg.Tokens,
		users:       cfg.Users,
		gate:        cfg.Gate,
		metadata:    cfg.Metadata,
		shortener:   cfg.Shortener,
		botUsername: cfg.BotUsername,
		logger:      logger,
	}, nil
}

// StartRequest is an incoming /start command.
type StartRequest struct {
	UserID   int64
	Username string
	Payload  string
	IsAdmin  bool
}

// Outcome is the result of resolving a start request or a part selection.
type Outcome struct {
	State  State
	Movie  *catalog.Movie
	Part   int
	Parts  []int
	FileID string
	// Link is the download link for StateIssueLink and the retry link for
	// StateAwaitSubscription.
	Link string
}

// Start resolves a /start command with an optional deep-link payload.
func (f *Flow) Start(ctx context.Context, request StartRequest) (Outcome, error) {
	f.recordUser(ctx, request.UserID, request.Username)

	outcome, err := f.start(ctx, request)
	if err != nil {
		return Outcome{}, err
	}
	metrics.StartOutcomesTotal.WithLabelValues(string(outcome.State)).Inc()
	return outcome, nil
}

func (f *Flow) start(ctx context.Context, request StartRequest) (Outcome, error) {
	raw := strings.TrimSpace(request.Payload)
	if raw == "" {
		return Outcome{State: StateWelcome}, nil
	}
	if !request.IsAdmin && IsReservedPayload(raw) {
		return Outcome{State: StateWelcome}, nil
	}

	movieCode, part, token := payload.Decode(raw)
	f.logger.Debug("start payload decoded",
		zap.Int64("user_id", request.UserID),
		zap.String("movie_code", movieCode),
		zap.Int("part", part),
		zap.String("token_prefix", tokenPrefix(token)))
	if movieCode == "" {
		return Outcome{State: StateWelcome}, nil
	}

	if !f.gate.Check(ctx, request.UserID) {
		return Outcome{State: StateAwaitSubscription, Link: payload.Link(f.botUsername, raw)}, nil
	}

	if token != "" {
		return f.redeem(ctx, request.UserID, token)
	}

	movie, err := f.catalog.Get(ctx, movieCode)
	if err != nil {
		return Outcome{}, err
	}
	if movie == nil {
		return Outcome{State: StateWelcome}, nil
	}

	files := movie.FileIDs()
	available := files.AvailableParts()
	switch {
	case len(available) == 0:
		return Outcome{State: StateErrorNotFound, Movie: movie}, nil
	case len(available) > 1:
		return Outcome{State: StateSelectPart, Movie: movie, Parts: available}, nil
	}
	if !files.Present(part) {
		part = available[0]
	}
	return f.issueLink(ctx, request.UserID, movie, part)
}

func (f *Flow) redeem(ctx context.Context, userID int64, token string) (Outcome, error) {
	record, err := f.tokens.Verify(ctx, token, userID)
	if err != nil {
		return Outcome{}, err
	}
	if record == nil {
		return Outcome{State: StateErrorExpired}, nil
	}

	f.logger.Debug("token redeemed", zap.Int64("user_id", userID), zap.String("state", string(StateResolveToken)))
	movie, err := f.catalog.Get(ctx, record.MovieCode)
	if err != nil {
		return Outcome{}, err
	}
	if movie == nil {
		return Outcome{State: StateErrorNotFound, Part: record.Part}, nil
	}
	fileID, ok := movie.FileIDs().At(record.Part)
	if !ok {
		return Outcome{State: StateErrorNotFound, Movie: movie, Part: record.Part}, nil
	}
	return Outcome{State: StateDeliver, Movie: movie, Part: record.Part, FileID: fileID}, nil
}

// SelectPart issues a fresh download link for a part chosen from the part picker.
func (f *Flow) SelectPart(ctx context.Context, userID int64, movieCode string, part int) (Outcome, error) {
	if !f.gate.Check(ctx, userID) {
		return Outcome{State: StateAwaitSubscription}, nil
	}
	movie, err := f.catalog.Get(ctx, movieCode)
	if err != nil {
		return Outcome{}, err
	}
	if movie == nil || !movie.FileIDs().Present(part) {
		return Outcome{State: StateErrorNotFound, Movie: movie, Part: part}, nil
	}
	return f.issueLink(ctx, userID, movie, part)
}

func (f *Flow) issueLink(ctx context.Context, userID int64, movie *catalog.Movie, part int) (Outcome, error) {
	token, err := f.tokens.Create(ctx, userID, movie.Code, part)
	if err != nil {
		return Outcome{}, err
	}
	metrics.TokensIssuedTotal.Inc()

	link := payload.Link(f.botUsername, payload.Encode(movie.Code, part, token))
	return Outcome{
		State: StateIssueLink,
		Movie: movie,
		Part:  part,
		Link:  f.shorten(ctx, link),
	}, nil
}

// PartChooser returns the picker for a movie, or nil when the code is unknown.
func (f *Flow) PartChooser(ctx context.Context, movieCode string) (*catalog.Movie, []int, error) {
	movie, err := f.catalog.Get(ctx, movieCode)
	if err != nil || movie == nil {
		return nil, nil, err
	}
	return movie, movie.FileIDs().AvailableParts(), nil
}

// IsReservedPayload reports whether the raw payload contains a reserved fragment.
func IsReservedPayload(raw string) bool {
	lowered := strings.ToLower(raw)
	for _, fragment := range reservedPayloadFragments {
		if strings.Contains(lowered, fragment) {
			return true
		}
	}
	return false
}

func (f *Flow) recordUser(ctx context.Context, userID int64, username string) {
	if err := f.users.Upsert(ctx, userID, username); err != nil {
		f.logger.Warn("failed to record user", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (f *Flow) shorten(ctx context.Context, link string) string {
	if f.shortener == nil {
		return link
	}
	short, err := f.shortener.Shorten(ctx, link)
	if err != nil {
		metrics.ExternalFailuresTotal.WithLabelValues("shortener").Inc()
		f.logger.Warn("link shortener failed, using original link", zap.Error(err))
		return link
	}
	return short
}

func (f *Flow) lookupMetadata(ctx context.Context, query string) *metadata.Info {
	if f.metadata == nil {
		return nil
	}
	info, err := f.metadata.Lookup(ctx, query)
	if err != nil {
		metrics.ExternalFailuresTotal.WithLabelValues("tmdb").Inc()
		f.logger.Warn("metadata lookup failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	return info
}

func tokenPrefix(token string) string {
	if len(token) > 10 {
		return token[:10]
	}
	return token
}
