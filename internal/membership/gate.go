// Package membership decides whether a user satisfies the required-channel rule.
package membership

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/moviebot/internal/metrics"
	"go.uber.org/zap"
)

// Status is the membership state reported for a user in a channel.
type Status string

const (
	StatusCreator       Status = "creator"
	StatusOwner         Status = "owner"
	StatusAdministrator Status = "administrator"
	StatusMember        Status = "member"
	StatusRestricted    Status = "restricted"
	StatusLeft          Status = "left"
	StatusKicked        Status = "kicked"
)

var (
	// ErrNotParticipant is returned by lookups that explicitly report non-membership.
	ErrNotParticipant = errors.New("membership: user is not a participant")
	// ErrPermissionDenied is returned when the bot may not inspect the channel.
	ErrPermissionDenied = errors.New("membership: bot lacks permission to inspect members")
)

// Lookup fetches a user's membership status in a channel.
type Lookup interface {
	MembershipStatus(ctx context.Context, channelID, userID int64) (Status, error)
}

// Gate applies the subscription policy on top of a Lookup.
type Gate struct {
	lookup    Lookup
	channelID int64
	logger    *zap.Logger
}

// NewGate builds a gate; a zero channel id disables the check.
func NewGate(lookup Lookup, channelID int64, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{lookup: lookup, channelID: channelID, logger: logger}
}

// Enabled reports whether a required channel is configured.
func (g *Gate) Enabled() bool {
	return g != nil && g.channelID != 0 && g.lookup != nil
}

// ChannelID returns the configured channel.
func (g *Gate) ChannelID() int64 {
	if g == nil {
		return 0
	}
	return g.channelID
}

// Check reports whether the user may proceed. Only an explicit "not a participant"
// answer denies access; lookup failures, including missing permissions, allow it.
func (g *Gate) Check(ctx context.Context, userID int64) bool {
	if !g.Enabled() {
		return true
	}

	status, err := g.lookup.MembershipStatus(ctx, g.channelID, userID)
	switch {
	case err == nil:
		return IsMember(status)
	case errors.Is(err, ErrNotParticipant):
		return false
	case errors.Is(err, ErrPermissionDenied):
		g.logger.Warn("bot cannot inspect channel members, allowing user",
			zap.Int64("channel_id", g.channelID),
			zap.Int64("user_id", userID),
			zap.Error(err))
		return true
	default:
		metrics.ExternalFailuresTotal.WithLabelValues("membership").Inc()
		g.logger.Warn("membership lookup failed, allowing user",
			zap.Int64("channel_id", g.channelID),
			zap.Int64("user_id", userID),
			zap.Error(err))
		return true
	}
}

// IsMember reports whether the status counts as joined.
func IsMember(status Status) bool {
	switch Status(strings.ToLower(string(status))) {
	case StatusMember, StatusAdministrator, StatusCreator, StatusOwner:
		return true
	default:
		return false
	}
}
