package telegram

import (
	"context"

	"github.com/MarcoPoloResearchLab/moviebot/internal/membership"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ChannelMembership answers membership lookups through getChatMember.
type ChannelMembership struct {
	api ChatMemberGetter
}

// NewChannelMembership wraps the API client.
func NewChannelMembership(api ChatMemberGetter) *ChannelMembership {
	return &ChannelMembership{api: api}
}

// MembershipStatus implements membership.Lookup.
func (m *ChannelMembership) MembershipStatus(ctx context.Context, channelID, userID int64) (membership.Status, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	member, err := m.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: channelID, UserID: userID},
	})
	if err != nil {
		return "", classifyMemberError(err)
	}
	return memberStatus(member), nil
}

// memberStatus folds restricted users into member or left using the is_member flag.
func memberStatus(member tgbotapi.ChatMember) membership.Status {
	status := membership.Status(member.Status)
	if status != membership.StatusRestricted {
		return status
	}
	if member.IsMember {
		return membership.StatusMember
	}
	return membership.StatusLeft
}

func classifyMemberError(err error) error {
	description := Description(err)
	switch {
	case containsAny(description, "user not found", "user_not_participant", "participant_id_invalid"):
		return &memberError{kind: membership.ErrNotParticipant, cause: err}
	case containsAny(description, "member list is inaccessible", "chat_admin_required", "not enough rights", "forbidden", "bot is not a member"):
		return &memberError{kind: membership.ErrPermissionDenied, cause: err}
	default:
		return err
	}
}

type memberError struct {
	kind  error
	cause error
}

func (e *memberError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *memberError) Is(target error) bool {
	return target == e.kind
}

func (e *memberError) Unwrap() error {
	return e.cause
}
