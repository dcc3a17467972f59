package services

import (
	"sort"
	"unicode/utf8"

	"github.com/ShepherdHQ/shepherd-backend/errors"
	"github.com/ShepherdHQ/shepherd-backend/types"
)

const (
	// previewMaxLen is the maximum number of characters of message text shown
	// in a notification body before truncation.
	previewMaxLen = 100

	// mediaPreviewPlaceholder replaces the body for media messages. Media
	// content never leaks into a lock-screen preview.
	mediaPreviewPlaceholder = "Sent an attachment"
)

// Audience is the partitioned recipient set for one domain event. A user
// appears in at most one of the two slices; the sender appears in neither.
type Audience struct {
	Mention []string
	Regular []string
}

// Empty reports whether the audience contains no recipients at all.
// Callers must skip dispatch entirely for an empty audience.
func (a Audience) Empty() bool {
	return len(a.Mention) == 0 && len(a.Regular) == 0
}

// ResolveRecipients computes who should be notified for an event.
//
// Active members are those who have not left the conversation, excluding the
// sender. Event chats additionally honor their per-conversation opt-out list;
// for every other conversation type a populated exclusion list has no effect.
// Mentioned active members land in Audience.Mention, everyone else in
// Audience.Regular. The returned slices are sorted for deterministic output.
//
// An unknown conversation is a caller bug, not an empty audience, and is
// reported as a not-found error so it cannot be mistaken for "nobody to
// notify".
func ResolveRecipients(
	event *types.DomainEvent,
	conversation *types.Conversation,
	members []*types.ConversationMember,
	exclusions []string,
) (Audience, error) {
	if conversation == nil {
		return Audience{}, errors.ConversationNotFound(event.ConversationID)
	}

	active := make(map[string]struct{}, len(members))
	for _, m := range members {
		if m.LeftAt != nil {
			continue
		}
		if m.UserID == event.SenderID {
			continue
		}
		active[m.UserID] = struct{}{}
	}

	if conversation.Type == types.ConversationTypeEvent {
		for _, userID := range exclusions {
			delete(active, userID)
		}
	}

	if len(active) == 0 {
		return Audience{}, nil
	}

	mentioned := make(map[string]struct{}, len(event.MentionedUserIDs))
	for _, userID := range event.MentionedUserIDs {
		mentioned[userID] = struct{}{}
	}

	var audience Audience
	for userID := range active {
		if _, ok := mentioned[userID]; ok {
			audience.Mention = append(audience.Mention, userID)
		} else {
			audience.Regular = append(audience.Regular, userID)
		}
	}
	sort.Strings(audience.Mention)
	sort.Strings(audience.Regular)

	return audience, nil
}

// Preview renders the notification body for an event. Media messages get a
// fixed placeholder; long text is cut to the first 100 characters plus an
// ellipsis marker; short text passes through unchanged.
func Preview(event *types.DomainEvent) string {
	if event.ContentKind == types.ContentKindMedia {
		return mediaPreviewPlaceholder
	}

	if utf8.RuneCountInString(event.Content) <= previewMaxLen {
		return event.Content
	}

	runes := []rune(event.Content)
	return string(runes[:previewMaxLen]) + "..."
}
