package notify

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robalyx/marginalia/internal/database/types"
)

// ErrInvalidNotification is returned when a notification's payload does not match its kind.
var ErrInvalidNotification = errors.New("invalid notification")

// Kind tags which payload a notification carries.
type Kind string

const (
	KindComment Kind = "comment" // Engagement on the recipient's comment
	KindReply   Kind = "reply"   // Engagement on the recipient's reply
	KindUser    Kind = "user"    // Another user acted towards the recipient
)

// Event is the engagement that triggered a notification.
type Event string

const (
	EventUpvote   Event = "upvote"
	EventDownvote Event = "downvote"
	EventBookmark Event = "bookmark"
	EventReply    Event = "reply"
)

// CommentPayload describes engagement on a comment.
type CommentPayload struct {
	CommentID string `json:"commentId"`
	SourceRef string `json:"sourceRef"`
	Event     Event  `json:"event"`
	Count     uint64 `json:"count"`
}

// ReplyPayload describes engagement on a reply.
type ReplyPayload struct {
	ReplyID   string `json:"replyId"`
	ParentID  string `json:"parentId"`
	SourceRef string `json:"sourceRef"`
	Event     Event  `json:"event"`
	Count     uint64 `json:"count"`
}

// UserPayload describes an action of another user.
type UserPayload struct {
	ActorID string `json:"actorId"`
	ItemID  string `json:"itemId"`
	Event   Event  `json:"event"`
	Count   uint64 `json:"count"`
}

// Notification is a tagged union: exactly the payload matching Kind is set.
type Notification struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	CreatedAt time.Time       `json:"createdAt"`
	Comment   *CommentPayload `json:"comment,omitempty"`
	Reply     *ReplyPayload   `json:"reply,omitempty"`
	User      *UserPayload    `json:"user,omitempty"`
}

// NewComment creates a comment notification.
func NewComment(p CommentPayload, now time.Time) Notification {
	return Notification{ID: uuid.NewString(), Kind: KindComment, CreatedAt: now, Comment: &p}
}

// NewReply creates a reply notification.
func NewReply(p ReplyPayload, now time.Time) Notification {
	return Notification{ID: uuid.NewString(), Kind: KindReply, CreatedAt: now, Reply: &p}
}

// NewUser creates a user notification.
func NewUser(p UserPayload, now time.Time) Notification {
	return Notification{ID: uuid.NewString(), Kind: KindUser, CreatedAt: now, User: &p}
}

// Validate checks that the payload matches the kind.
func (n Notification) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidNotification)
	}

	set := 0
	for _, ok := range []bool{n.Comment != nil, n.Reply != nil, n.User != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: %d payloads set", ErrInvalidNotification, set)
	}

	switch n.Kind {
	case KindComment:
		if n.Comment != nil {
			return nil
		}
	case KindReply:
		if n.Reply != nil {
			return nil
		}
	case KindUser:
		if n.User != nil {
			return nil
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidNotification, n.Kind)
	}

	return fmt.Errorf("%w: payload does not match kind %q", ErrInvalidNotification, n.Kind)
}

// Engagement builds the notification sent to the author of content that
// received an engagement event. Replies get a reply payload, everything else
// a comment payload.
func Engagement(content *types.Content, event Event, count uint64, now time.Time) Notification {
	if content.Kind == types.ContentKindReply {
		return NewReply(ReplyPayload{
			ReplyID:   content.ID,
			ParentID:  content.ParentID,
			SourceRef: content.SourceRef,
			Event:     event,
			Count:     count,
		}, now)
	}

	return NewComment(CommentPayload{
		CommentID: content.ID,
		SourceRef: content.SourceRef,
		Event:     event,
		Count:     count,
	}, now)
}
