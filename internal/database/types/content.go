package types

import (
	"errors"
	"slices"
	"time"

	"github.com/uptrace/bun"
)

// ErrContentNotFound is returned when a content document does not exist.
var ErrContentNotFound = errors.New("content not found")

// ContentKind distinguishes top-level comments from replies.
type ContentKind string

const (
	ContentKindComment ContentKind = "comment"
	ContentKindReply   ContentKind = "reply"
)

// ContentStatus is the moderation state of a content document.
type ContentStatus string

const (
	ContentStatusActive  ContentStatus = "active"
	ContentStatusDeleted ContentStatus = "deleted" // Deleted by the author
	ContentStatusRemoved ContentStatus = "removed" // Removed by moderation
)

// Content is a comment or reply attached to a web page.
type Content struct {
	bun.BaseModel `bun:"table:contents"`

	ID        string        `bun:",pk"                   json:"id"`
	AuthorID  string        `bun:",notnull"              json:"authorId"`
	Kind      ContentKind   `bun:",notnull"              json:"kind"`
	ParentID  string        `bun:",nullzero"             json:"parentId,omitempty"` // Replied-to content for replies
	SourceID  string        `bun:",notnull"              json:"sourceId"`           // Website the content is attached to
	SourceRef string        `bun:",notnull"              json:"sourceRef"`          // Location of the content on the page
	Topics    []string      `bun:",array"                json:"topics"`
	Status    ContentStatus `bun:",notnull"              json:"status"`
	CreatedAt time.Time     `bun:",notnull"              json:"createdAt"`
	UpdatedAt time.Time     `bun:",notnull,default:now()" json:"updatedAt"`
}

// Available reports whether the content can still receive engagement.
func (c *Content) Available() bool {
	return c != nil && c.Status == ContentStatusActive
}

// HasTopic reports whether the content is classified into the topic.
func (c *Content) HasTopic(topic string) bool {
	return slices.Contains(c.Topics, topic)
}
