package api

import (
	"github.com/robalyx/marginalia/internal/engine/risk"
	"github.com/robalyx/marginalia/internal/engine/vote"
)

// VoteRequest is a vote click.
type VoteRequest struct {
	ItemID  string `json:"itemId"  validate:"required"`
	VoterID string `json:"voterId" validate:"required"`
	Type    string `json:"type"    validate:"required|in:upvote,downvote"`
}

// VoteResponse carries the voter's vote after the click, absent after a rollback.
type VoteResponse struct {
	Vote   *vote.Vote  `json:"vote"`
	Counts vote.Counts `json:"counts"`
}

// FlagRequest is a flag against a content source.
type FlagRequest struct {
	SourceID  string `json:"sourceId"  validate:"required"`
	FlaggerID string `json:"flaggerId" validate:"required"`
	Reason    string `json:"reason"    validate:"required"`
}

// FlagResponse describes the flagged source after the flag.
type FlagResponse struct {
	Outcome *risk.FlagOutcome `json:"outcome"`
}

// ImpressionRequest is a view of a content source.
type ImpressionRequest struct {
	SourceID string `json:"sourceId" validate:"required"`
}

// EngagementRequest is a user acting on an item.
type EngagementRequest struct {
	ItemID string `json:"itemId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

// BookmarkResponse reports whether the bookmark state changed.
type BookmarkResponse struct {
	Changed bool `json:"changed"`
}

// ReplyRequest is a reply to an item.
type ReplyRequest struct {
	ParentID  string `json:"parentId"  validate:"required"`
	ReplierID string `json:"replierId" validate:"required"`
}

// ReplyResponse carries the parent's reply count.
type ReplyResponse struct {
	Replies uint64 `json:"replies"`
}

// RetopicRequest lists the topics a comment was classified into before an edit.
type RetopicRequest struct {
	Previous []string `json:"previous"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
