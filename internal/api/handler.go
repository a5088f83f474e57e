package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gookit/validate"
	"github.com/robalyx/marginalia/internal/engine"
	"github.com/robalyx/marginalia/internal/engine/vote"
	"github.com/robalyx/marginalia/pkg/score"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// errBadRequest marks undecodable or invalid request bodies.
var errBadRequest = errors.New("bad request")

// Handler serves the engine events.
type Handler struct {
	engine *engine.Engine
	logger *zap.Logger
}

// NewHandler creates an event handler.
func NewHandler(e *engine.Engine, logger *zap.Logger) *Handler {
	return &Handler{
		engine: e,
		logger: logger.Named("api_handler"),
	}
}

// CastVote applies a vote click.
func (h *Handler) CastVote(w http.ResponseWriter, req bunrouter.Request) error {
	var body VoteRequest
	if err := decode(req, &body); err != nil {
		return h.fail(w, err)
	}

	v, err := h.engine.CastVote(req.Context(), body.ItemID, body.VoterID, vote.Type(body.Type))
	if err != nil {
		return h.fail(w, err)
	}

	counts, err := h.engine.VoteCounts(req.Context(), body.ItemID)
	if err != nil {
		return h.fail(w, err)
	}

	return bunrouter.JSON(w, VoteResponse{Vote: v, Counts: counts})
}

// FlagSource records a flag against a source.
func (h *Handler) FlagSource(w http.ResponseWriter, req bunrouter.Request) error {
	var body FlagRequest
	if err := decode(req, &body); err != nil {
		return h.fail(w, err)
	}

	out, err := h.engine.FlagSource(req.Context(), body.SourceID, body.FlaggerID, score.FlagReason(body.Reason))
	if err != nil {
		return h.fail(w, err)
	}

	return bunrouter.JSON(w, FlagResponse{Outcome: out})
}

// RecordImpression counts a view of a source.
func (h *Handler) RecordImpression(w http.ResponseWriter, req bunrouter.Request) error {
	var body ImpressionRequest
	if err := decode(req, &body); err != nil {
		return h.fail(w, err)
	}

	if err := h.engine.RecordImpression(req.Context(), body.SourceID); err != nil {
		return h.fail(w, err)
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

// AssessSource returns the current risk of a source.
func (h *Handler) AssessSource(w http.ResponseWriter, req bunrouter.Request) error {
	a, err := h.engine.AssessSource(req.Context(), req.Param("id"))
	if err != nil {
		return h.fail(w, err)
	}

	return bunrouter.JSON(w, a)
}

// NotInterested records a "not interested" signal.
func (h *Handler) NotInterested(w http.ResponseWriter, req bunrouter.Request) error {
	var body EngagementRequest
	if err := decode(req, &body); err != nil {
		return h.fail(w, err)
	}

	if err := h.engine.NotInterested(req.Context(), body.ItemID, body.UserID); err != nil {
		return h.fail(w, err)
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

// Bookmark adds a bookmark.
func (h *Handler) Bookmark(w http.ResponseWriter, req bunrouter.Request) error {
	var body EngagementRequest
	if err := decode(req, &body); err != nil {
		return h.fail(w, err)
	}

	changed, err := h.engine.Bookmark(req.Context(), body.ItemID, body.UserID)
	if err != nil {
		return h.fail(w, err)
	}

	return bunrouter.JSON(w, BookmarkResponse{Changed: changed})
}

// Unbookmark removes a bookmark.
func (h *Handler) Unbookmark(w http.ResponseWriter, req bunrouter.Request) error {
	var body EngagementRequest
	if err := decode(req, &body); err != nil {
		return h.fail(w, err)
	}

	changed, err := h.engine.Unbookmark(req.Context(), body.ItemID, body.UserID)
	if err != nil {
		return h.fail(w, err)
	}

	return bunrouter.JSON(w, BookmarkResponse{Changed: changed})
}

// RecordReply counts a reply.
func (h *Handler) RecordReply(w http.ResponseWriter, req bunrouter.Request) error {
	var body ReplyRequest
	if err := decode(req, &body); err != nil {
		return h.fail(w, err)
	}

	count, err := h.engine.RecordReply(req.Context(), body.ParentID, body.ReplierID)
	if err != nil {
		return h.fail(w, err)
	}

	return bunrouter.JSON(w, ReplyResponse{Replies: count})
}

// IndexContent publishes new content into its topic indexes.
func (h *Handler) IndexContent(w http.ResponseWriter, req bunrouter.Request) error {
	if err := h.engine.IndexContent(req.Context(), req.Param("id")); err != nil {
		return h.fail(w, err)
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

// RemoveContent drops content from its topic indexes.
func (h *Handler) RemoveContent(w http.ResponseWriter, req bunrouter.Request) error {
	if err := h.engine.RemoveContent(req.Context(), req.Param("id")); err != nil {
		return h.fail(w, err)
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

// RetopicContent moves a comment between topic indexes after an edit.
func (h *Handler) RetopicContent(w http.ResponseWriter, req bunrouter.Request) error {
	var body RetopicRequest
	if err := decode(req, &body); err != nil {
		return h.fail(w, err)
	}

	if err := h.engine.RetopicContent(req.Context(), req.Param("id"), body.Previous); err != nil {
		return h.fail(w, err)
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

// fail writes the error response matching err.
func (h *Handler) fail(w http.ResponseWriter, err error) error {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Int("status", status), zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return bunrouter.JSON(w, ErrorResponse{Error: err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, engine.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrContentUnavailable):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrTransientConflict):
		return http.StatusConflict
	case errors.Is(err, engine.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into dst and validates its tags.
func decode(req bunrouter.Request, dst any) error {
	if err := sonic.ConfigDefault.NewDecoder(req.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}

	v := validate.Struct(dst)
	if !v.Validate() {
		return fmt.Errorf("%w: %s", errBadRequest, v.Errors.One())
	}

	return nil
}
