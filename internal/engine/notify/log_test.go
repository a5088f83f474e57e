package notify_test

import (
	"testing"
	"time"

	"github.com/robalyx/marginalia/internal/database/types"
	"github.com/robalyx/marginalia/internal/engine/notify"
	"github.com/robalyx/marginalia/internal/kv"
	"github.com/robalyx/marginalia/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func TestValidate(t *testing.T) {
	t.Parallel()

	comment := notify.NewComment(notify.CommentPayload{CommentID: "c1", Event: notify.EventUpvote, Count: 1}, now)

	mismatched := comment
	mismatched.Kind = notify.KindUser

	both := comment
	both.User = &notify.UserPayload{ActorID: "u1"}

	tests := []struct {
		name string
		n    notify.Notification
		ok   bool
	}{
		{name: "comment", n: comment, ok: true},
		{name: "reply", n: notify.NewReply(notify.ReplyPayload{ReplyID: "r1"}, now), ok: true},
		{name: "user", n: notify.NewUser(notify.UserPayload{ActorID: "u1"}, now), ok: true},
		{name: "kind mismatch", n: mismatched},
		{name: "two payloads", n: both},
		{name: "empty", n: notify.Notification{ID: "x", Kind: notify.KindComment}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.n.Validate()
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, notify.ErrInvalidNotification)
			}
		})
	}
}

func TestEngagementPicksPayloadByContentKind(t *testing.T) {
	t.Parallel()

	comment := &types.Content{ID: "c1", Kind: types.ContentKindComment, SourceRef: "ref"}
	reply := &types.Content{ID: "r1", Kind: types.ContentKindReply, ParentID: "c1"}

	n := notify.Engagement(comment, notify.EventBookmark, 3, now)
	assert.Equal(t, notify.KindComment, n.Kind)
	require.NotNil(t, n.Comment)
	assert.Equal(t, "ref", n.Comment.SourceRef)

	n = notify.Engagement(reply, notify.EventUpvote, 5, now)
	assert.Equal(t, notify.KindReply, n.Kind)
	require.NotNil(t, n.Reply)
	assert.Equal(t, "c1", n.Reply.ParentID)
}

func TestLogEmitAndList(t *testing.T) {
	t.Parallel()

	store, mr := testutil.NewStore(t)
	log := notify.NewLog(store, zap.NewNop())
	ctx := t.Context()

	for i := range 3 {
		n := notify.NewComment(notify.CommentPayload{CommentID: "c1", Event: notify.EventUpvote, Count: uint64(i + 1)},
			now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, log.Emit(ctx, "author", n))
	}

	list, err := log.List(ctx, "author", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, uint64(3), list[0].Comment.Count)
	assert.Equal(t, uint64(2), list[1].Comment.Count)

	count, err := log.Count(ctx, "author")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	members, err := mr.ZMembers(kv.NotificationIndexKey("author"))
	require.NoError(t, err)
	assert.Len(t, members, 3)
}

func TestLogRejectsInvalidNotification(t *testing.T) {
	t.Parallel()

	store, mr := testutil.NewStore(t)
	log := notify.NewLog(store, zap.NewNop())

	err := log.Emit(t.Context(), "author", notify.Notification{ID: "x", Kind: notify.KindUser})
	require.ErrorIs(t, err, notify.ErrInvalidNotification)
	assert.False(t, mr.Exists(kv.NotificationKey("author")))
}
