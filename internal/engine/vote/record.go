package vote

import (
	"strconv"
	"time"

	"github.com/robalyx/marginalia/internal/engine/activity"
	"github.com/robalyx/marginalia/internal/engine/core"
	"github.com/robalyx/marginalia/pkg/score"
)

// Type is the direction of a vote.
type Type string

const (
	TypeUpvote   Type = "upvote"
	TypeDownvote Type = "downvote"
)

// Valid reports whether the type is known.
func (t Type) Valid() bool {
	return t == TypeUpvote || t == TypeDownvote
}

func (t Type) activityType() activity.Type {
	if t == TypeDownvote {
		return activity.TypeDownvote
	}
	return activity.TypeUpvote
}

// Transition is the state change applied by a cast.
//
//go:generate go tool enumer -type=Transition -trimprefix=Transition -transform=lower -text
type Transition int

const (
	// TransitionCast moves from no vote to a vote.
	TransitionCast Transition = iota
	// TransitionRollback removes a vote by casting the same type again.
	TransitionRollback
	// TransitionFlip swaps an upvote for a downvote or the reverse.
	TransitionFlip
)

// Vote is a voter's active vote on an item.
type Vote struct {
	ItemID     string    `json:"itemId"`
	VoterID    string    `json:"voterId"`
	Type       Type      `json:"type"`
	VotedOn    time.Time `json:"votedOn"`
	ActivityID string    `json:"activityId"`
}

// Record is a vote together with its recent-activity entry. Both are views of
// the same record keyed by ActivityID and are always written together.
type Record struct {
	ItemID     string
	VoterID    string
	Type       Type
	VotedOn    time.Time
	ActivityID string
}

// Vote returns the vote view of the record.
func (r Record) Vote() *Vote {
	return &Vote{
		ItemID:     r.ItemID,
		VoterID:    r.VoterID,
		Type:       r.Type,
		VotedOn:    r.VotedOn,
		ActivityID: r.ActivityID,
	}
}

// Activity returns the recent-activity view of the record.
func (r Record) Activity() activity.Entry {
	return activity.Entry{
		ID:         r.ActivityID,
		Type:       r.Type.activityType(),
		ItemID:     r.ItemID,
		ActivityAt: r.VotedOn.UnixMilli(),
	}
}

const (
	fieldType       = "type"
	fieldVotedOn    = "voted_on"
	fieldActivityID = "activity_id"
)

func (r Record) fields() [][2]string {
	return [][2]string{
		{fieldType, string(r.Type)},
		{fieldVotedOn, strconv.FormatInt(r.VotedOn.UnixMilli(), 10)},
		{fieldActivityID, r.ActivityID},
	}
}

func parseRecord(fields map[string]string, itemID, voterID string) (Record, bool) {
	t := Type(fields[fieldType])
	if !t.Valid() || fields[fieldActivityID] == "" {
		return Record{}, false
	}

	return Record{
		ItemID:     itemID,
		VoterID:    voterID,
		Type:       t,
		VotedOn:    core.ParseMillis(fields, fieldVotedOn),
		ActivityID: fields[fieldActivityID],
	}, true
}

// Counts are the vote counters of an item and the scores derived from them.
type Counts struct {
	Up          uint64  `json:"up"`
	Down        uint64  `json:"down"`
	Controversy float64 `json:"controversy"`
	Wilson      float64 `json:"wilson"`
}

// NewCounts derives the scores of the given counters.
func NewCounts(up, down uint64) Counts {
	return Counts{
		Up:          up,
		Down:        down,
		Controversy: score.Controversy(up, down),
		Wilson:      score.Wilson(up, down),
	}
}

// Of returns the counter of the given vote type.
func (c Counts) Of(t Type) uint64 {
	if t == TypeDownvote {
		return c.Down
	}
	return c.Up
}

const (
	fieldUp          = "up"
	fieldDown        = "down"
	fieldControversy = "controversy"
	fieldWilson      = "wilson"
)

func parseCounts(fields map[string]string) Counts {
	return Counts{
		Up:          core.ParseUint(fields, fieldUp),
		Down:        core.ParseUint(fields, fieldDown),
		Controversy: core.ParseFloat(fields, fieldControversy),
		Wilson:      core.ParseFloat(fields, fieldWilson),
	}
}
