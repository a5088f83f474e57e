package types

import (
	"time"

	"github.com/uptrace/bun"
)

// FlagRecord is an entry of the append-only flag ledger. Churning the scoring
// aggregate of a source never rewrites these records.
type FlagRecord struct {
	bun.BaseModel `bun:"table:flag_records"`

	ID        int64     `bun:",pk,autoincrement" json:"id"`
	SourceID  string    `bun:",notnull"          json:"sourceId"`
	FlaggerID string    `bun:",notnull"          json:"flaggerId"`
	Reason    string    `bun:",notnull"          json:"reason"`
	Weight    float64   `bun:",notnull"          json:"weight"`
	Churned   bool      `bun:",notnull"          json:"churned"` // Flag started a fresh scoring episode
	FlaggedAt time.Time `bun:",notnull"          json:"flaggedAt"`
}

// FlagSummary aggregates the ledger of a single source.
type FlagSummary struct {
	SourceID    string    `json:"sourceId"`
	TotalFlags  int64     `json:"totalFlags"`
	TotalWeight float64   `json:"totalWeight"`
	LastFlagged time.Time `json:"lastFlagged"`
}
