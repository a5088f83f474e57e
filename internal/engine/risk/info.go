package risk

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/robalyx/marginalia/internal/engine/core"
	"github.com/robalyx/marginalia/pkg/score"
)

const (
	fieldDistribution     = "flag_distribution"
	fieldCumulativeWeight = "flags_cumulative_weight"
	fieldFlagCount        = "flag_count"
	fieldFirstFlagAt      = "first_flag_at"
	fieldLastFlagAt       = "last_flag_at"
	fieldImpressions      = "impressions"
	fieldSinceLastFlag    = "impressions_since_last_flag"
)

// Info is the flag aggregate of a content source.
type Info struct {
	SourceID                 string                      `json:"sourceId"`
	FlagDistribution         map[score.FlagReason]uint64 `json:"flagDistribution"`
	FlagsCumulativeWeight    float64                     `json:"flagsCumulativeWeight"`
	FlagCount                uint64                      `json:"flagCount"`
	FirstFlagAt              time.Time                   `json:"firstFlagAt"`
	LastFlagAt               time.Time                   `json:"lastFlagAt"`
	Impressions              uint64                      `json:"impressions"`
	ImpressionsSinceLastFlag uint64                      `json:"impressionsSinceLastFlag"`
}

// Flagged reports whether the source has an active flag episode.
func (i Info) Flagged() bool {
	return i.FlagCount > 0
}

// Eligible reports whether risk can be scored for the source.
func (i Info) Eligible() bool {
	return i.Flagged() && i.Impressions > 0
}

// parseInfo decodes the stored aggregate of a source. A distribution that does
// not decode is reported rather than silently dropped, since the next flag
// would otherwise rewrite it with only the new reason.
func parseInfo(sourceID string, fields map[string]string) (Info, error) {
	info := Info{
		SourceID:                 sourceID,
		FlagDistribution:         make(map[score.FlagReason]uint64),
		FlagsCumulativeWeight:    core.ParseFloat(fields, fieldCumulativeWeight),
		FlagCount:                core.ParseUint(fields, fieldFlagCount),
		FirstFlagAt:              core.ParseMillis(fields, fieldFirstFlagAt),
		LastFlagAt:               core.ParseMillis(fields, fieldLastFlagAt),
		Impressions:              core.ParseUint(fields, fieldImpressions),
		ImpressionsSinceLastFlag: core.ParseUint(fields, fieldSinceLastFlag),
	}

	if raw := fields[fieldDistribution]; raw != "" {
		if err := sonic.UnmarshalString(raw, &info.FlagDistribution); err != nil {
			return Info{}, fmt.Errorf("%w: corrupt flag distribution of %s: %w",
				core.ErrStorageUnavailable, sourceID, err)
		}
	}

	return info, nil
}

// flagFields returns the fields rewritten by a flag. The impression total is
// left alone since it only ever grows through increments.
func (i Info) flagFields() ([][2]string, error) {
	dist, err := sonic.MarshalString(i.FlagDistribution)
	if err != nil {
		return nil, err
	}

	return [][2]string{
		{fieldDistribution, dist},
		{fieldCumulativeWeight, core.FormatFloat(i.FlagsCumulativeWeight)},
		{fieldFlagCount, strconv.FormatUint(i.FlagCount, 10)},
		{fieldFirstFlagAt, core.FormatMillis(i.FirstFlagAt)},
		{fieldLastFlagAt, core.FormatMillis(i.LastFlagAt)},
		{fieldSinceLastFlag, "0"},
	}, nil
}
