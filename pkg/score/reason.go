package score

import "fmt"

// FlagReason is why a content source was flagged.
type FlagReason string

const (
	FlagReasonSpam           FlagReason = "spam"
	FlagReasonMisinformation FlagReason = "misinformation"
	FlagReasonHarassment     FlagReason = "harassment"
	FlagReasonHateSpeech     FlagReason = "hate_speech"
	FlagReasonViolence       FlagReason = "violence"
	FlagReasonSexualContent  FlagReason = "sexual_content"
	FlagReasonScam           FlagReason = "scam"
	FlagReasonOther          FlagReason = "other"
)

// flagWeights is how much a single flag of each reason contributes to the cumulative weight.
var flagWeights = map[FlagReason]float64{
	FlagReasonSpam:           1.0,
	FlagReasonMisinformation: 2.0,
	FlagReasonHarassment:     2.5,
	FlagReasonHateSpeech:     3.0,
	FlagReasonViolence:       3.0,
	FlagReasonSexualContent:  2.5,
	FlagReasonScam:           2.0,
	FlagReasonOther:          0.5,
}

// Weight returns the weight of a flag reason.
func (r FlagReason) Weight() (float64, error) {
	w, ok := flagWeights[r]
	if !ok {
		return 0, fmt.Errorf("%w: unknown flag reason %q", ErrInvalidInput, string(r))
	}
	return w, nil
}

// Valid reports whether the reason is known.
func (r FlagReason) Valid() bool {
	_, ok := flagWeights[r]
	return ok
}
