package score

// RiskLevel is the coarse bucket of a risk score.
//
//go:generate go tool enumer -type=RiskLevel -trimprefix=RiskLevel -transform=lower -text
type RiskLevel int

const (
	RiskLevelMinimal RiskLevel = iota
	RiskLevelLow
	RiskLevelModerate
	RiskLevelHigh
	RiskLevelSevere
)

// LevelOf maps a risk score to its level.
func LevelOf(score float64) RiskLevel {
	switch {
	case score < 1:
		return RiskLevelMinimal
	case score < 5:
		return RiskLevelLow
	case score < 20:
		return RiskLevelModerate
	case score < 50:
		return RiskLevelHigh
	default:
		return RiskLevelSevere
	}
}

// IsLow reports whether the level is low enough for stale history to be churned.
func (l RiskLevel) IsLow() bool {
	return l == RiskLevelMinimal || l == RiskLevelLow
}
