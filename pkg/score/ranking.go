package score

import (
	"math"
	"time"
)

const (
	// WilsonZ is the normal quantile for a 95% confidence level.
	WilsonZ = 1.96

	// HotTimeDivisor converts the age of an item in milliseconds into hot score units.
	HotTimeDivisor = 45000.0
)

// Wilson returns the lower bound of the Wilson score confidence interval
// for the proportion of upvotes. Items with no votes score 0.
func Wilson(up, down uint64) float64 {
	n := float64(up + down)
	if n == 0 {
		return 0
	}

	z := WilsonZ
	p := float64(up) / n

	left := p + z*z/(2*n)
	right := z * math.Sqrt(p*(1-p)/n+z*z/(4*n*n))
	under := 1 + z*z/n

	return (left - right) / under
}

// Controversy rewards a large number of votes that are close to an even split.
//
//	controversy = (up + down) ^ (min(up, down) / max(up, down))
//
// One-sided vote distributions are not controversial and score 0.
func Controversy(up, down uint64) float64 {
	if up == 0 || down == 0 {
		return 0
	}

	magnitude := float64(up + down)
	balance := float64(min(up, down)) / float64(max(up, down))

	return math.Pow(magnitude, balance)
}

// Hot blends the net score with the age of an item. The net score is compressed
// logarithmically and the time term grows more negative as the item ages, so the
// result is only meaningful as a sort key among items evaluated at the same time.
func Hot(up, down uint64, createdAtMillis int64, now time.Time) float64 {
	s := float64(up) - float64(down)

	order := math.Log10(math.Max(math.Abs(s), 1))

	var sign float64
	switch {
	case s > 0:
		sign = 1
	case s < 0:
		sign = -1
	}

	age := float64(createdAtMillis-now.UnixMilli()) / HotTimeDivisor

	return sign*order + age
}
