package score

const (
	// TastePrior dampens the taste score for users with few signals on a topic.
	TastePrior = 2.0

	// NotInterestedWeight is how many downvotes a single "not interested" signal is worth.
	NotInterestedWeight = 2.0
)

// TopicTaste calculates a user's affinity for a topic from their voting history
// on content classified into that topic. The result lies in (-1, 1):
//
//	taste = (up - neg) / (up + neg + prior), neg = down + weight * notInterested
//
// It rises with every upvote and falls with every downvote or "not interested" signal.
func TopicTaste(upvotes, downvotes, notInterested uint64) float64 {
	up := float64(upvotes)
	neg := float64(downvotes) + NotInterestedWeight*float64(notInterested)

	return (up - neg) / (up + neg + TastePrior)
}
