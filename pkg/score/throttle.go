package score

// notifyStep is one band of the notification schedule.
type notifyStep struct {
	upTo  uint64
	every uint64
}

// notifySchedule thins out notifications as engagement grows. Counts beyond the
// last band notify every lastEvery events.
var notifySchedule = []notifyStep{
	{upTo: 10, every: 1},
	{upTo: 50, every: 5},
	{upTo: 100, every: 10},
	{upTo: 500, every: 25},
	{upTo: 1000, every: 50},
	{upTo: 5000, every: 250},
}

const lastEvery = 500

// ShouldNotify reports whether reaching the given cumulative engagement count
// (votes, bookmarks or replies) warrants a notification. Early engagement always
// notifies while later engagement is throttled to avoid notification storms.
func ShouldNotify(count uint64) bool {
	if count == 0 {
		return false
	}

	for _, step := range notifySchedule {
		if count <= step.upTo {
			return count%step.every == 0
		}
	}

	return count%lastEvery == 0
}
