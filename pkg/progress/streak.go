package progress

import "time"

type Streak struct {
	Current    int
	Longest    int
	LastActive *time.Time
}

// UpdateStreak counts today toward the streak. Calling it again for the same
// day, or for a day before LastActive, leaves the streak unchanged.
func UpdateStreak(prev Streak, today time.Time) Streak {
	today = dateOf(today)
	next := prev
	if prev.LastActive != nil {
		gap := daysBetween(*prev.LastActive, today)
		switch {
		case gap <= 0:
			return prev
		case gap == 1:
			next.Current = prev.Current + 1
		default:
			next.Current = 1
		}
	} else {
		next.Current = 1
	}

	if next.Current > next.Longest {
		next.Longest = next.Current
	}
	next.LastActive = &today
	return next
}

func activeOn(lastActive *time.Time, today time.Time) bool {
	return lastActive != nil && daysBetween(*lastActive, today) <= 0
}
