package progress

import "fmt"

const (
	masteredMinPractice = 10
	masteredMinAccuracy = 0.9
	familiarMinPractice = 5
	familiarMinAccuracy = 0.7
	learningMinPractice = 2
)

type Counters struct {
	Correct        int
	Incorrect      int
	TotalPracticed int
}

// Classify maps practice counters to a proficiency. First matching rule wins.
func Classify(c Counters) (Proficiency, error) {
	if c.Correct < 0 || c.Incorrect < 0 || c.TotalPracticed < 0 {
		return "", fmt.Errorf("%w: negative counter in %+v", ErrInvalidCounters, c)
	}
	if c.TotalPracticed == 0 {
		return ProficiencyNew, nil
	}
	answered := c.Correct + c.Incorrect
	if answered == 0 {
		return "", fmt.Errorf("%w: %d practiced with no answers", ErrInvalidCounters, c.TotalPracticed)
	}
	accuracy := float64(c.Correct) / float64(answered)

	switch {
	case c.TotalPracticed >= masteredMinPractice && accuracy >= masteredMinAccuracy:
		return ProficiencyMastered, nil
	case c.TotalPracticed >= familiarMinPractice && accuracy >= familiarMinAccuracy:
		return ProficiencyFamiliar, nil
	case c.TotalPracticed >= learningMinPractice:
		return ProficiencyLearning, nil
	default:
		return ProficiencyNew, nil
	}
}

// advance applies a classification to the current state. Movement is forward
// only; a flagged word stays flagged until it classifies as mastered.
func advance(current, classified Proficiency) Proficiency {
	if current == ProficiencyMastered {
		return current
	}
	if current == ProficiencyFlaggedForPractice {
		if classified == ProficiencyMastered {
			return classified
		}
		return current
	}
	if classified.rank() > current.rank() {
		return classified
	}
	return current
}
