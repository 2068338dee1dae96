package progress

import (
	"math"
	"time"

	"github.com/smith3v/wortschatz/pkg/db"
)

const (
	EaseFloor   = db.MinEaseFactor
	DefaultEase = db.DefaultEaseFactor

	QualityCorrect   = 4
	QualityIncorrect = 2
	minQuality       = 0
	maxQuality       = 5
	passingQuality   = 3
)

type ReviewState struct {
	EaseFactor   float64
	IntervalDays int
}

type Schedule struct {
	EaseFactor     float64
	IntervalDays   int
	NextReviewDate time.Time
}

func QualityFor(outcome Outcome) int {
	if outcome == OutcomeCorrect {
		return QualityCorrect
	}
	return QualityIncorrect
}

// NextReview runs the SM-2 step. today must be a civil date; the result's
// NextReviewDate is today plus the new interval.
func NextReview(prev ReviewState, quality int, today time.Time) Schedule {
	quality = clampQuality(quality)
	ease := maxEase(prev.EaseFactor)
	interval := prev.IntervalDays
	if interval < 0 {
		interval = 0
	}

	miss := float64(maxQuality - quality)
	ease = maxEase(ease + (0.1 - miss*(0.08+miss*0.02)))

	switch {
	case quality < passingQuality:
		interval = 1
	case interval == 0:
		interval = 1
	case interval == 1:
		interval = 6
	default:
		interval = int(math.Round(float64(interval) * ease))
	}

	return Schedule{
		EaseFactor:     ease,
		IntervalDays:   interval,
		NextReviewDate: dateOf(today).AddDate(0, 0, interval),
	}
}

func clampQuality(q int) int {
	if q < minQuality {
		return minQuality
	}
	if q > maxQuality {
		return maxQuality
	}
	return q
}

func maxEase(ease float64) float64 {
	if ease < EaseFloor {
		return EaseFloor
	}
	return ease
}
