package progress

const (
	PracticeAnswerXP    = 5
	QuizAnswerXP        = 10
	PerfectQuizBonusXP  = 50
	MasteryBonusXP      = 10
	SessionBonusXP      = 10
	SessionBonusMinutes = 5
)

type XPKind int

const (
	XPPracticeAnswer XPKind = iota
	XPQuizCompletion
	XPFirstMastery
	XPPracticeSession
)

// XPEvent carries the fields each kind reads: EventType and Outcome for
// practice answers, Correct and Total for quizzes, Minutes for sessions.
type XPEvent struct {
	Kind      XPKind
	EventType EventType
	Outcome   Outcome
	Correct   int
	Total     int
	Minutes   int
}

// ComputeXP never returns a negative amount. Quiz-mode answers earn nothing
// per word; the quiz pays out once on completion.
func ComputeXP(e XPEvent) int {
	switch e.Kind {
	case XPPracticeAnswer:
		if e.Outcome != OutcomeCorrect || e.EventType == EventQuiz {
			return 0
		}
		return PracticeAnswerXP
	case XPQuizCompletion:
		if e.Total <= 0 || e.Correct <= 0 {
			return 0
		}
		correct := min(e.Correct, e.Total)
		xp := correct * QuizAnswerXP
		if correct == e.Total {
			xp += PerfectQuizBonusXP
		}
		return xp
	case XPFirstMastery:
		return MasteryBonusXP
	case XPPracticeSession:
		if e.Minutes >= SessionBonusMinutes {
			return SessionBonusXP
		}
		return 0
	default:
		return 0
	}
}
