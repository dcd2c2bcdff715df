package compositor

// Quality is the compositor's internal render resolution ladder. Within one
// session it only ever steps down (no quality recovery); a new session
// starts a new compositor and therefore starts back at High.
type Quality int

const (
	QualityLow Quality = iota
	QualityMedium
	QualityHigh
)

func (q Quality) String() string {
	switch q {
	case QualityHigh:
		return "high"
	case QualityMedium:
		return "medium"
	case QualityLow:
		return "low"
	default:
		return "unknown"
	}
}

// EdgeBudget returns the long/short edge pixel budget for the render target.
func (q Quality) EdgeBudget() (long, short int) {
	switch q {
	case QualityHigh:
		return 720, 405
	case QualityMedium:
		return 600, 338
	default:
		return 480, 270
	}
}

// Demote returns the next step down the ladder, saturating at Low.
func (q Quality) Demote() Quality {
	if q <= QualityLow {
		return QualityLow
	}
	return q - 1
}
