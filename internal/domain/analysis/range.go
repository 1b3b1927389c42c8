package analysis

// Flag indicates which side of the reference interval a value fell on.
type Flag string

const (
	FlagNormal Flag = "NORMAL"
	FlagLow    Flag = "LOW"
	FlagHigh   Flag = "HIGH"
)

// Severity grades how far outside the reference interval a value is.
type Severity string

const (
	SeverityNone     Severity = "NONE"
	SeverityMild     Severity = "MILD"
	SeverityModerate Severity = "MODERATE"
	SeveritySevere   Severity = "SEVERE"
)

// Classification is the outcome of checking a value against a reference
// interval.
type Classification struct {
	Flag       Flag     `json:"flag"`
	Severity   Severity `json:"severity"`
	OutOfRange bool     `json:"out_of_range"`
}

// Classify checks value against the interval [min, max]. When either bound is
// absent no reference interval is defined and the value is normal. Outside
// the interval, severity follows the distance from the nearest bound as a
// fraction of the interval width: under 10% mild, under 30% moderate,
// otherwise severe.
func Classify(value float64, min, max *float64) Classification {
	if min == nil || max == nil {
		return Classification{Flag: FlagNormal, Severity: SeverityNone}
	}

	if value >= *min && value <= *max {
		return Classification{Flag: FlagNormal, Severity: SeverityNone}
	}

	width := *max - *min

	var flag Flag
	var distance float64
	if value < *min {
		flag = FlagLow
		distance = *min - value
	} else {
		flag = FlagHigh
		distance = value - *max
	}

	return Classification{
		Flag:       flag,
		Severity:   severityFor(distance, width),
		OutOfRange: true,
	}
}

func severityFor(distance, width float64) Severity {
	pct := distance / width * 100
	switch {
	case pct < 10:
		return SeverityMild
	case pct < 30:
		return SeverityModerate
	default:
		return SeveritySevere
	}
}
