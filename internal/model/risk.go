package model

// RiskLevel is the ordinal label of a security or privacy risk score.
//
// Levels are iota-based so they compare and sort naturally; String gives
// the label used in reports.
type RiskLevel int

const (
	// RiskLow covers scores up to 2.
	RiskLow RiskLevel = iota
	// RiskMedium covers scores above 2 and up to 5.
	RiskMedium
	// RiskHigh covers scores above 5 and up to 8.
	RiskHigh
	// RiskCritical covers scores above 8.
	RiskCritical
)

// MaxRiskScore is the upper bound of every risk score.
const MaxRiskScore = 10.0

// String returns a human-readable representation of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "Low"
	case RiskMedium:
		return "Medium"
	case RiskHigh:
		return "High"
	case RiskCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the level as its label.
func (r RiskLevel) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// RiskLevelForScore maps a score in [0, 10] to its label.
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score <= 2:
		return RiskLow
	case score <= 5:
		return RiskMedium
	case score <= 8:
		return RiskHigh
	default:
		return RiskCritical
	}
}
