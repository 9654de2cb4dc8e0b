package types

// Severity grades an anomaly finding.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Order returns the sort position of s; High sorts first.
func (s Severity) Order() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	case SeverityLow:
		return 2
	default:
		return 3
	}
}

// FindingType names the heuristic that produced a finding.
type FindingType string

const (
	FindingRapidPosting       FindingType = "rapid_posting"
	FindingNewAccountSpam     FindingType = "new_account_spam"
	FindingDuplicateMessages  FindingType = "duplicate_messages"
	FindingHighModerationRate FindingType = "high_moderation_rate"
)

// AnomalyFinding is a computed, never persisted signal about one user.
type AnomalyFinding struct {
	Type        FindingType `json:"type"`
	Severity    Severity    `json:"severity"`
	UserID      int         `json:"user_id"`
	Description string      `json:"description"`
	Count       int         `json:"count"`
}
