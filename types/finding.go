package types

import "time"

// Severity of a finding
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for sorting, higher is more severe
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Finding is an actionable optimization opportunity produced by a
// check. Findings are regenerated wholesale on every evaluation pass
// and are disposable.
type Finding struct {
	ID             string         `json:"id"`
	ResourceID     string         `json:"resource_id"`
	CheckName      string         `json:"check_name"`
	Severity       Severity       `json:"severity"`
	Description    string         `json:"description"`
	MonthlySavings float64        `json:"estimated_monthly_savings"`
	Evidence       map[string]any `json:"evidence,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
