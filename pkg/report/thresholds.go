package report

import "fmt"

// Severity grades the daily error total
type Severity int

const (
	SeverityNormal Severity = iota
	SeverityAttention
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityAttention:
		return "attention"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "normal"
	}
}

func (s Severity) marker() string {
	switch s {
	case SeverityAttention:
		return "🟡"
	case SeverityWarning:
		return "🟠"
	case SeverityCritical:
		return "🔴"
	default:
		return "🟢"
	}
}

// Thresholds is the ascending ladder used to grade error totals.
// A value below Attention is normal.
type Thresholds struct {
	Attention int64 `yaml:"attention" json:"attention"`
	Warning   int64 `yaml:"warning" json:"warning"`
	Critical  int64 `yaml:"critical" json:"critical"`
}

// DefaultThresholds returns the built-in ladder
func DefaultThresholds() Thresholds {
	return Thresholds{
		Attention: 1000,
		Warning:   10000,
		Critical:  50000,
	}
}

// Validate checks the ladder is positive and ascending
func (t Thresholds) Validate() error {
	if t.Attention <= 0 {
		return fmt.Errorf("attention threshold must be positive, got %d", t.Attention)
	}
	if t.Warning < t.Attention || t.Critical < t.Warning {
		return fmt.Errorf("thresholds must ascend: attention=%d warning=%d critical=%d",
			t.Attention, t.Warning, t.Critical)
	}
	return nil
}

// Classify grades v against the ladder
func (t Thresholds) Classify(v int64) Severity {
	switch {
	case v >= t.Critical:
		return SeverityCritical
	case v >= t.Warning:
		return SeverityWarning
	case v >= t.Attention:
		return SeverityAttention
	default:
		return SeverityNormal
	}
}
