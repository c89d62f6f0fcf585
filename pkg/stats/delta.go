package stats

// Trend is the direction of a day-over-day change
type Trend int

const (
	TrendUnchanged Trend = iota
	TrendUp
	TrendDown
)

func (t Trend) String() string {
	switch t {
	case TrendUp:
		return "up"
	case TrendDown:
		return "down"
	default:
		return "unchanged"
	}
}

// Delta is the day-over-day change of one numeric leaf. Percent is nil when
// Yesterday is zero and the relative change is undefined.
type Delta struct {
	Path      string   `json:"path"`
	Today     int64    `json:"today"`
	Yesterday int64    `json:"yesterday"`
	Delta     int64    `json:"delta"`
	Percent   *float64 `json:"deltaPercent,omitempty"`
}

// NewDelta computes the change from yesterday to today
func NewDelta(path string, today, yesterday int64) Delta {
	d := Delta{
		Path:      path,
		Today:     today,
		Yesterday: yesterday,
		Delta:     today - yesterday,
	}
	if pct, ok := ChangePercent(d.Delta, yesterday); ok {
		d.Percent = &pct
	}
	return d
}

// Trend derives the direction purely from the sign of the delta
func (d Delta) Trend() Trend {
	switch {
	case d.Delta > 0:
		return TrendUp
	case d.Delta < 0:
		return TrendDown
	default:
		return TrendUnchanged
	}
}
