package report

import (
	"errors"
	"time"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/stats"
)

// ErrRender marks input the renderer cannot turn into a document. It points
// at a bug upstream rather than a recoverable condition.
var ErrRender = errors.New("render failure")

// Document is a rendered report handed to the delivery collaborator
type Document struct {
	Title      string           `json:"title"`
	Markdown   string           `json:"markdown"`
	ReportType stats.ReportType `json:"reportType"`
	Date       string           `json:"date"`
	Severity   Severity         `json:"severity"`

	// Degraded lists the groups rendered as unavailable
	Degraded []string `json:"degraded,omitempty"`
}

// Input is everything one render needs. Render never reads the clock, so
// GeneratedAt must be supplied.
type Input struct {
	Snapshot     *stats.Snapshot
	Deltas       []stats.Delta
	Baseline     string
	BaselineDate string
	// Previous is the baseline snapshot. Leaves it lists as unavailable get
	// no change figures.
	Previous     *stats.Snapshot
	Thresholds   Thresholds
	GeneratedAt  time.Time
}

// Options controls presentation only
type Options struct {
	TitlePrefix     string
	Location        *time.Location
	DisplayTopN     int
	IdentifierWidth int
}

// DefaultOptions returns the presentation defaults
func DefaultOptions() Options {
	return Options{
		TitlePrefix:     "IoT Fleet Daily Report",
		Location:        time.UTC,
		DisplayTopN:     5,
		IdentifierWidth: 24,
	}
}
