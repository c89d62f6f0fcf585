package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ReportType selects which statistics variant a run produces
type ReportType string

const (
	// ReportOverview covers fleet size, traffic and error categories
	ReportOverview ReportType = "overview"
	// ReportContributors covers top-N contributor analyses
	ReportContributors ReportType = "contributors"
)

// ReportTypes returns every known report type in a stable order
func ReportTypes() []ReportType {
	return []ReportType{ReportOverview, ReportContributors}
}

// ParseReportType validates a report type name
func ParseReportType(s string) (ReportType, error) {
	rt := ReportType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ReportTypes() {
		if rt == known {
			return rt, nil
		}
	}
	return "", fmt.Errorf("unknown report type %q", s)
}

// Metric group names. Scalar groups double as their leaf path
const (
	GroupAccountThings = "accountThingCount"
	GroupDeviceThings  = "deviceThingCount"
	GroupTotalThings   = "totalThingCount"

	GroupConnectSuccess = "traffic.connectSuccess"
	GroupPublishIn      = "traffic.publishIn"
	GroupPublishOut     = "traffic.publishOut"
	GroupSubscribe      = "traffic.subscribe"

	GroupConnectErrors    = "errors.connect"
	GroupPublishErrors    = "errors.publish"
	GroupSubscribeErrors  = "errors.subscribe"
	GroupDisconnectErrors = "errors.disconnect"
	GroupRuleErrors       = "errors.rule"
	GroupTotalErrors      = "errors.total"

	GroupActiveDevices = "activeDevices"

	GroupDuplicateAppClients    = "duplicateAppClients"
	GroupDuplicateDeviceClients = "duplicateDeviceClients"
	GroupErrorSources           = "errorSources"
)

// Snapshot is the statistics document for one report type and one day.
// Exactly one of Overview or Contributors is set, matching ReportType.
type Snapshot struct {
	Date         string            `json:"date"`
	ReportType   ReportType        `json:"reportType"`
	Timestamp    time.Time         `json:"timestamp"`
	Overview     *OverviewStats    `json:"overview,omitempty"`
	Contributors *ContributorStats `json:"contributors,omitempty"`

	// SourceErrors maps a metric group to the reason its source was
	// unavailable. A listed group holds its zero default.
	SourceErrors map[string]string `json:"sourceErrors,omitempty"`
}

// OverviewStats is the overview report variant
type OverviewStats struct {
	AccountThingCount int64        `json:"accountThingCount"`
	DeviceThingCount  int64        `json:"deviceThingCount"`
	TotalThingCount   int64        `json:"totalThingCount"`
	Traffic           TrafficStats `json:"traffic"`
	Errors            ErrorStats   `json:"errors"`
	ActiveDevices     int64        `json:"activeDevices"`
}

// TrafficStats holds broker message counters
type TrafficStats struct {
	ConnectSuccess int64 `json:"connectSuccess"`
	PublishIn      int64 `json:"publishIn"`
	PublishOut     int64 `json:"publishOut"`
	Subscribe      int64 `json:"subscribe"`
}

// ErrorStats holds error counts per category and their sum
type ErrorStats struct {
	Connect    int64 `json:"connect"`
	Publish    int64 `json:"publish"`
	Subscribe  int64 `json:"subscribe"`
	Disconnect int64 `json:"disconnect"`
	Rule       int64 `json:"rule"`
	Total      int64 `json:"total"`
}

// ContributorStats is the contributors report variant
type ContributorStats struct {
	DuplicateAppClients    ContributorReport `json:"duplicateAppClients"`
	DuplicateDeviceClients ContributorReport `json:"duplicateDeviceClients"`
	ErrorSources           ContributorReport `json:"errorSources"`
}

// Finalize recomputes derived totals from the component leaves
func (o *OverviewStats) Finalize() {
	o.TotalThingCount = o.AccountThingCount + o.DeviceThingCount
	e := &o.Errors
	e.Total = e.Connect + e.Publish + e.Subscribe + e.Disconnect + e.Rule
}

// Reports returns the contributor reports keyed by group, in display order
func (c *ContributorStats) Reports() []NamedReport {
	return []NamedReport{
		{Group: GroupDuplicateAppClients, Report: &c.DuplicateAppClients},
		{Group: GroupDuplicateDeviceClients, Report: &c.DuplicateDeviceClients},
		{Group: GroupErrorSources, Report: &c.ErrorSources},
	}
}

// NamedReport pairs a contributor report with its group name
type NamedReport struct {
	Group  string
	Report *ContributorReport
}

// NewSnapshot returns an empty snapshot of the right variant for rt
func NewSnapshot(rt ReportType, day Day, now time.Time) (*Snapshot, error) {
	s := &Snapshot{
		Date:       day.String(),
		ReportType: rt,
		Timestamp:  now,
	}
	switch rt {
	case ReportOverview:
		s.Overview = &OverviewStats{}
	case ReportContributors:
		s.Contributors = &ContributorStats{
			DuplicateAppClients:    EmptyContributorReport(),
			DuplicateDeviceClients: EmptyContributorReport(),
			ErrorSources:           EmptyContributorReport(),
		}
	default:
		return nil, fmt.Errorf("unknown report type %q", rt)
	}
	return s, nil
}

// ZeroSnapshot returns the documented zero baseline for rt: every numeric
// leaf is 0 and every structured leaf is an empty report.
func ZeroSnapshot(rt ReportType, day Day) *Snapshot {
	s, err := NewSnapshot(rt, day, time.Time{})
	if err != nil {
		return &Snapshot{Date: day.String(), ReportType: rt}
	}
	return s
}

// Normalize fills absent structures so documents written by older versions
// compare as zero. It never overwrites present values.
func (s *Snapshot) Normalize() {
	switch s.ReportType {
	case ReportOverview:
		if s.Overview == nil {
			s.Overview = &OverviewStats{}
		}
	case ReportContributors:
		if s.Contributors == nil {
			s.Contributors = &ContributorStats{}
		}
		for _, nr := range s.Contributors.Reports() {
			if nr.Report.Records == nil {
				nr.Report.Records = []ContributorRecord{}
			}
		}
	}
}

// Validate checks that the populated variant matches the report type
func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("snapshot is nil")
	}
	if _, err := ParseDay(s.Date, time.UTC); err != nil {
		return err
	}
	switch s.ReportType {
	case ReportOverview:
		if s.Overview == nil || s.Contributors != nil {
			return fmt.Errorf("snapshot %s: overview variant expected", s.Date)
		}
	case ReportContributors:
		if s.Contributors == nil || s.Overview != nil {
			return fmt.Errorf("snapshot %s: contributors variant expected", s.Date)
		}
	default:
		return fmt.Errorf("snapshot %s: unknown report type %q", s.Date, s.ReportType)
	}
	return nil
}

// MarkFailed records that group's source was unavailable
func (s *Snapshot) MarkFailed(group string, err error) {
	if s.SourceErrors == nil {
		s.SourceErrors = make(map[string]string)
	}
	s.SourceErrors[group] = err.Error()
}

// Unavailable returns the failure reason for group, if any
func (s *Snapshot) Unavailable(group string) (string, bool) {
	reason, ok := s.SourceErrors[group]
	return reason, ok
}

// derivedFrom lists the sourced groups each derived total is summed from
var derivedFrom = map[string][]string{
	GroupTotalThings: {GroupAccountThings, GroupDeviceThings},
	GroupTotalErrors: {GroupConnectErrors, GroupPublishErrors, GroupSubscribeErrors, GroupDisconnectErrors, GroupRuleErrors},
}

// LeafUnavailable reports why the value at path cannot be trusted: its own
// group failed, a component of a derived total failed, or the contributor
// report the leaf belongs to failed.
func (s *Snapshot) LeafUnavailable(path string) (string, bool) {
	if s == nil {
		return "", false
	}
	if reason, ok := s.SourceErrors[path]; ok {
		return reason, true
	}
	for _, group := range derivedFrom[path] {
		if reason, ok := s.SourceErrors[group]; ok {
			return group + ": " + reason, true
		}
	}
	if i := strings.LastIndexByte(path, '.'); i > 0 {
		if reason, ok := s.SourceErrors[path[:i]]; ok {
			return reason, true
		}
	}
	return "", false
}

// FailedGroups returns the failed group names sorted
func (s *Snapshot) FailedGroups() []string {
	groups := make([]string, 0, len(s.SourceErrors))
	for g := range s.SourceErrors {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// Leaf is one numeric value of a snapshot addressed by a dotted path
type Leaf struct {
	Path  string
	Value int64
}

// Leaves flattens every numeric leaf of the snapshot in a stable order
func (s *Snapshot) Leaves() []Leaf {
	if s == nil {
		return nil
	}
	var leaves []Leaf
	if o := s.Overview; o != nil {
		leaves = append(leaves,
			Leaf{GroupAccountThings, o.AccountThingCount},
			Leaf{GroupDeviceThings, o.DeviceThingCount},
			Leaf{GroupTotalThings, o.TotalThingCount},
			Leaf{GroupConnectSuccess, o.Traffic.ConnectSuccess},
			Leaf{GroupPublishIn, o.Traffic.PublishIn},
			Leaf{GroupPublishOut, o.Traffic.PublishOut},
			Leaf{GroupSubscribe, o.Traffic.Subscribe},
			Leaf{GroupConnectErrors, o.Errors.Connect},
			Leaf{GroupPublishErrors, o.Errors.Publish},
			Leaf{GroupSubscribeErrors, o.Errors.Subscribe},
			Leaf{GroupDisconnectErrors, o.Errors.Disconnect},
			Leaf{GroupRuleErrors, o.Errors.Rule},
			Leaf{GroupTotalErrors, o.Errors.Total},
			Leaf{GroupActiveDevices, o.ActiveDevices},
		)
	}
	if c := s.Contributors; c != nil {
		for _, nr := range c.Reports() {
			leaves = append(leaves,
				Leaf{nr.Group + ".total", nr.Report.Total},
				Leaf{nr.Group + ".unique", nr.Report.Unique},
			)
		}
	}
	return leaves
}

// LeafMap returns Leaves keyed by path
func (s *Snapshot) LeafMap() map[string]int64 {
	leaves := s.Leaves()
	m := make(map[string]int64, len(leaves))
	for _, l := range leaves {
		m[l.Path] = l.Value
	}
	return m
}
