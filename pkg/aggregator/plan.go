package aggregator

import (
	"fmt"
	"sort"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/sources"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/stats"
)

// Plan maps the metric groups of one report type to the connectors that
// fill them. Derived totals are never sourced.
type Plan struct {
	ReportType   stats.ReportType
	Counters     map[string]sources.CountSource
	Contributors map[string]sources.ContributorSource
}

// overviewSlots addresses each sourced overview leaf
var overviewSlots = map[string]func(*stats.OverviewStats) *int64{
	stats.GroupAccountThings:    func(o *stats.OverviewStats) *int64 { return &o.AccountThingCount },
	stats.GroupDeviceThings:     func(o *stats.OverviewStats) *int64 { return &o.DeviceThingCount },
	stats.GroupConnectSuccess:   func(o *stats.OverviewStats) *int64 { return &o.Traffic.ConnectSuccess },
	stats.GroupPublishIn:        func(o *stats.OverviewStats) *int64 { return &o.Traffic.PublishIn },
	stats.GroupPublishOut:       func(o *stats.OverviewStats) *int64 { return &o.Traffic.PublishOut },
	stats.GroupSubscribe:        func(o *stats.OverviewStats) *int64 { return &o.Traffic.Subscribe },
	stats.GroupConnectErrors:    func(o *stats.OverviewStats) *int64 { return &o.Errors.Connect },
	stats.GroupPublishErrors:    func(o *stats.OverviewStats) *int64 { return &o.Errors.Publish },
	stats.GroupSubscribeErrors:  func(o *stats.OverviewStats) *int64 { return &o.Errors.Subscribe },
	stats.GroupDisconnectErrors: func(o *stats.OverviewStats) *int64 { return &o.Errors.Disconnect },
	stats.GroupRuleErrors:       func(o *stats.OverviewStats) *int64 { return &o.Errors.Rule },
	stats.GroupActiveDevices:    func(o *stats.OverviewStats) *int64 { return &o.ActiveDevices },
}

func contributorSlot(c *stats.ContributorStats, group string) *stats.ContributorReport {
	for _, nr := range c.Reports() {
		if nr.Group == group {
			return nr.Report
		}
	}
	return nil
}

// Validate checks that every group belongs to the plan's report type
func (p Plan) Validate() error {
	switch p.ReportType {
	case stats.ReportOverview:
		if len(p.Contributors) > 0 {
			return fmt.Errorf("overview plan cannot hold contributor sources")
		}
		for group := range p.Counters {
			if _, ok := overviewSlots[group]; !ok {
				return fmt.Errorf("overview plan: %q is not a sourced group", group)
			}
		}
	case stats.ReportContributors:
		if len(p.Counters) > 0 {
			return fmt.Errorf("contributors plan cannot hold counter sources")
		}
		scratch := &stats.ContributorStats{}
		for group := range p.Contributors {
			if contributorSlot(scratch, group) == nil {
				return fmt.Errorf("contributors plan: %q is not a contributor group", group)
			}
		}
	default:
		return fmt.Errorf("unknown report type %q", p.ReportType)
	}
	return nil
}

// groups returns the plan's groups sorted, so task order is deterministic
func (p Plan) groups() []string {
	groups := make([]string, 0, len(p.Counters)+len(p.Contributors))
	for g := range p.Counters {
		groups = append(groups, g)
	}
	for g := range p.Contributors {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}
