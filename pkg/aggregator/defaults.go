package aggregator

import (
	"fmt"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/config"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/observability"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/sources"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/stats"
)

// Clients bundles the backend clients the default plans are built on
type Clients struct {
	CloudWatch interface {
		sources.MetricStatisticsAPI
		sources.InsightRuleAPI
	}
	Things sources.ThingsAPI
	Logs   sources.LogsInsightsAPI
	Athena sources.AthenaAPI
}

// Logs Insights statements over the broker's v2 log format
var errorQueries = map[string]string{
	stats.GroupConnectErrors: `filter eventType = "Connect" and status = "Failure"
| stats count(*) as cnt`,
	stats.GroupPublishErrors: `filter eventType in ["Publish-In", "Publish-Out"] and status = "Failure"
| stats count(*) as cnt`,
	stats.GroupSubscribeErrors: `filter eventType = "Subscribe" and status = "Failure"
| stats count(*) as cnt`,
	stats.GroupDisconnectErrors: `filter eventType = "Disconnect" and status = "Failure"
| stats count(*) as cnt`,
	stats.GroupRuleErrors: `filter eventType in ["RuleMatch", "RuleExecution"] and status = "Failure"
| stats count(*) as cnt`,
}

const activeDevicesQuery = `SELECT count(DISTINCT clientid) AS active
FROM %s
WHERE eventtype = 'Connect'
  AND status = 'Success'
  AND "timestamp" BETWEEN ${start} AND ${end}`

// DefaultPlans wires every report type to the AWS-backed connectors
func DefaultPlans(cfg config.SourcesConfig, clients Clients, metrics *observability.Metrics) []Plan {
	counter := func(metric string) sources.CountSource {
		return sources.NewCloudWatchCounter(clients.CloudWatch, cfg.MetricNamespace, metric, nil)
	}
	things := func(thingType string) sources.CountSource {
		return sources.NewPaginatedCounter(sources.NewThingPager(clients.Things, thingType), cfg.PageDelay, cfg.MaxPages)
	}
	logs := sources.NewLogsInsightsEngine(clients.Logs, cfg.LogGroup)
	athena := sources.NewAthenaEngine(clients.Athena, cfg.AthenaDatabase, cfg.AthenaWorkgroup, cfg.AthenaOutputLocation)

	overview := Plan{
		ReportType: stats.ReportOverview,
		Counters: map[string]sources.CountSource{
			stats.GroupAccountThings:  things(cfg.AccountThingType),
			stats.GroupDeviceThings:   things(cfg.DeviceThingType),
			stats.GroupConnectSuccess: counter(cfg.ConnectSuccessMetric),
			stats.GroupPublishIn:      counter(cfg.PublishInMetric),
			stats.GroupPublishOut:     counter(cfg.PublishOutMetric),
			stats.GroupSubscribe:      counter(cfg.SubscribeMetric),
			stats.GroupActiveDevices: sources.NewQueryCounter(athena, sources.Query{
				Statement: fmt.Sprintf(activeDevicesQuery, cfg.AthenaTable),
				Column:    "active",
			}, cfg.PollInterval, cfg.MaxPolls, metrics),
		},
	}
	for group, statement := range errorQueries {
		overview.Counters[group] = sources.NewQueryCounter(logs, sources.Query{
			Statement: statement,
			Column:    "cnt",
			Kind:      sources.CellInt,
		}, cfg.PollInterval, cfg.MaxPolls, metrics)
	}

	contributors := Plan{
		ReportType: stats.ReportContributors,
		Contributors: map[string]sources.ContributorSource{
			stats.GroupDuplicateAppClients:    sources.NewInsightRuleSource(clients.CloudWatch, cfg.DuplicateAppClientsRule, cfg.ContributorTopN),
			stats.GroupDuplicateDeviceClients: sources.NewInsightRuleSource(clients.CloudWatch, cfg.DuplicateDeviceClientsRule, cfg.ContributorTopN),
			stats.GroupErrorSources:           sources.NewInsightRuleSource(clients.CloudWatch, cfg.ErrorSourcesRule, cfg.ContributorTopN),
		},
	}

	return []Plan{overview, contributors}
}
