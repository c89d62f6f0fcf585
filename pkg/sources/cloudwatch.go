package sources

import (
	"context"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/stats"
)

// MetricStatisticsAPI is the subset of *cloudwatch.Client used by CloudWatchCounter
type MetricStatisticsAPI interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

// InsightRuleAPI is the subset of *cloudwatch.Client used by InsightRuleSource
type InsightRuleAPI interface {
	GetInsightRuleReport(ctx context.Context, params *cloudwatch.GetInsightRuleReportInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetInsightRuleReportOutput, error)
}

// CloudWatchCounter is a direct counter: one Sum statistics request over the
// whole window
type CloudWatchCounter struct {
	client     MetricStatisticsAPI
	namespace  string
	metricName string
	dimensions map[string]string
}

// NewCloudWatchCounter creates a counter for namespace/metricName
func NewCloudWatchCounter(client MetricStatisticsAPI, namespace, metricName string, dimensions map[string]string) *CloudWatchCounter {
	return &CloudWatchCounter{
		client:     client,
		namespace:  namespace,
		metricName: metricName,
		dimensions: dimensions,
	}
}

// Kind implements CountSource
func (c *CloudWatchCounter) Kind() string { return KindDirect }

// Fetch implements CountSource. A window without datapoints counts as 0
func (c *CloudWatchCounter) Fetch(ctx context.Context, w stats.Window) CountResult {
	input := &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(c.namespace),
		MetricName: aws.String(c.metricName),
		StartTime:  aws.Time(w.Start),
		EndTime:    aws.Time(w.EndExclusive()),
		Period:     aws.Int32(floorPeriod(int64(w.Duration() / time.Second))),
		Statistics: []types.Statistic{types.StatisticSum},
	}
	for name, value := range c.dimensions {
		input.Dimensions = append(input.Dimensions, types.Dimension{
			Name:  aws.String(name),
			Value: aws.String(value),
		})
	}

	out, err := c.client.GetMetricStatistics(ctx, input)
	if err != nil {
		return countFailure(unavailable("get metric statistics %s/%s: %v", c.namespace, c.metricName, err))
	}

	var sum float64
	for _, dp := range out.Datapoints {
		sum += aws.ToFloat64(dp.Sum)
	}
	return CountResult{Value: int64(math.Round(sum))}
}

// Contributor report period bounds in seconds
const (
	minContributorPeriod = 3600
	maxContributorPeriod = 86400
)

// ContributorPeriod returns the aggregation period for a contributor report
// over w: the window length clamped to one hour..one day, rounded down to a
// whole minute.
func ContributorPeriod(w stats.Window) int32 {
	seconds := int64(w.Duration() / time.Second)
	if seconds < minContributorPeriod {
		seconds = minContributorPeriod
	}
	if seconds > maxContributorPeriod {
		seconds = maxContributorPeriod
	}
	return floorPeriod(seconds)
}

// InsightRuleSource reads a top-N contributor report from a Contributor
// Insights rule. The rule's first key is the entity and its optional second
// key the origin address.
type InsightRuleSource struct {
	client   InsightRuleAPI
	ruleName string
	topN     int
}

// NewInsightRuleSource creates a source for ruleName keeping topN contributors
func NewInsightRuleSource(client InsightRuleAPI, ruleName string, topN int) *InsightRuleSource {
	return &InsightRuleSource{client: client, ruleName: ruleName, topN: topN}
}

// Kind implements ContributorSource
func (s *InsightRuleSource) Kind() string { return KindContributor }

// Fetch implements ContributorSource
func (s *InsightRuleSource) Fetch(ctx context.Context, w stats.Window) ContributorResult {
	out, err := s.client.GetInsightRuleReport(ctx, &cloudwatch.GetInsightRuleReportInput{
		RuleName:            aws.String(s.ruleName),
		StartTime:           aws.Time(w.Start),
		EndTime:             aws.Time(w.EndExclusive()),
		Period:              aws.Int32(ContributorPeriod(w)),
		MaxContributorCount: aws.Int32(int32(s.topN)),
		Metrics:             []string{"Sum", "UniqueContributors"},
		OrderBy:             aws.String("Sum"),
	})
	if err != nil {
		return contributorFailure(unavailable("get insight rule report %s: %v", s.ruleName, err))
	}

	total := int64(math.Round(aws.ToFloat64(out.AggregateValue)))
	if out.AggregateValue == nil {
		var sum float64
		for _, dp := range out.MetricDatapoints {
			sum += aws.ToFloat64(dp.Sum)
		}
		total = int64(math.Round(sum))
	}

	entries := make([]stats.ContributorEntry, 0, len(out.Contributors))
	for _, c := range out.Contributors {
		if len(c.Keys) == 0 {
			continue
		}
		e := stats.ContributorEntry{
			Entity: c.Keys[0],
			Count:  int64(math.Round(aws.ToFloat64(c.ApproximateAggregateValue))),
		}
		if len(c.Keys) > 1 {
			e.Origin = c.Keys[1]
		}
		entries = append(entries, e)
	}

	unique := aws.ToInt64(out.ApproximateUniqueCount)
	if unique == 0 {
		unique = int64(len(entries))
	}

	return ContributorResult{Report: stats.ContributorReport{
		Total:   total,
		Unique:  unique,
		Records: stats.RankContributors(entries, total, s.topN),
	}}
}
