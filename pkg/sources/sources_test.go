package sources

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	logstypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/aws-sdk-go-v2/service/iot"
	iottypes "github.com/aws/aws-sdk-go-v2/service/iot/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/stats"
)

func dayWindow(t *testing.T) stats.Window {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	day, err := stats.ParseDay("2026-03-14", loc)
	require.NoError(t, err)
	return day.Window()
}

func spanWindow(start time.Time, d time.Duration) stats.Window {
	return stats.Window{Start: start, End: start.Add(d - time.Millisecond)}
}

// --- CloudWatch ---

type fakeCloudWatch struct {
	statsIn   *cloudwatch.GetMetricStatisticsInput
	statsOut  *cloudwatch.GetMetricStatisticsOutput
	reportIn  *cloudwatch.GetInsightRuleReportInput
	reportOut *cloudwatch.GetInsightRuleReportOutput
	err       error
}

func (f *fakeCloudWatch) GetMetricStatistics(ctx context.Context, in *cloudwatch.GetMetricStatisticsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error) {
	f.statsIn = in
	if f.err != nil {
		return nil, f.err
	}
	return f.statsOut, nil
}

func (f *fakeCloudWatch) GetInsightRuleReport(ctx context.Context, in *cloudwatch.GetInsightRuleReportInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.GetInsightRuleReportOutput, error) {
	f.reportIn = in
	if f.err != nil {
		return nil, f.err
	}
	return f.reportOut, nil
}

func TestCloudWatchCounter_SumsDatapoints(t *testing.T) {
	cw := &fakeCloudWatch{statsOut: &cloudwatch.GetMetricStatisticsOutput{
		Datapoints: []cwtypes.Datapoint{{Sum: aws.Float64(1000000)}, {Sum: aws.Float64(200000)}},
	}}
	w := dayWindow(t)

	res := NewCloudWatchCounter(cw, "AWS/IoT", "PublishIn.Success", map[string]string{"Protocol": "MQTT"}).Fetch(context.Background(), w)

	require.NoError(t, res.Err)
	assert.Equal(t, int64(1200000), res.Value)
	assert.Equal(t, int32(86400), aws.ToInt32(cw.statsIn.Period))
	assert.Equal(t, w.Start, aws.ToTime(cw.statsIn.StartTime))
	assert.Equal(t, []cwtypes.Statistic{cwtypes.StatisticSum}, cw.statsIn.Statistics)
	require.Len(t, cw.statsIn.Dimensions, 1)
	assert.Equal(t, "Protocol", aws.ToString(cw.statsIn.Dimensions[0].Name))
}

func TestCloudWatchCounter_NoDatapointsIsZero(t *testing.T) {
	cw := &fakeCloudWatch{statsOut: &cloudwatch.GetMetricStatisticsOutput{}}

	res := NewCloudWatchCounter(cw, "AWS/IoT", "Subscribe.Success", nil).Fetch(context.Background(), dayWindow(t))

	assert.NoError(t, res.Err)
	assert.Zero(t, res.Value)
}

func TestCloudWatchCounter_ErrorIsUnavailable(t *testing.T) {
	cw := &fakeCloudWatch{err: errors.New("throttled")}

	res := NewCloudWatchCounter(cw, "AWS/IoT", "Connect.Success", nil).Fetch(context.Background(), dayWindow(t))

	assert.ErrorIs(t, res.Err, ErrSourceUnavailable)
	assert.Zero(t, res.Value)
}

func TestContributorPeriod(t *testing.T) {
	start := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		span time.Duration
		want int32
	}{
		{"ten minutes clamps up", 10 * time.Minute, 3600},
		{"thirty hours clamps down", 30 * time.Hour, 86400},
		{"full day", 24 * time.Hour, 86400},
		{"floors to whole minutes", 2*time.Hour + 90*time.Second, 7260},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContributorPeriod(spanWindow(start, tt.span)))
		})
	}
}

func TestInsightRuleSource_BuildsRankedReport(t *testing.T) {
	cw := &fakeCloudWatch{reportOut: &cloudwatch.GetInsightRuleReportOutput{
		AggregateValue:         aws.Float64(1000),
		ApproximateUniqueCount: aws.Int64(42),
		Contributors: []cwtypes.InsightRuleContributor{
			{Keys: []string{"client-b"}, ApproximateAggregateValue: aws.Float64(100)},
			{Keys: []string{"client-a", "10.0.0.1"}, ApproximateAggregateValue: aws.Float64(400)},
		},
	}}

	res := NewInsightRuleSource(cw, "dup-clients", 10).Fetch(context.Background(), dayWindow(t))

	require.NoError(t, res.Err)
	assert.Equal(t, int64(1000), res.Report.Total)
	assert.Equal(t, int64(42), res.Report.Unique)
	require.Len(t, res.Report.Records, 2)
	assert.Equal(t, stats.ContributorRecord{Rank: 1, Entity: "client-a", Origin: "10.0.0.1", Count: 400, Percent: 40}, res.Report.Records[0])
	assert.Equal(t, stats.UnknownOrigin, res.Report.Records[1].Origin)

	assert.Equal(t, "Sum", aws.ToString(cw.reportIn.OrderBy))
	assert.Equal(t, int32(10), aws.ToInt32(cw.reportIn.MaxContributorCount))
	assert.Equal(t, int32(86400), aws.ToInt32(cw.reportIn.Period))
}

func TestInsightRuleSource_FailureIsEmptyReport(t *testing.T) {
	cw := &fakeCloudWatch{err: errors.New("rule not found")}

	res := NewInsightRuleSource(cw, "missing-rule", 10).Fetch(context.Background(), dayWindow(t))

	assert.ErrorIs(t, res.Err, ErrSourceUnavailable)
	assert.True(t, res.Report.Failed())
	assert.Zero(t, res.Report.Total)
	assert.Empty(t, res.Report.Records)
}

// --- Pagination ---

type scriptedPages struct {
	pages  []Page
	tokens []string
	err    error
}

func (s *scriptedPages) FetchPage(ctx context.Context, token string) (Page, error) {
	s.tokens = append(s.tokens, token)
	if s.err != nil {
		return Page{}, s.err
	}
	p := s.pages[len(s.tokens)-1]
	return p, nil
}

func TestPaginatedCounter_SumsAllPages(t *testing.T) {
	pager := &scriptedPages{pages: []Page{
		{Count: 100, NextToken: "t1"},
		{Count: 100, NextToken: "t2"},
		{Count: 37},
	}}

	res := NewPaginatedCounter(pager, 0, 10).Fetch(context.Background(), dayWindow(t))

	require.NoError(t, res.Err)
	assert.Equal(t, int64(237), res.Value)
	assert.Equal(t, []string{"", "t1", "t2"}, pager.tokens)
}

func TestPaginatedCounter_WaitsBetweenPages(t *testing.T) {
	pager := &scriptedPages{pages: []Page{{Count: 1, NextToken: "t1"}, {Count: 1}}}

	start := time.Now()
	res := NewPaginatedCounter(pager, 20*time.Millisecond, 10).Fetch(context.Background(), dayWindow(t))

	require.NoError(t, res.Err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestPaginatedCounter_MaxPages(t *testing.T) {
	pages := make([]Page, 5)
	for i := range pages {
		pages[i] = Page{Count: 1, NextToken: "again"}
	}
	pager := &scriptedPages{pages: pages}

	res := NewPaginatedCounter(pager, 0, 5).Fetch(context.Background(), dayWindow(t))

	assert.ErrorIs(t, res.Err, ErrSourceUnavailable)
	assert.Zero(t, res.Value)
	assert.Len(t, pager.tokens, 5)
}

func TestPaginatedCounter_PageError(t *testing.T) {
	pager := &scriptedPages{err: errors.New("boom")}

	res := NewPaginatedCounter(pager, 0, 5).Fetch(context.Background(), dayWindow(t))

	assert.ErrorIs(t, res.Err, ErrSourceUnavailable)
}

type fakeThings struct {
	inputs []*iot.ListThingsInput
}

func (f *fakeThings) ListThings(ctx context.Context, in *iot.ListThingsInput, _ ...func(*iot.Options)) (*iot.ListThingsOutput, error) {
	f.inputs = append(f.inputs, in)
	if in.NextToken == nil {
		return &iot.ListThingsOutput{
			Things:    make([]iottypes.ThingAttribute, 3),
			NextToken: aws.String("next"),
		}, nil
	}
	return &iot.ListThingsOutput{Things: make([]iottypes.ThingAttribute, 2)}, nil
}

func TestThingPager_WithPaginatedCounter(t *testing.T) {
	client := &fakeThings{}

	res := NewPaginatedCounter(NewThingPager(client, "device"), 0, 10).Fetch(context.Background(), dayWindow(t))

	require.NoError(t, res.Err)
	assert.Equal(t, int64(5), res.Value)
	require.Len(t, client.inputs, 2)
	assert.Equal(t, "device", aws.ToString(client.inputs[0].ThingTypeName))
	assert.Equal(t, "next", aws.ToString(client.inputs[1].NextToken))
}

// --- Async queries ---

type scriptedEngine struct {
	mu        sync.Mutex
	statuses  []QueryState
	polls     int
	stopped   bool
	rows      []Row
	submitErr error
}

func (e *scriptedEngine) Name() string { return "scripted" }

func (e *scriptedEngine) Submit(ctx context.Context, q Query, w stats.Window) (string, error) {
	if e.submitErr != nil {
		return "", e.submitErr
	}
	return "q-1", nil
}

func (e *scriptedEngine) Status(ctx context.Context, id string) (QueryState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.polls++
	if e.polls > len(e.statuses) {
		return QueryState{Status: QueryRunning}, nil
	}
	return e.statuses[e.polls-1], nil
}

func (e *scriptedEngine) Results(ctx context.Context, id string, q Query) ([]Row, error) {
	return e.rows, nil
}

func (e *scriptedEngine) Stop(ctx context.Context, id string) error {
	e.stopped = true
	return nil
}

var countQuery = Query{Statement: "stats count(*) as cnt", Column: "cnt", Kind: CellInt}

func TestQueryCounter_Succeeds(t *testing.T) {
	engine := &scriptedEngine{
		statuses: []QueryState{{Status: QuerySubmitted}, {Status: QueryRunning}, {Status: QueryRunning}, {Status: QuerySucceeded}},
		rows:     []Row{{"cnt": {Kind: CellInt, Raw: "4321"}}},
	}

	res := NewQueryCounter(engine, countQuery, 0, 60, nil).Fetch(context.Background(), dayWindow(t))

	require.NoError(t, res.Err)
	assert.Equal(t, int64(4321), res.Value)
	assert.Equal(t, 4, engine.polls)
	assert.False(t, engine.stopped)
}

func TestQueryCounter_TimesOutAfterPollBudget(t *testing.T) {
	engine := &scriptedEngine{}

	res := NewQueryCounter(engine, countQuery, 0, 60, nil).Fetch(context.Background(), dayWindow(t))

	assert.ErrorIs(t, res.Err, ErrQueryTimeout)
	assert.Zero(t, res.Value)
	assert.Equal(t, 60, engine.polls)
	assert.True(t, engine.stopped)
}

func TestQueryCounter_FailedCarriesReason(t *testing.T) {
	engine := &scriptedEngine{statuses: []QueryState{
		{Status: QueryRunning},
		{Status: QueryFailed, Reason: "SYNTAX_ERROR: line 1:8"},
	}}

	res := NewQueryCounter(engine, countQuery, 0, 60, nil).Fetch(context.Background(), dayWindow(t))

	require.ErrorIs(t, res.Err, ErrQueryFailed)
	var qfe *QueryFailedError
	require.ErrorAs(t, res.Err, &qfe)
	assert.Equal(t, "q-1", qfe.QueryID)
	assert.Equal(t, "SYNTAX_ERROR: line 1:8", qfe.Reason)
	assert.Equal(t, 2, engine.polls)
}

func TestQueryCounter_NoRowsIsZero(t *testing.T) {
	engine := &scriptedEngine{statuses: []QueryState{{Status: QuerySucceeded}}}

	res := NewQueryCounter(engine, countQuery, 0, 60, nil).Fetch(context.Background(), dayWindow(t))

	assert.NoError(t, res.Err)
	assert.Zero(t, res.Value)
}

func TestQueryCounter_StringColumnRejected(t *testing.T) {
	engine := &scriptedEngine{
		statuses: []QueryState{{Status: QuerySucceeded}},
		rows:     []Row{{"cnt": {Kind: CellString, Raw: "12"}}},
	}

	res := NewQueryCounter(engine, countQuery, 0, 60, nil).Fetch(context.Background(), dayWindow(t))

	assert.ErrorIs(t, res.Err, ErrSourceUnavailable)
}

func TestQueryCounter_CancelledContext(t *testing.T) {
	engine := &scriptedEngine{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewQueryCounter(engine, countQuery, time.Hour, 60, nil).Fetch(ctx, dayWindow(t))

	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Zero(t, engine.polls)
}

func TestQueryCounter_SubmitError(t *testing.T) {
	engine := &scriptedEngine{submitErr: errors.New("access denied")}

	res := NewQueryCounter(engine, countQuery, 0, 60, nil).Fetch(context.Background(), dayWindow(t))

	assert.ErrorIs(t, res.Err, ErrSourceUnavailable)
}

func TestCell_Int64(t *testing.T) {
	v, err := Cell{Kind: CellFloat, Raw: "41.6"}.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	_, err = Cell{Kind: CellInt, Raw: "4.2"}.Int64()
	assert.Error(t, err)
}

func TestQuery_Render(t *testing.T) {
	w := dayWindow(t)
	q := Query{Statement: "WHERE ts BETWEEN ${start} AND ${end} AND dt = '${date}'"}

	want := "WHERE ts BETWEEN " + strconv.FormatInt(w.Start.UnixMilli(), 10) +
		" AND " + strconv.FormatInt(w.End.UnixMilli(), 10) + " AND dt = '2026-03-14'"
	assert.Equal(t, want, q.Render(w))
}

type fakeLogs struct {
	statuses []logstypes.QueryStatus
	calls    int
	start    *cloudwatchlogs.StartQueryInput
	stopped  bool
}

func (f *fakeLogs) StartQuery(ctx context.Context, in *cloudwatchlogs.StartQueryInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StartQueryOutput, error) {
	f.start = in
	return &cloudwatchlogs.StartQueryOutput{QueryId: aws.String("logs-q")}, nil
}

func (f *fakeLogs) GetQueryResults(ctx context.Context, in *cloudwatchlogs.GetQueryResultsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetQueryResultsOutput, error) {
	i := f.calls
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.calls++
	return &cloudwatchlogs.GetQueryResultsOutput{
		Status: f.statuses[i],
		Results: [][]logstypes.ResultField{{
			{Field: aws.String("cnt"), Value: aws.String("99")},
		}},
	}, nil
}

func (f *fakeLogs) StopQuery(ctx context.Context, in *cloudwatchlogs.StopQueryInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StopQueryOutput, error) {
	f.stopped = true
	return &cloudwatchlogs.StopQueryOutput{}, nil
}

func TestLogsInsightsEngine_EndToEnd(t *testing.T) {
	client := &fakeLogs{statuses: []logstypes.QueryStatus{
		logstypes.QueryStatusScheduled,
		logstypes.QueryStatusRunning,
		logstypes.QueryStatusComplete,
	}}
	w := dayWindow(t)

	res := NewQueryCounter(NewLogsInsightsEngine(client, "AWSIotLogsV2"), countQuery, 0, 60, nil).Fetch(context.Background(), w)

	require.NoError(t, res.Err)
	assert.Equal(t, int64(99), res.Value)
	assert.Equal(t, "AWSIotLogsV2", aws.ToString(client.start.LogGroupName))
	assert.Equal(t, w.Start.Unix(), aws.ToInt64(client.start.StartTime))
}

func TestLogsInsightsState(t *testing.T) {
	assert.Equal(t, QuerySubmitted, logsInsightsState(logstypes.QueryStatusScheduled).Status)
	assert.Equal(t, QueryRunning, logsInsightsState(logstypes.QueryStatusRunning).Status)
	assert.Equal(t, QuerySucceeded, logsInsightsState(logstypes.QueryStatusComplete).Status)
	for _, s := range []logstypes.QueryStatus{
		logstypes.QueryStatusFailed, logstypes.QueryStatusCancelled,
		logstypes.QueryStatusTimeout, logstypes.QueryStatusUnknown,
	} {
		assert.Equal(t, QueryFailed, logsInsightsState(s).Status, string(s))
	}
}

type fakeAthena struct {
	states []athenatypes.QueryExecutionState
	reason string
	calls  int
	start  *athena.StartQueryExecutionInput
}

func (f *fakeAthena) StartQueryExecution(ctx context.Context, in *athena.StartQueryExecutionInput, _ ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error) {
	f.start = in
	return &athena.StartQueryExecutionOutput{QueryExecutionId: aws.String("athena-q")}, nil
}

func (f *fakeAthena) GetQueryExecution(ctx context.Context, in *athena.GetQueryExecutionInput, _ ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error) {
	state := f.states[f.calls]
	f.calls++
	return &athena.GetQueryExecutionOutput{QueryExecution: &athenatypes.QueryExecution{
		Status: &athenatypes.QueryExecutionStatus{
			State:             state,
			StateChangeReason: aws.String(f.reason),
		},
	}}, nil
}

func (f *fakeAthena) GetQueryResults(ctx context.Context, in *athena.GetQueryResultsInput, _ ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error) {
	return &athena.GetQueryResultsOutput{ResultSet: &athenatypes.ResultSet{
		ResultSetMetadata: &athenatypes.ResultSetMetadata{ColumnInfo: []athenatypes.ColumnInfo{
			{Name: aws.String("active"), Type: aws.String("bigint")},
		}},
		Rows: []athenatypes.Row{
			{Data: []athenatypes.Datum{{VarCharValue: aws.String("active")}}},
			{Data: []athenatypes.Datum{{VarCharValue: aws.String("815")}}},
		},
	}}, nil
}

func (f *fakeAthena) StopQueryExecution(ctx context.Context, in *athena.StopQueryExecutionInput, _ ...func(*athena.Options)) (*athena.StopQueryExecutionOutput, error) {
	return &athena.StopQueryExecutionOutput{}, nil
}

func TestAthenaEngine_EndToEnd(t *testing.T) {
	client := &fakeAthena{states: []athenatypes.QueryExecutionState{
		athenatypes.QueryExecutionStateQueued,
		athenatypes.QueryExecutionStateRunning,
		athenatypes.QueryExecutionStateSucceeded,
	}}
	engine := NewAthenaEngine(client, "iot_logs", "primary", "s3://results/")
	q := Query{Statement: "SELECT count(DISTINCT clientid) AS active FROM t WHERE dt = '${date}'", Column: "active"}

	res := NewQueryCounter(engine, q, 0, 60, nil).Fetch(context.Background(), dayWindow(t))

	require.NoError(t, res.Err)
	assert.Equal(t, int64(815), res.Value)
	assert.Contains(t, aws.ToString(client.start.QueryString), "dt = '2026-03-14'")
	assert.Equal(t, "iot_logs", aws.ToString(client.start.QueryExecutionContext.Database))
	assert.Equal(t, "s3://results/", aws.ToString(client.start.ResultConfiguration.OutputLocation))
}

func TestAthenaEngine_FailedReason(t *testing.T) {
	client := &fakeAthena{
		states: []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateCancelled},
		reason: "cancelled by operator",
	}
	engine := NewAthenaEngine(client, "iot_logs", "", "")

	res := NewQueryCounter(engine, Query{Statement: "SELECT 1 AS n", Column: "n"}, 0, 60, nil).Fetch(context.Background(), dayWindow(t))

	var qfe *QueryFailedError
	require.ErrorAs(t, res.Err, &qfe)
	assert.Equal(t, "cancelled by operator", qfe.Reason)
	assert.Nil(t, client.start.WorkGroup)
	assert.Nil(t, client.start.ResultConfiguration)
}
