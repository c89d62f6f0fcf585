package sources

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/stats"
)

// LogsInsightsAPI is the subset of *cloudwatchlogs.Client used by LogsInsightsEngine
type LogsInsightsAPI interface {
	StartQuery(ctx context.Context, params *cloudwatchlogs.StartQueryInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StartQueryOutput, error)
	GetQueryResults(ctx context.Context, params *cloudwatchlogs.GetQueryResultsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetQueryResultsOutput, error)
	StopQuery(ctx context.Context, params *cloudwatchlogs.StopQueryInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StopQueryOutput, error)
}

// LogsInsightsEngine runs queries against one log group. Result fields carry
// no type metadata, so cells take the kind declared on the Query.
type LogsInsightsEngine struct {
	client   LogsInsightsAPI
	logGroup string
}

// NewLogsInsightsEngine creates an engine for logGroup
func NewLogsInsightsEngine(client LogsInsightsAPI, logGroup string) *LogsInsightsEngine {
	return &LogsInsightsEngine{client: client, logGroup: logGroup}
}

// Name implements QueryEngine
func (e *LogsInsightsEngine) Name() string { return "logs-insights" }

// Submit implements QueryEngine
func (e *LogsInsightsEngine) Submit(ctx context.Context, q Query, w stats.Window) (string, error) {
	out, err := e.client.StartQuery(ctx, &cloudwatchlogs.StartQueryInput{
		LogGroupName: aws.String(e.logGroup),
		QueryString:  aws.String(q.Render(w)),
		StartTime:    aws.Int64(w.Start.Unix()),
		EndTime:      aws.Int64(w.End.Unix()),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.QueryId), nil
}

// Status implements QueryEngine
func (e *LogsInsightsEngine) Status(ctx context.Context, queryID string) (QueryState, error) {
	out, err := e.client.GetQueryResults(ctx, &cloudwatchlogs.GetQueryResultsInput{
		QueryId: aws.String(queryID),
	})
	if err != nil {
		return QueryState{}, err
	}
	return logsInsightsState(out.Status), nil
}

func logsInsightsState(s types.QueryStatus) QueryState {
	switch s {
	case types.QueryStatusScheduled:
		return QueryState{Status: QuerySubmitted}
	case types.QueryStatusRunning:
		return QueryState{Status: QueryRunning}
	case types.QueryStatusComplete:
		return QueryState{Status: QuerySucceeded}
	default:
		return QueryState{Status: QueryFailed, Reason: "logs insights status " + string(s)}
	}
}

// Results implements QueryEngine
func (e *LogsInsightsEngine) Results(ctx context.Context, queryID string, q Query) ([]Row, error) {
	out, err := e.client.GetQueryResults(ctx, &cloudwatchlogs.GetQueryResultsInput{
		QueryId: aws.String(queryID),
	})
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(out.Results))
	for _, fields := range out.Results {
		row := make(Row, len(fields))
		for _, f := range fields {
			name := aws.ToString(f.Field)
			kind := CellString
			if name == q.Column {
				kind = q.Kind
			}
			row[name] = Cell{Kind: kind, Raw: aws.ToString(f.Value)}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Stop implements QueryEngine
func (e *LogsInsightsEngine) Stop(ctx context.Context, queryID string) error {
	_, err := e.client.StopQuery(ctx, &cloudwatchlogs.StopQueryInput{
		QueryId: aws.String(queryID),
	})
	return err
}
