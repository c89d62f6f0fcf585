package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/stats"
)

// AthenaAPI is the subset of *athena.Client used by AthenaEngine
type AthenaAPI interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, params *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
	StopQueryExecution(ctx context.Context, params *athena.StopQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StopQueryExecutionOutput, error)
}

// AthenaEngine runs SQL over the exported log table. Cell kinds come from
// the result set column metadata.
type AthenaEngine struct {
	client         AthenaAPI
	database       string
	workgroup      string
	outputLocation string
}

// NewAthenaEngine creates an engine bound to database and workgroup.
// outputLocation may be empty when the workgroup enforces one.
func NewAthenaEngine(client AthenaAPI, database, workgroup, outputLocation string) *AthenaEngine {
	return &AthenaEngine{
		client:         client,
		database:       database,
		workgroup:      workgroup,
		outputLocation: outputLocation,
	}
}

// Name implements QueryEngine
func (e *AthenaEngine) Name() string { return "athena" }

// Submit implements QueryEngine
func (e *AthenaEngine) Submit(ctx context.Context, q Query, w stats.Window) (string, error) {
	input := &athena.StartQueryExecutionInput{
		QueryString: aws.String(q.Render(w)),
		QueryExecutionContext: &types.QueryExecutionContext{
			Database: aws.String(e.database),
		},
	}
	if e.workgroup != "" {
		input.WorkGroup = aws.String(e.workgroup)
	}
	if e.outputLocation != "" {
		input.ResultConfiguration = &types.ResultConfiguration{
			OutputLocation: aws.String(e.outputLocation),
		}
	}

	out, err := e.client.StartQueryExecution(ctx, input)
	if err != nil {
		return "", err
	}
	return aws.ToString(out.QueryExecutionId), nil
}

// Status implements QueryEngine
func (e *AthenaEngine) Status(ctx context.Context, queryID string) (QueryState, error) {
	out, err := e.client.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
		QueryExecutionId: aws.String(queryID),
	})
	if err != nil {
		return QueryState{}, err
	}
	if out.QueryExecution == nil || out.QueryExecution.Status == nil {
		return QueryState{}, fmt.Errorf("query execution %s has no status", queryID)
	}

	status := out.QueryExecution.Status
	switch status.State {
	case types.QueryExecutionStateQueued:
		return QueryState{Status: QuerySubmitted}, nil
	case types.QueryExecutionStateRunning:
		return QueryState{Status: QueryRunning}, nil
	case types.QueryExecutionStateSucceeded:
		return QueryState{Status: QuerySucceeded}, nil
	default:
		reason := aws.ToString(status.StateChangeReason)
		if reason == "" {
			reason = "athena state " + string(status.State)
		}
		return QueryState{Status: QueryFailed, Reason: reason}, nil
	}
}

// Results implements QueryEngine. Only the first result page is read; counting
// queries return a single row.
func (e *AthenaEngine) Results(ctx context.Context, queryID string, _ Query) ([]Row, error) {
	out, err := e.client.GetQueryResults(ctx, &athena.GetQueryResultsInput{
		QueryExecutionId: aws.String(queryID),
	})
	if err != nil {
		return nil, err
	}
	if out.ResultSet == nil || out.ResultSet.ResultSetMetadata == nil {
		return nil, fmt.Errorf("query execution %s returned no result metadata", queryID)
	}

	columns := out.ResultSet.ResultSetMetadata.ColumnInfo
	data := out.ResultSet.Rows
	// The first row of a SELECT result repeats the column names
	if len(data) > 0 && isHeaderRow(data[0], columns) {
		data = data[1:]
	}

	rows := make([]Row, 0, len(data))
	for _, r := range data {
		row := make(Row, len(columns))
		for i, col := range columns {
			if i >= len(r.Data) {
				break
			}
			row[aws.ToString(col.Name)] = Cell{
				Kind: athenaCellKind(aws.ToString(col.Type)),
				Raw:  aws.ToString(r.Data[i].VarCharValue),
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Stop implements QueryEngine
func (e *AthenaEngine) Stop(ctx context.Context, queryID string) error {
	_, err := e.client.StopQueryExecution(ctx, &athena.StopQueryExecutionInput{
		QueryExecutionId: aws.String(queryID),
	})
	return err
}

func isHeaderRow(row types.Row, columns []types.ColumnInfo) bool {
	if len(row.Data) != len(columns) {
		return false
	}
	for i, col := range columns {
		if aws.ToString(row.Data[i].VarCharValue) != aws.ToString(col.Name) {
			return false
		}
	}
	return true
}

func athenaCellKind(columnType string) CellKind {
	switch strings.ToLower(columnType) {
	case "tinyint", "smallint", "integer", "int", "bigint":
		return CellInt
	case "float", "real", "double", "decimal":
		return CellFloat
	default:
		if strings.HasPrefix(strings.ToLower(columnType), "decimal") {
			return CellFloat
		}
		return CellString
	}
}
