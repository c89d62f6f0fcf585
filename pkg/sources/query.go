package sources

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/observability"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/stats"
)

// QueryStatus is the normalized lifecycle state of an async query
type QueryStatus string

const (
	QuerySubmitted QueryStatus = "SUBMITTED"
	QueryRunning   QueryStatus = "RUNNING"
	QuerySucceeded QueryStatus = "SUCCEEDED"
	QueryFailed    QueryStatus = "FAILED"
	QueryTimedOut  QueryStatus = "TIMED_OUT"
)

// Terminal reports whether no further transition can happen
func (s QueryStatus) Terminal() bool {
	switch s {
	case QuerySucceeded, QueryFailed, QueryTimedOut:
		return true
	default:
		return false
	}
}

// QueryState is one status observation. Reason is set for FAILED
type QueryState struct {
	Status QueryStatus
	Reason string
}

// CellKind is the declared type of a result column
type CellKind int

const (
	CellString CellKind = iota
	CellInt
	CellFloat
)

// Cell is one typed value of a result row
type Cell struct {
	Kind CellKind
	Raw  string
}

// Int64 returns the numeric value of the cell according to its declared kind.
// Floats are rounded to the nearest integer.
func (c Cell) Int64() (int64, error) {
	raw := strings.TrimSpace(c.Raw)
	switch c.Kind {
	case CellInt:
		return strconv.ParseInt(raw, 10, 64)
	case CellFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, err
		}
		return int64(math.Round(f)), nil
	default:
		return 0, fmt.Errorf("column of kind string is not numeric")
	}
}

// Row maps column names to cells
type Row map[string]Cell

// Query describes one async counting query. Statement may reference the
// window through ${start}, ${end} (epoch milliseconds) and ${date}.
type Query struct {
	Statement string
	// Column holds the count in the first result row
	Column string
	// Kind declares Column's type for engines without result metadata
	Kind CellKind
}

// Render substitutes window placeholders into the statement
func (q Query) Render(w stats.Window) string {
	return strings.NewReplacer(
		"${start}", strconv.FormatInt(w.Start.UnixMilli(), 10),
		"${end}", strconv.FormatInt(w.End.UnixMilli(), 10),
		"${date}", w.Start.Format(stats.DateLayout),
	).Replace(q.Statement)
}

// QueryEngine is a submit/poll/fetch backend
type QueryEngine interface {
	Name() string
	Submit(ctx context.Context, q Query, w stats.Window) (string, error)
	Status(ctx context.Context, queryID string) (QueryState, error)
	Results(ctx context.Context, queryID string, q Query) ([]Row, error)
	Stop(ctx context.Context, queryID string) error
}

// Default polling settings
const (
	DefaultPollInterval = time.Second
	DefaultMaxPolls     = 60
)

// QueryCounter runs one counting query through a QueryEngine
type QueryCounter struct {
	engine       QueryEngine
	query        Query
	pollInterval time.Duration
	maxPolls     int
	metrics      *observability.Metrics
}

// NewQueryCounter creates a counter. The query is polled every pollInterval
// at most maxPolls times before it is declared timed out.
func NewQueryCounter(engine QueryEngine, q Query, pollInterval time.Duration, maxPolls int, metrics *observability.Metrics) *QueryCounter {
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}
	return &QueryCounter{
		engine:       engine,
		query:        q,
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
		metrics:      metrics,
	}
}

// Kind implements CountSource
func (c *QueryCounter) Kind() string { return KindQuery }

// Fetch implements CountSource
func (c *QueryCounter) Fetch(ctx context.Context, w stats.Window) CountResult {
	logger := observability.FromContext(ctx).WithField("engine", c.engine.Name())

	queryID, err := c.engine.Submit(ctx, c.query, w)
	if err != nil {
		return countFailure(unavailable("submit %s query: %v", c.engine.Name(), err))
	}
	logger = logger.WithField("query_id", queryID)

	state, err := c.await(ctx, queryID)
	if err != nil {
		if state.Status != QueryFailed {
			c.stop(ctx, queryID, logger)
		}
		return countFailure(err)
	}

	rows, err := c.engine.Results(ctx, queryID, c.query)
	if err != nil {
		return countFailure(unavailable("fetch %s results %s: %v", c.engine.Name(), queryID, err))
	}
	if len(rows) == 0 {
		return CountResult{}
	}

	cell, ok := rows[0][c.query.Column]
	if !ok {
		return countFailure(unavailable("query %s: column %q missing from results", queryID, c.query.Column))
	}
	v, err := cell.Int64()
	if err != nil {
		return countFailure(unavailable("query %s: column %q: %v", queryID, c.query.Column, err))
	}
	logger.WithField("value", v).Debug("Query succeeded")
	return CountResult{Value: v}
}

// await polls until the query is terminal or the poll budget is spent
func (c *QueryCounter) await(ctx context.Context, queryID string) (QueryState, error) {
	for poll := 1; poll <= c.maxPolls; poll++ {
		if err := sleep(ctx, c.pollInterval); err != nil {
			return QueryState{Status: QueryRunning}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}

		state, err := c.engine.Status(ctx, queryID)
		if err != nil {
			c.metrics.RecordPoll(c.engine.Name(), "error")
			return QueryState{Status: QueryRunning}, unavailable("poll %s query %s: %v", c.engine.Name(), queryID, err)
		}
		c.metrics.RecordPoll(c.engine.Name(), string(state.Status))

		switch state.Status {
		case QuerySucceeded:
			return state, nil
		case QueryFailed:
			return state, &QueryFailedError{QueryID: queryID, Reason: state.Reason}
		}
	}
	return QueryState{Status: QueryTimedOut}, fmt.Errorf("%w: query %s not terminal after %d polls", ErrQueryTimeout, queryID, c.maxPolls)
}

// stop makes a best-effort attempt to cancel an abandoned query
func (c *QueryCounter) stop(ctx context.Context, queryID string, logger *observability.Logger) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.engine.Stop(stopCtx, queryID); err != nil {
		logger.WithError(err).Debug("Failed to stop abandoned query")
	}
}
