// Package sources implements the connectors that feed a daily report.
//
// Four connector shapes cover every backend:
//
//   - CloudWatchCounter: one Sum statistics request over the window
//   - PaginatedCounter: walks a continuation-token API (ThingPager for the
//     IoT registry) with a fixed delay between pages
//   - QueryCounter: submit, poll and fetch through a QueryEngine
//     (LogsInsightsEngine or AthenaEngine)
//   - InsightRuleSource: top-N contributors of a Contributor Insights rule
//
// Connectors contain their own failures. A failed fetch returns a zero value
// together with an error wrapping ErrSourceUnavailable, ErrQueryTimeout or
// ErrQueryFailed, so callers can tell "no events" from "no answer".
package sources
