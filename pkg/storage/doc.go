// Package storage persists daily statistics snapshots.
//
// # Overview
//
// Each run writes exactly one document per report type and day. Documents are
// addressed by SnapshotKey:
//
//	{prefix}/{year}/{month}/{report-type}-{date}.json
//	iot-reports/2026/03/overview-2026-03-14.json
//
// A second write for the same key overwrites the first. Nothing is deleted.
//
// # Backends
//
// S3Store keeps documents in a bucket through the ObjectAPI subset of the AWS
// SDK v2 client, with one PutObject per write, OpenTelemetry spans and
// Prometheus counters. FileSystemStore uses the same layout under a local
// directory and writes through a temporary file plus rename.
//
//	store, err := storage.New(ctx, cfg.Storage, metrics)
//
// # Reads
//
// Get never returns an error. A missing document comes back as the zero
// baseline with status Missing, and a document that cannot be decoded comes
// back as the zero baseline with status Unreadable and the cause in Lookup.Err:
//
//	lookup := store.Get(ctx, stats.ReportOverview, day.Prev())
//	if lookup.Status == storage.Unreadable {
//		logger.WithError(lookup.Err).Warn("previous snapshot discarded")
//	}
//
// # Related Packages
//
//   - pkg/stats: snapshot model
//   - pkg/delta: previous-day resolution on top of Get
package storage
