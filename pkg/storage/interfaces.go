package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/stats"
)

var (
	// ErrSnapshotUnreadable marks a stored snapshot that exists but cannot be decoded
	ErrSnapshotUnreadable = errors.New("snapshot unreadable")
	// ErrPersistence wraps every failure to write a snapshot
	ErrPersistence = errors.New("snapshot persistence failed")
)

// SnapshotStore persists one statistics snapshot per report type and day.
// Writes overwrite (last write wins); nothing is ever deleted.
type SnapshotStore interface {
	// Get never fails: absent or malformed documents come back as a zero
	// baseline with the matching status.
	Get(ctx context.Context, reportType stats.ReportType, day stats.Day) Lookup
	Put(ctx context.Context, snapshot *stats.Snapshot) error
	HealthCheck(ctx context.Context) error
}

// LookupStatus tells how a Get was satisfied
type LookupStatus int

const (
	Found LookupStatus = iota
	Missing
	Unreadable
)

func (s LookupStatus) String() string {
	switch s {
	case Found:
		return "found"
	case Missing:
		return "missing"
	default:
		return "unreadable"
	}
}

// Lookup is the result of SnapshotStore.Get. Snapshot is never nil.
// Err describes why an Unreadable document was discarded.
type Lookup struct {
	Snapshot *stats.Snapshot
	Status   LookupStatus
	Err      error
}

func missing(rt stats.ReportType, day stats.Day) Lookup {
	return Lookup{Snapshot: stats.ZeroSnapshot(rt, day), Status: Missing}
}

func unreadable(rt stats.ReportType, day stats.Day, err error) Lookup {
	return Lookup{
		Snapshot: stats.ZeroSnapshot(rt, day),
		Status:   Unreadable,
		Err:      fmt.Errorf("%w: %v", ErrSnapshotUnreadable, err),
	}
}

// SnapshotKey returns the object key {prefix}/{year}/{month}/{report-type}-{date}.json
func SnapshotKey(prefix string, reportType stats.ReportType, day stats.Day) string {
	name := fmt.Sprintf("%s-%s.json", reportType, day.String())
	return path.Join(
		strings.Trim(prefix, "/"),
		fmt.Sprintf("%04d", day.Year()),
		fmt.Sprintf("%02d", int(day.Month())),
		name,
	)
}

func encodeSnapshot(s *stats.Snapshot) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: marshal: %v", ErrPersistence, err)
	}
	return data, nil
}

// decodeSnapshot parses a stored document and checks it belongs to the
// requested report type and day.
func decodeSnapshot(data []byte, rt stats.ReportType, day stats.Day) (*stats.Snapshot, error) {
	var s stats.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.ReportType == "" {
		s.ReportType = rt
	}
	if s.Date == "" {
		s.Date = day.String()
	}
	s.Normalize()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.ReportType != rt || s.Date != day.String() {
		return nil, fmt.Errorf("document holds %s/%s, want %s/%s", s.ReportType, s.Date, rt, day)
	}
	return &s, nil
}

// Config for storage backend
type Config struct {
	Type string // "s3" or "filesystem"

	// Key prefix shared by every backend
	Prefix string

	// Filesystem config
	FilesystemRoot string

	// S3 config
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
}

// DefaultConfig returns the local development configuration
func DefaultConfig() Config {
	return Config{
		Type:           "filesystem",
		Prefix:         "iot-reports",
		FilesystemRoot: "/tmp/fleet-reporter",
		S3Region:       "ap-southeast-1",
	}
}
