package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/observability"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/stats"
)

const backendFilesystem = "filesystem"

// FileSystemStore keeps snapshots under a local directory using the same
// key layout as the object store
type FileSystemStore struct {
	rootDir string
	prefix  string
	metrics *observability.Metrics
}

// NewFileSystemStore creates a new filesystem-based snapshot store
func NewFileSystemStore(rootDir, prefix string, metrics *observability.Metrics) (*FileSystemStore, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &FileSystemStore{rootDir: rootDir, prefix: prefix, metrics: metrics}, nil
}

func (s *FileSystemStore) path(rt stats.ReportType, day stats.Day) string {
	return filepath.Join(s.rootDir, filepath.FromSlash(SnapshotKey(s.prefix, rt, day)))
}

// Get implements SnapshotStore.Get
func (s *FileSystemStore) Get(ctx context.Context, rt stats.ReportType, day stats.Day) Lookup {
	data, err := os.ReadFile(s.path(rt, day))
	if errors.Is(err, fs.ErrNotExist) {
		s.metrics.RecordSnapshotOp("get", backendFilesystem, "missing")
		return missing(rt, day)
	}
	if err != nil {
		s.metrics.RecordSnapshotOp("get", backendFilesystem, observability.OutcomeFailed)
		return unreadable(rt, day, err)
	}

	snap, err := decodeSnapshot(data, rt, day)
	if err != nil {
		s.metrics.RecordSnapshotOp("get", backendFilesystem, observability.OutcomeFailed)
		return unreadable(rt, day, err)
	}
	s.metrics.RecordSnapshotOp("get", backendFilesystem, observability.OutcomeOK)
	return Lookup{Snapshot: snap, Status: Found}
}

// Put implements SnapshotStore.Put. The document is written to a temporary
// file and renamed so readers never observe a partial write.
func (s *FileSystemStore) Put(ctx context.Context, snapshot *stats.Snapshot) (err error) {
	defer func() {
		status := observability.OutcomeOK
		if err != nil {
			status = observability.OutcomeFailed
		}
		s.metrics.RecordSnapshotOp("put", backendFilesystem, status)
	}()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	data, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	day, err := stats.ParseDay(snapshot.Date, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	target := s.path(snapshot.ReportType, day)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("%w: create directory: %v", ErrPersistence, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrPersistence, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write: %v", ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrPersistence, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("%w: rename: %v", ErrPersistence, err)
	}
	return nil
}

// HealthCheck verifies the root directory is still reachable
func (s *FileSystemStore) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(s.rootDir)
	if err != nil {
		return fmt.Errorf("filesystem health check failed: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("filesystem health check failed: %s is not a directory", s.rootDir)
	}
	return nil
}
