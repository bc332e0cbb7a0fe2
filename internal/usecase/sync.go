package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"sitbrief/internal/metrics"
	"sitbrief/internal/ports"
)

const defaultSyncConcurrency = 4

// SyncDeps wires the syncer.
type SyncDeps struct {
	// Local is the export directory.
	Local       ports.ObjectStore
	Remote      ports.ObjectStore
	Prefix      string
	Concurrency int
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Syncer mirrors the export directory into the bucket under a prefix.
type Syncer struct {
	deps SyncDeps
}

// SyncReport counts the objects touched by one sync.
type SyncReport struct {
	Uploaded []string
	Deleted  []string
}

// NewSyncer constructs the sync use case.
func NewSyncer(deps SyncDeps) *Syncer {
	if deps.Concurrency < 1 {
		deps.Concurrency = defaultSyncConcurrency
	}
	deps.Prefix = strings.Trim(deps.Prefix, "/")
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("component", "sync")
	return &Syncer{deps: deps}
}

// RemoteKey maps a local key onto its bucket key.
func (s *Syncer) RemoteKey(key string) string {
	if s.deps.Prefix == "" {
		return key
	}
	return s.deps.Prefix + "/" + key
}

// Sync uploads every local document. With clean, remote objects under the
// prefix that are not part of this upload are deleted first.
func (s *Syncer) Sync(ctx context.Context, clean bool) (SyncReport, error) {
	if s.deps.Remote == nil {
		return SyncReport{}, fmt.Errorf("object store is not configured")
	}

	local, err := s.deps.Local.List(ctx, "")
	if err != nil {
		return SyncReport{}, fmt.Errorf("list export dir: %w", err)
	}

	wanted := make(map[string]struct{}, len(local))
	for _, obj := range local {
		wanted[s.RemoteKey(obj.Key)] = struct{}{}
	}

	report := SyncReport{}
	if clean {
		deleted, err := s.clean(ctx, wanted)
		if err != nil {
			return report, err
		}
		report.Deleted = deleted
	}

	uploaded := make([]string, len(local))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.deps.Concurrency)
	for i, obj := range local {
		i, key := i, obj.Key
		g.Go(func() error {
			content, err := s.deps.Local.Get(gctx, key)
			if err != nil {
				return fmt.Errorf("read %s: %w", key, err)
			}
			remote := s.RemoteKey(key)
			if err := s.deps.Remote.Put(gctx, remote, content, contentType(key)); err != nil {
				return fmt.Errorf("upload %s: %w", remote, err)
			}
			uploaded[i] = remote
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	report.Uploaded = uploaded

	s.deps.Metrics.AddSynced("upload", len(report.Uploaded))
	s.deps.Metrics.AddSynced("delete", len(report.Deleted))
	s.deps.Logger.Info("sync finished", "prefix", s.deps.Prefix, "uploaded", len(report.Uploaded), "deleted", len(report.Deleted))
	return report, nil
}

func (s *Syncer) clean(ctx context.Context, wanted map[string]struct{}) ([]string, error) {
	remote, err := s.deps.Remote.List(ctx, s.deps.Prefix)
	if err != nil {
		return nil, fmt.Errorf("list bucket: %w", err)
	}
	deleted := []string{}
	for _, obj := range remote {
		if _, keep := wanted[obj.Key]; keep {
			continue
		}
		if err := s.deps.Remote.Delete(ctx, obj.Key); err != nil {
			return deleted, fmt.Errorf("delete %s: %w", obj.Key, err)
		}
		deleted = append(deleted, obj.Key)
	}
	return deleted, nil
}

// List returns the remote objects under the prefix.
func (s *Syncer) List(ctx context.Context) ([]ports.ObjectInfo, error) {
	if s.deps.Remote == nil {
		return nil, fmt.Errorf("object store is not configured")
	}
	return s.deps.Remote.List(ctx, s.deps.Prefix)
}

func contentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".json":
		return "application/json"
	case ".html":
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
