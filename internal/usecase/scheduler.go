package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sitbrief/internal/ports"
)

// Publisher exports the database and mirrors the result into the bucket.
type Publisher struct {
	exporter *Exporter
	syncer   *Syncer
}

// PublishReport combines the export and sync results.
type PublishReport struct {
	Export ExportReport
	Sync   SyncReport
}

// NewPublisher wires export and sync; a nil syncer publishes locally only.
func NewPublisher(exporter *Exporter, syncer *Syncer) *Publisher {
	return &Publisher{exporter: exporter, syncer: syncer}
}

// Publish runs Export then a cleaning Sync.
func (p *Publisher) Publish(ctx context.Context) (PublishReport, error) {
	exported, err := p.exporter.Export(ctx)
	if err != nil {
		return PublishReport{}, fmt.Errorf("export: %w", err)
	}
	report := PublishReport{Export: exported}
	if p.syncer == nil {
		return report, nil
	}
	synced, err := p.syncer.Sync(ctx, true)
	if err != nil {
		return report, fmt.Errorf("sync: %w", err)
	}
	report.Sync = synced
	return report, nil
}

// Summary renders the report as a short operator message.
func (r PublishReport) Summary() string {
	msg := fmt.Sprintf("Brief published %s: %d articles, %d topics, %d pages",
		r.Export.GeneratedAt.Format(time.RFC3339), r.Export.Articles, r.Export.Topics, r.Export.Pages)
	if len(r.Sync.Uploaded) > 0 || len(r.Sync.Deleted) > 0 {
		msg += fmt.Sprintf("; uploaded %d, removed %d", len(r.Sync.Uploaded), len(r.Sync.Deleted))
	}
	return msg
}

// Scheduler wires the cron driver with the publisher.
type Scheduler struct {
	driver    ports.Scheduler
	publisher *Publisher
	notifier  ports.Notifier
	logger    *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring publishes.
func NewScheduler(driver ports.Scheduler, publisher *Publisher, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, publisher: publisher, logger: logger.With("component", "scheduler")}
}

// WithNotifier reports every scheduled publish, failed or not, through n.
func (s *Scheduler) WithNotifier(n ports.Notifier) *Scheduler {
	s.notifier = n
	return s
}

// Start registers the publisher with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.publisher == nil {
		return nil
	}

	job := func(trigger time.Time) {
		report, err := s.publisher.Publish(ctx)
		if err != nil {
			s.logger.Error("scheduled publish failed", "trigger", trigger, "error", err)
			s.notify(ctx, "Brief publish failed: "+err.Error())
			return
		}
		s.logger.Info("scheduled publish done", "trigger", trigger,
			"files", len(report.Export.Keys), "uploaded", len(report.Sync.Uploaded), "deleted", len(report.Sync.Deleted))
		s.notify(ctx, report.Summary())
	}

	return s.driver.Start(ctx, job)
}

func (s *Scheduler) notify(ctx context.Context, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, message); err != nil {
		s.logger.Warn("publish notification failed", "error", err)
	}
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
