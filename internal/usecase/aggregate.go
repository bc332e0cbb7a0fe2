package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"sitbrief/internal/domain"
	"sitbrief/internal/ports"
)

const headlinesKey = "headlines.json"

// HeadlineReport is the document written after an aggregation run.
type HeadlineReport struct {
	FetchedAt  string            `json:"fetchedAt"`
	TotalCount int               `json:"totalCount"`
	Sources    []string          `json:"sources"`
	Headlines  []domain.Headline `json:"headlines"`
}

// HeadlineCollector runs the aggregator and stores the combined report.
type HeadlineCollector struct {
	source ports.HeadlineSource
	writer ports.ObjectWriter
	order  []string
	logger *slog.Logger
	now    func() time.Time
}

// NewHeadlineCollector wires a headline source with the export writer.
// order lists source names in configuration order.
func NewHeadlineCollector(source ports.HeadlineSource, writer ports.ObjectWriter, order []string, logger *slog.Logger) *HeadlineCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &HeadlineCollector{
		source: source,
		writer: writer,
		order:  order,
		logger: logger.With("component", "aggregate"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Collect gathers headlines from every source and writes headlines.json.
func (c *HeadlineCollector) Collect(ctx context.Context) (HeadlineReport, error) {
	grouped, err := c.source.Collect(ctx)
	if err != nil {
		return HeadlineReport{}, fmt.Errorf("collect headlines: %w", err)
	}

	names := append([]string{}, c.order...)
	known := make(map[string]struct{}, len(names))
	for _, n := range names {
		known[n] = struct{}{}
	}
	var extra []string
	for n := range grouped {
		if _, ok := known[n]; !ok {
			extra = append(extra, n)
		}
	}
	sort.Strings(extra)
	names = append(names, extra...)

	report := HeadlineReport{
		FetchedAt: c.now().Format(time.RFC3339),
		Sources:   names,
		Headlines: []domain.Headline{},
	}
	for _, n := range names {
		report.Headlines = append(report.Headlines, grouped[n]...)
	}
	report.TotalCount = len(report.Headlines)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return HeadlineReport{}, fmt.Errorf("encode headlines: %w", err)
	}
	if c.writer != nil {
		if err := c.writer.Put(ctx, headlinesKey, data, "application/json"); err != nil {
			return HeadlineReport{}, fmt.Errorf("write headlines: %w", err)
		}
	}
	c.logger.Info("headlines collected", "sources", len(names), "total", report.TotalCount)
	return report, nil
}
