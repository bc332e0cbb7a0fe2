package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"sitbrief/internal/config"
	"sitbrief/internal/domain"
	"sitbrief/internal/ports"
	"sitbrief/internal/scanner"
)

// Aggregator implements ports.HeadlineSource via registered scanner strategies.
type Aggregator struct {
	registry *scanner.Registry
	sources  []config.SourceConfig
	logger   *slog.Logger
}

var _ ports.HeadlineSource = (*Aggregator)(nil)

// NewAggregator wires scanner registry with config-defined sources.
func NewAggregator(reg *scanner.Registry, sources []config.SourceConfig, log *slog.Logger) *Aggregator {
	return &Aggregator{
		registry: reg,
		sources:  sources,
		logger:   log,
	}
}

// Collect runs every configured source. Unknown strategies fail fast; a source
// whose scan fails is logged and yields no headlines.
func (a *Aggregator) Collect(ctx context.Context) (map[string][]domain.Headline, error) {
	if a.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	a.debug("collect headlines", "sources", len(a.sources))

	out := make(map[string][]domain.Headline, len(a.sources))
	for _, src := range a.sources {
		strategy, err := a.registry.Resolve(strategyName(src))
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}

		results, err := strategy.Scan(ctx, toRequest(src))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if a.logger != nil {
				a.logger.Warn("source failed", "source", src.Name, "strategy", strategy.Name(), "error", err)
			}
			out[src.Name] = []domain.Headline{}
			continue
		}

		a.debug("source produced headlines", "source", src.Name, "count", len(results))
		out[src.Name] = results
	}

	return out, nil
}

// strategyName mirrors the aggregator default: anything but rss is scraped as a web page.
func strategyName(src config.SourceConfig) string {
	name := strings.ToLower(strings.TrimSpace(src.Strategy))
	if name == "" {
		return "web"
	}
	return name
}

func toRequest(src config.SourceConfig) scanner.Request {
	urls := append([]string{}, src.Feeds...)
	if src.URL != "" {
		urls = append(urls, src.URL)
	}
	return scanner.Request{
		SourceName: src.Name,
		URLs:       urls,
		Selector:   src.Selector,
		Exclude:    src.Exclude,
		Limit:      src.Limit,
	}
}

func (a *Aggregator) debug(msg string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Debug(msg, args...)
	}
}
