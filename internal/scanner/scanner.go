package scanner

import (
	"context"
	"fmt"
	"sort"

	"sitbrief/internal/domain"
)

// DefaultLimit caps the entries taken from one feed or page.
const DefaultLimit = 20

// Request carries all parameters required to execute a scan.
type Request struct {
	SourceName string
	URLs       []string
	Selector   string
	Exclude    []string
	Limit      int
}

// EffectiveLimit returns Limit or DefaultLimit when unset.
func (r Request) EffectiveLimit() int {
	if r.Limit > 0 {
		return r.Limit
	}
	return DefaultLimit
}

// Scanner captures a single strategy implementation (rss, web).
type Scanner interface {
	Name() string
	Scan(ctx context.Context, req Request) ([]domain.Headline, error)
}

// Registry keeps a mapping from scanner names to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds a registry holding the given scanners.
func NewRegistry(scanners ...Scanner) *Registry {
	r := &Registry{scanners: map[string]Scanner{}}
	for _, s := range scanners {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", name)
}

// Names lists registered strategies in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.scanners))
	for name := range r.scanners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dedupe drops headlines whose URL was already seen, keeping first occurrences.
func Dedupe(headlines []domain.Headline) []domain.Headline {
	seen := make(map[string]struct{}, len(headlines))
	out := make([]domain.Headline, 0, len(headlines))
	for _, h := range headlines {
		if _, ok := seen[h.URL]; ok {
			continue
		}
		seen[h.URL] = struct{}{}
		out = append(out, h)
	}
	return out
}
