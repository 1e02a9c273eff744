package sources

import (
	"context"
	"fmt"
	"regexp"

	"github.com/diwise/entity-gateway/internal/pkg/application/query"
)

type entityMatcher struct {
	name    string
	pattern *regexp.Regexp
}

func (m entityMatcher) matchesName(entityName string) bool {
	return m.name != "" && m.name == entityName
}

func (m entityMatcher) matchesPattern(entityName string) bool {
	return m.pattern != nil && m.pattern.MatchString(entityName)
}

type source struct {
	id       string
	entities []entityMatcher
	executor query.Executor
}

// Registry routes a query to the source that is configured to serve the
// entity. Exact names take precedence over patterns, sources are tried in
// configuration order.
type Registry struct {
	sources []source
}

// NewRegistry binds every configured source to the executor registered
// under its id in executors.
func NewRegistry(cfg Config, executors map[string]query.Executor) (*Registry, error) {
	reg := &Registry{
		sources: make([]source, 0, len(cfg.Sources)),
	}

	for _, src := range cfg.Sources {
		executor, ok := executors[src.ID]
		if !ok {
			return nil, fmt.Errorf("no executor registered for source %q", src.ID)
		}

		s := source{
			id:       src.ID,
			executor: executor,
		}

		for _, ei := range src.Entities {
			m := entityMatcher{name: ei.Name}

			if ei.Pattern != "" {
				p, err := regexp.CompilePOSIX(ei.Pattern)
				if err != nil {
					return nil, fmt.Errorf("invalid entity pattern %q for source %q: %w", ei.Pattern, src.ID, err)
				}
				m.pattern = p
			}

			s.entities = append(s.entities, m)
		}

		reg.sources = append(reg.sources, s)
	}

	return reg, nil
}

func (reg *Registry) Execute(ctx context.Context, entityName string, keys query.PredicateList, queryString string) (query.ScopedResult, error) {
	src, ok := reg.lookup(entityName)
	if !ok {
		return nil, query.NewEntityNotFoundError(fmt.Sprintf("entity %s not found", entityName))
	}

	return src.executor.Execute(ctx, entityName, keys, queryString)
}

func (reg *Registry) lookup(entityName string) (source, bool) {
	for _, src := range reg.sources {
		for _, m := range src.entities {
			if m.matchesName(entityName) {
				return src, true
			}
		}
	}

	for _, src := range reg.sources {
		for _, m := range src.entities {
			if m.matchesPattern(entityName) {
				return src, true
			}
		}
	}

	return source{}, false
}
