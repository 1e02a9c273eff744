package query

import (
	"context"
	"strings"
)

//go:generate moq -rm -out query_mock.go . Executor

// Executor runs a query for an entity and hands back a result that stays
// valid until Release is called on it.
type Executor interface {
	Execute(ctx context.Context, entityName string, keys PredicateList, queryString string) (ScopedResult, error)
}

// Predicate is a single key/value pair taken from a primary key route
type Predicate struct {
	Key   string
	Value string
}

// PredicateList keeps predicates in the order they appeared in the route.
// Hierarchical backends depend on that order (partition key before item key).
type PredicateList []Predicate

func (pl PredicateList) Empty() bool {
	return len(pl) == 0
}

func (pl PredicateList) Keys() []string {
	keys := make([]string, 0, len(pl))
	for _, p := range pl {
		keys = append(keys, p.Key)
	}
	return keys
}

func (pl PredicateList) String() string {
	parts := make([]string, 0, len(pl)*2)
	for _, p := range pl {
		parts = append(parts, p.Key, p.Value)
	}
	return strings.Join(parts, "/")
}
