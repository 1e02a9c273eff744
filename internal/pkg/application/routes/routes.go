package routes

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/diwise/entity-gateway/internal/pkg/application/query"
)

var ErrInvalidPrimaryKey = errors.New("primary key route not valid")

// Parse converts the path remainder following the entity name into an
// ordered list of key/value predicates. An empty remainder yields an empty
// list. Keys must not be empty, values may be. Every token is path unescaped after splitting so that an escaped
// slash stays inside its value.
func Parse(remainder string) (query.PredicateList, error) {
	if remainder == "" {
		return query.PredicateList{}, nil
	}

	tokens := strings.Split(remainder, "/")
	if len(tokens)%2 != 0 {
		return nil, fmt.Errorf("%w: expected key/value pairs but found %d segments", ErrInvalidPrimaryKey, len(tokens))
	}

	predicates := make(query.PredicateList, 0, len(tokens)/2)

	for i := 0; i < len(tokens); i += 2 {
		key, err := url.PathUnescape(tokens[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPrimaryKey, err.Error())
		}

		if key == "" {
			return nil, fmt.Errorf("%w: empty key at segment %d", ErrInvalidPrimaryKey, i+1)
		}

		value, err := url.PathUnescape(tokens[i+1])
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPrimaryKey, err.Error())
		}

		predicates = append(predicates, query.Predicate{Key: key, Value: value})
	}

	return predicates, nil
}
