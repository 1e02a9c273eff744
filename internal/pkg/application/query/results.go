package query

import (
	"fmt"
	"sync"

	"github.com/mitchellh/copystructure"
)

// ScopedResult is a query result whose root value may borrow memory owned by
// the executor (a pooled buffer, a pooled connection). The root must not be
// used after Release.
type ScopedResult interface {
	Root() any
	Release()
}

type scopedResult struct {
	root    any
	release func()
	once    sync.Once
}

// NewScopedResult wraps root and an optional release func. Release is
// idempotent, the func runs at most once.
func NewScopedResult(root any, release func()) ScopedResult {
	return &scopedResult{
		root:    root,
		release: release,
	}
}

func (r *scopedResult) Root() any {
	return r.root
}

func (r *scopedResult) Release() {
	r.once.Do(func() {
		if r.release != nil {
			r.release()
		}
		r.root = nil
	})
}

// Lift deep copies the root of a scoped result so that the copy can be used
// after the result has been released. It must be called before Release.
func Lift(result ScopedResult) (any, error) {
	if result == nil {
		return nil, fmt.Errorf("no result to lift")
	}

	root := result.Root()
	if root == nil {
		return nil, nil
	}

	detached, err := copystructure.Copy(root)
	if err != nil {
		return nil, fmt.Errorf("failed to detach query result: %w", err)
	}

	return detached, nil
}
