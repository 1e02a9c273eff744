package query

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/matryer/is"
)

func TestLiftedValueSurvivesRelease(t *testing.T) {
	is := is.New(t)

	root := map[string]any{
		"id":    "1",
		"title": "Dune",
		"tags":  []any{"scifi", "classic"},
		"author": map[string]any{
			"name": "Frank Herbert",
		},
	}

	result := NewScopedResult(root, func() {
		// simulate the backing resource being recycled
		root["title"] = "overwritten"
		root["tags"].([]any)[0] = "overwritten"
		delete(root["author"].(map[string]any), "name")
	})

	lifted, err := Lift(result)
	is.NoErr(err)

	result.Release()

	doc := lifted.(map[string]any)
	is.Equal(doc["title"], "Dune")                                   // lifted value should not change on release
	is.Equal(doc["tags"].([]any)[0], "scifi")                        // nested slices should be copied
	is.Equal(doc["author"].(map[string]any)["name"], "Frank Herbert") // nested maps should be copied
}

func TestLiftCopiesBorrowedBytes(t *testing.T) {
	is := is.New(t)

	buffer := []byte(`{"id":"1"}`)
	result := NewScopedResult(json.RawMessage(buffer), func() {
		copy(buffer, []byte(`{"id":"X"}`))
	})

	lifted, err := Lift(result)
	is.NoErr(err)
	result.Release()

	is.Equal(string(lifted.(json.RawMessage)), `{"id":"1"}`) // lifted bytes must not alias the released buffer
}

func TestReleaseRunsOnlyOnce(t *testing.T) {
	is := is.New(t)

	released := 0
	result := NewScopedResult("doc", func() { released++ })

	result.Release()
	result.Release()

	is.Equal(released, 1)       // release func should run exactly once
	is.Equal(result.Root(), nil) // root should not be reachable after release
}

func TestLiftNilRoot(t *testing.T) {
	is := is.New(t)

	lifted, err := Lift(NewScopedResult(nil, nil))

	is.NoErr(err)
	is.Equal(lifted, nil)
}

func TestDomainErrorCanBeFoundWhenWrapped(t *testing.T) {
	is := is.New(t)

	err := NewEntityNotFoundError("no such entity")
	wrapped := fmt.Errorf("lookup failed: %w", err)

	de, ok := AsDomainError(wrapped)

	is.True(ok)
	is.Equal(de.Status, 404)
	is.Equal(de.Code, CodeEntityNotFound)
	is.Equal(de.Message, "no such entity")
}
