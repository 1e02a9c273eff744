package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/diwise/entity-gateway/internal/pkg/application/query"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	testutils "github.com/diwise/service-chassis/pkg/test/http"
	"github.com/diwise/service-chassis/pkg/test/http/expects"
	"github.com/diwise/service-chassis/pkg/test/http/response"
	"github.com/matryer/is"
)

var Expects = testutils.Expects
var Returns = testutils.Returns
var anyInput = expects.AnyInput
var method = expects.RequestMethod
var path = expects.RequestPath

func TestForwardKeyedQuery(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodGet),
			path("/books/id/1"),
			expects.QueryParamEquals("$select", "title"),
		),
		Returns(
			response.Code(http.StatusOK),
			response.ContentType("application/json"),
			response.Body([]byte(`{"id":"1","title":"Dune"}`)),
		),
	)
	defer s.Close()

	e := NewExecutor(s.URL())

	result, err := e.Execute(context.Background(), "books", query.PredicateList{{Key: "id", Value: "1"}}, "$select=title")
	is.NoErr(err)
	defer result.Release()

	doc, ok := result.Root().(json.RawMessage)
	is.True(ok) // root should be the raw response body
	is.Equal(string(doc), `{"id":"1","title":"Dune"}`)
}

func TestLiftedBodySurvivesRelease(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(
			response.Code(http.StatusOK),
			response.Body([]byte(`[{"id":"1"},{"id":"2"}]`)),
		),
	)
	defer s.Close()

	result, err := NewExecutor(s.URL()).Execute(context.Background(), "books", query.PredicateList{}, "")
	is.NoErr(err)

	doc, err := query.Lift(result)
	is.NoErr(err)
	result.Release()

	b, err := json.Marshal(doc)
	is.NoErr(err)
	is.Equal(string(b), `[{"id":"1"},{"id":"2"}]`)
}

func TestRemoteDomainErrorIsPassedOn(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(
			response.Code(http.StatusNotFound),
			response.ContentType("application/json"),
			response.Body([]byte(`{"error":{"code":"EntityNotFound","message":"no books found matching id/9","status":404}}`)),
		),
	)
	defer s.Close()

	_, err := NewExecutor(s.URL()).Execute(context.Background(), "books", query.PredicateList{{Key: "id", Value: "9"}}, "")

	de, ok := query.AsDomainError(err)
	is.True(ok) // a remote error envelope should become a domain error
	is.Equal(de.Status, http.StatusNotFound)
	is.Equal(de.Code, "EntityNotFound")
	is.Equal(de.Message, "no books found matching id/9")
}

func TestRemoteServerErrorIsNotClassified(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(
			response.Code(http.StatusInternalServerError),
			response.Body([]byte(`{"error":{"code":"UnexpectedError","message":"boom","status":500}}`)),
		),
	)
	defer s.Close()

	_, err := NewExecutor(s.URL()).Execute(context.Background(), "books", nil, "")

	_, ok := query.AsDomainError(err)
	is.True(!ok) // remote server errors must not leak through as domain errors
	is.True(errors.Is(err, ErrBadResponse))
}

func TestInvalidBodyIsRejected(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(
			response.Code(http.StatusOK),
			response.Body([]byte(`<html></html>`)),
		),
	)
	defer s.Close()

	_, err := NewExecutor(s.URL()).Execute(context.Background(), "books", nil, "")

	is.True(errors.Is(err, ErrBadResponse))
}

func TestRequestURLEscapesSegments(t *testing.T) {
	is := is.New(t)

	u := requestURL("http://source", "books", query.PredicateList{{Key: "path", Value: "a/b"}}, "q=1")

	is.Equal(u, "http://source/books/path/a%2Fb?q=1")
}

func TestConfiguredHeadersAreSent(t *testing.T) {
	is := is.New(t)

	received := http.Header{}
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer s.Close()

	e := NewExecutor(s.URL, WithHeader("Authorization", "Bearer token"), WithHeader("X-Tenant", "north", "south"))

	result, err := e.Execute(context.Background(), "books", nil, "")
	is.NoErr(err)
	result.Release()

	is.Equal(received.Get("Authorization"), "Bearer token")
	is.Equal(received.Values("X-Tenant"), []string{"north", "south"}) // every value should be sent
	is.Equal(received.Get("Accept"), "application/json")
}

func TestRemoteDomainErrorIsNotLogged(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(
			response.Code(http.StatusBadRequest),
			response.Body([]byte(`{"error":{"code":"BadRequest","message":"unknown column","status":400}}`)),
		),
	)
	defer s.Close()

	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := logging.NewContextWithLogger(context.Background(), logger, "test", t.Name())

	_, err := NewExecutor(s.URL()).Execute(ctx, "books", nil, "")

	_, ok := query.AsDomainError(err)
	is.True(ok)
	is.Equal(buf.Len(), 0) // client errors from the remote source must not be logged
}
