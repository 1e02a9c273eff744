package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/diwise/entity-gateway/internal/pkg/application/query"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	TraceAttributeEntityName string = "entity-name"
	TraceAttributeEndpoint   string = "endpoint"
)

var tracer = otel.Tracer("entity-gateway/remote")

var ErrBadResponse = errors.New("bad response from remote source")

var buffers = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Executor forwards queries to another gateway compatible service. Successful
// response bodies are handed out without copying and stay valid until the
// result is released.
type Executor struct {
	endpoint   string
	httpClient http.Client
	headers    map[string][]string
}

func WithHeader(name string, values ...string) func(*Executor) {
	return func(e *Executor) {
		e.headers[name] = append(e.headers[name], values...)
	}
}

func NewExecutor(endpoint string, options ...func(*Executor)) *Executor {
	e := &Executor{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		httpClient: http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		headers: map[string][]string{},
	}

	for _, option := range options {
		option(e)
	}

	return e
}

func (e *Executor) Execute(ctx context.Context, entityName string, keys query.PredicateList, queryString string) (query.ScopedResult, error) {
	var err error

	ctx, span := tracer.Start(ctx, "forward-query",
		trace.WithAttributes(
			attribute.String(TraceAttributeEntityName, entityName),
			attribute.String(TraceAttributeEndpoint, e.endpoint),
		),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	buf := buffers.Get().(*bytes.Buffer)
	buf.Reset()

	var statusCode int
	var contentType string

	statusCode, contentType, err = e.call(ctx, requestURL(e.endpoint, entityName, keys, queryString), buf)
	if err != nil {
		buffers.Put(buf)
		return nil, err
	}

	if statusCode != http.StatusOK {
		err = errorFromResponse(statusCode, contentType, buf.Bytes())
		buffers.Put(buf)
		return nil, err
	}

	if !json.Valid(buf.Bytes()) {
		buffers.Put(buf)
		err = fmt.Errorf("remote source returned a body that is not valid json (%w)", ErrBadResponse)
		return nil, err
	}

	return query.NewScopedResult(json.RawMessage(buf.Bytes()), func() {
		buffers.Put(buf)
	}), nil
}

func (e *Executor) call(ctx context.Context, endpoint string, buf *bytes.Buffer) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for header, values := range e.headers {
		for _, val := range values {
			req.Header.Add(header, val)
		}
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	_, err = io.Copy(buf, resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("failed to read response body: %s (%w)", err.Error(), ErrBadResponse)
	}

	return resp.StatusCode, resp.Header.Get("Content-Type"), nil
}

func requestURL(endpoint, entityName string, keys query.PredicateList, queryString string) string {
	b := strings.Builder{}
	b.WriteString(endpoint)
	b.WriteString("/")
	b.WriteString(url.PathEscape(entityName))

	for _, k := range keys {
		b.WriteString("/")
		b.WriteString(url.PathEscape(k.Key))
		b.WriteString("/")
		b.WriteString(url.PathEscape(k.Value))
	}

	if queryString != "" {
		b.WriteString("?")
		b.WriteString(queryString)
	}

	return b.String()
}

type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"error"`
}

// errorFromResponse turns a client error reported by the remote source into a
// domain error. Server errors and unrecognised bodies are not classified.
func errorFromResponse(statusCode int, contentType string, body []byte) error {
	if statusCode >= http.StatusBadRequest && statusCode < http.StatusInternalServerError {
		env := errorEnvelope{}
		if json.Unmarshal(body, &env) == nil && env.Error != nil && env.Error.Code != "" {
			status := env.Error.Status
			if status == 0 {
				status = statusCode
			}
			return query.NewDomainError(status, env.Error.Code, env.Error.Message)
		}
	}

	return fmt.Errorf("remote source returned status code %d (content-type: %s, body: %s) (%w)",
		statusCode, contentType, string(body), ErrBadResponse)
}
