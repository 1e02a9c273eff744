package gateway

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/diwise/entity-gateway/internal/pkg/application/query"
	"github.com/diwise/entity-gateway/internal/pkg/application/routes"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	TraceAttributeEntityName string = "entity-name"
	TraceAttributeKeyRoute   string = "key-route"
)

var tracer = otel.Tracer("entity-gateway/dispatcher")

// Response is the outcome of a single request. Body is either the raw
// document returned by the executor or an ErrorEnvelope.
type Response struct {
	Status     int
	Body       any
	IncidentID string
}

type Dispatcher struct {
	executor query.Executor
	mapper   ErrorMapper
}

type Option func(*Dispatcher)

func WithServerErrorCode(code string) Option {
	return func(d *Dispatcher) {
		d.mapper = NewErrorMapper(code)
	}
}

func NewDispatcher(executor query.Executor, options ...Option) *Dispatcher {
	d := &Dispatcher{
		executor: executor,
		mapper:   NewErrorMapper(DefaultServerErrorCode),
	}

	for _, option := range options {
		option(d)
	}

	return d
}

// Handle runs a single request through parse, execute, lift and error mapping
func (d *Dispatcher) Handle(ctx context.Context, entityName, keyRoute, queryString string) Response {
	var err error

	ctx, span := tracer.Start(ctx, "handle-request",
		trace.WithAttributes(
			attribute.String(TraceAttributeEntityName, entityName),
			attribute.String(TraceAttributeKeyRoute, keyRoute),
		),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	keys, parseErr := routes.Parse(keyRoute)
	if parseErr != nil {
		return d.respondWithFailure(ctx, DomainFailure{
			Status:  http.StatusBadRequest,
			Code:    query.CodeInvalidPrimaryKey,
			Message: parseErr.Error(),
		})
	}

	doc, failure := d.execute(ctx, entityName, keys, queryString)
	if failure != nil {
		if _, unclassified := failure.(UnclassifiedFailure); unclassified {
			err = failure
		}
		return d.respondWithFailure(ctx, failure)
	}

	return Response{
		Status: http.StatusOK,
		Body:   doc,
	}
}

// execute calls the executor and lifts the result out of its scope. The
// scoped result is released exactly once whichever way this func returns,
// including when the executor or the lift panics.
func (d *Dispatcher) execute(ctx context.Context, entityName string, keys query.PredicateList, queryString string) (doc any, failure Failure) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			failure = recovered(r, debug.Stack())
		}
	}()

	result, err := d.executor.Execute(ctx, entityName, keys, queryString)
	if result != nil {
		defer result.Release()
	}

	if err != nil {
		return nil, Classify(err)
	}

	if result == nil {
		return nil, Classify(errors.New("query executor returned neither a result nor an error"))
	}

	doc, err = query.Lift(result)
	if err != nil {
		return nil, Classify(err)
	}

	return doc, nil
}

func (d *Dispatcher) respondWithFailure(ctx context.Context, failure Failure) Response {
	switch f := failure.(type) {
	case DomainFailure:
		ge := d.mapper.MapDomain(f.Status, f.Code, f.Message)
		return Response{
			Status: ge.Status,
			Body:   ErrorEnvelope{Error: ge},
		}
	case UnclassifiedFailure:
		ge, incident := d.mapper.MapUnclassified(ctx, f)
		return Response{
			Status:     ge.Status,
			Body:       ErrorEnvelope{Error: ge},
			IncidentID: incident,
		}
	}

	// unreachable as long as Failure stays sealed
	ge, incident := d.mapper.MapUnclassified(ctx, UnclassifiedFailure{Message: failure.Error()})
	return Response{Status: ge.Status, Body: ErrorEnvelope{Error: ge}, IncidentID: incident}
}
