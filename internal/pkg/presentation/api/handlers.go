package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/diwise/entity-gateway/internal/pkg/application/gateway"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const IncidentHeader string = "X-Incident-ID"

type Dispatcher interface {
	Handle(ctx context.Context, entityName, keyRoute, queryString string) gateway.Response
}

func RegisterHandlers(ctx context.Context, r chi.Router, dispatcher Dispatcher) {
	r.Use(
		EscapedRoutePath(),
		Logger(logging.GetFromContext(ctx)),
	)

	handler := NewEntityHandler(dispatcher)

	r.Get("/{entityName}", handler)
	r.Get("/{entityName}/*", handler)
}

// NewEntityHandler handles GET requests for an entity with an optional primary key route
func NewEntityHandler(dispatcher Dispatcher) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		entityName, err := url.PathUnescape(chi.URLParam(r, "entityName"))
		if err != nil {
			entityName = chi.URLParam(r, "entityName")
		}

		if labeler, found := otelhttp.LabelerFromContext(ctx); found {
			labeler.Add(attribute.String(gateway.TraceAttributeEntityName, entityName))
		}

		ctx = logging.NewContextWithLogger(ctx, logging.GetFromContext(ctx), "entity", entityName)

		response := dispatcher.Handle(ctx, entityName, chi.URLParam(r, "*"), r.URL.RawQuery)

		writeResponse(ctx, w, response)
	})
}

func writeResponse(ctx context.Context, w http.ResponseWriter, response gateway.Response) {
	body, err := json.Marshal(response.Body)
	if err != nil {
		logging.GetFromContext(ctx).Error("failed to marshal response body", "err", err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	status := response.Status
	if status < 100 || status > 999 {
		status = http.StatusInternalServerError
	}

	w.Header().Add("Content-Type", "application/json")
	if response.IncidentID != "" {
		w.Header().Add(IncidentHeader, response.IncidentID)
	}
	w.WriteHeader(status)
	w.Write(body)
}

// EscapedRoutePath makes chi route on the escaped request path so that an
// escaped slash inside a key value does not split the primary key route.
func EscapedRoutePath() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePath == "" {
				rctx.RoutePath = r.URL.EscapedPath()
			}
			next.ServeHTTP(w, r)
		})
	}
}

func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			_, ctx, _ = o11y.AddTraceIDToLoggerAndStoreInContext(
				trace.SpanFromContext(ctx),
				logger,
				ctx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
