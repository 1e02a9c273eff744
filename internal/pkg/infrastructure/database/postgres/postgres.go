package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/diwise/entity-gateway/internal/pkg/application/query"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("entity-gateway/postgres")

const SelectParameter string = "$select"

// postgres error codes that are the client's fault
const (
	undefinedTable            string = "42P01"
	undefinedColumn           string = "42703"
	invalidTextRepresentation string = "22P02"
)

// Conn is a connection checked out of a pool. Release hands it back.
type Conn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Release()
}

type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
}

type pgxPool struct {
	*pgxpool.Pool
}

func (p pgxPool) Acquire(ctx context.Context) (Conn, error) {
	conn, err := p.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type Executor struct {
	pool   Pool
	schema string
}

func Connect(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	conn, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	err = conn.Ping(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return conn, err
}

// NewExecutor returns an executor that treats entity names as tables in
// schema, or in the connection's search path if schema is empty.
func NewExecutor(pool *pgxpool.Pool, schema string) *Executor {
	return NewExecutorWithPool(pgxPool{Pool: pool}, schema)
}

func NewExecutorWithPool(pool Pool, schema string) *Executor {
	return &Executor{
		pool:   pool,
		schema: schema,
	}
}

// Execute returns all rows of the table as an array when keys is empty,
// otherwise the first row matching every key as an object. The pooled
// connection stays checked out until the result is released.
func (e *Executor) Execute(ctx context.Context, entityName string, keys query.PredicateList, queryString string) (query.ScopedResult, error) {
	var err error

	ctx, span := tracer.Start(ctx, "execute-query",
		trace.WithAttributes(
			attribute.String("entity-name", entityName),
			attribute.Int("key-count", len(keys)),
		),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	sql, args, stmtErr := buildStatement(e.schema, entityName, keys, queryString)
	if stmtErr != nil {
		return nil, stmtErr
	}

	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	var doc any
	err = conn.QueryRow(ctx, sql, args...).Scan(&doc)
	if err != nil {
		conn.Release()

		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
			return nil, query.NewEntityNotFoundError(fmt.Sprintf("no %s found matching %s", entityName, keys.String()))
		}

		return nil, translateError(entityName, err)
	}

	return query.NewScopedResult(doc, conn.Release), nil
}

func translateError(entityName string, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case undefinedTable:
		return query.NewEntityNotFoundError(fmt.Sprintf("entity %s not found", entityName))
	case undefinedColumn, invalidTextRepresentation:
		return query.NewBadRequestError(pgErr.Message)
	}

	return err
}

func buildStatement(schema, entityName string, keys query.PredicateList, queryString string) (string, []any, error) {
	table := pgx.Identifier{entityName}
	if schema != "" {
		table = pgx.Identifier{schema, entityName}
	}

	columns, err := selectedColumns(queryString)
	if err != nil {
		return "", nil, err
	}

	b := strings.Builder{}
	b.WriteString("SELECT ")
	b.WriteString(columns)
	b.WriteString(" FROM ")
	b.WriteString(table.Sanitize())

	args := make([]any, 0, len(keys))

	for i, k := range keys {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		args = append(args, k.Value)
		fmt.Fprintf(&b, "CAST(%s AS text) = $%d", pgx.Identifier{k.Key}.Sanitize(), len(args))
	}

	if keys.Empty() {
		return "SELECT coalesce(json_agg(t), '[]'::json) FROM (" + b.String() + ") t", args, nil
	}

	return "SELECT row_to_json(t) FROM (" + b.String() + " LIMIT 1) t", args, nil
}

func selectedColumns(queryString string) (string, error) {
	params, err := url.ParseQuery(queryString)
	if err != nil {
		return "", query.NewBadRequestError(fmt.Sprintf("invalid query string: %s", err.Error()))
	}

	selection := params.Get(SelectParameter)
	if selection == "" {
		return "*", nil
	}

	columns := []string{}
	for _, c := range strings.Split(selection, ",") {
		c = strings.TrimSpace(c)
		if c == "" {
			return "", query.NewBadRequestError(fmt.Sprintf("invalid column list %q", selection))
		}
		columns = append(columns, pgx.Identifier{c}.Sanitize())
	}

	return strings.Join(columns, ", "), nil
}
