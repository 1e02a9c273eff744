package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/diwise/entity-gateway/internal/pkg/application/query"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("entity-gateway/dynamodb")

// QueryAPI is the part of the DynamoDB client used by the executor
type QueryAPI interface {
	Query(ctx context.Context, params *sdk.QueryInput, optFns ...func(*sdk.Options)) (*sdk.QueryOutput, error)
	Scan(ctx context.Context, params *sdk.ScanInput, optFns ...func(*sdk.Options)) (*sdk.ScanOutput, error)
}

type Executor struct {
	client      QueryAPI
	tablePrefix string
}

func NewExecutor(client QueryAPI, tablePrefix string) *Executor {
	return &Executor{
		client:      client,
		tablePrefix: tablePrefix,
	}
}

// Execute maps the first key to the partition key and the second to the sort
// key of table tablePrefix+entityName. Further keys filter the result. With no
// keys the first page of a table scan is returned as an array, otherwise the
// first matching item is returned.
func (e *Executor) Execute(ctx context.Context, entityName string, keys query.PredicateList, queryString string) (query.ScopedResult, error) {
	var err error

	table := e.tablePrefix + entityName

	ctx, span := tracer.Start(ctx, "execute-query",
		trace.WithAttributes(
			attribute.String("entity-name", entityName),
			attribute.String("table-name", table),
			attribute.Int("key-count", len(keys)),
		),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	var items []map[string]types.AttributeValue

	if keys.Empty() {
		var out *sdk.ScanOutput
		out, err = e.client.Scan(ctx, &sdk.ScanInput{
			TableName: aws.String(table),
		})
		if err != nil {
			return nil, translateError(entityName, table, err)
		}
		items = out.Items
	} else {
		var out *sdk.QueryOutput
		out, err = e.client.Query(ctx, newQueryInput(table, keys))
		if err != nil {
			return nil, translateError(entityName, table, err)
		}
		items = out.Items
	}

	docs := []map[string]any{}
	err = attributevalue.UnmarshalListOfMaps(items, &docs)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal items from %s: %w", table, err)
	}

	if keys.Empty() {
		return query.NewScopedResult(docs, nil), nil
	}

	if len(docs) == 0 {
		return nil, query.NewEntityNotFoundError(fmt.Sprintf("no %s found matching %s", entityName, keys.String()))
	}

	return query.NewScopedResult(docs[0], nil), nil
}

func newQueryInput(table string, keys query.PredicateList) *sdk.QueryInput {
	names := make(map[string]string, len(keys))
	values := make(map[string]types.AttributeValue, len(keys))

	keyConditions := []string{}
	filters := []string{}

	for i, k := range keys {
		name := fmt.Sprintf("#k%d", i)
		value := fmt.Sprintf(":v%d", i)

		names[name] = k.Key
		values[value] = &types.AttributeValueMemberS{Value: k.Value}

		if i < 2 {
			keyConditions = append(keyConditions, name+" = "+value)
		} else {
			filters = append(filters, name+" = "+value)
		}
	}

	input := &sdk.QueryInput{
		TableName:                 aws.String(table),
		KeyConditionExpression:    aws.String(strings.Join(keyConditions, " AND ")),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}

	if len(filters) > 0 {
		input.FilterExpression = aws.String(strings.Join(filters, " AND "))
	} else {
		input.Limit = aws.Int32(1)
	}

	return input
}

func translateError(entityName, table string, err error) error {
	var rnf *types.ResourceNotFoundException
	if errors.As(err, &rnf) {
		return query.NewEntityNotFoundError(fmt.Sprintf("entity %s not found", entityName))
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationException" {
		return query.NewBadRequestError(apiErr.ErrorMessage())
	}

	return fmt.Errorf("failed to query table %s: %w", table, err)
}
