package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

const (
	attrCollection = "collection"
	attrSortKey    = "sk"
	attrDoc        = "doc"

	// dynamoTimeLayout is fixed-width so sort keys order chronologically.
	dynamoTimeLayout = "2006-01-02T15:04:05.000Z"

	tableWaitTimeout = 2 * time.Minute
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	ListTables(ctx context.Context, in *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoStore keeps each collection in its own table, partitioned by
// collection name and sorted by "<created_at>#<id>".
type DynamoStore struct {
	api    dynamodbAPI
	prefix string
	opts   storeOptions
}

// Ensure DynamoStore implements Store at compile time.
var _ Store = (*DynamoStore)(nil)

// NewDynamo wraps a DynamoDB client. Table names are "<prefix>_<collection>".
func NewDynamo(api dynamodbAPI, prefix string, opts ...Option) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("docstore: dynamodb api must not be nil")
	}
	return &DynamoStore{api: api, prefix: strings.TrimSpace(prefix), opts: buildOptions(opts)}, nil
}

// OpenDynamo loads the default AWS configuration and verifies access with
// a one-item ListTables call. A non-empty endpoint (host:port) targets a
// local DynamoDB over plain HTTP.
func OpenDynamo(ctx context.Context, endpoint, prefix string, opts ...Option) (*DynamoStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String("http://" + endpoint)
		}
	})
	s, err := NewDynamo(client, prefix, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := client.ListTables(ctx, &dynamodb.ListTablesInput{Limit: aws.Int32(1)}); err != nil {
		return nil, fmt.Errorf("ping dynamodb: %w", err)
	}
	return s, nil
}

func (s *DynamoStore) tableName(collection string) string {
	if s.prefix == "" {
		return collection
	}
	return s.prefix + "_" + collection
}

func sortKey(at time.Time, id string) string {
	return at.UTC().Format(dynamoTimeLayout) + "#" + id
}

func (s *DynamoStore) CreateDocument(ctx context.Context, collection string, fields map[string]any) (Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}

	data := userFields(fields)
	docAttr, err := toAttributeValue(data)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	now := s.opts.timestamp()
	ts := now.Format(dynamoTimeLayout)

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName(collection)),
		Item: map[string]types.AttributeValue{
			attrCollection: &types.AttributeValueMemberS{Value: collection},
			attrSortKey:    &types.AttributeValueMemberS{Value: sortKey(now, id.String())},
			FieldID:        &types.AttributeValueMemberS{Value: id.String()},
			FieldCreatedAt: &types.AttributeValueMemberS{Value: ts},
			FieldUpdatedAt: &types.AttributeValueMemberS{Value: ts},
			attrDoc:        docAttr,
		},
		ConditionExpression: aws.String("attribute_not_exists(sk)"),
	})
	if err != nil {
		return nil, fmt.Errorf("put item: %w", err)
	}
	return stamped(data, id.String(), now), nil
}

// GetDocuments pages through the partition newest first. DynamoDB applies
// Limit before FilterExpression, so pages are read until enough items match.
func (s *DynamoStore) GetDocuments(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := checkFilter(filter); err != nil {
		return nil, err
	}
	limit = normalizeLimit(limit)
	pageSize := int32(math.MaxInt32)
	if limit < math.MaxInt32 {
		pageSize = int32(limit)
	}

	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName(collection)),
		KeyConditionExpression: aws.String("#c = :c"),
		ExpressionAttributeNames: map[string]string{
			"#c": attrCollection,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: collection},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(pageSize),
	}
	if err := applyDynamoFilter(in, filter); err != nil {
		return nil, err
	}

	out := []Document{}
	for {
		page, err := s.api.Query(ctx, in)
		if err != nil {
			var notFound *types.ResourceNotFoundException
			if errors.As(err, &notFound) {
				return []Document{}, nil
			}
			return nil, fmt.Errorf("query: %w", err)
		}
		for _, item := range page.Items {
			doc, err := itemToDocument(item)
			if err != nil {
				return nil, err
			}
			out = append(out, doc)
			if len(out) == limit {
				return out, nil
			}
		}
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		in.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

func applyDynamoFilter(in *dynamodb.QueryInput, filter Filter) error {
	if len(filter) == 0 {
		return nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	for i, k := range keys {
		av, err := toAttributeValue(filter[k])
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidFilter, k, err)
		}
		name := "#f" + strconv.Itoa(i)
		value := ":f" + strconv.Itoa(i)
		in.ExpressionAttributeNames[name] = k
		in.ExpressionAttributeValues[value] = av
		if k == FieldID {
			conds = append(conds, name+" = "+value)
		} else {
			conds = append(conds, "#d."+name+" = "+value)
			in.ExpressionAttributeNames["#d"] = attrDoc
		}
	}
	in.FilterExpression = aws.String(strings.Join(conds, " AND "))
	return nil
}

func (s *DynamoStore) ListCollections(ctx context.Context) ([]string, error) {
	names := []string{}
	in := &dynamodb.ListTablesInput{}
	for {
		out, err := s.api.ListTables(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		for _, table := range out.TableNames {
			if s.prefix == "" {
				names = append(names, table)
				continue
			}
			if name, ok := strings.CutPrefix(table, s.prefix+"_"); ok {
				names = append(names, name)
			}
		}
		if out.LastEvaluatedTableName == nil {
			return names, nil
		}
		in.ExclusiveStartTableName = out.LastEvaluatedTableName
	}
}

func (s *DynamoStore) EnsureCollection(ctx context.Context, collection string) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	table := s.tableName(collection)
	_, err := s.api.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrCollection), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrSortKey), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrCollection), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrSortKey), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return fmt.Errorf("ensure collection %s: %w", collection, err)
		}
	}
	waiter := dynamodb.NewTableExistsWaiter(s.api)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}, tableWaitTimeout); err != nil {
		return fmt.Errorf("wait for table %s: %w", table, err)
	}
	return nil
}

func (s *DynamoStore) Close(context.Context) error { return nil }

func itemToDocument(item map[string]types.AttributeValue) (Document, error) {
	id, err := strAttr(item, FieldID)
	if err != nil {
		return nil, err
	}
	createdAt, err := timeAttr(item, FieldCreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := timeAttr(item, FieldUpdatedAt)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if m, ok := item[attrDoc].(*types.AttributeValueMemberM); ok {
		for k, v := range m.Value {
			fields[k] = fromAttributeValue(v)
		}
	}
	doc := stamped(fields, id, createdAt)
	doc[FieldUpdatedAt] = updatedAt
	return doc, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("docstore: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("docstore: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	raw, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(dynamoTimeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("docstore: parse attribute %q: %w", key, err)
	}
	return t.UTC(), nil
}

func toAttributeValue(v any) (types.AttributeValue, error) {
	switch val := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case string:
		return &types.AttributeValueMemberS{Value: val}, nil
	case bool:
		return &types.AttributeValueMemberBOOL{Value: val}, nil
	case int:
		return &types.AttributeValueMemberN{Value: strconv.Itoa(val)}, nil
	case int32:
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(int64(val), 10)}, nil
	case int64:
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(val, 10)}, nil
	case float32:
		return &types.AttributeValueMemberN{Value: strconv.FormatFloat(float64(val), 'f', -1, 32)}, nil
	case float64:
		return &types.AttributeValueMemberN{Value: strconv.FormatFloat(val, 'f', -1, 64)}, nil
	case json.Number:
		return &types.AttributeValueMemberN{Value: val.String()}, nil
	case time.Time:
		return &types.AttributeValueMemberS{Value: val.UTC().Format(time.RFC3339Nano)}, nil
	case []string:
		list := make([]types.AttributeValue, len(val))
		for i, s := range val {
			list[i] = &types.AttributeValueMemberS{Value: s}
		}
		return &types.AttributeValueMemberL{Value: list}, nil
	case []any:
		list := make([]types.AttributeValue, len(val))
		for i, inner := range val {
			av, err := toAttributeValue(inner)
			if err != nil {
				return nil, err
			}
			list[i] = av
		}
		return &types.AttributeValueMemberL{Value: list}, nil
	case map[string]any:
		m := make(map[string]types.AttributeValue, len(val))
		for k, inner := range val {
			av, err := toAttributeValue(inner)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			m[k] = av
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func fromAttributeValue(av types.AttributeValue) any {
	switch val := av.(type) {
	case *types.AttributeValueMemberS:
		return val.Value
	case *types.AttributeValueMemberN:
		if n, err := strconv.ParseInt(val.Value, 10, 64); err == nil {
			return n
		}
		f, _ := strconv.ParseFloat(val.Value, 64)
		return f
	case *types.AttributeValueMemberBOOL:
		return val.Value
	case *types.AttributeValueMemberL:
		out := make([]any, len(val.Value))
		for i, inner := range val.Value {
			out[i] = fromAttributeValue(inner)
		}
		return out
	case *types.AttributeValueMemberM:
		out := make(map[string]any, len(val.Value))
		for k, inner := range val.Value {
			out[k] = fromAttributeValue(inner)
		}
		return out
	default:
		return nil
	}
}
