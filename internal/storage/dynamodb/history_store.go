// Package dynamodb provides a DynamoDB-backed conversation history store for
// deployments that keep conversation state in AWS rather than Redis.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/SunilRudraKumar/Easy/internal/conversation"
	xerrors "github.com/SunilRudraKumar/Easy/internal/errors"
)

const (
	pkPrefix  = "CTX#"
	skMeta    = "META#"
	skMsg     = "MSG#"
	maxTxPuts = 99 // TransactWriteItems accepts 100 items; one is reserved for META.

	// maxAppendAttempts bounds how often Append reloads META after losing a
	// conditional write to a concurrent writer.
	maxAppendAttempts = 5

	defaultRetention = 30 * 24 * time.Hour
)

// dynamodbAPI is the subset of the DynamoDB client used by HistoryStore.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Option configures a HistoryStore.
type Option func(*HistoryStore)

// WithTTL sets the sliding expiry of a context.
func WithTTL(ttl time.Duration) Option {
	return func(s *HistoryStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces the time source.
func WithClock(now conversation.Clock) Option {
	return func(s *HistoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// HistoryStore keeps each context under partition key CTX#<id>. A META# item
// records the active epoch and its sliding expiry; messages are written under
// MSG#<epoch>#<nanos>#<seq> so that a context which expired and is reused
// starts from an empty log.
type HistoryStore struct {
	api       dynamodbAPI
	table     string
	ttl       time.Duration
	retention time.Duration
	now       conversation.Clock
	seq       atomic.Uint64
}

// New creates a HistoryStore for the given table.
func New(api dynamodbAPI, table string, opts ...Option) (*HistoryStore, error) {
	if api == nil {
		return nil, errors.New("dynamodb: api must not be nil")
	}
	if strings.TrimSpace(table) == "" {
		return nil, errors.New("dynamodb: table name must not be empty")
	}
	s := &HistoryStore{
		api:       api,
		table:     table,
		ttl:       conversation.DefaultHistoryTTL,
		retention: defaultRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

type meta struct {
	epoch     string
	expiresAt time.Time
}

func contextPK(contextID string) string {
	return pkPrefix + contextID
}

func messagePrefix(epoch string) string {
	return skMsg + epoch + "#"
}

// Append writes the messages and the refreshed META item in one transaction.
// The META put is conditional on the epoch Append observed, so two writers
// racing to start a new epoch cannot both win: the loser's transaction is
// cancelled as a whole and it retries against the winner's epoch.
func (s *HistoryStore) Append(ctx context.Context, contextID string, msgs ...conversation.Message) error {
	if strings.TrimSpace(contextID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "contextId 不能为空")
	}
	now := s.now()
	pk := contextPK(contextID)

	for attempt := 1; ; attempt++ {
		observed, err := s.loadMeta(ctx, contextID)
		if err != nil {
			return err
		}
		written, err := s.appendFrom(ctx, pk, observed, now, msgs)
		if err == nil {
			return nil
		}
		// A committed batch fixes the epoch; retrying would duplicate it.
		if written > 0 || !conditionFailed(err) || attempt == maxAppendAttempts {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入 DynamoDB 会话历史失败")
		}
	}
}

// appendFrom writes msgs in batches under the epoch implied by observed and
// reports how many messages were committed before an error.
func (s *HistoryStore) appendFrom(ctx context.Context, pk string, observed *meta, now time.Time, msgs []conversation.Message) (int, error) {
	var epoch string
	if observed != nil && now.Before(observed.expiresAt) {
		epoch = observed.epoch
	} else {
		epoch = fmt.Sprintf("%020d", now.UnixNano())
	}
	next := meta{epoch: epoch, expiresAt: now.Add(s.ttl)}

	if len(msgs) == 0 {
		return 0, s.write(ctx, []types.TransactWriteItem{s.metaPut(pk, next, observed)})
	}

	written := 0
	for start := 0; start < len(msgs); start += maxTxPuts {
		end := start + maxTxPuts
		if end > len(msgs) {
			end = len(msgs)
		}
		items := make([]types.TransactWriteItem, 0, end-start+1)
		for i := start; i < end; i++ {
			items = append(items, types.TransactWriteItem{Put: &types.Put{
				TableName: aws.String(s.table),
				Item:      s.messageItem(pk, epoch, now, msgs[i]),
			}})
		}
		items = append(items, s.metaPut(pk, next, observed))
		if err := s.write(ctx, items); err != nil {
			return written, err
		}
		written = end
		observed = &next
	}
	return written, nil
}

// conditionFailed reports whether a transaction was cancelled because a
// condition check did not hold.
func conditionFailed(err error) bool {
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		return false
	}
	for _, reason := range canceled.CancellationReasons {
		if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

// Read returns the messages of the active epoch in arrival order.
func (s *HistoryStore) Read(ctx context.Context, contextID string) ([]conversation.Message, error) {
	current, err := s.loadMeta(ctx, contextID)
	if err != nil {
		return nil, err
	}
	if current == nil || !s.now().Before(current.expiresAt) {
		return []conversation.Message{}, nil
	}

	out := make([]conversation.Message, 0)
	var startKey map[string]types.AttributeValue
	for {
		resp, err := s.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: contextPK(contextID)},
				":prefix": &types.AttributeValueMemberS{Value: messagePrefix(current.epoch)},
			},
			ScanIndexForward:  aws.Bool(true),
			ConsistentRead:    aws.Bool(true),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询 DynamoDB 会话历史失败")
		}
		for _, item := range resp.Items {
			msg, err := itemToMessage(item)
			if err != nil {
				return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析 DynamoDB 会话历史失败")
			}
			out = append(out, msg)
		}
		if len(resp.LastEvaluatedKey) == 0 {
			return out, nil
		}
		startKey = resp.LastEvaluatedKey
	}
}

func (s *HistoryStore) loadMeta(ctx context.Context, contextID string) (*meta, error) {
	resp, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: contextPK(contextID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 DynamoDB 会话元数据失败")
	}
	if resp == nil || len(resp.Item) == 0 {
		return nil, nil
	}
	epoch, err := strAttr(resp.Item, "epoch")
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析 DynamoDB 会话元数据失败")
	}
	expires, err := intAttr(resp.Item, "expiresAt")
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析 DynamoDB 会话元数据失败")
	}
	return &meta{epoch: epoch, expiresAt: time.Unix(0, expires)}, nil
}

func (s *HistoryStore) write(ctx context.Context, items []types.TransactWriteItem) error {
	_, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	return err
}

// metaPut writes m only if META still holds the epoch seen in observed, or
// does not exist when observed is nil.
func (s *HistoryStore) metaPut(pk string, m meta, observed *meta) types.TransactWriteItem {
	put := &types.Put{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"PK":        &types.AttributeValueMemberS{Value: pk},
			"SK":        &types.AttributeValueMemberS{Value: skMeta},
			"epoch":     &types.AttributeValueMemberS{Value: m.epoch},
			"expiresAt": &types.AttributeValueMemberN{Value: strconv.FormatInt(m.expiresAt.UnixNano(), 10)},
			"ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(m.expiresAt.Unix(), 10)},
		},
	}
	if observed == nil {
		put.ConditionExpression = aws.String("attribute_not_exists(epoch)")
	} else {
		put.ConditionExpression = aws.String("epoch = :epoch")
		put.ExpressionAttributeValues = map[string]types.AttributeValue{
			":epoch": &types.AttributeValueMemberS{Value: observed.epoch},
		}
	}
	return types.TransactWriteItem{Put: put}
}

func (s *HistoryStore) messageItem(pk, epoch string, now time.Time, msg conversation.Message) map[string]types.AttributeValue {
	sk := fmt.Sprintf("%s%020d#%010d", messagePrefix(epoch), now.UnixNano(), s.seq.Add(1)%1e10)
	return map[string]types.AttributeValue{
		"PK":      &types.AttributeValueMemberS{Value: pk},
		"SK":      &types.AttributeValueMemberS{Value: sk},
		"role":    &types.AttributeValueMemberS{Value: string(msg.Role)},
		"content": &types.AttributeValueMemberS{Value: msg.Content},
		"ttl":     &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(s.retention).Unix(), 10)},
	}
}

func itemToMessage(item map[string]types.AttributeValue) (conversation.Message, error) {
	role, err := strAttr(item, "role")
	if err != nil {
		return conversation.Message{}, err
	}
	content, err := strAttr(item, "content")
	if err != nil {
		return conversation.Message{}, err
	}
	return conversation.Message{Role: conversation.Role(role), Content: content}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("dynamodb: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("dynamodb: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("dynamodb: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("dynamodb: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("dynamodb: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

var _ conversation.HistoryStore = (*HistoryStore)(nil)
