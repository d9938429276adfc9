package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	"github.com/clubmember/clubmember/internal/models"
)

// ErrMemberExists is returned by Create when the phone already belongs to
// a member.
var ErrMemberExists = errors.New("member already exists")

// MemberRepository stores durable member records in DynamoDB, single-table
// PK/SK layout keyed by the normalized phone.
type MemberRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *logrus.Logger
}

func NewMemberRepository(client *dynamodb.Client, tableName string, logger *logrus.Logger) *MemberRepository {
	return &MemberRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func memberKey(phone9 string) map[string]types.AttributeValue {
	m := models.Member{Phone: phone9}
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: m.GetPK()},
		"SK": &types.AttributeValueMemberS{Value: m.GetSK()},
	}
}

// GetByPhone returns the member for the phone, or nil when absent.
func (r *MemberRepository) GetByPhone(ctx context.Context, phone9 string) (*models.Member, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       memberKey(phone9),
	})

	if err != nil {
		r.logger.WithError(err).Error("Failed to get member from DynamoDB")
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	var member models.Member
	if err := attributevalue.UnmarshalMap(result.Item, &member); err != nil {
		return nil, fmt.Errorf("failed to unmarshal member: %w", err)
	}

	return &member, nil
}

// Create inserts a new member; the phone must not be taken.
func (r *MemberRepository) Create(ctx context.Context, member *models.Member) error {
	now := time.Now()
	member.CreatedAt = now
	member.UpdatedAt = now

	item, err := attributevalue.MarshalMap(member)
	if err != nil {
		return fmt.Errorf("failed to marshal member: %w", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: member.GetPK()}
	item["SK"] = &types.AttributeValueMemberS{Value: member.GetSK()}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})

	if err != nil {
		var conditionErr *types.ConditionalCheckFailedException
		if errors.As(err, &conditionErr) {
			return ErrMemberExists
		}
		r.logger.WithError(err).Error("Failed to create member in DynamoDB")
		return fmt.Errorf("failed to create member: %w", err)
	}

	return nil
}

// SetVerifiedPhone records which phone the member has proven possession of.
func (r *MemberRepository) SetVerifiedPhone(ctx context.Context, memberPhone, verifiedPhone string) error {
	return r.update(ctx, memberPhone,
		"SET verified_phone = :vp, updated_at = :ua",
		map[string]types.AttributeValue{
			":vp": &types.AttributeValueMemberS{Value: verifiedPhone},
			":ua": &types.AttributeValueMemberS{Value: time.Now().Format(time.RFC3339)},
		})
}

// SetConsents updates the SMS/call consent answers. Empty values are kept
// as "never asked".
func (r *MemberRepository) SetConsents(ctx context.Context, memberPhone, smsConsent, callConsent string) error {
	return r.update(ctx, memberPhone,
		"SET sms_consent = :sc, call_consent = :cc, updated_at = :ua",
		map[string]types.AttributeValue{
			":sc": &types.AttributeValueMemberS{Value: smsConsent},
			":cc": &types.AttributeValueMemberS{Value: callConsent},
			":ua": &types.AttributeValueMemberS{Value: time.Now().Format(time.RFC3339)},
		})
}

// ChangePhone re-keys the member record: the phone is the partition key,
// so the item is rewritten under the new phone and the old item removed.
func (r *MemberRepository) ChangePhone(ctx context.Context, member *models.Member, newPhone9 string) error {
	oldPhone := member.Phone

	member.Phone = newPhone9
	member.VerifiedPhone = newPhone9
	member.UpdatedAt = time.Now()

	item, err := attributevalue.MarshalMap(member)
	if err != nil {
		member.Phone = oldPhone
		return fmt.Errorf("failed to marshal member: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: member.GetPK()}
	item["SK"] = &types.AttributeValueMemberS{Value: member.GetSK()}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		member.Phone = oldPhone
		var conditionErr *types.ConditionalCheckFailedException
		if errors.As(err, &conditionErr) {
			return ErrMemberExists
		}
		return fmt.Errorf("failed to write member under new phone: %w", err)
	}

	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       memberKey(oldPhone),
	})
	if err != nil {
		r.logger.WithError(err).WithField("phone", oldPhone).Error("Failed to delete old member item after phone change")
		return fmt.Errorf("failed to delete old member item: %w", err)
	}

	return nil
}

func (r *MemberRepository) update(ctx context.Context, memberPhone, expression string, values map[string]types.AttributeValue) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       memberKey(memberPhone),
		UpdateExpression:          aws.String(expression),
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(PK)"),
	})

	if err != nil {
		var conditionErr *types.ConditionalCheckFailedException
		if errors.As(err, &conditionErr) {
			return fmt.Errorf("member %s not found", memberPhone)
		}
		r.logger.WithError(err).Error("Failed to update member in DynamoDB")
		return fmt.Errorf("failed to update member: %w", err)
	}

	return nil
}
