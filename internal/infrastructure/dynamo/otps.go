package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/bcbuzz/api/internal/domain"
)

// OTPRepo manages one-time passcodes.
// PK: subject ("<role>#<user_id>", role normalized), SK: otp_type.
// The PK carries the role because user ids are only unique within their own
// collection; a user and a tester may share the same numeric id.
type OTPRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewOTPRepo(client *dynamodb.Client, tableName string) *OTPRepo {
	return &OTPRepo{client: client, tableName: tableName}
}

// Subject builds the partition key for an (role, userID) pair.
func Subject(role string, userID int64) string {
	return fmt.Sprintf("%s#%d", domain.NormalizeRole(role), userID)
}

func (r *OTPRepo) Put(ctx context.Context, o *domain.OTP) error {
	o.Role = domain.NormalizeRole(o.Role)
	o.Subject = Subject(o.Role, o.UserID)
	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal otp: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// Delete removes the code for (role, userID, otpType). Deleting before every
// Put keeps at most one live code per purpose; the two calls are deliberately
// not wrapped in a transaction (a concurrent request racing the pair leaves
// the newest code valid, which is accepted).
func (r *OTPRepo) Delete(ctx context.Context, role string, userID int64, otpType string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey("subject", Subject(role, userID), "otp_type", otpType),
	})
	return err
}

// GetByCode returns the newest code for (role, userID) that matches code,
// regardless of flow type. The verify flow accepts any purpose's code.
func (r *OTPRepo) GetByCode(ctx context.Context, role string, userID int64, code string) (*domain.OTP, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    aws.String("#s = :v"),
		ExpressionAttributeNames:  map[string]string{"#s": "subject"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: Subject(role, userID)}},
	})
	if err != nil {
		return nil, err
	}
	var otps []domain.OTP
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &otps); err != nil {
		return nil, err
	}
	var latest *domain.OTP
	for i := range otps {
		if otps[i].Code != code {
			continue
		}
		if latest == nil || otps[i].CreatedAt.After(latest.CreatedAt) {
			latest = &otps[i]
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("otp not found: %w", domain.ErrNotFound)
	}
	return latest, nil
}

// GetByTypeAndCode returns the code for (role, userID, otpType) if it matches code.
func (r *OTPRepo) GetByTypeAndCode(ctx context.Context, role string, userID int64, otpType, code string) (*domain.OTP, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey("subject", Subject(role, userID), "otp_type", otpType),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("otp not found: %w", domain.ErrNotFound)
	}
	var o domain.OTP
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, err
	}
	if o.Code != code {
		return nil, fmt.Errorf("otp not found: %w", domain.ErrNotFound)
	}
	return &o, nil
}
