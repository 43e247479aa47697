package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Services selects which service clients NewClients constructs.
type Services struct {
	DynamoDB   bool
	SQS        bool
	CloudWatch bool
}

// Clients holds the service clients a process needs. Unselected clients are nil.
type Clients struct {
	DynamoDB   DynamoDBAPI
	SQS        SQSAPI
	CloudWatch CloudWatchAPI
}

// NewClients loads the shared AWS config once and builds the selected clients.
func NewClients(ctx context.Context, want Services) (*Clients, error) {
	cfg, err := LoadAWSConfig(ctx)
	if err != nil {
		return nil, err
	}

	c := &Clients{}
	if want.DynamoDB {
		c.DynamoDB = dynamodb.NewFromConfig(cfg)
	}
	if want.SQS {
		c.SQS = sqs.NewFromConfig(cfg)
	}
	if want.CloudWatch {
		c.CloudWatch = cloudwatch.NewFromConfig(cfg)
	}
	return c, nil
}
