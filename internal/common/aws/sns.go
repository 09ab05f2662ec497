// internal/common/aws/sns.go
package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"workflow-engine/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSPublisher is the part of the SNS client the ops alerter needs.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// OpsAlerter publishes execution notices to an operations topic.
type OpsAlerter struct {
	client   SNSPublisher
	topicARN string
}

func NewOpsAlerter(client SNSPublisher, topicARN string) *OpsAlerter {
	return &OpsAlerter{client: client, topicARN: topicARN}
}

func (a *OpsAlerter) Alert(ctx context.Context, notice models.ExecutionNotice) error {
	body, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}

	// SNS subjects are capped at 100 characters.
	subject := fmt.Sprintf("[%s] %s", notice.Kind, notice.WorkflowID)
	if len(subject) > 100 {
		subject = subject[:100]
	}

	_, err = a.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(a.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(notice.Kind),
			},
			"workflow_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(notice.WorkflowID),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", a.topicARN, err)
	}
	return nil
}
