// internal/common/alert/sns.go
package alert

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Publisher sends operational alerts to an SNS topic. A nil Publisher is
// valid and drops alerts silently, so wiring alerting stays optional.
type Publisher struct {
	client   *sns.Client
	topicARN string
}

func NewPublisher(ctx context.Context, region, topicARN string) (*Publisher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &Publisher{
		client:   sns.NewFromConfig(cfg),
		topicARN: topicARN,
	}, nil
}

// PublishViolation publishes an SLA violation payload as JSON.
func (p *Publisher) PublishViolation(ctx context.Context, subject string, payload interface{}) error {
	if p == nil || p.client == nil {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(string(body)),
	})
	return err
}
