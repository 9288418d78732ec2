package sns

import (
	"context"
	"encoding/json"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/carpschool/access-api/internal/config"
)

// AuditEvent describes one administrative mutation for the audit trail.
type AuditEvent struct {
	Action          string    `json:"action"`
	ActorAccountID  string    `json:"actor_account_id"`
	TargetAccountID string    `json:"target_account_id,omitempty"`
	InstitutionID   string    `json:"institution_id,omitempty"`
	At              time.Time `json:"at"`
}

// AuditPublisher publishes admin audit events to an SNS topic.
type AuditPublisher interface {
	Publish(ctx context.Context, ev AuditEvent) error
}

type publisher struct {
	client   *sns.Client
	topicARN string
}

func NewPublisher(cfg *config.Config) (AuditPublisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.SNSRegion),
	)
	if err != nil {
		return nil, err
	}
	return &publisher{client: sns.NewFromConfig(awsCfg), topicARN: cfg.AuditTopicARN}, nil
}

func (p *publisher) Publish(ctx context.Context, ev AuditEvent) error {
	if p.topicARN == "" {
		return nil
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := string(body)
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: &p.topicARN,
		Message:  &msg,
	})
	return err
}
