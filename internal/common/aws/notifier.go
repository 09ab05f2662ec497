package aws

import (
	"context"
	"fmt"

	"workflow-engine/internal/common/logger"
	"workflow-engine/internal/models"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// NotifierConfig selects the enabled channels.
type NotifierConfig struct {
	Region     string
	SNSEnabled bool
	TopicARN   string
	SESEnabled bool
	FromEmail  string
}

// Notifier routes execution notices: ops alerts go to SNS, user notices go to SES.
// A disabled channel logs the notice instead.
type Notifier struct {
	ops    *OpsAlerter
	mail   *UserMailer
	logger logger.Logger
}

// NewNotifier loads the default AWS credential chain for the enabled channels.
func NewNotifier(ctx context.Context, cfg NotifierConfig, profiles ProfileSource, log logger.Logger) (*Notifier, error) {
	n := &Notifier{logger: log.Named("notifier")}
	if !cfg.SNSEnabled && !cfg.SESEnabled {
		return n, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.SNSEnabled {
		n.ops = NewOpsAlerter(sns.NewFromConfig(awsCfg), cfg.TopicARN)
	}
	if cfg.SESEnabled {
		n.mail = NewUserMailer(ses.NewFromConfig(awsCfg), cfg.FromEmail, profiles)
	}
	return n, nil
}

// NewNotifierWithClients wires explicit clients. Nil clients disable their channel.
func NewNotifierWithClients(ops *OpsAlerter, mail *UserMailer, log logger.Logger) *Notifier {
	return &Notifier{ops: ops, mail: mail, logger: log.Named("notifier")}
}

func (n *Notifier) NotifyOps(ctx context.Context, notice models.ExecutionNotice) error {
	fields := noticeFields(notice)
	if n.ops == nil {
		n.logger.Warn("ops notice (sns disabled)", fields)
		return nil
	}
	if err := n.ops.Alert(ctx, notice); err != nil {
		n.logger.WithError(err).Error("failed to publish ops notice", fields)
		return err
	}
	n.logger.Info("ops notice published", fields)
	return nil
}

func (n *Notifier) NotifyUser(ctx context.Context, notice models.ExecutionNotice) error {
	fields := noticeFields(notice)
	if n.mail == nil {
		n.logger.Info("user notice (ses disabled)", fields)
		return nil
	}
	if err := n.mail.Mail(ctx, notice); err != nil {
		n.logger.WithError(err).Error("failed to email user notice", fields)
		return err
	}
	n.logger.Info("user notice emailed", fields)
	return nil
}

func noticeFields(notice models.ExecutionNotice) map[string]interface{} {
	return map[string]interface{}{
		"kind":           notice.Kind,
		"userId":         notice.UserID,
		"workflowId":     notice.WorkflowID,
		"idempotencyKey": notice.IdempotencyKey,
		"status":         notice.Status,
	}
}
