// internal/common/aws/ses.go
package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"workflow-engine/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// ErrNoEmail is returned when the user profile carries no usable address.
var ErrNoEmail = errors.New("user has no email address")

// SESSender is the part of the SES client the mailer needs.
type SESSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// ProfileSource resolves a user's profile. The "email" attribute is the recipient.
type ProfileSource interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

// UserMailer emails users about their own executions.
type UserMailer struct {
	client    SESSender
	fromEmail string
	profiles  ProfileSource
}

func NewUserMailer(client SESSender, fromEmail string, profiles ProfileSource) *UserMailer {
	return &UserMailer{client: client, fromEmail: fromEmail, profiles: profiles}
}

func (m *UserMailer) Mail(ctx context.Context, notice models.ExecutionNotice) error {
	profile, err := m.profiles.GetProfile(ctx, notice.UserID)
	if err != nil {
		return fmt.Errorf("load profile %s: %w", notice.UserID, err)
	}
	to, _ := profile.Attributes["email"].(string)
	if strings.TrimSpace(to) == "" {
		return ErrNoEmail
	}

	subject, body := renderNotice(notice)
	_, err = m.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{ToAddresses: []string{to}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(m.fromEmail),
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func renderNotice(notice models.ExecutionNotice) (string, string) {
	switch notice.Kind {
	case models.NoticeRolledBack:
		body := fmt.Sprintf("We reversed the changes made by %s (reference %s).", notice.WorkflowID, notice.IdempotencyKey)
		if notice.Reason != "" {
			body += "\n\nReason: " + notice.Reason
		}
		return "An automated action was rolled back", body
	case models.NoticeRetriesExhausted:
		return "An automated action could not be completed",
			fmt.Sprintf("%s could not be completed and no changes were kept (reference %s).", notice.WorkflowID, notice.IdempotencyKey)
	default:
		return "Update on your automated action",
			fmt.Sprintf("%s is now %s (reference %s).", notice.WorkflowID, notice.Status, notice.IdempotencyKey)
	}
}
