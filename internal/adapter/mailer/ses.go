package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"dripmail/internal/config/configs"
)

// SESClient abstracts the SES client for testing.
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESSender delivers messages via AWS SES. The client is created lazily
// from the default credential chain unless one is injected.
type SESSender struct {
	cfg    configs.SES
	logger *slog.Logger
	client SESClient
}

// NewSESSender returns a sender using the given SES configuration.
func NewSESSender(cfg configs.SES, logger *slog.Logger) *SESSender {
	return &SESSender{cfg: cfg, logger: logger}
}

// NewSESSenderWithClient injects a custom client, used by tests.
func NewSESSenderWithClient(cfg configs.SES, logger *slog.Logger, client SESClient) *SESSender {
	return &SESSender{cfg: cfg, logger: logger, client: client}
}

func (s *SESSender) ensureClient(ctx context.Context) error {
	if s.client != nil {
		return nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.cfg.Region))
	if err != nil {
		return fmt.Errorf("ses: load aws config: %w", err)
	}
	s.client = ses.NewFromConfig(cfg, func(o *ses.Options) {
		o.RetryMaxAttempts = 3
	})
	return nil
}

// Send delivers one message through SES and returns the SES message id.
// In DryRun mode nothing is sent and a synthetic id is returned.
func (s *SESSender) Send(ctx context.Context, to, subject, body string) (string, error) {
	if strings.TrimSpace(to) == "" {
		return "", fmt.Errorf("ses: destination required")
	}
	if strings.TrimSpace(s.cfg.From) == "" {
		return "", fmt.Errorf("ses: from address required")
	}
	if s.cfg.DryRun {
		s.logger.Info("ses dry-run, send skipped",
			slog.String("to", to),
			slog.String("subject", subject))
		return "dry-run", nil
	}
	if err := s.ensureClient(ctx); err != nil {
		return "", err
	}

	out, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(s.cfg.From),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("ses send: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}
