// Package ses implements a Channel that sends messages via AWS SES v2.
package ses

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/sethvargo/go-retry"

	"github.com/shineum/smtpkit/internal/compose"
	"github.com/shineum/smtpkit/internal/email"
)

// maxRetries is the maximum number of retry attempts for transient failures.
const maxRetries = 3

// baseRetryDelay is the initial delay for exponential backoff.
const baseRetryDelay = 1 * time.Second

// Config holds the configuration for creating a SES Channel.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string

	// Sender overrides the message's From address when set. SES only
	// accepts verified identities.
	Sender string
}

// Channel sends messages via the AWS SES v2 API.
type Channel struct {
	sender  string
	client  SendEmailAPI
	backoff func() retry.Backoff
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a new SES Channel with the given configuration.
func New(ctx context.Context, cfg Config) (*Channel, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewWithClient(cfg.Sender, sesv2.NewFromConfig(awsCfg)), nil
}

// NewWithClient creates a SES Channel with a custom client, used for testing.
func NewWithClient(sender string, client SendEmailAPI) *Channel {
	return &Channel{
		sender:  sender,
		client:  client,
		backoff: defaultBackoff,
	}
}

func defaultBackoff() retry.Backoff {
	return retry.WithMaxRetries(maxRetries, retry.NewExponential(baseRetryDelay))
}

// Send delivers msg via AWS SES v2. Messages with attachments are sent as
// raw MIME, everything else uses the SES simple format. API failures that
// persist through the retries end up in the result.
func (c *Channel) Send(ctx context.Context, msg *email.Message) (email.SendResult, error) {
	var res email.SendResult

	input, err := c.buildInput(msg)
	if err != nil {
		res.Add("failed to build message: %v", err)
		return res, nil
	}

	attempt := 0
	err = retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		if attempt > 0 {
			slog.DebugContext(ctx, "retrying SES API request",
				"attempt", attempt,
				"max_retries", maxRetries,
			)
		}
		attempt++

		if _, err := c.client.SendEmail(ctx, input); err != nil {
			slog.WarnContext(ctx, "SES API error",
				"channel", c.Name(),
				"attempt", attempt,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		res.Add("SES API request failed after %d attempts: %v", attempt, err)
		return res, nil
	}

	slog.DebugContext(ctx, "message sent via SES",
		"channel", c.Name(),
		"subject", msg.Subject,
		"recipients", len(msg.Recipients()),
	)
	return res, nil
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return "ses"
}

// from returns the envelope sender, honouring the configured override.
func (c *Channel) from(msg *email.Message) email.Address {
	if c.sender == "" {
		return msg.From
	}
	return email.Address{Email: c.sender, Name: msg.From.Name}
}

func (c *Channel) buildInput(msg *email.Message) (*sesv2.SendEmailInput, error) {
	from := c.from(msg)

	if len(msg.Attachments) == 0 {
		return buildSimpleInput(from, msg), nil
	}

	raw := *msg
	raw.From = from
	data, err := compose.Raw(&raw)
	if err != nil {
		return nil, err
	}
	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from.Email),
		Destination:      destination(msg),
		Content: &types.EmailContent{
			Raw: &types.RawMessage{
				Data: data,
			},
		},
	}, nil
}

func destination(msg *email.Message) *types.Destination {
	return &types.Destination{
		ToAddresses:  email.Emails(msg.To),
		CcAddresses:  email.Emails(msg.Cc),
		BccAddresses: email.Emails(msg.Bcc),
	}
}

// buildSimpleInput creates a SES SendEmailInput for messages without attachments.
func buildSimpleInput(from email.Address, msg *email.Message) *sesv2.SendEmailInput {
	body := &types.Body{}

	if msg.HasHTML() {
		body.Html = &types.Content{
			Data:    aws.String(msg.HTMLBody()),
			Charset: aws.String("UTF-8"),
		}
	}
	if msg.PlainBody != "" {
		body.Text = &types.Content{
			Data:    aws.String(msg.PlainBody),
			Charset: aws.String("UTF-8"),
		}
	}

	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(compose.Header(from)),
		Destination:      destination(msg),
		ReplyToAddresses: email.Emails(msg.ReplyTo),
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(msg.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: body,
			},
		},
	}
}
