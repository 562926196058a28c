package messaging

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"

	"github.com/d-j-kendall/aws-sqs-consumer/internal/config"
)

// SQSAPI is the subset of the SQS client used by SQSSource.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// NewSQSClient builds an SQS client for the configured region. Static
// credentials are used when both keys are set, the default chain otherwise.
func NewSQSClient(ctx context.Context, cfg config.AWSConfig) (*sqs.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region.Static),
	}

	creds := cfg.Credentials
	if creds.AccessKey != "" && creds.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKey, creds.SecretKey, ""),
		))
	}
	if cfg.SQS.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.SQS.Endpoint))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg), nil
}

type SQSOptions struct {
	MaxMessages int32
	// WaitTimeSeconds is the long-poll wait. Zero is not sent, so the queue's
	// ReceiveMessageWaitTimeSeconds attribute applies.
	WaitTimeSeconds   int32
	VisibilityTimeout int32
}

type SQSSource struct {
	client   SQSAPI
	endpoint string
	queueURL string
	opts     SQSOptions
}

// NewSQSSource binds to a queue given by URL or by name. Names are resolved
// with GetQueueUrl.
func NewSQSSource(ctx context.Context, client SQSAPI, endpoint string, opts SQSOptions) (*SQSSource, error) {
	queueURL := endpoint
	if !isQueueURL(endpoint) {
		out, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(endpoint)})
		if err != nil {
			return nil, fmt.Errorf("resolve queue url for %s: %w", endpoint, err)
		}
		queueURL = aws.ToString(out.QueueUrl)
	}

	log.Info().Str("endpoint", endpoint).Str("queue_url", queueURL).Msg("SQS source ready")
	return &SQSSource{
		client:   client,
		endpoint: endpoint,
		queueURL: queueURL,
		opts:     opts,
	}, nil
}

func isQueueURL(endpoint string) bool {
	return strings.HasPrefix(endpoint, "https://") || strings.HasPrefix(endpoint, "http://")
}

func (s *SQSSource) Endpoint() string { return s.endpoint }

func (s *SQSSource) QueueURL() string { return s.queueURL }

func (s *SQSSource) Receive(ctx context.Context) ([]Delivery, error) {
	out, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(s.queueURL),
		MaxNumberOfMessages:         s.opts.MaxMessages,
		WaitTimeSeconds:             s.opts.WaitTimeSeconds,
		VisibilityTimeout:           s.opts.VisibilityTimeout,
		MessageAttributeNames:       []string{"All"},
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeNameAll},
	})
	if err != nil {
		return nil, fmt.Errorf("receive from %s: %w", s.endpoint, err)
	}

	now := time.Now()
	deliveries := make([]Delivery, 0, len(out.Messages))
	for _, m := range out.Messages {
		deliveries = append(deliveries, Delivery{
			ID:         aws.ToString(m.MessageId),
			Body:       []byte(aws.ToString(m.Body)),
			Headers:    s.headers(m),
			ReceivedAt: now,
			handle:     aws.ToString(m.ReceiptHandle),
		})
	}
	return deliveries, nil
}

// headers flattens system and message attributes into string headers.
// Binary message attributes have no string form and are skipped.
func (s *SQSSource) headers(m types.Message) map[string]string {
	h := make(map[string]string, len(m.Attributes)+len(m.MessageAttributes)+3)
	for k, v := range m.Attributes {
		h[k] = v
	}
	for k, v := range m.MessageAttributes {
		if v.StringValue != nil {
			h[k] = *v.StringValue
		}
	}
	h[HeaderMessageID] = aws.ToString(m.MessageId)
	h[HeaderReceiptHandle] = aws.ToString(m.ReceiptHandle)
	h[HeaderLogicalResourceID] = s.queueURL
	return h
}

func (s *SQSSource) Delete(ctx context.Context, d Delivery) error {
	receipt, ok := d.handle.(string)
	if !ok {
		return ErrForeignHandle
	}
	_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.queueURL),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		return fmt.Errorf("delete message %s: %w", d.ID, err)
	}
	return nil
}

// Release leaves the message in place; it becomes visible again once the
// visibility timeout expires.
func (s *SQSSource) Release(_ context.Context, _ Delivery) error {
	return nil
}

func (s *SQSSource) HasRedrive(ctx context.Context) (bool, error) {
	attrs, err := s.attributes(ctx, types.QueueAttributeNameRedrivePolicy)
	if err != nil {
		return false, err
	}
	return attrs[string(types.QueueAttributeNameRedrivePolicy)] != "", nil
}

func (s *SQSSource) Depth(ctx context.Context) (int64, error) {
	attrs, err := s.attributes(ctx, types.QueueAttributeNameApproximateNumberOfMessages)
	if err != nil {
		return 0, err
	}
	raw := attrs[string(types.QueueAttributeNameApproximateNumberOfMessages)]
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse queue depth %q: %w", raw, err)
	}
	return n, nil
}

func (s *SQSSource) attributes(ctx context.Context, names ...types.QueueAttributeName) (map[string]string, error) {
	out, err := s.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(s.queueURL),
		AttributeNames: names,
	})
	if err != nil {
		return nil, fmt.Errorf("get attributes of %s: %w", s.endpoint, err)
	}
	return out.Attributes, nil
}

func (s *SQSSource) Close() error { return nil }
