package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/require"

	"github.com/d-j-kendall/aws-sqs-consumer/internal/config"
)

const demoQueueURL = "https://sqs.us-east-1.amazonaws.com/675152124436/DemoQueue.fifo"

type fakeSQS struct {
	messages   []types.Message
	attributes map[string]string
	queueURLs  map[string]string

	receiveInput *sqs.ReceiveMessageInput
	deleted      []string
	err          error
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.receiveInput = in
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.ReceiveMessageOutput{Messages: f.messages}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) GetQueueUrl(_ context.Context, in *sqs.GetQueueUrlInput, _ ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	u, ok := f.queueURLs[aws.ToString(in.QueueName)]
	if !ok {
		return nil, &types.QueueDoesNotExist{Message: aws.String("no such queue")}
	}
	return &sqs.GetQueueUrlOutput{QueueUrl: aws.String(u)}, nil
}

func (f *fakeSQS) GetQueueAttributes(_ context.Context, in *sqs.GetQueueAttributesInput, _ ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]string{}
	for _, name := range in.AttributeNames {
		if v, ok := f.attributes[string(name)]; ok {
			out[string(name)] = v
		}
	}
	return &sqs.GetQueueAttributesOutput{Attributes: out}, nil
}

func TestSQSSourceUsesURLAsIs(t *testing.T) {
	src, err := NewSQSSource(context.Background(), &fakeSQS{}, demoQueueURL, SQSOptions{})
	require.NoError(t, err)
	require.Equal(t, demoQueueURL, src.QueueURL())
	require.Equal(t, demoQueueURL, src.Endpoint())
}

func TestSQSSourceResolvesQueueName(t *testing.T) {
	fake := &fakeSQS{queueURLs: map[string]string{"DemoQueue.fifo": demoQueueURL}}

	src, err := NewSQSSource(context.Background(), fake, "DemoQueue.fifo", SQSOptions{})
	require.NoError(t, err)
	require.Equal(t, demoQueueURL, src.QueueURL())
	require.Equal(t, "DemoQueue.fifo", src.Endpoint())

	_, err = NewSQSSource(context.Background(), fake, "missing", SQSOptions{})
	var notFound *types.QueueDoesNotExist
	require.ErrorAs(t, err, &notFound)
}

func TestSQSSourceReceiveMapsHeaders(t *testing.T) {
	fake := &fakeSQS{messages: []types.Message{{
		MessageId:     aws.String("m-1"),
		ReceiptHandle: aws.String("rh-1"),
		Body:          aws.String(`{"id":1,"text":"hello"}`),
		Attributes: map[string]string{
			"MessageGroupId":          "demo",
			"ApproximateReceiveCount": "1",
		},
		MessageAttributes: map[string]types.MessageAttributeValue{
			"contentType": {DataType: aws.String("String"), StringValue: aws.String("application/json")},
			"priority":    {DataType: aws.String("Number"), StringValue: aws.String("5")},
			"blob":        {DataType: aws.String("Binary"), BinaryValue: []byte{0x1}},
		},
	}}}
	src, err := NewSQSSource(context.Background(), fake, demoQueueURL, SQSOptions{MaxMessages: 10, WaitTimeSeconds: 20, VisibilityTimeout: 30})
	require.NoError(t, err)

	deliveries, err := src.Receive(context.Background())
	require.NoError(t, err)
	require.Len(t, deliveries, 1)

	in := fake.receiveInput
	require.Equal(t, demoQueueURL, aws.ToString(in.QueueUrl))
	require.EqualValues(t, 10, in.MaxNumberOfMessages)
	require.EqualValues(t, 20, in.WaitTimeSeconds)
	require.EqualValues(t, 30, in.VisibilityTimeout)
	require.Equal(t, []string{"All"}, in.MessageAttributeNames)

	d := deliveries[0]
	require.Equal(t, "m-1", d.ID)
	require.JSONEq(t, `{"id":1,"text":"hello"}`, string(d.Body))
	require.Equal(t, "demo", d.Headers["MessageGroupId"])
	require.Equal(t, "1", d.Headers["ApproximateReceiveCount"])
	require.Equal(t, "application/json", d.Headers[HeaderContentType])
	require.Equal(t, "5", d.Headers["priority"])
	require.NotContains(t, d.Headers, "blob")
	require.Equal(t, "m-1", d.Headers[HeaderMessageID])
	require.Equal(t, "rh-1", d.Headers[HeaderReceiptHandle])
	require.Equal(t, demoQueueURL, d.Headers[HeaderLogicalResourceID])

	require.NoError(t, src.Delete(context.Background(), d))
	require.Equal(t, []string{"rh-1"}, fake.deleted)
	require.NoError(t, src.Release(context.Background(), d))
	require.Len(t, fake.deleted, 1)
}

func TestSQSSourceReceiveError(t *testing.T) {
	boom := errors.New("throttled")
	src, err := NewSQSSource(context.Background(), &fakeSQS{err: boom}, demoQueueURL, SQSOptions{})
	require.NoError(t, err)

	_, err = src.Receive(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestSQSSourceDeleteRejectsForeignDelivery(t *testing.T) {
	src, err := NewSQSSource(context.Background(), &fakeSQS{}, demoQueueURL, SQSOptions{})
	require.NoError(t, err)

	err = src.Delete(context.Background(), NewDelivery("x", nil, nil))
	require.ErrorIs(t, err, ErrForeignHandle)
}

func TestSQSSourceAttributes(t *testing.T) {
	fake := &fakeSQS{attributes: map[string]string{
		"ApproximateNumberOfMessages": "42",
	}}
	src, err := NewSQSSource(context.Background(), fake, demoQueueURL, SQSOptions{})
	require.NoError(t, err)

	depth, err := src.Depth(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 42, depth)

	redrive, err := src.HasRedrive(context.Background())
	require.NoError(t, err)
	require.False(t, redrive)

	fake.attributes["RedrivePolicy"] = `{"deadLetterTargetArn":"arn:aws:sqs:us-east-1:675152124436:DemoQueue-dlq.fifo","maxReceiveCount":"3"}`
	redrive, err = src.HasRedrive(context.Background())
	require.NoError(t, err)
	require.True(t, redrive)
}

func TestNewSQSClientWithStaticCredentials(t *testing.T) {
	var cfg config.AWSConfig
	cfg.Credentials.AccessKey = "AKIAEXAMPLE"
	cfg.Credentials.SecretKey = "secret"
	cfg.Region.Static = "us-east-1"
	cfg.SQS.Endpoint = "http://localhost:4566"

	client, err := NewSQSClient(context.Background(), cfg)
	require.NoError(t, err)

	opts := client.Options()
	require.Equal(t, "us-east-1", opts.Region)
	require.Equal(t, "http://localhost:4566", aws.ToString(opts.BaseEndpoint))

	creds, err := opts.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	require.Equal(t, "AKIAEXAMPLE", creds.AccessKeyID)
	require.Equal(t, "secret", creds.SecretAccessKey)
}
