package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"
)

// SQSAPI is the subset of *sqs.Client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// NewSQSClient builds a client from the default AWS config chain. A non-empty
// endpoint points it at a local emulator.
func NewSQSClient(cfg aws.Config, endpoint string) *sqs.Client {
	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

type SQSRunner struct {
	client   SQSAPI
	queueURL string
	logger   zerolog.Logger
}

func NewSQSRunner(client SQSAPI, queueURL string, logger zerolog.Logger) *SQSRunner {
	return &SQSRunner{
		client:   client,
		queueURL: queueURL,
		logger:   logger.With().Str("component", "jobs").Str("backend", "sqs").Logger(),
	}
}

func (r *SQSRunner) Trigger(ctx context.Context, name string, payload any) (string, error) {
	job, err := newJob(name, payload)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode job: %w", err)
	}
	_, err = r.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(r.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"job": {DataType: aws.String("String"), StringValue: aws.String(name)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("send %s to sqs: %w", name, err)
	}
	r.logger.Info().Str("job", name).Str("job_id", job.ID).Msg("job queued")
	return job.ID, nil
}

// SQSConsumer long-polls the queue. A message is deleted once the handler
// succeeds or rejects it as unknown; other failures leave it for redelivery
// after the visibility timeout.
type SQSConsumer struct {
	client   SQSAPI
	queueURL string
	logger   zerolog.Logger

	// WaitSeconds is the long-poll duration, at most 20.
	WaitSeconds int32
}

func NewSQSConsumer(client SQSAPI, queueURL string, logger zerolog.Logger) *SQSConsumer {
	return &SQSConsumer{
		client:      client,
		queueURL:    queueURL,
		logger:      logger.With().Str("component", "worker").Str("backend", "sqs").Logger(),
		WaitSeconds: 20,
	}
}

func (c *SQSConsumer) Run(ctx context.Context, h Handler) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     c.WaitSeconds,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive from sqs: %w", err)
		}

		for _, msg := range out.Messages {
			c.handle(ctx, h, msg)
		}
	}
}

func (c *SQSConsumer) handle(ctx context.Context, h Handler, msg types.Message) {
	var job Job
	if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &job); err != nil {
		c.logger.Error().Err(err).Str("message_id", aws.ToString(msg.MessageId)).Msg("dropping undecodable message")
		c.delete(ctx, msg)
		return
	}

	err := h(ctx, job)
	switch {
	case err == nil, errors.Is(err, ErrUnknownJob):
		if err != nil {
			c.logger.Warn().Str("job", job.Name).Msg("dropping unknown job")
		}
		c.delete(ctx, msg)
	default:
		c.logger.Error().Err(err).Str("job", job.Name).Str("job_id", job.ID).Msg("job failed, leaving for redelivery")
	}
}

func (c *SQSConsumer) delete(ctx context.Context, msg types.Message) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		c.logger.Error().Err(err).Str("message_id", aws.ToString(msg.MessageId)).Msg("delete message")
	}
}
