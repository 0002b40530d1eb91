package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaRunner publishes jobs to one topic, keyed by job name.
type KafkaRunner struct {
	writer messageWriter
	logger zerolog.Logger
}

func NewKafkaRunner(brokers []string, topic string, logger zerolog.Logger) *KafkaRunner {
	return &KafkaRunner{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
		logger: logger.With().Str("component", "jobs").Str("backend", "kafka").Logger(),
	}
}

func (r *KafkaRunner) Trigger(ctx context.Context, name string, payload any) (string, error) {
	job, err := newJob(name, payload)
	if err != nil {
		return "", err
	}
	value, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode job: %w", err)
	}
	if err := r.writer.WriteMessages(ctx, kafka.Message{Key: []byte(name), Value: value}); err != nil {
		return "", fmt.Errorf("publish %s: %w", name, err)
	}
	r.logger.Info().Str("job", name).Str("job_id", job.ID).Msg("job published")
	return job.ID, nil
}

func (r *KafkaRunner) Close() error { return r.writer.Close() }

// KafkaConsumer reads the jobs topic in a consumer group. Offsets are
// committed after the handler returns, so a crash redelivers the job.
type KafkaConsumer struct {
	reader messageReader
	logger zerolog.Logger
}

func NewKafkaConsumer(brokers []string, topic, groupID string, logger zerolog.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		logger: logger.With().Str("component", "worker").Str("backend", "kafka").Logger(),
	}
}

func (c *KafkaConsumer) Run(ctx context.Context, h Handler) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch from kafka: %w", err)
		}

		var job Job
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			c.logger.Error().Err(err).Int64("offset", msg.Offset).Msg("dropping undecodable message")
		} else if err := h(ctx, job); err != nil {
			if !errors.Is(err, ErrUnknownJob) {
				// no per-message redelivery in a partition; log and move on
				c.logger.Error().Err(err).Str("job", job.Name).Str("job_id", job.ID).Msg("job failed")
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			return fmt.Errorf("commit offset: %w", err)
		}
	}
}
