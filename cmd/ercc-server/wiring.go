package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/advisor"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/config"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/blobstore"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/jobs"
)

const workerGroup = "ercc-notifications"

func loadAWS(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// newRunner picks the jobs backend named by JOBS_BACKEND. The returned close
// func is always safe to call.
func newRunner(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (jobs.Runner, func(), error) {
	noop := func() {}
	switch cfg.JobsBackend {
	case "http":
		return jobs.NewHTTPRunner(cfg.JobsAPIURL, cfg.JobsAPIKey, logger), noop, nil
	case "sqs":
		awsCfg, err := loadAWS(ctx, cfg)
		if err != nil {
			return nil, noop, err
		}
		return jobs.NewSQSRunner(jobs.NewSQSClient(awsCfg, cfg.AWSEndpointURL), cfg.SQSQueueURL, logger), noop, nil
	case "kafka":
		r := jobs.NewKafkaRunner(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		return r, func() {
			if err := r.Close(); err != nil {
				logger.Error().Err(err).Msg("close kafka writer")
			}
		}, nil
	case "log", "":
		return jobs.NewLogRunner(logger), noop, nil
	}
	return nil, noop, fmt.Errorf("unknown jobs backend %q", cfg.JobsBackend)
}

// newConsumer returns the queue reader the worker drains. Only queue backends
// can be consumed.
func newConsumer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (jobs.Consumer, error) {
	switch cfg.JobsBackend {
	case "sqs":
		awsCfg, err := loadAWS(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return jobs.NewSQSConsumer(jobs.NewSQSClient(awsCfg, cfg.AWSEndpointURL), cfg.SQSQueueURL, logger), nil
	case "kafka":
		return jobs.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, workerGroup, logger), nil
	}
	return nil, fmt.Errorf("jobs backend %q has no queue to consume; use sqs or kafka", cfg.JobsBackend)
}

// newImageStore keeps monitor photos in S3 when a bucket is configured and in
// memory otherwise.
func newImageStore(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	if cfg.S3Bucket == "" {
		return blobstore.NewInMemoryStore(), nil
	}
	awsCfg, err := loadAWS(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return blobstore.NewS3Store(blobstore.NewS3Client(awsCfg, cfg.AWSEndpointURL), cfg.S3Bucket), nil
}

// newAdvisor uses the hosted model when an API key is set and the rule
// advisor otherwise. Either way calls are counted on reg.
func newAdvisor(cfg *config.Config, logger zerolog.Logger, reg prometheus.Registerer) advisor.Advisor {
	if !cfg.AdvisorEnabled() {
		logger.Info().Msg("ADVISOR_API_KEY not set; using rule-based advisor")
		return advisor.Instrument(advisor.NewRuleAdvisor(), "rules", reg)
	}
	llm := advisor.NewLLMClient(advisor.LLMConfig{
		APIKey:      cfg.AdvisorAPIKey,
		BaseURL:     cfg.AdvisorBaseURL,
		Model:       cfg.AdvisorModel,
		Temperature: cfg.AdvisorTemperature,
		MaxTokens:   cfg.AdvisorMaxTokens,
		Timeout:     cfg.AdvisorTimeout,
	}, logger)
	return advisor.Instrument(llm, "llm", reg)
}
