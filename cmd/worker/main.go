package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/spf13/pflag"

	"docfill-backend/internal/bootstrap"
	"docfill-backend/internal/queue"
	"docfill-backend/internal/shared/config"
	"docfill-backend/internal/shared/metrics"
	"docfill-backend/internal/shared/storage/db"
	"docfill-backend/internal/shared/telemetry"
	"docfill-backend/internal/workerproc"
)

const (
	defaultRegion            = "us-east-1"
	defaultVisibilitySeconds = 120
	defaultConcurrency       = 4
	defaultShutdownTimeout   = 30 * time.Second

	receiveCountAttribute = sqstypes.QueueAttributeName("ApproximateReceiveCount")
)

func main() {
	cfg := config.Load()

	queueURL := pflag.String("queue-url", cfg.JobsQueueURL, "SQS queue URL carrying document jobs")
	concurrency := pflag.Int("concurrency", envInt("WORKER_CONCURRENCY", defaultConcurrency), "maximum jobs processed at once")
	visibilitySeconds := pflag.Int("visibility-timeout", envInt("SQS_VISIBILITY_TIMEOUT_SECONDS", defaultVisibilitySeconds), "SQS visibility timeout in seconds")
	shutdownTimeout := pflag.Duration("shutdown-timeout", defaultShutdownTimeout, "time to wait for in-flight jobs on shutdown")
	pflag.Parse()

	if strings.TrimSpace(*queueURL) == "" {
		log.Fatal("JOBS_SQS_QUEUE_URL or --queue-url is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	region := cfg.AWSRegion
	if region == "" {
		region = defaultRegion
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	var sqsClient sqsAPI = sqs.NewFromConfig(awsCfg)

	cfg.JobsQueueURL = *queueURL
	app, err := bootstrap.BuildWithPool(cfg, db.DefaultWorkerOptions())
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			log.Printf("close app: %v", err)
		}
	}()

	sem := make(chan struct{}, max(1, *concurrency))
	var wg sync.WaitGroup

	log.Printf("worker started queue=%s concurrency=%d visibility=%ds", *queueURL, *concurrency, *visibilitySeconds)

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(*queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(*visibilitySeconds),
			AttributeNames:      []sqstypes.QueueAttributeName{receiveCountAttribute},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			log.Printf("receive message: %v", err)
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			metrics.IncQueueMessage(metrics.QueueReceived)
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				// Jobs finish on shutdown so documents are not left processing.
				handleMessage(context.WithoutCancel(ctx), sqsClient, *queueURL, app.DocumentsService, m)
			}(msg)
		}
	}

	log.Printf("shutdown requested, waiting up to %s for in-flight jobs", *shutdownTimeout)
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(*shutdownTimeout):
		log.Printf("shutdown timeout reached; exiting with in-flight jobs")
	}
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

func handleMessage(ctx context.Context, client sqsAPI, queueURL string, processor queue.Processor, msg sqstypes.Message) {
	decoded, meta, err := workerproc.ParseMessage(aws.ToString(msg.Body))
	if err != nil {
		fields := baseFields(msg, decoded)
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		fields["error"] = err.Error()
		telemetry.Error("worker.job.unrecoverable", fields)
		if deleteMessage(ctx, client, queueURL, msg, decoded) {
			metrics.IncQueueMessage(metrics.QueueUnrecoverable)
		}
		return
	}

	telemetry.Info("worker.job.received", baseFields(msg, decoded))

	if err := workerproc.HandleMessage(ctx, processor, decoded); err != nil {
		fields := baseFields(msg, decoded)
		fields["error"] = err.Error()
		telemetry.Error("worker.job.failed", fields)
		metrics.IncQueueMessage(metrics.QueueFailed)
		return
	}

	if deleteMessage(ctx, client, queueURL, msg, decoded) {
		telemetry.Info("worker.job.completed", baseFields(msg, decoded))
		metrics.IncQueueMessage(metrics.QueueCompleted)
	}
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, job queue.Message) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, job)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.job.delete_failed", fields)
		return false
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, job)
		fields["error"] = err.Error()
		telemetry.Error("worker.job.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, job queue.Message) map[string]any {
	fields := map[string]any{
		"document_id":    job.DocumentID,
		"kind":           string(job.Kind),
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if strings.TrimSpace(job.RequestID) != "" {
		fields["request_id"] = job.RequestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	raw := msg.Attributes[string(receiveCountAttribute)]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}
