package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"log"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"docfill-backend/internal/bootstrap"
	"docfill-backend/internal/queue"
	"docfill-backend/internal/shared/config"
	"docfill-backend/internal/shared/metrics"
	"docfill-backend/internal/shared/storage/db"
	"docfill-backend/internal/shared/telemetry"
	"docfill-backend/internal/workerproc"
)

var (
	initOnce sync.Once
	initErr  error
	app      *bootstrap.App
)

func initApp() {
	cfg := config.Load()
	built, err := bootstrap.BuildWithPool(cfg, db.DefaultWorkerOptions())
	if err != nil {
		initErr = err
		return
	}
	app = built
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		log.Printf("bootstrap error: %v", initErr)
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}
	return events.SQSEventResponse{BatchItemFailures: processRecords(ctx, app.DocumentsService, event.Records)}, nil
}

// processRecords reports retryable failures. Malformed records are dropped.
func processRecords(ctx context.Context, processor queue.Processor, records []events.SQSMessage) []events.SQSBatchItemFailure {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range records {
		metrics.IncQueueMessage(metrics.QueueReceived)
		fields := map[string]any{"sqs_message_id": record.MessageId}

		msg, meta, err := workerproc.ParseMessage(record.Body)
		if err != nil {
			fields["body_len"] = meta.BodyLen
			fields["error"] = err.Error()
			telemetry.Error("worker.job.unrecoverable", fields)
			metrics.IncQueueMessage(metrics.QueueUnrecoverable)
			continue
		}
		fields["document_id"] = msg.DocumentID
		fields["kind"] = string(msg.Kind)

		if err := workerproc.HandleMessage(ctx, processor, msg); err != nil {
			fields["error"] = err.Error()
			telemetry.Error("worker.job.failed", fields)
			metrics.IncQueueMessage(metrics.QueueFailed)
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}
		metrics.IncQueueMessage(metrics.QueueCompleted)
	}
	return failures
}

func main() {
	lambda.Start(handler)
}
