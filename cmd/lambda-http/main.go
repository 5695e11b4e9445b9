package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"

	"docfill-backend/internal/bootstrap"
	"docfill-backend/internal/shared/config"
	"docfill-backend/internal/shared/storage/db"
)

var (
	initOnce  sync.Once
	initErr   error
	ginLambda *ginadapter.GinLambdaV2
)

func initApp() {
	cfg := config.Load()
	// In-process jobs would be frozen between invocations.
	if strings.TrimSpace(cfg.JobsQueueURL) == "" {
		initErr = errors.New("JOBS_SQS_QUEUE_URL is required on Lambda")
		return
	}
	app, err := bootstrap.BuildWithPool(cfg, db.DefaultWorkerOptions())
	if err != nil {
		initErr = err
		return
	}
	ginLambda = ginadapter.NewV2(app.Router)
}

func handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		log.Printf("bootstrap error: %v", initErr)
		body, _ := json.Marshal(map[string]any{"success": false, "code": "bootstrap_failed", "message": "service unavailable"})
		return events.APIGatewayV2HTTPResponse{
			StatusCode: 503,
			Body:       string(body),
			Headers:    map[string]string{"Content-Type": "application/json"},
		}, nil
	}
	return ginLambda.ProxyWithContext(ctx, req)
}

func main() {
	lambda.Start(handler)
}
