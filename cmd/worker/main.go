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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"dealroom-backend/internal/bootstrap"
	"dealroom-backend/internal/queue"
	"dealroom-backend/internal/shared/config"
	"dealroom-backend/internal/shared/storage/db"
	"dealroom-backend/internal/shared/telemetry"
	"dealroom-backend/internal/workerproc"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueURL == "" {
		log.Fatal("DR_SQS_QUEUE_URL is required for the worker")
	}
	database, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultWorkerOptions()))
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer database.Close()

	app, err := bootstrap.Build(ctx, cfg, bootstrap.Options{DB: database})
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if strings.TrimSpace(cfg.AWSRegion) != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	client := sqs.NewFromConfig(awsCfg)

	concurrency := envInt("WORKER_CONCURRENCY", 4)
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	telemetry.Info("worker.started", map[string]any{
		"queue_url":   cfg.QueueURL,
		"concurrency": concurrency,
	})

	for {
		out, err := client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(cfg.QueueURL),
			MaxNumberOfMessages: 5,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			telemetry.Error("worker.receive_failed", map[string]any{"error": err.Error()})
			continue
		}
		for _, m := range out.Messages {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
			wg.Add(1)
			go func(m types.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				handleMessage(ctx, client, cfg.QueueURL, app.Processor, m)
			}(m)
		}
		if ctx.Err() != nil {
			break
		}
	}

	telemetry.Info("worker.draining", nil)
	wg.Wait()
	telemetry.Info("worker.stopped", nil)
}

// handleMessage processes one queue message. The message is deleted on
// success and for payloads that can never succeed; everything else stays on
// the queue for redelivery after the visibility timeout.
func handleMessage(ctx context.Context, client *sqs.Client, queueURL string, processor queue.Processor, m types.Message) {
	if m.Body == nil {
		deleteMessage(ctx, client, queueURL, m)
		return
	}
	msg, err := queue.DecodeMessage([]byte(*m.Body))
	if err != nil {
		telemetry.Error("worker.decode_failed", map[string]any{"error": err.Error()})
		deleteMessage(ctx, client, queueURL, m)
		return
	}
	err = processor.ProcessEvent(ctx, msg)
	if err == nil || errors.Is(err, workerproc.ErrBadMessage) {
		deleteMessage(ctx, client, queueURL, m)
	}
}

func deleteMessage(ctx context.Context, client *sqs.Client, queueURL string, m types.Message) {
	_, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		telemetry.Error("worker.delete_failed", map[string]any{"error": err.Error()})
	}
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return def
	}
	return val
}
