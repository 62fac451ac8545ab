// Package bootstrap wires repositories, services and transports into a
// runnable application. Both binaries and the HTTP tests build through here
// so the wiring is exercised everywhere.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"dealroom-backend/internal/ai"
	"dealroom-backend/internal/ai/openai"
	"dealroom-backend/internal/assets"
	"dealroom-backend/internal/companies"
	"dealroom-backend/internal/enrichment"
	"dealroom-backend/internal/generation"
	"dealroom-backend/internal/jobs"
	"dealroom-backend/internal/questionnaire"
	"dealroom-backend/internal/queue"
	"dealroom-backend/internal/registry"
	"dealroom-backend/internal/shared/config"
	"dealroom-backend/internal/shared/server"
	"dealroom-backend/internal/shared/storage/object"
	"dealroom-backend/internal/shared/storage/object/local"
	"dealroom-backend/internal/shared/storage/object/s3"
	"dealroom-backend/internal/shared/telemetry"
	"dealroom-backend/internal/workerproc"
)

// Options overrides individual dependencies, mainly for tests. Nil fields
// are built from configuration.
type Options struct {
	DB       *sql.DB
	Queue    queue.Client
	AI       ai.Generator
	Registry registry.Lookup
	Store    object.ObjectStore
}

// App is the wired application.
type App struct {
	Config    config.Config
	DB        *sql.DB
	Router    *gin.Engine
	Jobs      *jobs.Service
	Companies companies.Repo
	Processor queue.Processor
	Queue     queue.Client
}

// Build wires the application. Without a database it falls back to in-memory
// repositories; without a queue URL phase events run in-process.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	var (
		jobsRepo      jobs.Repo
		companiesRepo companies.Repo
		enrichRepo    enrichment.Repo
		assetsRepo    assets.Repo
		questRepo     questionnaire.Repo
	)
	if opts.DB != nil {
		jobsRepo = &jobs.PGRepo{DB: opts.DB}
		companiesRepo = &companies.PGRepo{DB: opts.DB}
		enrichRepo = &enrichment.PGRepo{DB: opts.DB}
		assetsRepo = &assets.PGRepo{DB: opts.DB}
		questRepo = &questionnaire.PGRepo{DB: opts.DB}
	} else {
		telemetry.Warn("bootstrap.memory_repos", map[string]any{"env": cfg.Env})
		jobsRepo = jobs.NewMemoryRepo()
		companiesRepo = companies.NewMemoryRepo()
		enrichRepo = enrichment.NewMemoryRepo()
		assetsRepo = assets.NewMemoryRepo()
		questRepo = questionnaire.NewMemoryRepo()
	}

	store := opts.Store
	if store == nil {
		var err error
		store, err = buildStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	generator := opts.AI
	if generator == nil {
		var err error
		generator, err = buildGenerator(cfg)
		if err != nil {
			return nil, err
		}
	}

	lookup := opts.Registry
	if lookup == nil {
		var err error
		lookup, err = buildRegistry(cfg)
		if err != nil {
			return nil, err
		}
	}

	// The queue client is needed by the job service, the processor by the
	// queue when running in-process. Build the client first and close the
	// loop after the services exist.
	var inProcess *queue.InProcessClient
	queueClient := opts.Queue
	if queueClient == nil {
		if cfg.QueueURL != "" {
			sqsClient, err := queue.NewSQSClient(ctx, cfg.QueueURL, cfg.AWSRegion)
			if err != nil {
				return nil, err
			}
			queueClient = sqsClient
		} else {
			inProcess = queue.NewInProcessClient(nil)
			queueClient = inProcess
		}
	}

	questService := &questionnaire.Service{Repo: questRepo}
	intake := &assets.Service{Repo: assetsRepo, Store: store}
	jobsService := &jobs.Service{
		Repo:          jobsRepo,
		Companies:     companiesRepo,
		Questionnaire: questService,
		Enrichment:    enrichRepo,
		Intake:        intake,
		Queue:         queueClient,
		MaxAttempts:   cfg.GenerationMaxRetries,
	}
	enrichService := &enrichment.Service{Repo: enrichRepo, Registry: lookup, AI: generator}
	genService := &generation.Service{
		Jobs:          jobsService,
		Companies:     companiesRepo,
		Enrichment:    enrichRepo,
		Questionnaire: questService,
		Assets:        intake,
		AI:            generator,
	}
	processor := &workerproc.Processor{
		Jobs:       jobsService,
		Companies:  companiesRepo,
		Enrichment: enrichService,
		Generation: genService,
		Assets:     intake,
	}
	if inProcess != nil {
		inProcess.SetProcessor(processor)
	}

	router := server.NewRouter(cfg, &jobs.Handler{Service: jobsService})

	return &App{
		Config:    cfg,
		DB:        opts.DB,
		Router:    router,
		Jobs:      jobsService,
		Companies: companiesRepo,
		Processor: processor,
		Queue:     queueClient,
	}, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	if cfg.ObjectStoreType == "s3" {
		return s3.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	}
	return local.New(cfg.LocalStoreDir), nil
}

func buildGenerator(cfg config.Config) (ai.Generator, error) {
	switch cfg.AIProvider {
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" && cfg.Env != "production" {
			telemetry.Warn("bootstrap.ai_placeholder", map[string]any{"provider": cfg.AIProvider})
			return ai.PlaceholderClient{}, nil
		}
		return openai.NewClient(apiKey, cfg.AIModel)
	case "placeholder":
		return ai.PlaceholderClient{}, nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.AIProvider)
	}
}

func buildRegistry(cfg config.Config) (registry.Lookup, error) {
	if cfg.RegistryBaseURL == "" {
		telemetry.Warn("bootstrap.registry_disabled", nil)
		return unconfiguredRegistry{}, nil
	}
	return registry.NewHTTPClient(cfg.RegistryBaseURL, cfg.RegistryAPIKey)
}

type unconfiguredRegistry struct{}

func (unconfiguredRegistry) Lookup(ctx context.Context, businessID string) (registry.CompanyFacts, error) {
	_ = ctx
	_ = businessID
	return registry.CompanyFacts{}, fmt.Errorf("registry not configured")
}
