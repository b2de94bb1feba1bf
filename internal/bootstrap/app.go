package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"strategiq-backend/internal/artifacts"
	"strategiq-backend/internal/fetch"
	"strategiq-backend/internal/generator"
	"strategiq-backend/internal/jobs"
	"strategiq-backend/internal/llm"
	"strategiq-backend/internal/llm/openai"
	"strategiq-backend/internal/llm/openrouter"
	"strategiq-backend/internal/polling"
	"strategiq-backend/internal/queue"
	"strategiq-backend/internal/reddit"
	"strategiq-backend/internal/render"
	"strategiq-backend/internal/shared/config"
	"strategiq-backend/internal/shared/server"
	"strategiq-backend/internal/shared/storage/db"
	"strategiq-backend/internal/shared/storage/object"
	localstore "strategiq-backend/internal/shared/storage/object/local"
	s3store "strategiq-backend/internal/shared/storage/object/s3"
)

// App holds shared dependencies for the API and worker binaries.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Queue  queue.Client

	JobsRepo   jobs.Repo
	Processor  *jobs.Processor
	JobService *jobs.Service
	JobHandler *jobs.Handler
	Cache      *artifacts.Cache

	// Dispatcher drains the in-memory queue when no SQS queue is
	// configured. Nil in distributed deployments.
	Dispatcher *jobs.Dispatcher
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var repo jobs.Repo
	if sqlDB != nil {
		repo = &jobs.PGRepo{DB: sqlDB}
	} else {
		repo = jobs.NewMemoryRepo()
	}

	model, err := buildLLM(cfg)
	if err != nil {
		return nil, err
	}

	var searcher generator.Searcher
	if len(cfg.RedditSubreddits) > 0 {
		searcher = reddit.NewClient(cfg.RedditSubreddits)
	}

	processor := &jobs.Processor{
		Repo:            repo,
		Fetcher:         fetch.New(cfg.FetchTimeout, cfg.FetchRetries),
		Generator:       generator.New(model, searcher),
		Store:           store,
		PersistAttempts: cfg.PersistRetries,
	}

	queueClient, dispatcher, err := buildQueue(ctx, cfg, processor)
	if err != nil {
		return nil, err
	}

	cache := artifacts.NewCache(render.NewPDFRenderer(), cfg.PDFCacheMaxBytes, cfg.PDFCacheMaxEntries)

	svc := jobs.NewService(repo, queueClient, processor, polling.DefaultSchedule())
	handler := jobs.NewHandler(svc, cache)

	app := &App{
		Config:     cfg,
		DB:         sqlDB,
		Store:      store,
		Queue:      queueClient,
		JobsRepo:   repo,
		Processor:  processor,
		JobService: svc,
		JobHandler: handler,
		Cache:      cache,
		Dispatcher: dispatcher,
	}
	app.Router = server.NewRouter(server.RouterDeps{
		Config:     cfg,
		JobHandler: handler,
	})
	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

// buildQueue wires SQS when a queue URL is configured, otherwise an in-memory
// queue with an in-process dispatcher.
func buildQueue(ctx context.Context, cfg config.Config, processor *jobs.Processor) (queue.Client, *jobs.Dispatcher, error) {
	if strings.TrimSpace(cfg.QueueURL) != "" {
		client, err := queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.QueueURL)
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil
	}

	memory := queue.NewMemoryClient(256)
	dispatcher := &jobs.Dispatcher{
		Queue:       memory,
		Processor:   processor,
		Concurrency: cfg.WorkerConcurrency,
	}
	return memory, dispatcher, nil
}

// buildLLM assembles the provider chain from the configured primary and
// secondary providers.
func buildLLM(cfg config.Config) (llm.Client, error) {
	var providers []llm.Client
	for _, name := range []string{cfg.LLMPrimaryProvider, cfg.LLMSecondaryProvider} {
		client, err := buildProvider(name, cfg.LLMModel)
		if err != nil {
			log.Printf("bootstrap: provider %s unavailable: %v", name, err)
			continue
		}
		if client != nil {
			providers = append(providers, client)
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no reasoning provider configured; set OPENAI_API_KEY or OPENROUTER_API_KEY")
	}
	return llm.NewChain(providers...), nil
}

func buildProvider(name, model string) (llm.Client, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return nil, nil
	case "openai":
		return openai.NewClient(os.Getenv("OPENAI_API_KEY"), model)
	case "openrouter":
		return openrouter.NewClient(os.Getenv("OPENROUTER_API_KEY"), model)
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
