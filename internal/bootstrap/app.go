package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"takeoff-backend/internal/comparison"
	"takeoff-backend/internal/extraction"
	"takeoff-backend/internal/files"
	"takeoff-backend/internal/items"
	"takeoff-backend/internal/jobs"
	"takeoff-backend/internal/llm"
	openai "takeoff-backend/internal/llm/openai"
	"takeoff-backend/internal/progress"
	"takeoff-backend/internal/projectlog"
	"takeoff-backend/internal/queue"
	"takeoff-backend/internal/services/health"
	"takeoff-backend/internal/shared/config"
	"takeoff-backend/internal/shared/server"
	"takeoff-backend/internal/shared/storage/db"
	"takeoff-backend/internal/shared/storage/object"
	localstore "takeoff-backend/internal/shared/storage/object/local"
	s3store "takeoff-backend/internal/shared/storage/object/s3"
	"takeoff-backend/internal/shared/telemetry"
	"takeoff-backend/internal/workerproc"
)

const defaultAWSRegion = "us-east-1"

// Role selects which process the dependencies are built for.
type Role int

const (
	// RoleAPI serves HTTP. Without SQS it also runs jobs in process.
	RoleAPI Role = iota
	// RoleWorker consumes the SQS queue.
	RoleWorker
)

// App holds shared dependencies.
type App struct {
	Config config.Config
	Role   Role
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Queue  queue.Client
	// Pool is set when jobs run inside the API process.
	Pool  *queue.Pool
	Relay *progress.RedisRelay

	FilesRepo    files.Repo
	JobsRepo     jobs.Repo
	ItemsRepo    items.Repo
	LogsRepo     projectlog.Repo
	RunsRepo     comparison.RunRepo
	LLM          *llm.Holder
	Publisher    *progress.Publisher
	Files        *files.Service
	Jobs         *jobs.Service
	Orchestrator *extraction.Orchestrator
	Comparison   *comparison.Engine
	Health       *health.Service
}

// Build prepares dependencies for the given role and, for the API, the router.
func Build(ctx context.Context, cfg config.Config, role Role) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}

	sqlDB, err := buildDB(ctx, cfg, role)
	if err != nil {
		return nil, err
	}
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Role: role, DB: sqlDB, Store: store, Health: health.NewService()}
	if err := app.buildQueue(ctx); err != nil {
		return nil, err
	}
	if err := app.buildRelay(); err != nil {
		return nil, err
	}
	if err := app.buildServices(); err != nil {
		return nil, err
	}

	if role == RoleAPI {
		app.Router = server.NewRouter(server.RouterDeps{
			Config:            cfg,
			Health:            app.Health,
			FilesHandler:      files.NewHandler(app.Files),
			ExtractionHandler: extraction.NewHandler(app.Orchestrator),
			LogsHandler:       projectlog.NewHandler(app.LogsRepo),
			CompareHandler:    comparison.NewHandler(app.Comparison),
			ProgressHandler:   progress.NewHandler(app.Publisher),
		})
	}
	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config, role Role) (*sql.DB, error) {
	if cfg.DatabaseURL == "" {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.memory_repos", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	if role == RoleWorker {
		opts = db.OptionsFromEnv(db.DefaultWorkerOptions(cfg.WorkerConcurrency))
	}
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.memory_repos", map[string]any{"reason": "database connect failed", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	if cfg.IsDevLike() {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, awsRegion(cfg), cfg.S3Bucket, cfg.S3Prefix, cfg.S3KMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func awsRegion(cfg config.Config) string {
	if r := strings.TrimSpace(cfg.AWSRegion); r != "" {
		return r
	}
	return defaultAWSRegion
}

func (a *App) buildQueue(ctx context.Context) error {
	if a.Config.SQSQueueURL != "" {
		client, err := queue.NewSQSClient(ctx, a.Config.SQSQueueURL, awsRegion(a.Config))
		if err != nil {
			return err
		}
		a.Queue = client
		return nil
	}
	if a.Role == RoleWorker {
		return fmt.Errorf("SQS_QUEUE_URL is required for the worker")
	}
	a.Pool = queue.NewPool(a.Config.WorkerConcurrency)
	a.Queue = a.Pool
	return nil
}

func (a *App) buildRelay() error {
	if a.Config.RedisURL == "" {
		return nil
	}
	relay, err := progress.NewRedisRelay(a.Config.RedisURL)
	if err != nil {
		return err
	}
	a.Relay = relay
	a.Health.Add("redis", func(ctx context.Context) error { return relay.Client.Ping(ctx).Err() })
	return nil
}

func (a *App) buildServices() error {
	if a.DB != nil {
		a.FilesRepo = &files.PGRepo{DB: a.DB}
		a.JobsRepo = &jobs.PGRepo{DB: a.DB}
		a.ItemsRepo = &items.PGRepo{DB: a.DB}
		a.LogsRepo = &projectlog.PGRepo{DB: a.DB}
		a.RunsRepo = &comparison.PGRepo{DB: a.DB}
		a.Health.Add("database", a.DB.PingContext)
	} else {
		a.FilesRepo = files.NewMemoryRepo()
		a.JobsRepo = jobs.NewMemoryRepo()
		a.ItemsRepo = items.NewMemoryRepo()
		a.LogsRepo = projectlog.NewMemoryRepo()
		a.RunsRepo = comparison.NewMemoryRepo()
	}

	holder, err := a.buildLLM()
	if err != nil {
		return err
	}
	a.LLM = holder

	a.Publisher = &progress.Publisher{
		Files:  a.FilesRepo,
		Jobs:   a.JobsRepo,
		Items:  a.ItemsRepo,
		Logs:   a.LogsRepo,
		Broker: progress.NewBroker(progress.DefaultBuffer),
	}
	if a.Relay != nil {
		a.Publisher.Relay = a.Relay
	}

	logs := &projectlog.Writer{Repo: a.LogsRepo}
	policy := llm.DefaultPolicy(a.Config.RetryBaseDelay)
	if a.Config.ExtractMaxAttempts > 0 {
		policy.MaxAttempts = a.Config.ExtractMaxAttempts
	}
	if a.Config.RetryJitter > 0 {
		policy.Jitter = a.Config.RetryJitter
	}

	a.Jobs = &jobs.Service{Repo: a.JobsRepo, Logs: logs, Notifier: a.Publisher}
	a.Files = &files.Service{Repo: a.FilesRepo, Store: a.Store, Items: a.ItemsRepo, Jobs: a.Jobs, Notifier: a.Publisher}
	a.Orchestrator = &extraction.Orchestrator{
		Files:       a.FilesRepo,
		Store:       a.Store,
		Jobs:        a.Jobs,
		Items:       a.ItemsRepo,
		Logs:        logs,
		LLM:         holder,
		Queue:       a.Queue,
		Dispatcher:  extraction.DefaultDispatcher(a.ItemsRepo),
		Policy:      policy,
		CallTimeout: a.Config.LLMTimeout,
	}
	a.Comparison = &comparison.Engine{
		Items:       a.ItemsRepo,
		Runs:        a.RunsRepo,
		LLM:         holder,
		Logs:        logs,
		Notifier:    a.Publisher,
		Policy:      policy,
		ChunkSize:   a.Config.CompareChunkSize,
		Concurrency: a.Config.CompareConcurrency,
		CallTimeout: a.Config.LLMTimeout,
	}
	return nil
}

// buildLLM fails fast outside dev when the provider cannot be configured.
func (a *App) buildLLM() (*llm.Holder, error) {
	factory := func() (llm.Client, error) {
		switch a.Config.LLMProvider {
		case "openai", "":
			return openai.NewClient(openai.Options{
				APIKey:  a.Config.OpenAIAPIKey,
				Model:   a.Config.LLMModel,
				BaseURL: a.Config.OpenAIBaseURL,
				Store:   a.Store,
			})
		default:
			return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", a.Config.LLMProvider)
		}
	}
	holder, err := llm.NewHolder(factory)
	if err == nil {
		return holder, nil
	}
	if !a.Config.IsDevLike() {
		return nil, fmt.Errorf("configure llm: %w", err)
	}
	telemetry.Warn("bootstrap.llm_unavailable", map[string]any{"error": err.Error()})
	return llm.NewHolder(func() (llm.Client, error) {
		c, err := factory()
		if err != nil {
			return llm.Unavailable{Reason: err.Error()}, nil
		}
		return c, nil
	})
}

// Start launches background work owned by the process: in-process job
// workers and the Redis subscription that refreshes local stream clients.
func (a *App) Start(ctx context.Context) {
	if a.Pool != nil {
		a.Pool.Start(func(ctx context.Context, msg queue.Message) error {
			return workerproc.HandleMessage(extraction.WithRequestID(ctx, msg.RequestID), a.Orchestrator, msg)
		})
	}
	if a.Relay != nil && a.Role == RoleAPI {
		go func() {
			for {
				err := a.Relay.Run(ctx, a.Publisher.Broadcast)
				if ctx.Err() != nil {
					return
				}
				if err != nil {
					telemetry.Error("progress.relay_stopped", map[string]any{"error": err.Error()})
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
			}
		}()
	}
}

// Close stops background work and releases connections.
func (a *App) Close(ctx context.Context) {
	if a.Pool != nil {
		if dropped := a.Pool.Stop(ctx); len(dropped) > 0 {
			telemetry.Warn("bootstrap.pool_dropped", map[string]any{"jobs": len(dropped)})
			a.Orchestrator.Abandon(context.WithoutCancel(ctx), dropped)
		}
	}
	if a.Relay != nil {
		_ = a.Relay.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
