package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	googleauth "docfill-backend/internal/auth"
	"docfill-backend/internal/documents"
	"docfill-backend/internal/extract"
	"docfill-backend/internal/mail"
	"docfill-backend/internal/pdfdoc"
	"docfill-backend/internal/queue"
	"docfill-backend/internal/services/health"
	"docfill-backend/internal/shared/config"
	"docfill-backend/internal/shared/server"
	"docfill-backend/internal/shared/storage/db"
	"docfill-backend/internal/shared/storage/object"
	localstore "docfill-backend/internal/shared/storage/object/local"
	miniostore "docfill-backend/internal/shared/storage/object/minio"
	s3store "docfill-backend/internal/shared/storage/object/s3"
	"docfill-backend/internal/users"
)

// App holds shared dependencies.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Jobs   queue.Client
	// Runner is set when jobs run in-process; it must be closed on shutdown.
	Runner *queue.Runner
	Mailer mail.Sender

	DocumentsRepo    documents.Repo
	UsersRepo        users.Repo
	DocumentsService *documents.Service
	UsersService     *users.Service
	DocumentsHandler *documents.Handler
	UsersHandler     *users.Handler
	GoogleAuth       *googleauth.GoogleService
	Health           *health.Service
}

// Build prepares dependencies and the router with server pool defaults.
func Build(cfg config.Config) (*App, error) {
	return BuildWithPool(cfg, db.DefaultServerOptions())
}

// BuildWithPool is Build with explicit database pool defaults; DB_* env vars still override them.
func BuildWithPool(cfg config.Config, pool db.Options) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg, pool)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Mailer: mail.NewSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom),
		Health: health.NewService(sqlDB),
	}

	if err := buildServices(ctx, app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		Health:          app.Health,
		DocumentHandler: app.DocumentsHandler,
		UserHandler:     app.UsersHandler,
		GoogleAuth:      app.GoogleAuth,
	})

	return app, nil
}

// Close drains in-process jobs and releases the database.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Runner != nil {
		if err := a.Runner.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close job runner: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

func buildDB(ctx context.Context, cfg config.Config, pool db.Options) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if config.IsDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(pool))
	if err != nil {
		if config.IsDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("auto migrate: %w", err)
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
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	case "minio":
		return miniostore.New(ctx, miniostore.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildJobs(ctx context.Context, cfg config.Config, processor queue.Processor) (queue.Client, *queue.Runner, error) {
	delays := queue.Delays{Detect: cfg.DetectionDelay, Complete: cfg.CompletionDelay}
	if strings.TrimSpace(cfg.JobsQueueURL) != "" {
		client, err := queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.JobsQueueURL, delays)
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil
	}
	runner := queue.NewRunner(processor, queue.RunnerOptions{Delays: delays, Timeout: cfg.JobTimeout})
	return runner, runner, nil
}

func buildServices(ctx context.Context, app *App) error {
	var docRepo documents.Repo
	var userRepo users.Repo
	if app.DB != nil {
		docRepo = &documents.PGRepo{DB: app.DB}
		userRepo = &users.PGRepo{DB: app.DB}
	} else {
		docRepo = documents.NewMemoryRepo()
		userRepo = users.NewMemoryRepo()
	}

	docSvc := &documents.Service{
		Repo:           docRepo,
		Store:          app.Store,
		Extractors:     extract.NewRegistry(extract.Default()),
		Inspector:      pdfdoc.Inspector{},
		Renderer:       documents.NewRenderer(app.Config.CompletionRenderer, app.Store),
		UploadTimeout:  app.Config.UploadTimeout,
		DownloadURLTTL: app.Config.DownloadURLTTL,
	}
	jobs, runner, err := buildJobs(ctx, app.Config, docSvc)
	if err != nil {
		return err
	}
	docSvc.Jobs = jobs

	// Only the disk store needs the API to serve object bytes.
	var files object.ObjectStore
	if _, ok := app.Store.(*localstore.Store); ok {
		files = app.Store
	}

	userSvc := users.NewService(userRepo, app.Mailer)

	app.DocumentsRepo = docRepo
	app.UsersRepo = userRepo
	app.Jobs = jobs
	app.Runner = runner
	app.DocumentsService = docSvc
	app.UsersService = userSvc
	app.DocumentsHandler = documents.NewHandler(docSvc, files)
	app.UsersHandler = users.NewHandler(userSvc, app.Config.CookieSecure)
	app.GoogleAuth = googleauth.NewGoogleService(
		app.Config.GoogleClientID,
		app.Config.GoogleClientSecret,
		app.Config.GoogleRedirectURL,
		app.Config.UIRedirectURL,
		userSvc,
	)
	return nil
}
