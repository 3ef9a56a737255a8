package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"slumber/app/handler"
	"slumber/app/router"
	"slumber/internal/model"
	"slumber/internal/service/lifecycle"
	"slumber/pkg/backup"
	"slumber/pkg/config"
	"slumber/pkg/image"
	"slumber/pkg/logger"
	"slumber/pkg/metrics"
	"slumber/pkg/notification"
	"slumber/pkg/provider"
	mysqlstore "slumber/pkg/store/mysql"
	redisstore "slumber/pkg/store/redis"
)

// initConfig initializes configuration
func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.Sync()
		logger.InfoCtx(app.ctx, "Logging system has been closed")
	})
	return nil
}

// initDatabase opens the SQL store, migrates it and seeds the template catalog
func (app *Application) initDatabase() error {
	repo, err := mysqlstore.NewRepository(app.config.Database)
	if err != nil {
		return err
	}

	app.mysqlRepo = repo
	app.registerCleanup(func() {
		repo.Close()
		logger.InfoCtx(app.ctx, "Database connection has been closed")
	})

	if err := repo.Migrate(app.ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	for _, t := range app.config.Templates {
		if err := image.ValidateReference(t.Image); err != nil {
			return fmt.Errorf("template %s: %w", t.ID, err)
		}
		if err := repo.Template.Upsert(app.ctx, templateFromConfig(t)); err != nil {
			return fmt.Errorf("failed to seed template %s: %w", t.ID, err)
		}
	}
	logger.InfoCtx(app.ctx, "Template catalog seeded with %d entries", len(app.config.Templates))

	return nil
}

func templateFromConfig(t config.TemplateConfig) *model.Template {
	return &model.Template{
		ID:           t.ID,
		Name:         t.Name,
		Image:        t.Image,
		InternalPort: t.InternalPort,
		Protocol:     model.Protocol(t.Protocol),
		MinCPU:       t.MinCPU,
		MinRAM:       t.MinRAM,
		DefaultEnv:   t.DefaultEnv,
	}
}

// initRedis initializes Redis. Without it locks and idle windows stay in process.
func (app *Application) initRedis() error {
	if !app.config.Redis.Enabled {
		logger.InfoCtx(app.ctx, "Redis disabled, sweeps run in single-instance mode")
		return nil
	}

	client, err := redisstore.NewRedisClient(app.config.Redis)
	if err != nil {
		return err
	}

	app.redisClient = client
	app.registerCleanup(func() {
		client.Close()
		logger.InfoCtx(app.ctx, "Redis connection has been closed")
	})

	return nil
}

// initMetrics creates the prometheus registry served on /metrics
func (app *Application) initMetrics() error {
	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = metrics.NewLifecycleMetrics(app.registry)
	return nil
}

// initProviders initializes the container runtime, backup store and alerting
func (app *Application) initProviders() error {
	app.pullCache = image.NewPullCache(app.config.Runtime.PullCache)
	if app.redisClient != nil {
		app.pullCache.WithRedis(app.redisClient.GetClient())
	}

	factory := provider.NewProviderFactory(app.config, app.pullCache)
	providers, err := factory.CreateBusinessProviders()
	if err != nil {
		return fmt.Errorf("failed to create business providers: %w", err)
	}
	app.runtime = providers.Runtime

	if closer, ok := app.runtime.(io.Closer); ok {
		app.registerCleanup(func() {
			closer.Close()
			logger.InfoCtx(app.ctx, "Runtime client has been closed")
		})
	}

	if app.config.Backup.Enabled {
		store, err := backup.NewS3Store(app.ctx, app.config.Backup)
		if err != nil {
			return fmt.Errorf("failed to create backup store: %w", err)
		}
		app.backups = store
		logger.InfoCtx(app.ctx, "Backups enabled, bucket: %s", app.config.Backup.Bucket)
	}

	if app.config.Alert.FeishuWebhookURL != "" {
		app.alerts = notification.NewFeishuNotifier(app.config.Alert.FeishuWebhookURL)
	}

	return nil
}

// initServices initializes service layer
func (app *Application) initServices() error {
	app.lifecycleService = lifecycle.NewService(lifecycle.Dependencies{
		Workloads: app.mysqlRepo.Workload,
		Templates: app.mysqlRepo.Template,
		Accounts:  app.mysqlRepo.Account,
		Runtime:   app.runtime,
		Backups:   app.backups,
		Alerts:    app.alerts,
		Metrics:   app.metrics,
	}, lifecycle.ConfigFrom(app.config))
	return nil
}

// initHandlers initializes handler layer
func (app *Application) initHandlers() error {
	app.workloadHandler = handler.NewWorkloadHandler(app.lifecycleService)
	app.accountHandler = handler.NewAccountHandler(app.mysqlRepo.Account)

	checks := map[string]handler.Pinger{
		"database": app.mysqlRepo.GetDatastore(),
	}
	if app.redisClient != nil {
		checks["redis"] = app.redisClient
	}
	app.healthHandler = handler.NewHealthHandler(checks)
	return nil
}

// initHTTPServer initializes HTTP server
func (app *Application) initHTTPServer() error {
	metricsHandler := promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{Registry: app.registry})

	// Initialize router
	r := router.NewRouter(app.workloadHandler, app.accountHandler, app.healthHandler, metricsHandler,
		app.config.Server.APIKey, app.config.Server.WakeToken)
	if app.config.Server.APIKey == "" {
		logger.WarnCtx(app.ctx, "server.api_key is empty, operator API is unauthenticated")
	}

	// Set Gin mode
	gin.SetMode(app.config.Server.Mode)

	// Create Gin engine
	app.ginEngine = gin.New()

	// Setup routes
	r.Setup(app.ginEngine)

	// Create HTTP server. Wake with ?wait=true can block for the whole wake timeout.
	app.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.ginEngine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return nil
}
