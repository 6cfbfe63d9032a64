package api

import (
	"fmt"
	"log/slog"

	"github.com/FACorreiaa/sales-report/internal/domain/import/charset"
	"github.com/FACorreiaa/sales-report/internal/domain/import/handler"
	"github.com/FACorreiaa/sales-report/internal/domain/import/service"
	"github.com/FACorreiaa/sales-report/pkg/config"
	"github.com/FACorreiaa/sales-report/pkg/cron"
	"github.com/FACorreiaa/sales-report/pkg/metrics"
	"github.com/FACorreiaa/sales-report/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	Logger *slog.Logger

	FileStorage storage.Storage
	Metrics     *metrics.Metrics

	// Services
	SalesService *service.Service
	Scheduler    *cron.Scheduler

	// Handlers
	SalesHandler *handler.SalesHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	deps.initMetrics()

	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initStorage creates the job storage root
func (d *Dependencies) initStorage() error {
	fileStorage, err := storage.New(&storage.Config{LocalPath: d.Config.Storage.LocalPath})
	if err != nil {
		return err
	}
	d.FileStorage = fileStorage

	d.Logger.Info("file storage initialized", slog.String("path", d.Config.Storage.LocalPath))
	return nil
}

func (d *Dependencies) initMetrics() {
	if !d.Config.Observability.MetricsEnabled {
		return
	}
	d.Metrics = metrics.New()
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	d.SalesService = service.NewService(d.FileStorage, d.Logger, service.Options{
		Charset: charset.Options{
			SampleBytes:   d.Config.Pipeline.SampleBytes,
			MinConfidence: d.Config.Pipeline.MinConfidence,
		},
		ReportTitle:    d.Config.Report.Title,
		ReportCurrency: d.Config.Report.Currency,
	}).WithMetrics(d.Metrics)

	// Retention sweep over job directories
	d.Scheduler = cron.NewScheduler(
		d.FileStorage,
		d.Config.Storage.Retention,
		d.Config.Storage.SweepSchedule,
		d.Logger,
	).WithMetrics(d.Metrics)
	if err := d.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() {
	d.SalesHandler = handler.NewSalesHandler(d.SalesService, d.Logger, handler.Options{
		MaxUploadBytes:     d.Config.Server.MaxUploadBytes,
		RateLimitPerSecond: d.Config.Server.RateLimitPerSecond,
		RateLimitBurst:     d.Config.Server.RateLimitBurst,
		AllowedOrigins:     d.Config.Server.AllowedOrigins,
	})

	d.Logger.Info("handlers initialized")
}

// Cleanup stops background jobs
func (d *Dependencies) Cleanup() {
	if d.Scheduler != nil {
		<-d.Scheduler.Stop().Done()
	}
	d.Logger.Info("cleanup completed")
}
