package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parkngo/parkngo-api/config"
	"github.com/parkngo/parkngo-api/internal/adapters/detector"
	"github.com/parkngo/parkngo-api/internal/adapters/masumi"
	"github.com/parkngo/parkngo-api/internal/adapters/reasoner"
	"github.com/parkngo/parkngo-api/internal/adapters/sokosumi"
	"github.com/parkngo/parkngo-api/internal/core"
	"github.com/parkngo/parkngo-api/internal/data"
	"github.com/parkngo/parkngo-api/internal/observability/statsd"
	"github.com/parkngo/parkngo-api/internal/service"
	"github.com/parkngo/parkngo-api/internal/service/statusnotifier"
	"github.com/redis/go-redis/v9"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Orchestrator  *service.JobOrchestrator
	Billing       *service.BillingService
	Reaper        *service.SessionReaper
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink    *statsd.Client
	MetricsConfig  config.ObservabilityMetricsConfig
	StatusNotifier *statusnotifier.Service
	NotifierConfig config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	DB       *sql.DB
	Redis    redis.UniversalClient
	Bookings *data.BookingRepo
	Sessions *data.SessionRepo
	Spots    *data.SpotRepo
	Jobs     *data.RedisJobStore
}

// serviceAdapters groups external service clients backing service ports.
type serviceAdapters struct {
	Payments core.PaymentGateway
	Agents   core.AgentDirectory
	Reasoner core.Reasoner
	Detector core.VehicleDetector
	Monitor  *sokosumi.Client
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(deps *ServiceDeps, logger *slog.Logger) *serviceRepositories {
	var ttl time.Duration
	if deps.Config != nil {
		ttl = deps.Config.JobStore.TTL
	}
	return &serviceRepositories{
		DB:       deps.DB,
		Redis:    deps.RedisClient,
		Bookings: data.NewBookingRepo(deps.DB),
		Sessions: data.NewSessionRepo(deps.DB),
		Spots:    data.NewSpotRepo(deps.DB),
		Jobs: data.NewRedisJobStore(data.JobStoreOptions{
			Client: deps.RedisClient,
			TTL:    ttl,
			Logger: logger,
		}),
	}
}

// buildAdapters constructs clients for the payment node, agent registry, and
// reasoning backend. The registry client is optional; everything else is not.
func buildAdapters(cfg *config.AppConfig, repos *serviceRepositories, logger *slog.Logger) (*serviceAdapters, error) {
	payments, err := masumi.NewClient(masumi.Config{
		BaseURL: cfg.Masumi.BaseURL,
		APIKey:  cfg.Masumi.APIKey,
		Network: cfg.Masumi.Network,
		Timeout: cfg.Masumi.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("build payment client: %w", err)
	}

	reasonerClient, err := reasoner.NewClient(reasoner.Config{
		BaseURL: cfg.Reasoner.BaseURL,
		APIKey:  cfg.Reasoner.APIKey,
		Model:   cfg.Reasoner.Model,
		Timeout: cfg.Reasoner.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("build reasoner client: %w", err)
	}

	spotDetector, err := detector.NewSpotStateDetector(detector.Options{
		Spots:  repos.Spots,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build vehicle detector: %w", err)
	}

	adapters := &serviceAdapters{
		Payments: payments,
		Reasoner: reasonerClient,
		Detector: spotDetector,
	}

	if cfg.Sokosumi.IsEnabled() {
		monitor, err := sokosumi.NewClient(sokosumi.Config{
			BaseURL:         cfg.Sokosumi.BaseURL,
			APIKey:          cfg.Sokosumi.APIKey,
			AgentIdentifier: cfg.Sokosumi.AgentID,
			Timeout:         cfg.Sokosumi.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialise agent registry client", "error", err)
		} else {
			adapters.Monitor = monitor
			adapters.Agents = monitor
			registerAgentCapabilities(monitor, logger)
		}
	}

	return adapters, nil
}

// registerAgentCapabilities publishes the job surface to the agent registry.
// Registration is best-effort; a failure is logged and startup continues.
func registerAgentCapabilities(monitor *sokosumi.Client, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), capabilityRegistrationTimeout)
	defer cancel()

	err := monitor.RegisterCapabilities(ctx, sokosumi.AgentCapabilities{
		Name:        monitor.Identifier(),
		Description: "Finds and books parking spots from a natural-language request.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []string{"text"},
		},
	})
	if err != nil {
		logger.Warn("capability registration failed", "agent", monitor.Identifier(), "error", err)
		return
	}
	logger.Info("agent capabilities registered", "agent", monitor.Identifier())
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig, adapters *serviceAdapters) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	var sinks []statusnotifier.SinkRegistration
	if cfg.Notifications.Enabled && adapters != nil && adapters.Monitor != nil {
		sinks = append(sinks, statusnotifier.SinkRegistration{
			Name: "sokosumi",
			Sink: adapters.Monitor,
		})
	}
	notifier := statusnotifier.NewService(statusnotifier.Options{
		Logger: obsLogger,
		Sinks:  sinks,
	})

	return ObservabilityContainer{
		MetricsSink:    metricsSink,
		MetricsConfig:  cfg.Metrics,
		StatusNotifier: notifier,
		NotifierConfig: cfg.Notifications,
	}
}

// DomainServicesOptions groups inputs for buildDomainServices.
type DomainServicesOptions struct {
	Repos         *serviceRepositories
	Adapters      *serviceAdapters
	Observability ObservabilityContainer
	Config        *config.AppConfig
	Logger        *slog.Logger
}

// buildDomainServices wires business services using repositories and adapters.
func buildDomainServices(opts *DomainServicesOptions) (ServiceContainer, error) {
	if opts == nil {
		return ServiceContainer{}, errors.New("domain service options are required")
	}
	svcLogger := opts.Logger
	if svcLogger == nil {
		svcLogger = slog.Default()
	}

	appCfg := opts.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	var metrics statsd.Sink
	if opts.Observability.MetricsSink != nil {
		metrics = opts.Observability.MetricsSink
	}

	orchestrator, err := service.NewJobOrchestrator(service.JobOrchestratorOptions{
		Store:         opts.Repos.Jobs,
		Payments:      opts.Adapters.Payments,
		Reasoner:      opts.Adapters.Reasoner,
		Agents:        opts.Adapters.Agents,
		Notifier:      opts.Observability.StatusNotifier,
		Config:        appCfg.Orchestrator,
		PaymentWindow: appCfg.JobStore.TTL,
		Logger:        svcLogger,
		Metrics:       metrics,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build job orchestrator: %w", err)
	}

	billing, err := service.NewBillingService(service.BillingServiceOptions{
		Bookings: opts.Repos.Bookings,
		Sessions: opts.Repos.Sessions,
		Spots:    opts.Repos.Spots,
		Payments: opts.Adapters.Payments,
		Detector: opts.Adapters.Detector,
		Config:   appCfg.Billing,
		Logger:   svcLogger,
		Metrics:  metrics,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build billing service: %w", err)
	}

	reaper, err := service.NewSessionReaper(service.SessionReaperOptions{
		Sessions: opts.Repos.Sessions,
		Bookings: opts.Repos.Bookings,
		Config:   appCfg.Reaper,
		Logger:   svcLogger,
		Metrics:  metrics,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build session reaper: %w", err)
	}

	return ServiceContainer{
		Orchestrator:  orchestrator,
		Billing:       billing,
		Reaper:        reaper,
		Observability: opts.Observability,
	}, nil
}

// NewServices wires repositories, adapters, and domain services.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil {
		return ServiceContainer{}, errors.New("service dependencies are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Config == nil {
		return ServiceContainer{}, errors.New("service config is required")
	}

	repos := buildRepositories(deps, logger)
	adapters, err := buildAdapters(deps.Config, repos, logger)
	if err != nil {
		return ServiceContainer{}, err
	}
	observability := buildObservability(logger, deps.Config.Observability, adapters)

	return buildDomainServices(&DomainServicesOptions{
		Repos:         repos,
		Adapters:      adapters,
		Observability: observability,
		Config:        deps.Config,
		Logger:        logger,
	})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second

	// capabilityRegistrationTimeout bounds the best-effort startup call to the
	// agent registry.
	capabilityRegistrationTimeout = 5 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		{
			mode: config.ServiceModeOrchestrator,
			name: "job orchestrator",
			start: func(ctx context.Context) error {
				return deps.cfg.Services.Orchestrator.Run(ctx)
			},
		},
		{
			mode: config.ServiceModeReaper,
			name: "session reaper",
			start: func(ctx context.Context) error {
				return deps.cfg.Services.Reaper.Run(ctx)
			},
		},
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	ctx := context.Background()
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	// Start all enabled services
	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		ctx:          serviceCtx,
		cancel:       cancel,
		errCh:        errCh,
		httpServer:   result.HTTPServer,
		httpConfig:   cfg.Config.HTTP,
		orchestrator: cfg.Services.Orchestrator,
		logger:       logger,
		backgrounds:  result.Background,
	})
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx          context.Context
	cancel       context.CancelFunc
	errCh        <-chan error
	httpServer   *http.Server
	httpConfig   config.HTTPConfig
	orchestrator *service.JobOrchestrator
	logger       *slog.Logger
	backgrounds  []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	// Gracefully stop HTTP server if running
	if cfg.httpServer != nil {
		timeout := cfg.httpConfig.ShutdownTimeout
		if timeout <= 0 {
			timeout = shutdownWaitTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context:      shutdownCtx,
			Server:       cfg.httpServer,
			Orchestrator: cfg.orchestrator,
			Logger:       cfg.logger,
		}); err != nil {
			return err
		}
	} else if cfg.orchestrator != nil {
		// No HTTP server to drain; still flush in-flight job executions.
		cfg.orchestrator.Stop()
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
