package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and job store configuration
//   - http.go: HTTP server configuration
//   - services.go: Service mode and worker configuration
//   - external.go: Payment, monitoring, and reasoning backends
//   - observability.go: Metrics and status notification configuration
type AppConfig struct {
	// IsDev controls development mode behavior (relaxed checks, plain logs).
	// Set DEV=true or APP_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig      `envPrefix:"DB_"`
	Redis    RedisConfig   `envPrefix:"REDIS_"`
	JobStore JobStoreConfig

	// HTTP server configuration
	HTTP HTTPConfig

	// Services is a comma-delimited list of enabled services.
	Services string `env:"SERVICES" envDefault:"http"`

	// Orchestrator configuration
	Orchestrator OrchestratorConfig

	// Billing configuration
	Billing BillingConfig

	// Session reaper configuration
	Reaper ReaperConfig

	// External collaborator configuration
	Masumi   MasumiConfig   `envPrefix:"MASUMI_"`
	Sokosumi SokosumiConfig `envPrefix:"SOKOSUMI_"`
	Reasoner ReasonerConfig `envPrefix:"REASONER_"`

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Postgres.Sanitize()
	c.Redis.Sanitize()
	c.HTTP.Sanitize()
	c.JobStore.Sanitize()
	c.Orchestrator.Sanitize()
	c.Billing.Sanitize()
	c.Reaper.Sanitize()
	c.Masumi.Sanitize()
	c.Sokosumi.Sanitize()
	c.Reasoner.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode checks both DEV and APP_ENV environment variables.
// This is called by Sanitize() to ensure IsDev is set correctly.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeHTTP]
}

// IsOrchestratorEnabled returns true if the job orchestrator service is enabled.
func (c *AppConfig) IsOrchestratorEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeOrchestrator]
}

// IsReaperEnabled returns true if the session reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeReaper]
}
