package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/parkngo/parkngo-api/internal/domain/model"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeOrchestrator runs the job orchestrator worker (expiry
	// timers, heartbeat loop, async job execution).
	ServiceModeOrchestrator ServiceMode = "orchestrator"
	// ServiceModeReaper runs the session reaper for over-duration cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeOrchestrator,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeOrchestrator, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, orchestrator, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// OrchestratorConfig contains job orchestrator configuration.
type OrchestratorConfig struct {
	// AgentIdentifier is this orchestrator's identity in the agent directory.
	AgentIdentifier string `env:"AGENT_IDENTIFIER" envDefault:"parkngo-orchestrator"`

	// Network is the payment network jobs are priced on.
	Network string `env:"PAYMENT_NETWORK" envDefault:"Preprod"`

	// MaxParallelJobs is the admission limit on concurrently active jobs.
	// Availability reports unavailable once the limit is reached.
	MaxParallelJobs int `env:"MAX_PARALLEL_JOBS" envDefault:"3"`

	// PaymentAmount is the flat job price in PaymentUnit.
	PaymentAmount int64 `env:"PAYMENT_AMOUNT" envDefault:"10000000"`

	// PaymentUnit is the unit PaymentAmount is denominated in.
	PaymentUnit string `env:"PAYMENT_UNIT" envDefault:"lovelace"`

	// PaymentWindow is how long a job may wait for payment before it is
	// cancelled. Zero means use the job store TTL.
	PaymentWindow time.Duration `env:"PAYMENT_WINDOW" envDefault:"0"`

	// ExecutionAttempts is the number of reasoning backend attempts per job.
	ExecutionAttempts int `env:"EXECUTION_ATTEMPTS" envDefault:"3"`

	// HeartbeatInterval is the interval between status pings to the monitor.
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"60s"`
}

// Sanitize applies guardrails to orchestrator configuration values.
func (o *OrchestratorConfig) Sanitize() {
	o.AgentIdentifier = strings.TrimSpace(o.AgentIdentifier)
	if o.AgentIdentifier == "" {
		o.AgentIdentifier = "parkngo-orchestrator"
	}
	if o.MaxParallelJobs < 1 {
		o.MaxParallelJobs = 1
	}
	if o.PaymentAmount <= 0 {
		o.PaymentAmount = model.DefaultPaymentAmountLovelace
	}
	if o.PaymentUnit == "" {
		o.PaymentUnit = model.DefaultPaymentUnit
	}
	if o.PaymentWindow < 0 {
		o.PaymentWindow = 0
	}
	if o.ExecutionAttempts < 1 {
		o.ExecutionAttempts = 1
	}
	if o.HeartbeatInterval < 5*time.Second {
		o.HeartbeatInterval = 5 * time.Second
	}
}

// BillingConfig contains session billing engine configuration.
type BillingConfig struct {
	// OwnerWallet is the payee wallet for metered parking sessions.
	OwnerWallet string `env:"OWNER_WALLET" envDefault:""`

	// RatePerMinute is the metered rate in lovelace per minute.
	RatePerMinute int64 `env:"RATE_PER_MINUTE" envDefault:"20000"`

	// AutoBookingHours is the duration assigned to sensor-created bookings.
	AutoBookingHours float64 `env:"AUTO_BOOKING_HOURS" envDefault:"24"`
}

// Sanitize applies guardrails to billing configuration values.
func (b *BillingConfig) Sanitize() {
	b.OwnerWallet = strings.TrimSpace(b.OwnerWallet)
	if b.RatePerMinute <= 0 {
		b.RatePerMinute = model.RatePerMinuteLovelace
	}
	if b.AutoBookingHours <= 0 {
		b.AutoBookingHours = model.AutoBookingDurationHours
	}
}

// ReaperConfig contains session reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"1m"`

	// Jitter is the maximum random delay added to each tick. Spreads load
	// when several reapers share a database.
	Jitter time.Duration `env:"REAPER_JITTER" envDefault:"5s"`

	// GraceWindow is slack added beyond the booked duration before a session
	// is force-closed.
	GraceWindow time.Duration `env:"REAPER_GRACE_WINDOW" envDefault:"1m"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < 10*time.Second {
		r.Interval = 10 * time.Second
	}
	if r.Jitter < 0 {
		r.Jitter = 0
	}
	if r.Jitter > r.Interval {
		r.Jitter = r.Interval
	}
	if r.GraceWindow < 0 {
		r.GraceWindow = 0
	}
}
