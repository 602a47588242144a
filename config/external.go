package config

import (
	"strings"
	"time"
)

// MasumiConfig contains the payment gateway client configuration.
type MasumiConfig struct {
	BaseURL string        `env:"BASE_URL" envDefault:"http://localhost:3001"`
	APIKey  string        `env:"API_KEY"  envDefault:""`
	Network string        `env:"NETWORK"  envDefault:"Preprod"`
	Timeout time.Duration `env:"TIMEOUT"  envDefault:"15s"`
}

// Sanitize applies guardrails to payment gateway configuration values.
func (m *MasumiConfig) Sanitize() {
	m.BaseURL = strings.TrimRight(strings.TrimSpace(m.BaseURL), "/")
	if m.Timeout <= 0 {
		m.Timeout = 15 * time.Second
	}
}

// SokosumiConfig contains the agent directory / monitor client configuration.
type SokosumiConfig struct {
	BaseURL string        `env:"BASE_URL" envDefault:"https://api.sokosumi.com"`
	APIKey  string        `env:"API_KEY"  envDefault:""`
	AgentID string        `env:"AGENT_ID" envDefault:""`
	Timeout time.Duration `env:"TIMEOUT"  envDefault:"10s"`
}

// Sanitize applies guardrails to monitor configuration values.
func (s *SokosumiConfig) Sanitize() {
	s.BaseURL = strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	s.AgentID = strings.TrimSpace(s.AgentID)
	if s.Timeout <= 0 {
		s.Timeout = 10 * time.Second
	}
}

// IsEnabled reports whether the monitor client can be constructed.
func (s *SokosumiConfig) IsEnabled() bool {
	return s.BaseURL != "" && s.AgentID != ""
}

// ReasonerConfig contains the reasoning backend client configuration.
type ReasonerConfig struct {
	BaseURL string        `env:"BASE_URL" envDefault:"http://localhost:8090"`
	APIKey  string        `env:"API_KEY"  envDefault:""`
	Model   string        `env:"MODEL"    envDefault:"gpt-4o-mini"`
	Timeout time.Duration `env:"TIMEOUT"  envDefault:"60s"`
}

// Sanitize applies guardrails to reasoner configuration values.
func (r *ReasonerConfig) Sanitize() {
	r.BaseURL = strings.TrimRight(strings.TrimSpace(r.BaseURL), "/")
	if r.Model == "" {
		r.Model = "gpt-4o-mini"
	}
	if r.Timeout <= 0 {
		r.Timeout = 60 * time.Second
	}
}
