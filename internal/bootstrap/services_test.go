package bootstrap

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkngo/parkngo-api/config"
)

func testAppConfig() *config.AppConfig {
	cfg := &config.AppConfig{
		Services: "http,orchestrator,reaper",
		Masumi: config.MasumiConfig{
			BaseURL: "http://localhost:3001",
			Network: "Preprod",
			Timeout: 15 * time.Second,
		},
		Reasoner: config.ReasonerConfig{
			BaseURL: "http://localhost:8090",
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
	}
	cfg.Sanitize()
	return cfg
}

func TestNewServices_WiresContainer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	services, err := NewServices(&ServiceDeps{
		Config: testAppConfig(),
		Logger: logger,
	})
	require.NoError(t, err)

	assert.NotNil(t, services.Orchestrator)
	assert.NotNil(t, services.Billing)
	assert.NotNil(t, services.Reaper)

	// No registry configured, so the notifier exists but has no sinks.
	require.NotNil(t, services.Observability.StatusNotifier)
	assert.False(t, services.Observability.StatusNotifier.Enabled())
	assert.Nil(t, services.Observability.MetricsSink)
}

func TestNewServices_RegistersCapabilities(t *testing.T) {
	registered := make(chan string, 1)
	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			select {
			case registered <- r.URL.Path:
			default:
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(registry.Close)

	cfg := testAppConfig()
	cfg.Sokosumi = config.SokosumiConfig{
		BaseURL: registry.URL,
		AgentID: "agent-42",
		Timeout: 5 * time.Second,
	}

	_, err := NewServices(&ServiceDeps{
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	select {
	case path := <-registered:
		assert.Equal(t, "/agents/agent-42/capabilities", path)
	default:
		t.Fatal("expected a capability registration call at startup")
	}
}

func TestNewServices_RequiresDeps(t *testing.T) {
	_, err := NewServices(nil)
	assert.Error(t, err)

	_, err = NewServices(&ServiceDeps{})
	assert.Error(t, err)
}

func TestNewServices_RejectsInvalidPaymentConfig(t *testing.T) {
	cfg := testAppConfig()
	cfg.Masumi.BaseURL = ""

	_, err := NewServices(&ServiceDeps{
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payment client")
}

func TestValidateServiceConfig(t *testing.T) {
	assert.Error(t, ValidateServiceConfig(nil))

	cfg := testAppConfig()
	assert.NoError(t, ValidateServiceConfig(cfg))

	cfg.Services = "bogus"
	assert.Error(t, ValidateServiceConfig(cfg))
}

func TestGetEnabledServices(t *testing.T) {
	assert.Empty(t, GetEnabledServices(nil))

	names := GetEnabledServices(testAppConfig())
	assert.ElementsMatch(t, []string{"http", "orchestrator", "reaper"}, names)
}

func TestErrorChannelBufferSize(t *testing.T) {
	assert.Equal(t, 1, errorChannelBufferSize(nil))
	assert.Equal(t, 3, errorChannelBufferSize(map[config.ServiceMode]bool{
		config.ServiceModeHTTP:   true,
		config.ServiceModeReaper: true,
	}))
}
