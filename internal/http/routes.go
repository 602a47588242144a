package httpx

import (
	"log/slog"
	"net/http"

	"github.com/parkngo/parkngo-api/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Orchestrator *service.JobOrchestrator
	Billing      *service.BillingService
	Logger       *slog.Logger // Logger for request logging and panics (optional)
}

// NewRouter creates and configures a new HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	if services.Orchestrator != nil {
		registerJobRoutes(mux, &JobHandlers{Svc: services.Orchestrator})
	}
	if services.Billing != nil {
		registerParkingRoutes(mux, &ParkingHandlers{Svc: services.Billing, Logger: services.Logger})
	}
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("HEAD /health", healthHandler)

	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var handler http.Handler = mux
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler
}
