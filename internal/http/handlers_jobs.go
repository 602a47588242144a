package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/parkngo/parkngo-api/internal/domain/model"
	"github.com/parkngo/parkngo-api/internal/service"
)

// JobHandlers handles the paid job surface exposed to purchasers.
type JobHandlers struct {
	Svc *service.JobOrchestrator
}

// inputSchema describes the accepted shape of a job's input_data payload.
var inputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"text": map[string]any{
			"type":        "string",
			"description": "Topic or question to analyze",
		},
		"parking_context": map[string]any{
			"type":        "object",
			"description": "Optional parking telemetry passed through to the reasoner",
		},
		"expected_outputs": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required": []string{"text"},
}

// InputSchema returns the JSON schema for job input payloads.
func (h *JobHandlers) InputSchema(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"input_schema": inputSchema})
}

// Availability reports whether the orchestrator can admit new work.
func (h *JobHandlers) Availability(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Svc.Availability(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

// StartJob admits a new job awaiting payment.
func (h *JobHandlers) StartJob(w http.ResponseWriter, r *http.Request) {
	var req model.StartJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	resp, err := h.Svc.StartJob(r.Context(), &req)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, resp)
}

// Status reports the live state of a job identified by the job_id query
// parameter.
func (h *JobHandlers) Status(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "validation",
			Err:     errors.New("job_id query parameter is required"),
		})
		return
	}

	resp, err := h.Svc.JobStatus(r.Context(), jobID)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

type provideInputRequest struct {
	JobID     string          `json:"job_id"`
	InputData json.RawMessage `json:"input_data"`
}

// ProvideInput attaches supplementary purchaser data to a job.
func (h *JobHandlers) ProvideInput(w http.ResponseWriter, r *http.Request) {
	var req provideInputRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if err := h.Svc.ProvideInput(r.Context(), req.JobID, req.InputData); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// PaymentWebhook applies a settlement notification from the payment gateway.
func (h *JobHandlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var hook model.PaymentWebhook
	if !DecodeJSON(w, r, &hook) {
		return
	}

	resp, err := h.Svc.HandlePaymentWebhook(r.Context(), hook.JobID, string(hook.Status))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("GET /input_schema", h.InputSchema)
	mux.HandleFunc("GET /availability", h.Availability)
	mux.HandleFunc("POST /start_job", h.StartJob)
	mux.HandleFunc("GET /status", h.Status)
	mux.HandleFunc("POST /provide_input", h.ProvideInput)
	mux.HandleFunc("POST /payment/webhook", h.PaymentWebhook)
}
