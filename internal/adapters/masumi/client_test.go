package masumi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkngo/parkngo-api/internal/core"
	apperrors "github.com/parkngo/parkngo-api/internal/errors"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key", Network: "preprod"})
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/health", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		}))
		assert.NoError(t, client.Health(context.Background()))
	})

	t.Run("degraded status", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "syncing"})
		}))
		err := client.Health(context.Background())
		require.Error(t, err)
		assert.True(t, apperrors.IsExternal(err))
	})

	t.Run("server error", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		err := client.Health(context.Background())
		require.Error(t, err)
		assert.True(t, apperrors.IsExternal(err))
	})
}

func TestCreateCharge(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/charges", r.URL.Path)

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "alice", body["payer_id"])
			assert.Equal(t, float64(300_000), body["amount"])
			assert.Equal(t, "preprod", body["network"])

			_ = json.NewEncoder(w).Encode(map[string]any{
				"reference": "tx-001",
				"amount":    300_000,
			})
		}))

		receipt, err := client.CreateCharge(context.Background(), core.ChargeRequest{
			PayerID:  "alice",
			Amount:   300_000,
			Unit:     "lovelace",
			StepName: "spot_finder",
		})
		require.NoError(t, err)
		assert.Equal(t, "tx-001", receipt.Reference)
		assert.Equal(t, int64(300_000), receipt.Amount)
		assert.False(t, receipt.ChargedAt.IsZero())
	})

	t.Run("missing payer", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("no request expected")
		}))
		_, err := client.CreateCharge(context.Background(), core.ChargeRequest{Amount: 1})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("missing reference", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{})
		}))
		_, err := client.CreateCharge(context.Background(), core.ChargeRequest{
			PayerID: "alice", Amount: 1, Unit: "lovelace",
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsExternal(err))
	})
}

func TestPaymentStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/job-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "completed"})
	}))

	status, err := client.PaymentStatus(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", status)
}
