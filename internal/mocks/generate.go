// Package mocks provides mock implementations for testing the orchestration services.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the
// external collaborator ports. To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	gateway := mocks.NewMockPaymentGateway(ctrl)
//	gateway.EXPECT().Health(gomock.Any()).Return(nil)
//
// In-memory repository doubles live in the stores subpackage; they are
// hand-written because stateful fakes read better than expectation chains.
package mocks

// Generate mocks for the external collaborator ports from internal/core.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=collaborators_mock.go github.com/parkngo/parkngo-api/internal/core PaymentGateway,AgentDirectory,Reasoner,VehicleDetector
