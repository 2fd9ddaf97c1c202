// Package httpapi exposes the reconciliation endpoints over HTTP: the batch
// sync call, the single-item registry upsert and a health probe.
package httpapi

import (
	"context"
	"time"

	"github.com/avaluotech/fieldsync/internal/logging"
	"github.com/avaluotech/fieldsync/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SyncAPI is the service surface the handlers call.
type SyncAPI interface {
	Reconcile(ctx context.Context, peritoID, token string, forms []services.FormInput, evidences []services.EvidenceInput) (*services.BatchOutcome, error)
	RegisterEvidence(ctx context.Context, in services.RegistrationInput) error
}

// NewRouter wires middleware and routes.
func NewRouter(svc SyncAPI, logger logging.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	h := &handler{svc: svc, logger: logger}

	r.Get("/health", h.health)
	r.Post("/sync/datos", h.syncBatch)
	r.Post("/sync/registro", h.registerEvidence)

	return r
}
