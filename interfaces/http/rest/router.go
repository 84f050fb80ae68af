// Package rest wires the demo HTTP shim's routes together: a chi mux plus
// middleware. The HTTP surface is external plumbing around the governance
// core, kept here only so turn ingestion, thread reset, and contradiction
// resolution are runnable end to end.
package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	ledgerapp "groundedmemory/application/ledger"
	"groundedmemory/application/orchestrator"
	"groundedmemory/interfaces/http/rest/handlers"
	appmiddleware "groundedmemory/interfaces/http/rest/middleware"
	apperrors "groundedmemory/pkg/errors"
)

// Router builds the chi mux for the demo shim.
type Router struct {
	orchestrator *orchestrator.Orchestrator
	ledger       *ledgerapp.Service
	logger       *zap.Logger
	enableCORS   bool
}

func NewRouter(o *orchestrator.Orchestrator, ledger *ledgerapp.Service, logger *zap.Logger, enableCORS bool) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{orchestrator: o, ledger: ledger, logger: logger, enableCORS: enableCORS}
}

// Setup builds and returns the configured chi.Mux.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	errorHandler := apperrors.NewErrorHandler(rt.logger, false)

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(errorHandler.Middleware)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(appmiddleware.Logger(rt.logger))

	if rt.enableCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	turnHandler := handlers.NewTurnHandler(rt.orchestrator, rt.logger)
	contradictionHandler := handlers.NewContradictionHandler(rt.ledger, rt.orchestrator, rt.logger)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(appmiddleware.Authenticate())

		v1.Route("/threads/{threadID}", func(thread chi.Router) {
			thread.Post("/turns", turnHandler.IngestTurn)
			thread.Post("/reset", turnHandler.ResetThread)

			thread.Get("/contradictions", contradictionHandler.ListOpen)
			thread.Get("/contradictions/summary", contradictionHandler.Summary)
			thread.Post("/contradictions/{contradictionID}/resolve", contradictionHandler.Resolve)
		})
	})

	return r
}
