//go:build wireinject
// +build wireinject

// This file is the google/wire injector template: it documents the
// provider graph but is excluded from normal compilation by the
// wireinject build tag. wire_gen.go carries the generated equivalent.
package di

import (
	"context"

	"github.com/google/wire"
	"go.uber.org/zap"

	ledgerapp "groundedmemory/application/ledger"
	"groundedmemory/application/orchestrator"
	"groundedmemory/infrastructure/config"
	"groundedmemory/pkg/observability"
)

// Container holds every collaborator the engine's entry points need:
// the single Orchestrator plus its cross-cutting concerns.
// LedgerService is exposed alongside Orchestrator so transport-layer code
// (the demo HTTP shim's contradiction handler) can read ledger state
// without widening Orchestrator's own surface for read-only queries.
type Container struct {
	Config        *config.Config
	Logger        *zap.Logger
	Persistence   *Persistence
	Orchestrator  *orchestrator.Orchestrator
	LedgerService *ledgerapp.Service
	Cache         *InMemoryCache
	Tracer        *observability.Tracer
}

// SuperSet is the full provider set InitializeContainer builds from.
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideTracer,
	ProvideConfigDocument,
	ProvideDomainConfig,
	ProvideClock,
	ProvidePersistence,
	ProvideEventPublisher,
	ProvideEmbedder,
	ProvideGenerator,
	ProvideExtractor,
	ProvideLedgerService,
	ProvideDetector,
	ProvideGate,
	ProvideDisclosureEnforcer,
	ProvideSelfQuestionGenerator,
	ProvideFlagRegistry,
	ProvideThreadLocks,
	ProvideTurnRateLimiter,
	ProvideOrchestrator,
	ProvideInMemoryCache,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer builds a fully wired Container from process
// configuration. wire_gen.go provides the real implementation this
// signature calls in a normal (non-wireinject) build.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // wire will replace this
}
