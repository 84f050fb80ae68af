// Code generated by hand to stand in for wire_gen.go; DO NOT regenerate
// with `wire` without reconciling this file's Container shape against
// wire.go's first.
package di

import (
	"context"

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

// InitializeContainer builds a fully wired Container from process
// configuration, following wire.go's SuperSet by hand in dependency order.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}
	tracer := ProvideTracer(cfg)

	doc, err := ProvideConfigDocument(cfg)
	if err != nil {
		return nil, err
	}
	domainCfg, err := ProvideDomainConfig(doc)
	if err != nil {
		return nil, err
	}

	clock := ProvideClock()

	persistence, err := ProvidePersistence(ctx, cfg, domainCfg, logger)
	if err != nil {
		return nil, err
	}

	publisher, err := ProvideEventPublisher(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	embedder := ProvideEmbedder()
	generator := ProvideGenerator()

	extractor, err := ProvideExtractor()
	if err != nil {
		return nil, err
	}

	ledgerSvc := ProvideLedgerService(persistence.Ledger, clock, logger)
	detector := ProvideDetector(domainCfg)
	gate := ProvideGate(domainCfg)
	enforcer := ProvideDisclosureEnforcer()
	questioner := ProvideSelfQuestionGenerator(domainCfg)

	flagsReg, err := ProvideFlagRegistry(doc)
	if err != nil {
		return nil, err
	}

	locks, err := ProvideThreadLocks(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	turnLimiter, err := ProvideTurnRateLimiter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	orch := ProvideOrchestrator(
		persistence, embedder, generator, extractor, publisher, ledgerSvc,
		detector, gate, enforcer, questioner, flagsReg, locks, clock, domainCfg, logger,
		tracer, turnLimiter, cfg,
	)

	cache := ProvideInMemoryCache()

	return &Container{
		Config:        cfg,
		Logger:        logger,
		Persistence:   persistence,
		Orchestrator:  orch,
		LedgerService: ledgerSvc,
		Cache:         cache,
		Tracer:        tracer,
	}, nil
}

var _ *zap.Logger // keep the zap import meaningful if Container's field type ever moves
var _ *observability.Tracer
var _ *orchestrator.Orchestrator
