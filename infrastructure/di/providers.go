// Package di wires the governance engine's components into a runnable
// Orchestrator: small provider functions feeding a wireinject-tagged
// injector (wire.go). One MemoryStore/Ledger pair is selected by storage
// backend, plus the embedder, extractor, detector, gates, disclosure
// enforcer, self-question generator, flag registry, thread lock registry
// and event publisher the orchestrator's constructor takes directly; no
// command/query dispatch layer sits between a caller and the pipeline.
package di

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/google/uuid"

	"groundedmemory/application/detection"
	"groundedmemory/application/disclosure"
	"groundedmemory/application/embedding"
	"groundedmemory/application/extraction"
	"groundedmemory/application/flags"
	"groundedmemory/application/gates"
	"groundedmemory/application/generation"
	ledgerapp "groundedmemory/application/ledger"
	"groundedmemory/application/orchestrator"
	"groundedmemory/application/ports"
	"groundedmemory/application/selfquestion"
	domainconfig "groundedmemory/domain/config"
	"groundedmemory/infrastructure/config"
	"groundedmemory/infrastructure/messaging"
	"groundedmemory/infrastructure/messaging/eventbridge"
	"groundedmemory/infrastructure/persistence/dynamodb"
	"groundedmemory/infrastructure/persistence/memory"
	"groundedmemory/infrastructure/persistence/sqlite"
	"groundedmemory/infrastructure/threadlock"
	"groundedmemory/pkg/auth"
	"groundedmemory/pkg/common"
	"groundedmemory/pkg/observability"
)

// ProvideLogger creates a new logger instance, gated on the
// development/production environment split.
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ProvideTracer constructs the X-Ray tracer that ProvideOrchestrator
// attaches to the orchestrator when cfg.EnableTracing is set.
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer(fmt.Sprintf("groundedmemory-%s", cfg.Environment))
}

// ProvideAWSConfig loads the AWS SDK config used by the dynamodb storage
// backend and the EventBridge publisher. Only called when either is
// actually selected.
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
}

// ProvideDynamoDBClient creates a DynamoDB client from a loaded AWS config.
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client from a loaded AWS
// config.
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideConfigDocument loads the governance YAML document named by
// cfg.ConfigDocumentPath once, so ProvideDomainConfig and
// ProvideFlagRegistry both overlay the same parsed document rather than
// re-reading the file.
func ProvideConfigDocument(cfg *config.Config) (*config.Document, error) {
	return config.LoadDocument(cfg.ConfigDocumentPath)
}

// ProvideDomainConfig merges the governance document's thresholds/weights
// onto the compiled-in defaults.
func ProvideDomainConfig(doc *config.Document) (*domainconfig.DomainConfig, error) {
	merged := doc.Merge(domainconfig.DefaultDomainConfig())
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("di: merged domain config invalid: %w", err)
	}
	return merged, nil
}

// ProvideClock returns the process-wide wall clock. Tests construct their
// own common.FixedClock/common.SteppingClock directly rather than going
// through this provider.
func ProvideClock() ports.Clock {
	return common.SystemClock{}
}

// Persistence is the paired MemoryStore/Ledger this engine always wires
// together, since both must agree on which backend's on-disk/remote state
// a thread's data lives in.
type Persistence struct {
	Store  ports.MemoryStore
	Ledger ports.Ledger
}

// ProvidePersistence selects and constructs the MemoryStore/Ledger pair
// named by cfg.StorageBackend. This is a single function rather than one
// provider per backend because exactly one branch ever runs per process;
// splitting it across three wire.NewSet entries would force the injector
// to build AWS clients even for the memory/sqlite backends.
func ProvidePersistence(ctx context.Context, cfg *config.Config, domainCfg *domainconfig.DomainConfig, logger *zap.Logger) (*Persistence, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendMemory:
		return &Persistence{
			Store:  memory.New(domainCfg),
			Ledger: memory.NewLedger(),
		}, nil

	case config.StorageBackendDynamoDB:
		awsCfg, err := ProvideAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("di: loading aws config: %w", err)
		}
		client := ProvideDynamoDBClient(awsCfg)
		return &Persistence{
			Store:  dynamodb.NewMemoryStore(client, cfg.MemoryTableName, domainCfg, logger),
			Ledger: dynamodb.NewLedger(client, cfg.LedgerTableName, logger),
		}, nil

	case config.StorageBackendSQLite:
		store := sqlite.NewMemoryStore(cfg.SQLitePath, domainCfg)
		if err := store.Init(ctx); err != nil {
			return nil, fmt.Errorf("di: initializing sqlite memory store: %w", err)
		}
		ledger := sqlite.NewLedger(cfg.SQLitePath)
		if err := ledger.Init(ctx); err != nil {
			return nil, fmt.Errorf("di: initializing sqlite ledger: %w", err)
		}
		return &Persistence{Store: store, Ledger: ledger}, nil

	default:
		return nil, fmt.Errorf("di: unknown storage backend %q", cfg.StorageBackend)
	}
}

// ProvideEventPublisher wires the engine's own-event sink: EventBridge for
// the dynamodb backend, where more than one process may plausibly run
// against the same table, or the structured-logging publisher otherwise
// (single-process deployments get structured logging rather than a broker
// nothing drains).
func ProvideEventPublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.EventPublisher, error) {
	if cfg.StorageBackend != config.StorageBackendDynamoDB {
		return messaging.NewLogPublisher(logger), nil
	}
	awsCfg, err := ProvideAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("di: loading aws config: %w", err)
	}
	client := ProvideEventBridgeClient(awsCfg)
	return eventbridge.NewPublisher(client, cfg.EventBusName, logger), nil
}

// ProvideTurnRateLimiter throttles IngestTurn per thread id, guarding the
// embedder/generator calls a flood of turns on one thread would otherwise
// hammer. Grounded on pkg/auth/rate_limiter.go's IPRateLimiter/
// UserRateLimiter wrapper shape (here keyed by thread id instead of
// IP/user) for the memory/sqlite backends, and on
// pkg/auth/distributed_rate_limiter.go's DynamoDB-backed limiter - the same
// "state survives across Lambda invocations" rationale that motivated
// infrastructure/persistence/dynamodb/distributed_lock.go - when the
// dynamodb backend is selected, so the limit holds across concurrent
// Lambda invocations rather than resetting per cold start.
func ProvideTurnRateLimiter(ctx context.Context, cfg *config.Config) (auth.RateLimiter, error) {
	if cfg.StorageBackend != config.StorageBackendDynamoDB {
		return auth.NewThreadRateLimiter(cfg.MaxTurnsPerMinute), nil
	}
	awsCfg, err := ProvideAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("di: loading aws config: %w", err)
	}
	client := ProvideDynamoDBClient(awsCfg)
	return auth.NewDistributedRateLimiter(client, cfg.LedgerTableName, cfg.MaxTurnsPerMinute, time.Minute, "THREAD"), nil
}

// ProvideEmbedder constructs the reference embedder. Swapping in a
// real model means replacing this one provider.
func ProvideEmbedder() ports.Embedder {
	return embedding.NewHashingEmbedder()
}

// ProvideGenerator constructs the reference generator. Swapping in a
// real LLM client means replacing this one provider.
func ProvideGenerator() ports.Generator {
	return generation.NewTemplateGenerator()
}

// ProvideExtractor constructs the fact extractor from its compiled-in
// slot definitions.
func ProvideExtractor() (ports.FactExtractor, error) {
	return extraction.New()
}

// ProvideLedgerService wraps the selected Ledger backend in the FSM
// service.
func ProvideLedgerService(store ports.Ledger, clock ports.Clock, logger *zap.Logger) *ledgerapp.Service {
	return ledgerapp.New(store, clock, logger)
}

// ProvideDetector constructs the contradiction detector.
func ProvideDetector(cfg *domainconfig.DomainConfig) *detection.Detector {
	return detection.New(cfg)
}

// ProvideGate constructs the reconstruction gates.
func ProvideGate(cfg *domainconfig.DomainConfig) *gates.Gate {
	return gates.New(cfg)
}

// ProvideDisclosureEnforcer constructs the disclosure enforcer.
func ProvideDisclosureEnforcer() *disclosure.Enforcer {
	return disclosure.New()
}

// ProvideSelfQuestionGenerator constructs the clarifying-question generator.
func ProvideSelfQuestionGenerator(cfg *domainconfig.DomainConfig) *selfquestion.Generator {
	return selfquestion.New(cfg)
}

// ProvideFlagRegistry constructs the feature flag registry, layering
// the configuration document's flag overrides onto the compiled-in
// defaults.
func ProvideFlagRegistry(doc *config.Document) (*flags.Registry, error) {
	opts := make([]flags.Option, 0, len(doc.FlagOverrides))
	for name, value := range doc.FlagOverrides {
		opts = append(opts, flags.WithOverride(flags.Name(name), value))
	}
	return flags.New(opts...)
}

// ProvideThreadLocks constructs the per-thread lock the orchestrator
// serializes turns with: the in-process Registry for the memory/sqlite
// backends, or the DynamoDB-conditional-write DistributedRegistry for the
// dynamodb backend, where more than one orchestrator process may serve
// the same thread and the serialization guarantee must hold across them.
// The owner id is generated per process instance.
func ProvideThreadLocks(ctx context.Context, cfg *config.Config, logger *zap.Logger) (threadlock.Locker, error) {
	if cfg.StorageBackend != config.StorageBackendDynamoDB {
		return threadlock.NewRegistry(), nil
	}
	awsCfg, err := ProvideAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("di: loading aws config: %w", err)
	}
	client := ProvideDynamoDBClient(awsCfg)
	service := dynamodb.NewDistributedLock(client, cfg.MemoryTableName, logger)
	return threadlock.NewDistributedRegistry(service, uuid.NewString(), logger), nil
}

// ProvideOrchestrator wires every collaborator above into the turn
// pipeline entry point. A non-nil tracer is attached via SetTracer so every
// turn runs inside one X-Ray subsegment; cfg.EnableTracing off yields a nil
// tracer and IngestTurn runs untraced.
func ProvideOrchestrator(
	persistence *Persistence,
	embedder ports.Embedder,
	generator ports.Generator,
	extractor ports.FactExtractor,
	publisher ports.EventPublisher,
	ledgerSvc *ledgerapp.Service,
	detector *detection.Detector,
	gate *gates.Gate,
	enforcer *disclosure.Enforcer,
	questioner *selfquestion.Generator,
	flagsReg *flags.Registry,
	locks threadlock.Locker,
	clock ports.Clock,
	domainCfg *domainconfig.DomainConfig,
	logger *zap.Logger,
	tracer *observability.Tracer,
	turnLimiter auth.RateLimiter,
	cfg *config.Config,
) *orchestrator.Orchestrator {
	orch := orchestrator.New(
		persistence.Store,
		ledgerSvc,
		embedder,
		generator,
		extractor,
		publisher,
		detector,
		gate,
		enforcer,
		questioner,
		flagsReg,
		locks,
		clock,
		domainCfg,
		logger,
	)
	if cfg.EnableTracing {
		orch.SetTracer(tracer)
	}
	orch.SetTurnRateLimiter(turnLimiter)
	return orch
}

// ProvideInMemoryCache creates the generic TTL cache exposed as
// Container.Cache; no component in this module reads from it.
// Domain-agnostic; no per-deployment rewiring needed.
func ProvideInMemoryCache() *InMemoryCache {
	return NewInMemoryCache()
}
