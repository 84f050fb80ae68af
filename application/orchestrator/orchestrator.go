// Package orchestrator implements the eleven-step per-turn pipeline tying
// together fact extraction, retrieval, contradiction detection and
// lifecycle, reconstruction gates, disclosure enforcement, and
// self-questioning. The pipeline is a single per-thread-locked function
// with numbered steps and per-step error wrapping.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"groundedmemory/application/detection"
	"groundedmemory/application/disclosure"
	"groundedmemory/application/flags"
	"groundedmemory/application/gates"
	ledgerapp "groundedmemory/application/ledger"
	"groundedmemory/application/ports"
	"groundedmemory/application/selfquestion"
	"groundedmemory/domain/config"
	"groundedmemory/domain/contradiction"
	"groundedmemory/domain/events"
	"groundedmemory/domain/facts"
	"groundedmemory/domain/ids"
	"groundedmemory/domain/memory"
	"groundedmemory/infrastructure/threadlock"
	"groundedmemory/pkg/auth"
	"groundedmemory/pkg/extensions"
	"groundedmemory/pkg/observability"
)

// RefusalReason names why a turn failed hard instead of producing a
// response. A refusal raised before step 4's insert (rate-limit, embedder
// or earlier storage failures) leaves the memory store untouched; a refusal
// raised after it (a generator failure or a later storage failure) does not
// remove the memory that step 4 already inserted.
type RefusalReason string

const (
	RefusalNone                 RefusalReason = ""
	RefusalStorageUnavailable   RefusalReason = "storage_unavailable"
	RefusalEmbedderUnavailable  RefusalReason = "embedder_unavailable"
	RefusalGeneratorUnavailable RefusalReason = "generator_unavailable"
	RefusalRateLimited          RefusalReason = "rate_limited"
)

// ScoreBreakdown surfaces the sub-gate scores a turn report carries.
type ScoreBreakdown struct {
	Intent    float64
	Memory    float64
	Grounding float64
	Composite float64
}

// TurnReport is the ephemeral per-turn result the orchestrator emits.
// It is never persisted; callers log or discard it.
type TurnReport struct {
	Grounded             bool
	GateOutcome          gates.Outcome
	ResponseType         gates.ResponseType
	ResponseText         string
	ContradictionsNew    []ids.ContradictionID
	ContradictionsActive int
	CaveatRequired       bool
	CaveatPresent        bool
	ClarifyingQuestion   string
	RetrievedMemoryIDs   []string
	Scores               ScoreBreakdown
	RefusalReason        RefusalReason
}

// Refused reports whether the turn failed hard rather than producing any
// gate outcome at all.
func (r *TurnReport) Refused() bool {
	return r.RefusalReason != RefusalNone
}

// TurnOptions carries the per-turn inputs beyond the raw user text.
type TurnOptions struct {
	// StoreAssertion tells the orchestrator to insert the user's turn as a
	// new memory (step 4). Read-only queries ("where do I work?") pass false.
	StoreAssertion bool
}

const (
	defaultUserTrust      = 0.9
	defaultUserConfidence = 0.9
	defaultMaxTokens      = 512
)

// Orchestrator wires every application-layer service into the turn
// pipeline. Every dependency is a port or an application service, never a
// concrete infrastructure type.
type Orchestrator struct {
	memStore  ports.MemoryStore
	ledger    *ledgerapp.Service
	embedder  ports.Embedder
	generator ports.Generator
	extractor ports.FactExtractor
	publisher ports.EventPublisher

	detector   *detection.Detector
	gate       *gates.Gate
	enforcer   *disclosure.Enforcer
	questioner *selfquestion.Generator
	flags      *flags.Registry
	locks      threadlock.Locker
	clock      ports.Clock
	cfg        *config.DomainConfig
	logger     *zap.Logger

	mu           sync.Mutex
	turnCounters map[string]int

	// hooks is an optional observation point for operators extending the
	// pipeline (metrics, audit sinks) without touching core logic. Nil by
	// default; set via SetHooks. Every call site treats it as best-effort.
	hooks *extensions.HookManager

	// tracer wraps each turn in an X-Ray segment when set. Nil by default
	// (tracing off); set via SetTracer.
	tracer *observability.Tracer

	// turnLimiter throttles IngestTurn per thread id. Nil by default (no
	// throttling); set via SetTurnRateLimiter.
	turnLimiter auth.RateLimiter
}

// SetHooks attaches a hook manager the pipeline notifies at key lifecycle
// points (contradiction detected, contradiction resolved). Passing nil disables
// notification.
func (o *Orchestrator) SetHooks(hooks *extensions.HookManager) {
	o.hooks = hooks
}

// SetTracer attaches the tracer IngestTurn wraps its per-turn work in.
// Passing nil disables tracing.
func (o *Orchestrator) SetTracer(tracer *observability.Tracer) {
	o.tracer = tracer
}

// SetTurnRateLimiter attaches the per-thread turn rate limiter IngestTurn
// checks before doing any embedder/generator work. Passing nil disables
// throttling.
func (o *Orchestrator) SetTurnRateLimiter(limiter auth.RateLimiter) {
	o.turnLimiter = limiter
}

// New constructs an Orchestrator from its collaborating ports and
// application services. A nil publisher is valid: event publishing is
// best-effort and never fails a turn.
func New(
	memStore ports.MemoryStore,
	ledger *ledgerapp.Service,
	embedder ports.Embedder,
	generator ports.Generator,
	extractor ports.FactExtractor,
	publisher ports.EventPublisher,
	detector *detection.Detector,
	gate *gates.Gate,
	enforcer *disclosure.Enforcer,
	questioner *selfquestion.Generator,
	flagsReg *flags.Registry,
	locks threadlock.Locker,
	clock ports.Clock,
	cfg *config.DomainConfig,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &Orchestrator{
		memStore:     memStore,
		ledger:       ledger,
		embedder:     embedder,
		generator:    generator,
		extractor:    extractor,
		publisher:    publisher,
		detector:     detector,
		gate:         gate,
		enforcer:     enforcer,
		questioner:   questioner,
		flags:        flagsReg,
		locks:        locks,
		clock:        clock,
		cfg:          cfg,
		logger:       logger,
		turnCounters: make(map[string]int),
	}
}

// slotRecorder is an optional capability a MemoryStore backend may support:
// associating an inserted memory with the slot it was extracted for.
// Checked via interface assertion at the call site rather than widening
// ports.MemoryStore for every backend.
type slotRecorder interface {
	RecordSlot(threadID ids.ThreadID, slot facts.Slot, memID ids.MemoryID)
}

// IngestTurn runs the full eleven-step pipeline for one user turn on one
// thread. Exactly one IngestTurn runs per thread at a time; callers on
// other threads proceed concurrently. When a tracer is attached
// (SetTracer), the whole turn runs inside one X-Ray subsegment annotated
// with the thread id.
func (o *Orchestrator) IngestTurn(ctx context.Context, threadID ids.ThreadID, userText string, opts TurnOptions) (*TurnReport, error) {
	if o.tracer == nil {
		return o.ingestTurn(ctx, threadID, userText, opts)
	}
	var report *TurnReport
	err := o.tracer.TraceFunction(ctx, "ingest_turn", func(ctx context.Context) error {
		o.tracer.AddAnnotation(ctx, "thread_id", threadID.String())
		r, err := o.ingestTurn(ctx, threadID, userText, opts)
		report = r
		if r != nil && r.Refused() {
			o.tracer.AddAnnotation(ctx, "refusal_reason", string(r.RefusalReason))
		}
		return err
	})
	return report, err
}

// ingestTurn is the untraced pipeline body IngestTurn wraps.
func (o *Orchestrator) ingestTurn(ctx context.Context, threadID ids.ThreadID, userText string, opts TurnOptions) (*TurnReport, error) {
	handle, err := o.locks.Acquire(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	defer handle.Release()

	if o.turnLimiter != nil {
		allowed, err := o.turnLimiter.Allow(ctx, threadID.String())
		if err != nil {
			o.logger.Warn("turn rate limiter check failed; allowing turn", zap.Error(err))
		} else if !allowed {
			return o.refuse(RefusalRateLimited), nil
		}
	}

	turnNumber := o.nextTurn(threadID)
	now := o.clock.Now()

	// Step 2 runs before step 1 so resolution has facts to match against;
	// resolving open contradictions is the first *effect* of the turn, not
	// the first computation.
	userFacts := o.extractor.Extract(userText)

	// Step 1: resolve open contradictions against the new assertion.
	if o.flags == nil || o.flags.Enabled(flags.EnableContradictionLifecycle) {
		if _, err := o.ledger.ResolveFromAssertion(ctx, threadID, flattenFacts(userFacts), ids.MemoryID{}); err != nil {
			return o.refuse(RefusalStorageUnavailable), nil
		}
	}

	queryVector, modelID, err := o.embedder.Embed(ctx, userText)
	if err != nil {
		return o.refuse(RefusalEmbedderUnavailable), nil
	}

	// Step 3: retrieve with deprecated memories excluded.
	retrieved, err := o.memStore.Retrieve(ctx, ports.RetrievalQuery{
		ThreadID:          threadID,
		QueryVector:       queryVector,
		K:                 o.cfg.DefaultRetrievalK,
		MinTrust:          o.cfg.MinTrustFloor,
		ExcludeDeprecated: true,
		Ledger:            o.ledger,
	})
	if err != nil {
		return o.refuse(RefusalStorageUnavailable), nil
	}

	// Snapshot the canonical prior memory for every slot the user's new
	// assertion touches BEFORE step 4 writes a new memory under those same
	// slots. Without this, a slot the detector looks up fresh after the
	// insert would see the turn's own just-written memory as its own
	// "prior" (same value, same turn) and a genuine correction against an
	// earlier turn's memory would never be compared against it. Skipped
	// entirely when contradiction detection is flagged off.
	var priorSnapshot map[facts.Slot][]*memory.Memory
	if o.flags == nil || o.flags.Enabled(flags.EnableContradictionDetection) {
		priorSnapshot = make(map[facts.Slot][]*memory.Memory, len(userFacts))
		for slot := range userFacts {
			priors, err := o.memStore.GetBySlot(ctx, threadID, slot)
			if err != nil {
				return o.refuse(RefusalStorageUnavailable), nil
			}
			priorSnapshot[slot] = priors
		}
	}

	// Step 4: insert the user's own assertion as a new memory, if this turn
	// stores information. The source trust cap is enforced by memory.New
	// itself.
	if opts.StoreAssertion && userText != "" {
		m, err := memory.New(threadID, userText, queryVector, memory.SourceUser, defaultUserTrust, defaultUserConfidence, modelID, now)
		if err != nil {
			return o.refuse(RefusalStorageUnavailable), nil
		}
		memID, err := o.memStore.Insert(ctx, m)
		if err != nil {
			return o.refuse(RefusalStorageUnavailable), nil
		}
		if rec, ok := o.memStore.(slotRecorder); ok {
			for slot := range userFacts {
				rec.RecordSlot(threadID, slot, memID)
			}
		}
		o.publish(ctx, m.UncommittedEvents())
		m.MarkEventsCommitted()
	}

	openBefore, err := o.ledger.FindOpen(ctx, threadID)
	if err != nil {
		return o.refuse(RefusalStorageUnavailable), nil
	}

	// Step 5: generate a candidate output, pre-injecting any disclosure the
	// enforcer requires given what is about to be retrieved context.
	required := o.enforcer.RequiredDisclosures(retrieved, openBefore)
	promptContext := o.enforcer.Inject(memoryTexts(retrieved), required)
	candidateText, err := o.generator.Generate(ctx, buildPrompt(userText, promptContext), ports.GenerationConstraints{
		MaxTokens:        defaultMaxTokens,
		RequiredCaveats:  disclosurePhrases(required),
		RetrievedContext: promptContext,
	})
	if err != nil {
		report := o.refuse(RefusalGeneratorUnavailable)
		report.ClarifyingQuestion = "I'm having trouble putting together a response right now — could you try again in a moment?"
		return report, nil
	}

	// Step 6: extract facts from the candidate output.
	candidateFacts := o.extractor.Extract(candidateText)

	// Step 7: run the detector against retrieved memories and prior facts.
	// The user's own new assertion is the primary signal for a detected
	// contradiction: it is what actually carries correction/temporal
	// markers ("actually", "now", "moved") and must fire even when the
	// generator's candidate text doesn't echo the correction verbatim. The
	// candidate output is checked too, as a
	// lower-trust secondary source, but never displaces the user's facts
	// for a slot both happen to touch.
	var newContradictions []ids.ContradictionID
	var firedRecords []*contradiction.Record
	if o.flags == nil || o.flags.Enabled(flags.EnableContradictionDetection) {
		sources := []factSource{{
			facts:      userFacts,
			text:       userText,
			vector:     queryVector,
			source:     memory.SourceUser,
			trust:      defaultUserTrust,
			confidence: defaultUserConfidence,
		}}
		if candidateVector, _, embErr := o.embedder.Embed(ctx, candidateText); embErr == nil {
			sources = append(sources, factSource{
				facts:      candidateFacts,
				text:       candidateText,
				vector:     candidateVector,
				source:     memory.SourceLLM,
				trust:      o.cfg.LLMOutputTrustCap,
				confidence: o.cfg.LLMOutputTrustCap,
			})
		} else {
			o.logger.Warn("failed to embed candidate output for detection; skipping candidate-side check", zap.Error(embErr))
		}

		candidates, err := o.buildCandidates(ctx, threadID, sources, priorSnapshot)
		if err != nil {
			return o.refuse(RefusalStorageUnavailable), nil
		}
		outcomes := o.detector.Detect(threadID, candidates, now)
		for _, outc := range outcomes {
			if !outc.Fired {
				continue
			}
			// Step 8: record every new contradiction before any trust
			// adjustment of the conflicting pair.
			id, err := o.ledger.Record(ctx, outc.Record)
			if err != nil {
				return o.refuse(RefusalStorageUnavailable), nil
			}
			newContradictions = append(newContradictions, id)
			firedRecords = append(firedRecords, outc.Record)
			if o.hooks != nil {
				o.hooks.ExecuteAsync(ctx, extensions.HookContradictionDetected, extensions.ContradictionHookData{
					ThreadID:        threadID.String(),
					ContradictionID: id.String(),
					Slot:            string(outc.Record.Slot()),
				})
			}
		}
	}

	openAfter := append(append([]*contradiction.Record{}, openBefore...), firedRecords...)

	// Step 9: run the reconstruction gates.
	intent := inferIntent(userText)
	gateOutcome := gates.GateOutcome{Outcome: gates.OutcomePassGrounded, ResponseType: gates.ResponseExplanatory}
	if o.flags == nil || o.flags.Enabled(flags.EnableReconstructionGates) {
		gateOutcome = o.gate.Evaluate(gates.Input{
			UserText:          userText,
			UserIntent:        intent,
			CandidateOutput:   candidateText,
			RetrievedMemories: retrieved,
			NewFacts:          candidateFacts,
			Contradictions:    openAfter,
		})
	}

	// Step 10: post-verify disclosure and, on failure, retry once or fall
	// back to a clarifying question.
	finalText := candidateText
	requiredPost := o.enforcer.RequiredDisclosures(retrieved, openAfter)
	caveatOutcomes := o.enforcer.Verify(finalText, requiredPost)
	missing := anyMissing(caveatOutcomes)

	if missing && (o.flags == nil || o.flags.Enabled(flags.EnableDisclosurePolicy)) {
		retryText, retryErr := o.generator.Generate(ctx, buildPrompt(userText, o.enforcer.Inject(promptContext, requiredPost)), ports.GenerationConstraints{
			MaxTokens:        defaultMaxTokens,
			RequiredCaveats:  disclosurePhrases(requiredPost),
			RetrievedContext: promptContext,
		})
		if retryErr == nil {
			caveatOutcomes = o.enforcer.Verify(retryText, requiredPost)
			if !anyMissing(caveatOutcomes) {
				finalText = retryText
				missing = false
			}
		}
	}

	clarifying := ""
	if missing && (o.flags == nil || o.flags.Enabled(flags.EnableSelfQuestioning)) {
		clarifying = o.questionForFailure(threadID, turnNumber, gateOutcome, retrieved, requiredPost)
		if clarifying != "" {
			finalText = clarifying
			gateOutcome.ResponseType = gates.ResponseClarification
		}
	} else if !gateOutcome.Passed() && (o.flags == nil || o.flags.Enabled(flags.EnableSelfQuestioning)) {
		clarifying = o.questionForFailure(threadID, turnNumber, gateOutcome, retrieved, requiredPost)
	}

	memIDs := make([]string, 0, len(retrieved))
	for _, sm := range retrieved {
		memIDs = append(memIDs, sm.Memory.ID().String())
	}

	// Step 11: emit the turn report.
	return &TurnReport{
		Grounded:             gateOutcome.Outcome == gates.OutcomePassGrounded,
		GateOutcome:          gateOutcome.Outcome,
		ResponseType:         gateOutcome.ResponseType,
		ResponseText:         finalText,
		ContradictionsNew:    newContradictions,
		ContradictionsActive: len(openAfter),
		CaveatRequired:       len(requiredPost) > 0,
		CaveatPresent:        !missing,
		ClarifyingQuestion:   clarifying,
		RetrievedMemoryIDs:   memIDs,
		Scores:               scoreBreakdown(gateOutcome),
		RefusalReason:        RefusalNone,
	}, nil
}

// ResetTarget names which part of a thread's state ResetThread clears.
// This entry point is destructive and intended for test harnesses,
// never for production turn handling.
type ResetTarget string

const (
	ResetMemory ResetTarget = "memory"
	ResetLedger ResetTarget = "ledger"
	ResetAll    ResetTarget = "all"
)

// ResetThread is a
// destructive clear of a thread's memory store, ledger, or both, used by
// test harnesses between scenarios. It also clears the thread's in-process
// turn counter and disclosure-budget state so a reused thread id behaves
// like a fresh one.
func (o *Orchestrator) ResetThread(ctx context.Context, threadID ids.ThreadID, target ResetTarget) error {
	handle, err := o.locks.Acquire(ctx, threadID)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	defer handle.Release()

	if target == ResetMemory || target == ResetAll {
		if err := o.memStore.Reset(ctx, threadID); err != nil {
			return fmt.Errorf("orchestrator: reset memory: %w", err)
		}
	}
	if target == ResetLedger || target == ResetAll {
		if err := o.ledger.Reset(ctx, threadID); err != nil {
			return fmt.Errorf("orchestrator: reset ledger: %w", err)
		}
	}

	o.mu.Lock()
	delete(o.turnCounters, threadID.String())
	o.mu.Unlock()
	if o.questioner != nil {
		// The empty slot holds the budget of non-contradiction questions.
		o.questioner.Reset(threadID.String(), "")
		for _, slot := range facts.KnownSlots {
			o.questioner.Reset(threadID.String(), slot)
		}
	}

	return nil
}

// ResolveContradiction is the explicit resolution entry point: a
// caller-driven resolution event distinct from the per-turn ResolveFromAssertion
// inference. Acquires the thread lock since a resolution mutates ledger
// state concurrently with any in-flight turn on the same thread.
func (o *Orchestrator) ResolveContradiction(ctx context.Context, threadID ids.ThreadID, contradictionID ids.ContradictionID, method string, winningSide ids.MemoryID) error {
	handle, err := o.locks.Acquire(ctx, threadID)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	defer handle.Release()

	if err := o.ledger.ResolveContradiction(ctx, threadID, contradictionID, method, winningSide); err != nil {
		return err
	}
	if o.hooks != nil {
		o.hooks.ExecuteAsync(ctx, extensions.HookContradictionResolved, extensions.ContradictionHookData{
			ThreadID:        threadID.String(),
			ContradictionID: contradictionID.String(),
			Method:          method,
		})
	}
	return nil
}

func (o *Orchestrator) refuse(reason RefusalReason) *TurnReport {
	o.logger.Error("turn refused", zap.String("reason", string(reason)))
	return &TurnReport{RefusalReason: reason}
}

// publish hands an aggregate's uncommitted events to the publisher,
// logging but not failing the turn on a publish error (events can be
// retried out of band, mirroring create_node_orchestrator.go's policy).
func (o *Orchestrator) publish(ctx context.Context, evts []events.DomainEvent) {
	if o.publisher == nil || len(evts) == 0 {
		return
	}
	if err := o.publisher.PublishBatch(ctx, evts); err != nil {
		o.logger.Error("failed to publish domain events", zap.Error(err), zap.Int("event_count", len(evts)))
	}
}

func (o *Orchestrator) nextTurn(threadID ids.ThreadID) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.turnCounters[threadID.String()]++
	return o.turnCounters[threadID.String()]
}

// factSource is one origin of newly-extracted facts the detector should
// compare against canonical prior values: the user's own new assertion, or
// the generator's candidate output. Each carries its own real embedding,
// source tag, and trust/confidence, since the detector's low-trust filter
// and fallback-drift rule depend on that provenance being genuine rather
// than aliased to whatever the prior memory happened to hold.
type factSource struct {
	facts      map[facts.Slot][]facts.ExtractedFact
	text       string
	vector     memory.Vector
	source     memory.Source
	trust      float64
	confidence float64
}

// buildCandidates turns newly-extracted facts from one or more sources into
// detector candidates by looking up the canonical prior memory for the same
// slot, if any. Sources are processed in order and a slot already covered
// by an earlier source is skipped in later ones, so the user's own
// assertion (checked first) takes priority over the generator's candidate
// output touching the same slot.
// priorSnapshot carries the canonical prior memory per slot as it stood
// before this turn's own writes, for slots already looked up once (the
// user's own assertion slots, snapshotted before step 4's insert). A slot
// absent from the snapshot (e.g. one only the candidate output touches) is
// looked up fresh, since nothing was written under it this turn.
func (o *Orchestrator) buildCandidates(ctx context.Context, threadID ids.ThreadID, sources []factSource, priorSnapshot map[facts.Slot][]*memory.Memory) ([]detection.Candidate, error) {
	var out []detection.Candidate
	seen := make(map[facts.Slot]bool)
	for _, src := range sources {
		for slot, matches := range src.facts {
			if len(matches) == 0 || seen[slot] {
				continue
			}
			newFact := matches[0]

			priors, ok := priorSnapshot[slot]
			if !ok {
				var err error
				priors, err = o.memStore.GetBySlot(ctx, threadID, slot)
				if err != nil {
					return nil, err
				}
			}
			if len(priors) == 0 {
				continue
			}
			prior := priors[0]
			priorFacts := o.extractor.Extract(prior.Text())
			priorMatches, ok := priorFacts[slot]
			if !ok || len(priorMatches) == 0 {
				continue
			}

			seen[slot] = true
			out = append(out, detection.Candidate{
				Slot:            slot,
				NewFact:         newFact,
				NewMemoryID:     ids.NewMemoryID(),
				NewVector:       src.vector,
				NewSource:       src.source,
				NewTrust:        src.trust,
				NewConfidence:   src.confidence,
				NewText:         src.text,
				PriorMemoryID:   prior.ID(),
				PriorVector:     prior.Vector(),
				PriorValue:      priorMatches[0].Value,
				PriorText:       prior.Text(),
				PriorTrust:      prior.Trust(),
				PriorConfidence: prior.Confidence(),
			})
		}
	}
	return out, nil
}

// questionForFailure maps the gate outcome (and any missing disclosure) to
// the self-questioning failure type and asks for a clarifying question,
// respecting the disclosure budget.
func (o *Orchestrator) questionForFailure(threadID ids.ThreadID, turnNumber int, outcome gates.GateOutcome, retrieved []ports.ScoredMemory, required []disclosure.RequiredDisclosure) string {
	var failureType selfquestion.FailureType
	var rec *contradiction.Record
	var slot facts.Slot

	switch {
	case len(required) > 0:
		failureType = selfquestion.FailureContradiction
		rec = required[0].Contradiction
		slot = facts.Slot(required[0].Slot)
	case outcome.Outcome == gates.OutcomeRejectNoMemory:
		failureType = selfquestion.FailureMemoryMiss
	default:
		failureType = selfquestion.FailureGrounding
	}

	q, ok := o.questioner.Question(threadID.String(), slot, turnNumber, selfquestion.Request{
		FailureType:    failureType,
		RetrievedEmpty: len(retrieved) == 0,
		Contradiction:  rec,
	})
	if !ok {
		return ""
	}
	return q
}

func flattenFacts(in map[facts.Slot][]facts.ExtractedFact) map[facts.Slot]facts.ExtractedFact {
	out := make(map[facts.Slot]facts.ExtractedFact, len(in))
	for slot, matches := range in {
		if len(matches) > 0 {
			out[slot] = matches[0]
		}
	}
	return out
}

func memoryTexts(retrieved []ports.ScoredMemory) []string {
	out := make([]string, 0, len(retrieved))
	for _, sm := range retrieved {
		out = append(out, sm.Memory.Text())
	}
	return out
}

func disclosurePhrases(required []disclosure.RequiredDisclosure) []string {
	out := make([]string, 0, len(required))
	for _, r := range required {
		out = append(out, fmt.Sprintf("updated from %s to %s", r.OldValue, r.NewValue))
	}
	return out
}

func buildPrompt(userText string, contextLines []string) string {
	var b strings.Builder
	for _, line := range contextLines {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\nUser: ")
	b.WriteString(userText)
	return b.String()
}

func anyMissing(outcomes []disclosure.CaveatOutcome) bool {
	for _, o := range outcomes {
		if o == disclosure.OutcomeMissingNeeded {
			return true
		}
	}
	return false
}

func inferIntent(userText string) gates.Intent {
	trimmed := strings.TrimSpace(userText)
	switch {
	case strings.HasSuffix(trimmed, "?"):
		return gates.IntentQuestion
	case strings.HasPrefix(strings.ToLower(trimmed), "remember") || strings.HasPrefix(strings.ToLower(trimmed), "forget"):
		return gates.IntentCommand
	default:
		return gates.IntentAssertion
	}
}

func scoreBreakdown(outcome gates.GateOutcome) ScoreBreakdown {
	var sb ScoreBreakdown
	for _, sg := range outcome.SubGates {
		switch sg.Name {
		case "intent":
			sb.Intent = sg.Score
		case "memory":
			sb.Memory = sg.Score
		case "grounding":
			sb.Grounding = sg.Score
		}
	}
	n := 0.0
	sum := 0.0
	for _, sg := range outcome.SubGates {
		sum += sg.Score
		n++
	}
	if n > 0 {
		sb.Composite = sum / n
	}
	return sb
}
