// Package handlers implements the demo HTTP shim's REST surface over the
// governance core's entry points. The shim is external plumbing, not part
// of the engine's contract; it exists to make turn ingestion, thread
// reset, and contradiction resolution runnable end to end.
package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"groundedmemory/application/orchestrator"
	"groundedmemory/domain/ids"
	"groundedmemory/pkg/common"
	apperrors "groundedmemory/pkg/errors"
	"groundedmemory/pkg/utils"

	"github.com/go-chi/chi/v5"
)

const maxTurnBodyBytes = 64 * 1024

// TurnHandler exposes ingest_turn and reset_thread over HTTP.
type TurnHandler struct {
	orchestrator *orchestrator.Orchestrator
	logger       *zap.Logger
}

func NewTurnHandler(o *orchestrator.Orchestrator, logger *zap.Logger) *TurnHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TurnHandler{orchestrator: o, logger: logger}
}

// ingestTurnRequest is the wire shape of POST /threads/{threadID}/turns.
type ingestTurnRequest struct {
	UserText       string `json:"user_text" validate:"required,min=1,max=8000"`
	StoreAssertion bool   `json:"store_assertion"`
}

// turnReportResponse mirrors orchestrator.TurnReport for JSON transport;
// kept separate from the domain type so the wire shape can evolve without
// touching the core pipeline's return type.
type turnReportResponse struct {
	Grounded             bool     `json:"grounded"`
	GateOutcome          string   `json:"gate_outcome"`
	ResponseType         string   `json:"response_type"`
	ResponseText         string   `json:"response_text"`
	ContradictionsNew    []string `json:"contradictions_new"`
	ContradictionsActive int      `json:"contradictions_active"`
	CaveatRequired       bool     `json:"caveat_required"`
	CaveatPresent        bool     `json:"caveat_present"`
	ClarifyingQuestion   string   `json:"clarifying_question,omitempty"`
	RetrievedMemoryIDs   []string `json:"retrieved_memory_ids"`
	Scores               struct {
		Intent    float64 `json:"intent"`
		Memory    float64 `json:"memory"`
		Grounding float64 `json:"grounding"`
		Composite float64 `json:"composite"`
	} `json:"scores"`
	Refused       bool   `json:"refused"`
	RefusalReason string `json:"refusal_reason,omitempty"`
}

// IngestTurn handles POST /threads/{threadID}/turns.
func (h *TurnHandler) IngestTurn(w http.ResponseWriter, r *http.Request) {
	threadID, err := ids.NewThreadID(chi.URLParam(r, "threadID"))
	if err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.ValidationError, "invalid thread id")
		return
	}

	var req ingestTurnRequest
	if err := common.ParseJSONBody(r, &req, maxTurnBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.BadRequest, "malformed request body")
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.ValidationError, err.Error())
		return
	}

	userText := utils.SanitizeString(req.UserText)
	report, err := h.orchestrator.IngestTurn(r.Context(), threadID, userText, orchestrator.TurnOptions{
		StoreAssertion: req.StoreAssertion,
	})
	if err != nil {
		h.logger.Error("ingest_turn failed", zap.Error(err), zap.String("thread_id", threadID.String()))
		handleError(w, r, err)
		return
	}

	resp := turnReportResponse{
		Grounded:             report.Grounded,
		GateOutcome:          string(report.GateOutcome),
		ResponseType:         string(report.ResponseType),
		ResponseText:         report.ResponseText,
		ContradictionsActive: report.ContradictionsActive,
		CaveatRequired:       report.CaveatRequired,
		CaveatPresent:        report.CaveatPresent,
		ClarifyingQuestion:   report.ClarifyingQuestion,
		RetrievedMemoryIDs:   report.RetrievedMemoryIDs,
		Refused:              report.Refused(),
		RefusalReason:        string(report.RefusalReason),
	}
	for _, id := range report.ContradictionsNew {
		resp.ContradictionsNew = append(resp.ContradictionsNew, id.String())
	}
	resp.Scores.Intent = report.Scores.Intent
	resp.Scores.Memory = report.Scores.Memory
	resp.Scores.Grounding = report.Scores.Grounding
	resp.Scores.Composite = report.Scores.Composite

	common.RespondJSON(w, http.StatusOK, resp)
}

// resetThreadRequest is the wire shape of POST /threads/{threadID}/reset.
type resetThreadRequest struct {
	Target string `json:"target" validate:"required,oneof=memory ledger all"`
}

// ResetThread handles POST /threads/{threadID}/reset. Test-harness only;
// never expose this route outside a controlled environment.
func (h *TurnHandler) ResetThread(w http.ResponseWriter, r *http.Request) {
	threadID, err := ids.NewThreadID(chi.URLParam(r, "threadID"))
	if err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.ValidationError, "invalid thread id")
		return
	}

	var req resetThreadRequest
	if err := common.ParseJSONBody(r, &req, maxTurnBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.BadRequest, "malformed request body")
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.ValidationError, err.Error())
		return
	}

	if err := h.orchestrator.ResetThread(r.Context(), threadID, orchestrator.ResetTarget(req.Target)); err != nil {
		h.logger.Error("reset_thread failed", zap.Error(err), zap.String("thread_id", threadID.String()))
		handleError(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		common.RespondError(w, appErr.HTTPStatus, string(appErr.Type), appErr.Message)
		return
	}
	common.RespondError(w, http.StatusInternalServerError, common.StandardErrorCodes.InternalError, err.Error())
}
