package handlers

import (
	"net/http"

	"go.uber.org/zap"

	ledgerapp "groundedmemory/application/ledger"
	"groundedmemory/application/orchestrator"
	"groundedmemory/domain/contradiction"
	"groundedmemory/domain/ids"
	"groundedmemory/pkg/common"
	"groundedmemory/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// ContradictionHandler exposes the contradiction ledger's read surface
// and the explicit resolution entry point over HTTP.
type ContradictionHandler struct {
	ledger       *ledgerapp.Service
	orchestrator *orchestrator.Orchestrator
	logger       *zap.Logger
}

func NewContradictionHandler(ledger *ledgerapp.Service, o *orchestrator.Orchestrator, logger *zap.Logger) *ContradictionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContradictionHandler{ledger: ledger, orchestrator: o, logger: logger}
}

type contradictionResponse struct {
	ID         string  `json:"id"`
	ThreadID   string  `json:"thread_id"`
	Slot       string  `json:"slot"`
	Type       string  `json:"type"`
	Status     string  `json:"status"`
	Drift      float64 `json:"drift"`
	OldValue   string  `json:"old_value"`
	NewValue   string  `json:"new_value"`
	OldMemory  string  `json:"old_memory_id"`
	NewMemory  string  `json:"new_memory_id"`
	DetectedAt string  `json:"detected_at"`
	UpdatedAt  string  `json:"updated_at"`
}

func toContradictionResponse(r *contradiction.Record) contradictionResponse {
	return contradictionResponse{
		ID:         r.ID().String(),
		ThreadID:   r.ThreadID().String(),
		Slot:       string(r.Slot()),
		Type:       string(r.Type()),
		Status:     string(r.Status()),
		Drift:      r.Drift(),
		OldValue:   r.OldValue(),
		NewValue:   r.NewValue(),
		OldMemory:  r.OldMemoryID().String(),
		NewMemory:  r.NewMemoryID().String(),
		DetectedAt: utils.FormatRFC3339(r.DetectedAt()),
		UpdatedAt:  utils.FormatRFC3339(r.UpdatedAt()),
	}
}

// ListOpen handles GET /threads/{threadID}/contradictions?status=open|resolved.
func (h *ContradictionHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	threadID, err := ids.NewThreadID(chi.URLParam(r, "threadID"))
	if err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.ValidationError, "invalid thread id")
		return
	}

	var records []*contradiction.Record
	if r.URL.Query().Get("status") == "resolved" {
		records, err = h.ledger.GetResolved(r.Context(), threadID)
	} else {
		records, err = h.ledger.FindOpen(r.Context(), threadID)
	}
	if err != nil {
		h.logger.Error("list contradictions failed", zap.Error(err), zap.String("thread_id", threadID.String()))
		handleError(w, r, err)
		return
	}

	out := make([]contradictionResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toContradictionResponse(rec))
	}

	page := common.ExtractPaginationParams(r)
	start := page.CalculateOffset()
	if start > len(out) {
		start = len(out)
	}
	end := start + page.PageSize
	if end > len(out) {
		end = len(out)
	}
	result := common.NewPaginatedResult(out[start:end], page.Page, page.PageSize, len(out))
	common.RespondJSON(w, http.StatusOK, result)
}

// Summary handles GET /threads/{threadID}/contradictions/summary.
func (h *ContradictionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	threadID, err := ids.NewThreadID(chi.URLParam(r, "threadID"))
	if err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.ValidationError, "invalid thread id")
		return
	}

	summary, err := h.ledger.Summarize(r.Context(), threadID)
	if err != nil {
		h.logger.Error("summarize ledger failed", zap.Error(err), zap.String("thread_id", threadID.String()))
		handleError(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, summary)
}

// resolveContradictionRequest is the wire shape of
// POST /threads/{threadID}/contradictions/{contradictionID}/resolve.
type resolveContradictionRequest struct {
	Method      string `json:"method" validate:"required,oneof=user_clarified replaced accepted_both"`
	WinningSide string `json:"winning_side"`
}

// Resolve handles the explicit contradiction-resolution entry point.
func (h *ContradictionHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	threadID, err := ids.NewThreadID(chi.URLParam(r, "threadID"))
	if err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.ValidationError, "invalid thread id")
		return
	}
	contradictionID, err := ids.NewContradictionIDFromString(chi.URLParam(r, "contradictionID"))
	if err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.ValidationError, "invalid contradiction id")
		return
	}

	var req resolveContradictionRequest
	if err := common.ParseJSONBody(r, &req, maxTurnBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.BadRequest, "malformed request body")
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.ValidationError, err.Error())
		return
	}

	var winningSide ids.MemoryID
	if req.WinningSide != "" {
		winningSide, err = ids.NewMemoryIDFromString(req.WinningSide)
		if err != nil {
			common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.ValidationError, "invalid winning_side memory id")
			return
		}
	}

	if err := h.orchestrator.ResolveContradiction(r.Context(), threadID, contradictionID, req.Method, winningSide); err != nil {
		h.logger.Error("resolve_contradiction failed", zap.Error(err), zap.String("thread_id", threadID.String()))
		handleError(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}
