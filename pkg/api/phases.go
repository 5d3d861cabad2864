package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/transplantflow/platform/pkg/common/errs"
)

func (h *Handler) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.workflows.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// handleMutatePhase commits a phase payload immediately, bypassing the
// session debounce.
func (h *Handler) handleMutatePhase(w http.ResponseWriter, r *http.Request) {
	partyID := mux.Vars(r)["id"]
	phaseID, err := phaseParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	party, err := h.registry.Party(r.Context(), partyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	payload, err := decodePhasePayload(r, party, phaseID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	phase, err := h.workflows.MutateAs(r.Context(), partyID, phaseID, payload, ActorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, phase)
}

func (h *Handler) handleExemptTest(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Reason == "" {
		writeError(w, r, errs.Validation("reason is required"))
		return
	}
	phase, err := h.workflows.ExemptTest(r.Context(), vars["id"], vars["testId"], req.Reason, ActorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, phase)
}
