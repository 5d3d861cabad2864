package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/transplantflow/platform/pkg/pairsync"
)

type sessionView struct {
	ID        string    `json:"id"`
	PartyID   string    `json:"partyId"`
	Actor     string    `json:"actor"`
	Opened    time.Time `json:"opened"`
	LastError string    `json:"lastError,omitempty"`
}

func viewSession(s *pairsync.Session) sessionView {
	v := sessionView{ID: s.ID, PartyID: s.PartyID, Actor: s.Actor, Opened: s.Opened}
	if err := s.Err(); err != nil {
		v.LastError = err.Error()
	}
	return v
}

func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	party, err := h.registry.Party(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	s := h.sessions.Open(party.ID, ActorFrom(r.Context()))
	writeJSON(w, http.StatusCreated, viewSession(s))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(mux.Vars(r)["sid"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(s))
}

// handleSessionEdit schedules a debounced commit and answers 202.
func (h *Handler) handleSessionEdit(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(mux.Vars(r)["sid"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	phaseID, err := phaseParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	party, err := h.registry.Party(r.Context(), s.PartyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	payload, err := decodePhasePayload(r, party, phaseID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.Edit(phaseID, payload); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"sessionId": s.ID,
		"phaseId":   phaseID,
		"status":    "scheduled",
	})
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(mux.Vars(r)["sid"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
