package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/transplantflow/platform/pkg/common/models"
)

func (h *Handler) handleRegisterParty(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterPartyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	party, err := h.registry.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, party)
}

func (h *Handler) handleListParties(w http.ResponseWriter, r *http.Request) {
	parties, err := h.registry.Parties(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if role := models.Role(r.URL.Query().Get("role")); role != "" {
		filtered := parties[:0]
		for _, p := range parties {
			if p.Role == role {
				filtered = append(filtered, p)
			}
		}
		parties = filtered
	}
	writeJSON(w, http.StatusOK, parties)
}

func (h *Handler) handleGetParty(w http.ResponseWriter, r *http.Request) {
	party, err := h.registry.Party(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, party)
}
