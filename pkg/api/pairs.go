package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/transplantflow/platform/pkg/common/models"
	"github.com/transplantflow/platform/pkg/workflow"
	"golang.org/x/sync/errgroup"
)

type pairView struct {
	Pair              models.Pair       `json:"pair"`
	Donor             models.Party      `json:"donor"`
	Recipient         models.Party      `json:"recipient"`
	DonorWorkflow     workflow.Workflow `json:"donorWorkflow"`
	RecipientWorkflow workflow.Workflow `json:"recipientWorkflow"`
}

func (h *Handler) handleCreatePair(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePairRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	pair, err := h.registry.CreatePair(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pair)
}

func (h *Handler) handleListPairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.registry.Pairs(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pairs)
}

func (h *Handler) handleGetPair(w http.ResponseWriter, r *http.Request) {
	view, err := h.loadPair(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// loadPair fetches both members and their workflows concurrently.
func (h *Handler) loadPair(ctx context.Context, pairID string) (pairView, error) {
	pair, err := h.registry.Pair(ctx, pairID)
	if err != nil {
		return pairView{}, err
	}
	view := pairView{Pair: pair}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.loadMember(gctx, pair.DonorID, &view.Donor, &view.DonorWorkflow)
	})
	g.Go(func() error {
		return h.loadMember(gctx, pair.RecipientID, &view.Recipient, &view.RecipientWorkflow)
	})
	if err := g.Wait(); err != nil {
		return pairView{}, err
	}
	return view, nil
}

func (h *Handler) loadMember(ctx context.Context, partyID string, party *models.Party, wf *workflow.Workflow) error {
	p, err := h.registry.Party(ctx, partyID)
	if err != nil {
		return err
	}
	w, err := h.workflows.Get(ctx, partyID)
	if err != nil {
		return err
	}
	*party, *wf = p, w
	return nil
}
