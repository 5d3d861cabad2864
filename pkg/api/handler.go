// Package api exposes the workflow engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/transplantflow/platform/pkg/assist"
	"github.com/transplantflow/platform/pkg/common/errs"
	"github.com/transplantflow/platform/pkg/common/logger"
	"github.com/transplantflow/platform/pkg/common/models"
	"github.com/transplantflow/platform/pkg/documents"
	"github.com/transplantflow/platform/pkg/pairsync"
	"github.com/transplantflow/platform/pkg/workflow"
)

type Registry interface {
	Register(ctx context.Context, req models.RegisterPartyRequest) (models.Party, error)
	Party(ctx context.Context, id string) (models.Party, error)
	Parties(ctx context.Context) ([]models.Party, error)
	CreatePair(ctx context.Context, req models.CreatePairRequest) (models.Pair, error)
	Pair(ctx context.Context, id string) (models.Pair, error)
	Pairs(ctx context.Context) ([]models.Pair, error)
}

type Workflows interface {
	Get(ctx context.Context, partyID string) (workflow.Workflow, error)
	MutateAs(ctx context.Context, partyID string, phaseID int, payload workflow.Payload, actor string) (workflow.Phase, error)
	ExemptTest(ctx context.Context, partyID, testID, reason, actor string) (workflow.Phase, error)
}

type Assistant interface {
	SummarizeParty(ctx context.Context, party models.Party, w workflow.Workflow, tests []workflow.TestItem) (string, error)
	SummarizePair(ctx context.Context, donor, recipient models.Party, donorWF, recipientWF workflow.Workflow) (string, error)
	SummarizeClearance(ctx context.Context, party models.Party, items []workflow.Consultation) (string, error)
	AssessRisk(ctx context.Context, party models.Party) (string, error)
	ExtractTissueTyping(ctx context.Context, reports []assist.Report) (assist.Extraction, error)
}

type Deps struct {
	Registry  Registry
	Workflows Workflows
	Sessions  *pairsync.Sessions
	Assistant Assistant
	Documents documents.Store
	// MaxUpload bounds a multipart extraction request.
	MaxUpload int64
}

type Handler struct {
	registry  Registry
	workflows Workflows
	sessions  *pairsync.Sessions
	assistant Assistant
	documents documents.Store
	maxUpload int64
}

func NewHandler(d Deps) *Handler {
	maxUpload := d.MaxUpload
	if maxUpload <= 0 {
		maxUpload = 16 << 20
	}
	return &Handler{
		registry:  d.Registry,
		workflows: d.Workflows,
		sessions:  d.Sessions,
		assistant: d.Assistant,
		documents: d.Documents,
		maxUpload: maxUpload,
	}
}

// Register mounts every route on r, normally the /api/v1 subrouter.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/parties", h.handleRegisterParty).Methods(http.MethodPost)
	r.HandleFunc("/parties", h.handleListParties).Methods(http.MethodGet)
	r.HandleFunc("/parties/{id}", h.handleGetParty).Methods(http.MethodGet)

	r.HandleFunc("/pairs", h.handleCreatePair).Methods(http.MethodPost)
	r.HandleFunc("/pairs", h.handleListPairs).Methods(http.MethodGet)
	r.HandleFunc("/pairs/{id}", h.handleGetPair).Methods(http.MethodGet)

	r.HandleFunc("/parties/{id}/workflow", h.handleGetWorkflow).Methods(http.MethodGet)
	r.HandleFunc("/parties/{id}/phases/{phaseId:[0-9]+}", h.handleMutatePhase).Methods(http.MethodPut)
	r.HandleFunc("/parties/{id}/tests/{testId}/exemption", h.handleExemptTest).Methods(http.MethodPost)

	r.HandleFunc("/parties/{id}/sessions", h.handleOpenSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{sid}", h.handleGetSession).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{sid}/phases/{phaseId:[0-9]+}", h.handleSessionEdit).Methods(http.MethodPatch)
	r.HandleFunc("/sessions/{sid}", h.handleCloseSession).Methods(http.MethodDelete)

	r.HandleFunc("/parties/{id}/summary", h.handlePartySummary).Methods(http.MethodPost)
	r.HandleFunc("/parties/{id}/risk-assessment", h.handleRiskAssessment).Methods(http.MethodPost)
	r.HandleFunc("/pairs/{id}/summary", h.handlePairSummary).Methods(http.MethodPost)
	r.HandleFunc("/pairs/{id}/clearance-summary", h.handleClearanceSummary).Methods(http.MethodPost)
	r.HandleFunc("/parties/{id}/phases/5/extraction", h.handleExtraction).Methods(http.MethodPost)
	r.HandleFunc("/documents/{key:.+}", h.handleGetDocument).Methods(http.MethodGet)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Log.WithError(err).Error("failed to write json response")
	}
}

// writeError maps err onto its status code. Internal failures are logged and
// reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errs.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		msg = "internal server error"
	} else if status >= 500 {
		logger.Log.WithError(err).WithField("path", r.URL.Path).Warn("request failed")
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.Validation("request body exceeds %d bytes", tooLarge.Limit)
		}
		return errs.Validation("invalid request body: %v", err)
	}
	return nil
}

func phaseParam(r *http.Request) (int, error) {
	id, err := strconv.Atoi(mux.Vars(r)["phaseId"])
	if err != nil || id < 1 || id > workflow.PhaseCount {
		return 0, errs.Validation("phase id must be 1..%d", workflow.PhaseCount)
	}
	return id, nil
}

// decodePhasePayload reads the request body as the payload variant that
// phase phaseID of party carries.
func decodePhasePayload(r *http.Request, party models.Party, phaseID int) (workflow.Payload, error) {
	kind, err := workflow.KindFor(party.Role, phaseID)
	if err != nil {
		return nil, errs.Validation("%v", err)
	}
	var raw json.RawMessage
	if err := decodeBody(r, &raw); err != nil {
		return nil, err
	}
	payload, err := workflow.DecodePayload(kind, raw)
	if err != nil {
		return nil, errs.Validation("%v", err)
	}
	return payload, nil
}
