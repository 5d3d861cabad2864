package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/transplantflow/platform/pkg/assist"
	"github.com/transplantflow/platform/pkg/common/errs"
	"github.com/transplantflow/platform/pkg/common/logger"
	"github.com/transplantflow/platform/pkg/documents"
	"github.com/transplantflow/platform/pkg/workflow"
	"golang.org/x/sync/errgroup"
)

type summaryResponse struct {
	Summary     string    `json:"summary"`
	GeneratedAt time.Time `json:"generatedAt"`
}

func (h *Handler) handlePartySummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := mux.Vars(r)["id"]
	party, err := h.registry.Party(ctx, partyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	wf, err := h.workflows.Get(ctx, partyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := h.assistant.SummarizeParty(ctx, party, wf, assist.ScreeningTests(wf))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{Summary: summary, GeneratedAt: time.Now().UTC()})
}

func (h *Handler) handleRiskAssessment(w http.ResponseWriter, r *http.Request) {
	party, err := h.registry.Party(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	text, err := h.assistant.AssessRisk(r.Context(), party)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{Summary: text, GeneratedAt: time.Now().UTC()})
}

func (h *Handler) handlePairSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.loadPair(ctx, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := h.assistant.SummarizePair(ctx, view.Donor, view.Recipient, view.DonorWorkflow, view.RecipientWorkflow)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{Summary: summary, GeneratedAt: time.Now().UTC()})
}

// handleClearanceSummary summarizes both members' consultations concurrently.
func (h *Handler) handleClearanceSummary(w http.ResponseWriter, r *http.Request) {
	view, err := h.loadPair(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}

	var donorText, recipientText string
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		donorText, err = h.assistant.SummarizeClearance(gctx, view.Donor, assist.ConsultationItems(view.DonorWorkflow))
		return err
	})
	g.Go(func() (err error) {
		recipientText, err = h.assistant.SummarizeClearance(gctx, view.Recipient, assist.ConsultationItems(view.RecipientWorkflow))
		return err
	})
	if err := g.Wait(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"donor":       donorText,
		"recipient":   recipientText,
		"generatedAt": time.Now().UTC(),
	})
}

type extractionResponse struct {
	Extraction assist.Extraction `json:"extraction"`
	Phase      workflow.Phase    `json:"phase"`
}

// handleExtraction reads uploaded lab reports, extracts tissue-typing data,
// archives the files and merges the result into phase 5.
func (h *Handler) handleExtraction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := mux.Vars(r)["id"]
	actor := ActorFrom(ctx)
	if _, err := h.registry.Party(ctx, partyID); err != nil {
		writeError(w, r, err)
		return
	}

	reports, err := h.readReports(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	extraction, err := h.assistant.ExtractTissueTyping(ctx, reports)
	if err != nil {
		writeError(w, r, err)
		return
	}

	wf, err := h.workflows.Get(ctx, partyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var current *workflow.TissueTyping
	if p := wf.Phase(5); p != nil {
		current, _ = p.Payload.(*workflow.TissueTyping)
	}
	if current == nil {
		writeError(w, r, errors.New("phase 5 does not hold tissue typing"))
		return
	}
	merged := assist.MergeExtraction(*current, extraction)

	docs, err := h.archive(ctx, partyID, actor, reports)
	if err != nil {
		writeError(w, r, err)
		return
	}
	merged.Documents = append(merged.Documents, docs...)

	phase, err := h.workflows.MutateAs(ctx, partyID, 5, &merged, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.ForParty(partyID, 5).WithField("documents", len(docs)).Info("Tissue-typing reports extracted")
	writeJSON(w, http.StatusOK, extractionResponse{Extraction: extraction, Phase: phase})
}

func (h *Handler) readReports(w http.ResponseWriter, r *http.Request) ([]assist.Report, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		return nil, errs.Validation("invalid multipart upload: %v", err)
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		return nil, errs.Validation("at least one file is required in field \"files\"")
	}
	reports := make([]assist.Report, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, errs.Validation("open %s: %v", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, errs.Validation("read %s: %v", fh.Filename, err)
		}
		contentType := fh.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = http.DetectContentType(data)
		}
		reports = append(reports, assist.Report{FileName: fh.Filename, ContentType: contentType, Data: data})
	}
	return reports, nil
}

func (h *Handler) archive(ctx context.Context, partyID, actor string, reports []assist.Report) ([]workflow.Document, error) {
	docs := make([]workflow.Document, 0, len(reports))
	today := time.Now().UTC().Format("2006-01-02")
	for _, rep := range reports {
		info, err := h.documents.Put(ctx, documents.NewKey(partyID, 5, rep.FileName), bytes.NewReader(rep.Data), rep.ContentType)
		if err != nil {
			return nil, err
		}
		docs = append(docs, workflow.Document{
			FileName:    rep.FileName,
			Key:         info.Key,
			ContentType: rep.ContentType,
			Size:        info.Size,
			UploadedBy:  actor,
			UploadDate:  today,
		})
	}
	return docs, nil
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	body, info, err := h.documents.Get(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()
	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		logger.Log.WithError(err).WithField("key", info.Key).Warn("document stream interrupted")
	}
}
