package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transplantflow/platform/pkg/assist"
	"github.com/transplantflow/platform/pkg/common/errs"
	"github.com/transplantflow/platform/pkg/common/models"
	"github.com/transplantflow/platform/pkg/documents"
	"github.com/transplantflow/platform/pkg/pairsync"
	"github.com/transplantflow/platform/pkg/recordstore"
	"github.com/transplantflow/platform/pkg/registry"
	"github.com/transplantflow/platform/pkg/workflow"
)

const testSecret = "0123456789abcdef-test"

type fakeAssistant struct {
	summary    string
	err        error
	extraction assist.Extraction
	reports    []assist.Report
}

func (f *fakeAssistant) SummarizeParty(ctx context.Context, party models.Party, w workflow.Workflow, tests []workflow.TestItem) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("%s: %s (%d tests)", f.summary, party.Name, len(tests)), nil
}

func (f *fakeAssistant) SummarizePair(ctx context.Context, donor, recipient models.Party, dw, rw workflow.Workflow) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("%s: %s + %s", f.summary, donor.Name, recipient.Name), nil
}

func (f *fakeAssistant) SummarizeClearance(ctx context.Context, party models.Party, items []workflow.Consultation) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("%s clearance (%d)", party.Role, len(items)), nil
}

func (f *fakeAssistant) AssessRisk(ctx context.Context, party models.Party) (string, error) {
	return "Overall Risk: Low", f.err
}

func (f *fakeAssistant) ExtractTissueTyping(ctx context.Context, reports []assist.Report) (assist.Extraction, error) {
	f.reports = reports
	return f.extraction, f.err
}

type testServer struct {
	srv       *httptest.Server
	registry  *registry.Service
	store     *workflow.Store
	scheduler *pairsync.Scheduler
	assistant *fakeAssistant
	docs      *documents.Memory
	auth      *Authenticator
	donor     models.Party
	recipient models.Party
	pair      models.Pair
}

func newTestServer(t *testing.T, withAuth bool) *testServer {
	t.Helper()
	ctx := context.Background()
	records := recordstore.NewMemory()
	ts := &testServer{
		registry:  registry.NewService(records),
		scheduler: pairsync.NewScheduler(),
		assistant: &fakeAssistant{summary: "ok"},
		docs:      documents.NewMemory(),
	}
	t.Cleanup(ts.scheduler.Stop)

	ts.store = workflow.NewStore(records, ts.registry, workflow.NewTemplates(workflow.DefaultCatalog(), workflow.GatingOpen))
	coordinator := pairsync.NewCoordinator(ts.store, ts.registry, ts.scheduler, 10*time.Millisecond, nil)
	ts.store.Subscribe(coordinator)
	sessions := pairsync.NewSessions(ts.store, ts.scheduler, coordinator, 10*time.Millisecond)

	var err error
	ts.donor, err = ts.registry.Register(ctx, models.RegisterPartyRequest{Name: "John Smith", Role: models.RoleDonor, Age: 45, Gender: models.GenderMale, BloodType: "A+"})
	require.NoError(t, err)
	ts.recipient, err = ts.registry.Register(ctx, models.RegisterPartyRequest{Name: "Jane Smith", Role: models.RoleRecipient, Age: 42, Gender: models.GenderFemale, BloodType: "A+"})
	require.NoError(t, err)
	ts.pair, err = ts.registry.CreatePair(ctx, models.CreatePairRequest{DonorID: ts.donor.ID, RecipientID: ts.recipient.ID})
	require.NoError(t, err)

	if withAuth {
		ts.auth, err = NewAuthenticator(testSecret, "transplantflow")
		require.NoError(t, err)
	}

	h := NewHandler(Deps{
		Registry:  ts.registry,
		Workflows: ts.store,
		Sessions:  sessions,
		Assistant: ts.assistant,
		Documents: ts.docs,
	})
	router := mux.NewRouter()
	router.Use(Recovery)
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(Authenticate(ts.auth))
	h.Register(api)

	ts.srv = httptest.NewServer(router)
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, token string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.srv.URL+"/api/v1"+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestRegisterAndGetParty(t *testing.T) {
	ts := newTestServer(t, false)

	resp := ts.do(t, http.MethodPost, "/parties", models.RegisterPartyRequest{
		Name: "Robert Johnson", Role: models.RoleRecipient, Age: 58, Gender: models.GenderMale, BloodType: "o-",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var party models.Party
	decode(t, resp, &party)
	assert.NotEmpty(t, party.ID)
	assert.Equal(t, "O-", party.BloodType)

	resp = ts.do(t, http.MethodGet, "/parties/"+party.ID, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/parties?role=Donor", nil, "")
	var donors []models.Party
	decode(t, resp, &donors)
	require.Len(t, donors, 1)
	assert.Equal(t, ts.donor.ID, donors[0].ID)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, false)

	resp := ts.do(t, http.MethodPost, "/parties", models.RegisterPartyRequest{Name: "", Role: "Nurse"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/parties/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body errorBody
	decode(t, resp, &body)
	assert.Contains(t, body.Error, "not found")

	resp = ts.do(t, http.MethodPost, "/pairs", models.CreatePairRequest{DonorID: ts.donor.ID, RecipientID: ts.recipient.ID}, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPairView(t *testing.T) {
	ts := newTestServer(t, false)

	resp := ts.do(t, http.MethodGet, "/pairs/"+ts.pair.ID, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view pairView
	decode(t, resp, &view)
	assert.Equal(t, "John Smith", view.Donor.Name)
	assert.Equal(t, "Jane Smith", view.Recipient.Name)
	require.Len(t, view.DonorWorkflow.Phases, workflow.PhaseCount)
	require.Len(t, view.RecipientWorkflow.Phases, workflow.PhaseCount)
	assert.Equal(t, workflow.KindDonorAssessment, view.DonorWorkflow.Phases[1].Kind)
	assert.Equal(t, workflow.KindRecipientAssessment, view.RecipientWorkflow.Phases[1].Kind)
}

func TestMutatePhase(t *testing.T) {
	ts := newTestServer(t, false)

	resp := ts.do(t, http.MethodPut, "/parties/"+ts.donor.ID+"/phases/4", map[string]string{
		"status": workflow.ItemCleared, "fileName": "consent.pdf",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var phase workflow.Phase
	decode(t, resp, &phase)
	assert.Equal(t, 100, phase.Progress)
	assert.Equal(t, workflow.StatusCompleted, phase.Status)

	// shared phase reaches the partner after the sync delay
	ts.scheduler.Flush()
	wf, err := ts.store.Get(context.Background(), ts.recipient.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, wf.Phase(4).Progress)
}

func TestMutatePhaseRejectsBadInput(t *testing.T) {
	ts := newTestServer(t, false)

	resp := ts.do(t, http.MethodPut, "/parties/"+ts.donor.ID+"/phases/9", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPut, "/parties/"+ts.donor.ID+"/phases/4", map[string]string{"status": "Approved"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPut, "/parties/"+ts.donor.ID+"/phases/4", []int{1, 2}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExemptionRecordsTokenSubject(t *testing.T) {
	ts := newTestServer(t, true)

	resp := ts.do(t, http.MethodPost, "/parties/"+ts.donor.ID+"/tests/hemoglobin/exemption", map[string]string{"reason": "done elsewhere"}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/parties/"+ts.donor.ID+"/tests/hemoglobin/exemption", map[string]string{"reason": "done elsewhere"}, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := ts.auth.Issue("dr.patel", time.Hour)
	require.NoError(t, err)
	resp = ts.do(t, http.MethodPost, "/parties/"+ts.donor.ID+"/tests/hemoglobin/exemption", map[string]string{"reason": "done elsewhere"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var phase workflow.Phase
	decode(t, resp, &phase)

	var found bool
	for _, test := range phase.Payload.(*workflow.Screening).Tests {
		if test.ID == "hemoglobin" {
			found = true
			assert.True(t, test.IsExempt)
			assert.Equal(t, "dr.patel", test.ExemptedBy)
		}
	}
	assert.True(t, found)

	resp = ts.do(t, http.MethodPost, "/parties/"+ts.donor.ID+"/tests/hemoglobin/exemption", map[string]string{"reason": ""}, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExpiredToken(t *testing.T) {
	ts := newTestServer(t, true)
	token, err := ts.auth.Issue("dr.patel", -time.Minute)
	require.NoError(t, err)
	resp := ts.do(t, http.MethodGet, "/parties", nil, token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	other, err := NewAuthenticator("another-secret-of-length", "transplantflow")
	require.NoError(t, err)
	forged, err := other.Issue("mallory", time.Hour)
	require.NoError(t, err)
	resp = ts.do(t, http.MethodGet, "/parties", nil, forged)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, false)

	resp := ts.do(t, http.MethodPost, "/parties/"+ts.recipient.ID+"/sessions", nil, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sess sessionView
	decode(t, resp, &sess)
	require.NotEmpty(t, sess.ID)

	resp = ts.do(t, http.MethodPatch, "/sessions/"+sess.ID+"/phases/4", map[string]string{"status": workflow.ItemInProgress}, "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	ts.scheduler.Flush()
	wf, err := ts.store.Get(context.Background(), ts.recipient.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, wf.Phase(4).Progress)

	resp = ts.do(t, http.MethodGet, "/sessions/"+sess.ID, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/sessions/"+sess.ID, nil, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodPatch, "/sessions/"+sess.ID+"/phases/4", map[string]string{"status": workflow.ItemCleared}, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSummaries(t *testing.T) {
	ts := newTestServer(t, false)

	resp := ts.do(t, http.MethodPost, "/parties/"+ts.donor.ID+"/summary", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sum summaryResponse
	decode(t, resp, &sum)
	assert.Contains(t, sum.Summary, "John Smith")

	resp = ts.do(t, http.MethodPost, "/pairs/"+ts.pair.ID+"/summary", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &sum)
	assert.Equal(t, "ok: John Smith + Jane Smith", sum.Summary)

	resp = ts.do(t, http.MethodPost, "/pairs/"+ts.pair.ID+"/clearance-summary", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var clearance map[string]interface{}
	decode(t, resp, &clearance)
	assert.Contains(t, clearance["donor"], "Donor clearance")
	assert.Contains(t, clearance["recipient"], "Recipient clearance")
}

func TestSummaryFailureIsBadGateway(t *testing.T) {
	ts := newTestServer(t, false)
	ts.assistant.err = fmt.Errorf("%w: model timeout", errs.ErrExternal)

	resp := ts.do(t, http.MethodPost, "/parties/"+ts.donor.ID+"/summary", nil, "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	var body errorBody
	decode(t, resp, &body)
	assert.Contains(t, body.Error, "model timeout")
}

func multipartReports(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, name))
		hdr.Set("Content-Type", "application/pdf")
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestExtractionMergesAndArchives(t *testing.T) {
	ts := newTestServer(t, false)
	ts.assistant.extraction = assist.Extraction{
		DonorHLA:   map[string][]string{"A": {"A*02:01", "A*24:02"}},
		Crossmatch: &assist.ExtractedCrossmatch{CDC: workflow.ResultNegative, DSA: workflow.ResultPending},
	}

	body, contentType := multipartReports(t, map[string]string{"hla.pdf": "%PDF-1.4 typing"})
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/v1/parties/"+ts.recipient.ID+"/phases/5/extraction", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Actor", "lab.tech")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out extractionResponse
	decode(t, resp, &out)
	tt := out.Phase.Payload.(*workflow.TissueTyping)
	assert.Equal(t, [2]string{"A*02:01", "A*24:02"}, tt.DonorHLA.A)
	assert.Equal(t, workflow.ResultNegative, tt.Crossmatch.CDC)
	assert.Equal(t, workflow.ResultPending, tt.Crossmatch.DSA)
	require.Len(t, tt.Documents, 1)
	assert.Equal(t, "hla.pdf", tt.Documents[0].FileName)
	assert.Equal(t, "lab.tech", tt.Documents[0].UploadedBy)

	require.Len(t, ts.assistant.reports, 1)
	assert.Equal(t, "application/pdf", ts.assistant.reports[0].ContentType)

	resp = ts.do(t, http.MethodGet, "/documents/"+tt.Documents[0].Key, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 typing", string(data))
}

func TestExtractionFailureLeavesPhaseUntouched(t *testing.T) {
	ts := newTestServer(t, false)
	ts.assistant.err = fmt.Errorf("%w: unreadable", errs.ErrExternal)

	body, contentType := multipartReports(t, map[string]string{"blurry.pdf": "x"})
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/v1/parties/"+ts.recipient.ID+"/phases/5/extraction", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	wf, err := ts.store.Get(context.Background(), ts.recipient.ID)
	require.NoError(t, err)
	assert.Empty(t, wf.Phase(5).Payload.(*workflow.TissueTyping).Documents)
}

func TestExtractionRequiresFiles(t *testing.T) {
	ts := newTestServer(t, false)
	body, contentType := multipartReports(t, map[string]string{})
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/v1/parties/"+ts.recipient.ID+"/phases/5/extraction", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
