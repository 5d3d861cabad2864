package assist

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transplantflow/platform/pkg/common/config"
	"github.com/transplantflow/platform/pkg/common/errs"
	"github.com/transplantflow/platform/pkg/common/models"
	"github.com/transplantflow/platform/pkg/hla"
	"github.com/transplantflow/platform/pkg/observability/metrics"
	"github.com/transplantflow/platform/pkg/workflow"
)

var donor = models.Party{
	ID: "d1", Name: "John Smith", Role: models.RoleDonor, Age: 45,
	Gender: models.GenderMale, BloodType: "A+",
	MedicalHistory: []string{"Hypertension (controlled)"},
}

func testConfig(baseURL, key string) *config.Config {
	return &config.Config{
		LLMAPIKey:    key,
		LLMBaseURL:   baseURL,
		LLMModelName: "test-model",
		LLMTimeout:   5 * time.Second,
	}
}

func sampleTests() []workflow.TestItem {
	return []workflow.TestItem{
		{ID: "hb", Name: "Hemoglobin", Unit: "g/dL", NormalRange: "13-17", Value: "10", IsCompleted: true, IsAbnormal: true},
		{ID: "hiv", Name: "HIV", IsExempt: true, ExemptionReason: "Tested last month"},
		{ID: "glucose", Name: "Glucose", Value: "90", IsCompleted: true},
	}
}

// chatServer answers chat-completion requests with content and records the last request body.
func chatServer(t *testing.T, content string, last *map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		if last != nil {
			body, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(body, last))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{{"message": map[string]string{"content": content}}},
		})
	}))
}

func TestOfflinePartySummary(t *testing.T) {
	c := NewClient(testConfig("http://unused", ""), nil)
	require.True(t, c.Offline())

	out, err := c.SummarizeParty(context.Background(), donor, workflow.Workflow{}, sampleTests())
	require.NoError(t, err)
	assert.Contains(t, out, "Hemoglobin: 10 g/dL (Normal Range: 13-17)")
	assert.Contains(t, out, "HIV: Reason - Tested last month")
	assert.NotContains(t, out, "Glucose")
	assert.Contains(t, out, offlineNote)

	again, err := c.SummarizeParty(context.Background(), donor, workflow.Workflow{}, sampleTests())
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestOfflineSummariesStateNoneNoted(t *testing.T) {
	c := NewClient(testConfig("http://unused", ""), nil)
	out, err := c.SummarizeParty(context.Background(), donor, workflow.Workflow{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "None noted"))
}

func TestSummarizePartyCallsModel(t *testing.T) {
	var body map[string]interface{}
	srv := chatServer(t, "  Summary text  ", &body)
	defer srv.Close()

	reg := prometheus.NewRegistry()
	m := metrics.NewWith(reg)
	c := NewClient(testConfig(srv.URL, "secret"), m)

	out, err := c.SummarizeParty(context.Background(), donor, workflow.Workflow{}, sampleTests())
	require.NoError(t, err)
	assert.Equal(t, "Summary text", out)
	assert.Equal(t, "test-model", body["model"])
	msgs := body["messages"].([]interface{})
	prompt := msgs[0].(map[string]interface{})["content"].(string)
	assert.Contains(t, prompt, "living kidney transplant Donor")
	assert.Contains(t, prompt, "Hemoglobin")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AssistRequests.WithLabelValues("summarize_party", "ok")))
}

func TestModelFailureIsExternal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	m := metrics.NewWith(reg)
	c := NewClient(testConfig(srv.URL, "secret"), m)

	out, err := c.SummarizeClearance(context.Background(), donor, nil)
	assert.Empty(t, out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrExternal))
	assert.Equal(t, http.StatusBadGateway, errs.HTTPStatus(err))
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AssistRequests.WithLabelValues("summarize_clearance", "error")))
}

func TestEmptyChoicesIsExternal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL, "secret"), nil)
	_, err := c.AssessRisk(context.Background(), donor)
	assert.True(t, errors.Is(err, errs.ErrExternal))
}

func TestClientCredentials(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-123","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer llmSrv.Close()

	cfg := testConfig(llmSrv.URL, "")
	cfg.LLMTokenURL = tokenSrv.URL
	cfg.LLMClientID = "svc"
	cfg.LLMClientSecret = "shh"
	c := NewClient(cfg, nil)
	require.False(t, c.Offline())

	out, err := c.AssessRisk(context.Background(), donor)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestSummarizeClearanceBuckets(t *testing.T) {
	items := []workflow.Consultation{
		{Department: "Cardiology", IsApplicable: true, Status: workflow.ItemCleared},
		{Department: "Psychiatry", IsApplicable: true, Status: workflow.ItemInProgress},
		{Department: "Dental", IsApplicable: true, Status: workflow.ItemNotRequired, Justification: "Recent checkup"},
		{Department: "Gynaecology", Applicability: workflow.Conditional{Type: workflow.ConditionGender, Gender: models.GenderFemale}},
	}
	b := bucketConsultations(donor, items)
	assert.Equal(t, []string{"Cardiology"}, b.cleared)
	assert.Equal(t, []string{"Psychiatry"}, b.pending)
	assert.Equal(t, []string{"Dental (Justification: Recent checkup)"}, b.notRequired)

	c := NewClient(testConfig("http://unused", ""), nil)
	out, err := c.SummarizeClearance(context.Background(), donor, items)
	require.NoError(t, err)
	assert.Contains(t, out, "1 of 3 applicable departments cleared")
}

func TestOfflineRisk(t *testing.T) {
	assert.Contains(t, offlineRisk(donor), "Overall Risk: Medium")

	old := models.Party{Age: 67, MedicalHistory: []string{"Type 2 diabetes", "Former smoker"}}
	assert.Contains(t, offlineRisk(old), "Overall Risk: High")

	healthy := models.Party{Age: 30}
	assert.Contains(t, offlineRisk(healthy), "Overall Risk: Low")
}

func TestExtractTissueTyping(t *testing.T) {
	answer := "```json\n" + `{"donorHla":{"A":["A*02:01","A*24:02"],"DR":["DRB1*15:01",""]},"crossmatch":{"cdc":"Negative","dsa":"Pending","dsaInterpretation":"MFI < 500"}}` + "\n```"
	var body map[string]interface{}
	srv := chatServer(t, answer, &body)
	defer srv.Close()

	c := NewClient(testConfig(srv.URL, "secret"), nil)
	ex, err := c.ExtractTissueTyping(context.Background(), []Report{
		{FileName: "hla.pdf", ContentType: "application/pdf", Data: []byte("%PDF")},
		{FileName: "cdc.png", ContentType: "image/png", Data: []byte{0x89}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A*02:01", "A*24:02"}, ex.DonorHLA["A"])
	require.NotNil(t, ex.Crossmatch)
	assert.Equal(t, "Negative", ex.Crossmatch.CDC)

	assert.Equal(t, map[string]interface{}{"type": "json_object"}, body["response_format"])
	parts := body["messages"].([]interface{})[0].(map[string]interface{})["content"].([]interface{})
	require.Len(t, parts, 3)
	assert.Equal(t, "file", parts[1].(map[string]interface{})["type"])
	assert.Equal(t, "image_url", parts[2].(map[string]interface{})["type"])
}

func TestExtractTissueTypingRequiresModelAndReports(t *testing.T) {
	c := NewClient(testConfig("http://unused", ""), nil)
	_, err := c.ExtractTissueTyping(context.Background(), []Report{{FileName: "a.pdf"}})
	assert.True(t, errors.Is(err, errs.ErrExternal))

	_, err = c.ExtractTissueTyping(context.Background(), nil)
	assert.True(t, errs.IsValidationError(err))
}

func TestExtractMalformedJSON(t *testing.T) {
	srv := chatServer(t, "I could not read the report.", nil)
	defer srv.Close()
	c := NewClient(testConfig(srv.URL, "secret"), nil)
	_, err := c.ExtractTissueTyping(context.Background(), []Report{{FileName: "a.pdf", ContentType: "application/pdf"}})
	assert.True(t, errors.Is(err, errs.ErrExternal))
}

func TestMergeExtraction(t *testing.T) {
	current := workflow.TissueTyping{
		DonorHLA:     hla.Typing{A: [2]string{"A*01:01", "A*03:01"}, B: [2]string{"B*07:02", ""}},
		RecipientHLA: hla.Typing{C: [2]string{"C*07:01", "C*07:02"}},
		Crossmatch: workflow.Crossmatch{
			CDC: workflow.ResultNegative, Flow: workflow.ResultNegative,
			DSA: workflow.DSAAbsent, DSAInterpretation: "previous note",
		},
		Documents: []workflow.Document{{Key: "d1/5/x-a.pdf"}},
	}
	ex := Extraction{
		DonorHLA: map[string][]string{
			"A": {"", "A*24:02"},
			"B": {"B*08:01"},
		},
		RecipientHLA: map[string][]string{"C": {"  ", ""}},
		Crossmatch:   &ExtractedCrossmatch{CDC: workflow.ResultPositive, DSA: workflow.ResultPending},
	}

	got := MergeExtraction(current, ex)
	assert.Equal(t, [2]string{"A*01:01", "A*24:02"}, got.DonorHLA.A)
	assert.Equal(t, [2]string{"B*08:01", ""}, got.DonorHLA.B)
	assert.Equal(t, [2]string{"C*07:01", "C*07:02"}, got.RecipientHLA.C)
	assert.Equal(t, workflow.ResultPositive, got.Crossmatch.CDC)
	assert.Equal(t, workflow.DSAAbsent, got.Crossmatch.DSA, "Pending never overwrites dsa")
	assert.Equal(t, "previous note", got.Crossmatch.DSAInterpretation)
	assert.Equal(t, workflow.ResultNegative, got.Crossmatch.Flow)

	// the input is untouched
	assert.Equal(t, [2]string{"A*01:01", "A*03:01"}, current.DonorHLA.A)
	got.Documents[0].Key = "changed"
	assert.Equal(t, "d1/5/x-a.pdf", current.Documents[0].Key)
}

func TestMergeExtractionPendingCDC(t *testing.T) {
	current := workflow.TissueTyping{Crossmatch: workflow.Crossmatch{CDC: workflow.ResultNegative}}
	got := MergeExtraction(current, Extraction{Crossmatch: &ExtractedCrossmatch{CDC: workflow.ResultPending}})
	assert.Equal(t, workflow.ResultNegative, got.Crossmatch.CDC)
}

func TestPromptRedaction(t *testing.T) {
	var body map[string]interface{}
	srv := chatServer(t, "ok", &body)
	defer srv.Close()

	c := NewClient(testConfig(srv.URL, "secret"), nil)
	party := donor
	party.MedicalHistory = []string{"Referred by dr.rao@clinic.in, call +91 9876543210"}

	_, err := c.AssessRisk(context.Background(), party)
	require.NoError(t, err)
	prompt := body["messages"].([]interface{})[0].(map[string]interface{})["content"].(string)
	assert.NotContains(t, prompt, "dr.rao@clinic.in")
	assert.NotContains(t, prompt, "9876543210")
	assert.Contains(t, prompt, "[email]")
	assert.Contains(t, prompt, "[phone]")
}

func TestRedactionRules(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/rules.yaml"
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - name: MRN\n    pattern: 'MRN-\\d+'\n    mask: '[mrn]'\n    enabled: true\n"), 0o600))

	cfg, err := LoadRedactionRules(path)
	require.NoError(t, err)
	r, err := NewRedactor(cfg)
	require.NoError(t, err)
	out, n := r.Redact("see MRN-00123 and MRN-9")
	assert.Equal(t, "see [mrn] and [mrn]", out)
	assert.Equal(t, 2, n)

	_, err = NewRedactor(RedactionConfig{Rules: []Rule{{Pattern: "(", Enabled: true}}})
	assert.Error(t, err)

	var nilRedactor *Redactor
	out, n = nilRedactor.Redact("a@b.co")
	assert.Equal(t, "a@b.co", out)
	assert.Zero(t, n)
}
