package assist

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/transplantflow/platform/pkg/common/errs"
	"github.com/transplantflow/platform/pkg/hla"
	"github.com/transplantflow/platform/pkg/workflow"
)

// Report is one uploaded lab document.
type Report struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Extraction is the partial tissue-typing result read from lab reports.
// Loci are keyed A, B, C, DR, DQ and DP.
type Extraction struct {
	DonorHLA     map[string][]string  `json:"donorHla,omitempty"`
	RecipientHLA map[string][]string  `json:"recipientHla,omitempty"`
	Crossmatch   *ExtractedCrossmatch `json:"crossmatch,omitempty"`
}

type ExtractedCrossmatch struct {
	CDC               string `json:"cdc"`
	DSA               string `json:"dsa"`
	DSAInterpretation string `json:"dsaInterpretation"`
}

const extractionPrompt = `You are a specialized medical data extraction agent.
Analyze the provided medical reports, which may include HLA typing, T/B cell crossmatch (CDC) and donor-specific antibody (DSA) reports.
Return a single JSON object with this shape:
{"donorHla": {"A": ["",""], "B": [], "C": [], "DR": [], "DQ": [], "DP": []},
 "recipientHla": {...same loci...},
 "crossmatch": {"cdc": "Pending|Negative|Positive", "dsa": "Pending|Absent|Present", "dsaInterpretation": ""}}

Instructions:
1. HLA typing: identify the patient or recipient and the donor. Extract the two alleles for each locus (A, B, C, DRB1, DQB1, DPB1). Report DRB1 as DR, DQB1 as DQ and DPB1 as DP. If a report covers only one person leave the other person's loci empty.
2. CDC crossmatch: if the T-cell and B-cell crossmatches are negative (typically <20% dead cells) the result is "Negative", otherwise "Positive".
3. DSA: negative class I and class II IgG DSA means "Absent"; positive means "Present".
4. DSA interpretation: copy any comments, MFI values or interpretation text about the DSA findings.
5. Anything not found in the reports stays "Pending" or empty.
"Patient" and "Recipient" are used interchangeably in these reports.`

// ExtractTissueTyping sends the reports to the model and decodes its JSON answer.
func (c *Client) ExtractTissueTyping(ctx context.Context, reports []Report) (Extraction, error) {
	if len(reports) == 0 {
		return Extraction{}, errs.Validation("at least one report is required")
	}
	if c.Offline() {
		return Extraction{}, fmt.Errorf("%w: report extraction requires a configured model", errs.ErrExternal)
	}

	parts := []map[string]interface{}{{"type": "text", "text": extractionPrompt}}
	for _, r := range reports {
		dataURL := fmt.Sprintf("data:%s;base64,%s", r.ContentType, base64.StdEncoding.EncodeToString(r.Data))
		if strings.HasPrefix(r.ContentType, "image/") {
			parts = append(parts, map[string]interface{}{
				"type":      "image_url",
				"image_url": map[string]string{"url": dataURL},
			})
			continue
		}
		parts = append(parts, map[string]interface{}{
			"type": "file",
			"file": map[string]string{"filename": r.FileName, "file_data": dataURL},
		})
	}

	out, err := c.complete(ctx, "extract_tissue_typing", parts, true)
	if err != nil {
		return Extraction{}, err
	}
	var ex Extraction
	if err := json.Unmarshal([]byte(stripFence(out)), &ex); err != nil {
		return Extraction{}, fmt.Errorf("%w: extraction returned malformed JSON: %v", errs.ErrExternal, err)
	}
	return ex, nil
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// MergeExtraction applies ex onto current. Only non-empty values overwrite,
// and cdc or dsa are never overwritten with Pending.
func MergeExtraction(current workflow.TissueTyping, ex Extraction) workflow.TissueTyping {
	out := current
	mergeTyping(&out.DonorHLA, ex.DonorHLA)
	mergeTyping(&out.RecipientHLA, ex.RecipientHLA)
	if cm := ex.Crossmatch; cm != nil {
		if cm.CDC != "" && cm.CDC != workflow.ResultPending {
			out.Crossmatch.CDC = cm.CDC
		}
		if cm.DSA != "" && cm.DSA != workflow.ResultPending {
			out.Crossmatch.DSA = cm.DSA
		}
		if strings.TrimSpace(cm.DSAInterpretation) != "" {
			out.Crossmatch.DSAInterpretation = cm.DSAInterpretation
		}
	}
	out.Documents = append([]workflow.Document(nil), current.Documents...)
	return out
}

func mergeTyping(dst *hla.Typing, src map[string][]string) {
	for _, locus := range hla.Loci {
		alleles := src[string(locus)]
		slot := dst.Slot(locus)
		for i := 0; i < len(alleles) && i < 2; i++ {
			if v := strings.TrimSpace(alleles[i]); v != "" {
				slot[i] = v
			}
		}
	}
}
