package assist

import (
	"context"
	"fmt"
	"strings"

	"github.com/transplantflow/platform/pkg/common/models"
	"github.com/transplantflow/platform/pkg/workflow"
)

// ScreeningTests returns the phase 1 test list of w, or nil.
func ScreeningTests(w workflow.Workflow) []workflow.TestItem {
	p := w.Phase(1)
	if p == nil {
		return nil
	}
	if s, ok := p.Payload.(*workflow.Screening); ok {
		return s.Tests
	}
	return nil
}

// ConsultationItems returns the phase 3 consultations of w, or nil.
func ConsultationItems(w workflow.Workflow) []workflow.Consultation {
	p := w.Phase(3)
	if p == nil {
		return nil
	}
	if c, ok := p.Payload.(*workflow.Consultations); ok {
		return c.Items
	}
	return nil
}

func joinOr(values []string, empty string) string {
	if len(values) == 0 {
		return empty
	}
	return strings.Join(values, ", ")
}

// partyFacts renders the demographic and progress block shared by the
// party and pair prompts.
func partyFacts(party models.Party, w workflow.Workflow, tests []workflow.TestItem) string {
	var completed []string
	var current *workflow.Phase
	for i := range w.Phases {
		p := &w.Phases[i]
		if p.Status == workflow.StatusCompleted {
			completed = append(completed, p.Name)
		}
		if current == nil && p.Status == workflow.StatusInProgress {
			current = p
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "- Name: %s\n", party.Name)
	fmt.Fprintf(&b, "- Age: %d\n", party.Age)
	fmt.Fprintf(&b, "- Gender: %s\n", party.Gender)
	fmt.Fprintf(&b, "- Blood Type: %s\n", party.BloodType)
	fmt.Fprintf(&b, "- Role: %s\n", party.Role)
	fmt.Fprintf(&b, "- Medical History: %s\n", joinOr(party.MedicalHistory, "None"))
	fmt.Fprintf(&b, "- Current Medications: %s\n", joinOr(party.Medications, "None"))
	fmt.Fprintf(&b, "- Allergies: %s\n", joinOr(party.Allergies, "None"))
	b.WriteString("- Evaluation Progress:\n")
	fmt.Fprintf(&b, "  - Completed Phases: %s\n", joinOr(completed, "None"))
	if current != nil {
		fmt.Fprintf(&b, "  - Current Phase: %s (%d%% complete)\n", current.Name, current.Progress)
	} else {
		b.WriteString("  - Current Phase: Not started\n")
	}

	if tests == nil {
		return b.String()
	}
	abnormal, exempt := testFindings(tests)
	if len(abnormal) > 0 {
		b.WriteString("- Key Findings (Abnormal Lab Results):\n")
		for _, line := range abnormal {
			fmt.Fprintf(&b, "  - %s\n", line)
		}
	}
	if len(exempt) > 0 {
		b.WriteString("- Exempted Tests (Not Required):\n")
		for _, line := range exempt {
			fmt.Fprintf(&b, "  - %s\n", line)
		}
	}
	return b.String()
}

func testFindings(tests []workflow.TestItem) (abnormal, exempt []string) {
	for _, t := range tests {
		if t.IsAbnormal && t.IsCompleted {
			result := t.Value
			if t.ConditionalInput.OnValue != "" && t.Value == t.ConditionalInput.OnValue && t.ConditionalValue != "" {
				result += ": " + t.ConditionalValue
			} else if t.Unit != "" {
				result += " " + t.Unit
			}
			normal := t.NormalRange
			if normal == "" {
				normal = "N/A"
			}
			abnormal = append(abnormal, fmt.Sprintf("%s: %s (Normal Range: %s)", t.Name, result, normal))
		}
		if t.IsExempt {
			exempt = append(exempt, fmt.Sprintf("%s: Reason - %s", t.Name, t.ExemptionReason))
		}
	}
	return abnormal, exempt
}

// SummarizeParty produces a clinical summary of one party's evaluation.
func (c *Client) SummarizeParty(ctx context.Context, party models.Party, w workflow.Workflow, tests []workflow.TestItem) (string, error) {
	facts := partyFacts(party, w, tests)
	if c.Offline() {
		return offlinePartySummary(party, tests, facts), nil
	}
	prompt := fmt.Sprintf(`Generate a concise, professional medical summary report for a living kidney transplant %s.
The report should be structured for a clinical audience, highlighting key information and evaluation progress.

The summary MUST include the following dedicated sections:
- **Abnormal Lab Results**: every result flagged as abnormal with the test name, value and normal range.
- **Exempted Tests**: every test marked as 'Not Required' and the reason for exemption.

If there are no abnormal results or no exempted tests, state "None noted" under the heading.
Do not add any greetings or closing remarks, just the report.

Patient Data:
%s`, party.Role, facts)
	return c.complete(ctx, "summarize_party", prompt, false)
}

// SummarizePair produces a team-meeting overview of a donor and recipient.
func (c *Client) SummarizePair(ctx context.Context, donor, recipient models.Party, donorWF, recipientWF workflow.Workflow) (string, error) {
	donorFacts := partyFacts(donor, donorWF, nil)
	recipientFacts := partyFacts(recipient, recipientWF, nil)
	if c.Offline() {
		return offlinePairSummary(donorWF, recipientWF, donorFacts, recipientFacts), nil
	}
	prompt := fmt.Sprintf(`As a clinical transplant coordinator, generate a concise, professional summary for the living kidney transplant pair listed below, suitable for a team meeting.

Structure the summary with the following sections:
1. **Overall Status:** one sentence on the pair's current stage in the evaluation.
2. **Donor Highlights:** key findings or milestones for the donor and the current in-progress phase.
3. **Recipient Highlights:** key findings or milestones for the recipient and the current in-progress phase.
4. **Key Concerns & Blockers:** abnormal results, incompatible findings, delays or pending critical clearances. If none, state "No significant concerns noted at this time."
5. **Synchronization Status:** whether the two evaluations progress in parallel or one is significantly ahead.
6. **Next Steps:** the immediate next steps for the pair.

Do not add any greetings or closing remarks, just the report.

**Donor Data:**
%s
**Recipient Data:**
%s`, donorFacts, recipientFacts)
	return c.complete(ctx, "summarize_pair", prompt, false)
}

type clearanceBuckets struct {
	cleared, pending, notRequired []string
}

func bucketConsultations(party models.Party, items []workflow.Consultation) clearanceBuckets {
	var b clearanceBuckets
	for _, item := range items {
		if !item.AppliesTo(party) {
			continue
		}
		switch item.Status {
		case workflow.ItemCleared:
			b.cleared = append(b.cleared, item.Department)
		case workflow.ItemNotRequired:
			justification := item.Justification
			if justification == "" {
				justification = "N/A"
			}
			b.notRequired = append(b.notRequired, fmt.Sprintf("%s (Justification: %s)", item.Department, justification))
		default:
			b.pending = append(b.pending, item.Department)
		}
	}
	return b
}

// SummarizeClearance summarizes departmental clearance for one party.
func (c *Client) SummarizeClearance(ctx context.Context, party models.Party, items []workflow.Consultation) (string, error) {
	b := bucketConsultations(party, items)
	status := fmt.Sprintf("- Cleared Departments: %s\n- Pending/In Progress Departments: %s\n- Not Required Departments: %s\n",
		joinOr(b.cleared, "None"), joinOr(b.pending, "None"), joinOr(b.notRequired, "None"))
	if c.Offline() {
		return offlineClearanceSummary(party, b), nil
	}
	prompt := fmt.Sprintf(`Generate a concise, professional summary of the departmental clearance status for a living kidney transplant %s.
The summary should be a brief paragraph highlighting the overall progress.
Do not use bullet points. Do not add greetings or closing remarks.

Patient Role: %s

Current Clearance Status:
%s`, party.Role, party.Role, status)
	return c.complete(ctx, "summarize_clearance", prompt, false)
}

// AssessRisk asks for a qualitative risk assessment from the party profile.
func (c *Client) AssessRisk(ctx context.Context, party models.Party) (string, error) {
	if c.Offline() {
		return offlineRisk(party), nil
	}
	procedure := "transplant"
	if party.Role == models.RoleDonor {
		procedure = "donation"
	}
	prompt := fmt.Sprintf(`Based on the following patient profile, provide a brief, qualitative risk assessment for a living kidney %s.
Highlight potential areas of concern for clinicians to investigate further.
Conclude with an overall risk categorization: "Overall Risk: Low", "Overall Risk: Medium", or "Overall Risk: High".
Do not add any greetings or closing remarks, just the assessment.

Patient Profile:
- Age: %d
- Blood Type: %s
- Role: %s
- Key Medical History: %s`, procedure, party.Age, party.BloodType, party.Role, joinOr(party.MedicalHistory, "None"))
	return c.complete(ctx, "assess_risk", prompt, false)
}
