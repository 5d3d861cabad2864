package assist

import (
	"fmt"
	"strings"

	"github.com/transplantflow/platform/pkg/common/models"
	"github.com/transplantflow/platform/pkg/workflow"
)

const offlineNote = "Generated locally; no language model is configured."

func offlinePartySummary(party models.Party, tests []workflow.TestItem, facts string) string {
	abnormal, exempt := testFindings(tests)
	var b strings.Builder
	fmt.Fprintf(&b, "Evaluation summary for %s %s\n\n", strings.ToLower(string(party.Role)), party.Name)
	b.WriteString(facts)
	b.WriteString("\n**Abnormal Lab Results**\n")
	writeLines(&b, abnormal)
	b.WriteString("\n**Exempted Tests**\n")
	writeLines(&b, exempt)
	b.WriteString("\n" + offlineNote)
	return b.String()
}

func writeLines(b *strings.Builder, lines []string) {
	if len(lines) == 0 {
		b.WriteString("None noted\n")
		return
	}
	for _, line := range lines {
		fmt.Fprintf(b, "- %s\n", line)
	}
}

// meanProgress is the average phase progress, used to compare pair members.
func meanProgress(w workflow.Workflow) int {
	if len(w.Phases) == 0 {
		return 0
	}
	total := 0
	for _, p := range w.Phases {
		total += p.Progress
	}
	return total / len(w.Phases)
}

func offlinePairSummary(donorWF, recipientWF workflow.Workflow, donorFacts, recipientFacts string) string {
	d, r := meanProgress(donorWF), meanProgress(recipientWF)
	sync := "The donor and recipient evaluations are progressing in parallel."
	switch {
	case d-r >= 20:
		sync = "The donor evaluation is significantly ahead of the recipient."
	case r-d >= 20:
		sync = "The recipient evaluation is significantly ahead of the donor."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Overall Status:** donor %d%% and recipient %d%% average phase progress.\n\n", d, r)
	b.WriteString("**Donor Data:**\n" + donorFacts + "\n")
	b.WriteString("**Recipient Data:**\n" + recipientFacts + "\n")
	b.WriteString("**Synchronization Status:** " + sync + "\n\n")
	b.WriteString(offlineNote)
	return b.String()
}

func offlineClearanceSummary(party models.Party, c clearanceBuckets) string {
	total := len(c.cleared) + len(c.pending) + len(c.notRequired)
	return fmt.Sprintf("%s clearance: %d of %d applicable departments cleared (%s). Pending or in progress: %s. Not required: %s. %s",
		party.Role, len(c.cleared), total,
		joinOr(c.cleared, "none"), joinOr(c.pending, "none"), joinOr(c.notRequired, "none"),
		offlineNote)
}

// riskTerms are history entries that raise the offline risk estimate.
var riskTerms = []string{"hypertension", "diabetes", "smok", "obesity", "cardiac", "heart"}

func offlineRisk(party models.Party) string {
	var concerns []string
	for _, h := range party.MedicalHistory {
		lower := strings.ToLower(h)
		for _, term := range riskTerms {
			if strings.Contains(lower, term) {
				concerns = append(concerns, h)
				break
			}
		}
	}
	score := len(concerns)
	if party.Age >= 60 {
		concerns = append(concerns, fmt.Sprintf("age %d", party.Age))
		score++
	}

	level := "Low"
	switch {
	case score >= 3:
		level = "High"
	case score >= 1:
		level = "Medium"
	}
	return fmt.Sprintf("Areas of concern: %s.\nOverall Risk: %s\n%s", joinOr(concerns, "none identified"), level, offlineNote)
}
