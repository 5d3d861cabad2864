package workflow

import (
	"fmt"
	"strings"

	"github.com/transplantflow/platform/pkg/common/models"
	"github.com/transplantflow/platform/pkg/hla"
)

// GatingMode controls how phases become available.
type GatingMode string

const (
	// GatingOpen unlocks every phase on load.
	GatingOpen GatingMode = "open"
	// GatingSequential starts phases 2..8 locked; completing a phase unlocks the next.
	GatingSequential GatingMode = "sequential"
)

func ParseGatingMode(s string) (GatingMode, error) {
	switch GatingMode(strings.ToLower(strings.TrimSpace(s))) {
	case GatingOpen, "":
		return GatingOpen, nil
	case GatingSequential:
		return GatingSequential, nil
	}
	return "", fmt.Errorf("unknown gating mode %q", s)
}

type phaseInfo struct {
	name        string
	description string
}

var donorPhases = [PhaseCount]phaseInfo{
	{"Phase 1: Initial Screening & Comprehensive Lab Work", "Comprehensive blood work, urine tests, and baseline health checks for the potential donor."},
	{"Phase 2: Advanced Imaging & Surgical Assessment", "Detailed anatomical and functional imaging of the kidneys and surgical planning."},
	{"Phase 3: Multi-Disciplinary Consultations", "Clearance from various medical specialists including Urology, Cardiology, and Psychiatry."},
	{"Phase 4: Legal Clearance", "Review and approval of legal documentation for the transplant pair."},
	{"Phase 5: HLA Typing & Crossmatch", "Pair-based tissue typing and compatibility testing."},
	{"Phase 6: Final Review & Readiness", "Final cross-match, pre-operative checks, and confirmation of readiness for surgery."},
	{"Phase 7: Transplant Team Review & Meeting", "Final case presentation, team discussion, and official approval for transplant."},
	{"Phase 8: Surgery Preparation & Admission", "Final pre-operative checks, scheduling, and hospital admission procedures for the donor."},
}

var recipientPhases = [PhaseCount]phaseInfo{
	{"Phase 1: Initial Screening & Comprehensive Lab Work", "Comprehensive blood work, urine tests, and baseline health checks for the recipient."},
	{"Phase 2: Cardiac & Vascular Assessment", "Evaluation of cardiovascular fitness for surgery and assessment of iliac vessels."},
	{"Phase 3: Multi-Disciplinary Consultations", "Clearance from various medical specialists including Nephrology, Cardiology, and Psychiatry."},
	{"Phase 4: Legal Clearance", "Review and approval of legal documentation for the transplant pair."},
	{"Phase 5: HLA Typing & Crossmatch", "Pair-based tissue typing and compatibility testing."},
	{"Phase 6: Final Review & Readiness", "Final cross-match, pre-operative checks, and confirmation of readiness for surgery."},
	{"Phase 7: Transplant Team Review & Meeting", "Final case presentation, team discussion, and official approval for transplant."},
	{"Phase 8: Surgery Preparation & Admission", "Final pre-operative checks, scheduling, and hospital admission procedures for the recipient."},
}

// Templates builds canonical workflows from a catalog.
type Templates struct {
	catalog Catalog
	gating  GatingMode
}

func NewTemplates(catalog Catalog, gating GatingMode) *Templates {
	if gating == "" {
		gating = GatingOpen
	}
	return &Templates{catalog: catalog, gating: gating}
}

func (t *Templates) Gating() GatingMode {
	return t.gating
}

// Template returns a fresh deep-built skeleton for role with every phase at
// zero progress.
func (t *Templates) Template(role models.Role, partyID string) Workflow {
	info := recipientPhases
	if role == models.RoleDonor {
		info = donorPhases
	}
	w := Workflow{PartyID: partyID, Role: role, Phases: make([]Phase, 0, PhaseCount)}
	for id := 1; id <= PhaseCount; id++ {
		kind, _ := KindFor(role, id)
		status := StatusAvailable
		if t.gating == GatingSequential && id > 1 {
			status = StatusLocked
		}
		w.Phases = append(w.Phases, Phase{
			ID:          id,
			Name:        info[id-1].name,
			Description: info[id-1].description,
			Status:      status,
			Kind:        kind,
			Payload:     t.payload(role, kind),
		})
	}
	return w
}

// TemplatePhase returns the template phase id for role.
func (t *Templates) TemplatePhase(role models.Role, id int) (Phase, error) {
	if id < 1 || id > PhaseCount {
		return Phase{}, fmt.Errorf("phase %d out of range 1..%d", id, PhaseCount)
	}
	return t.Template(role, "").Phases[id-1], nil
}

// Instantiate builds the workflow a party starts with. Progress is only
// computed once the party first edits a phase.
func (t *Templates) Instantiate(party models.Party) Workflow {
	return t.Template(party.Role, party.ID)
}

func (t *Templates) payload(role models.Role, kind Kind) Payload {
	c := t.catalog
	switch kind {
	case KindScreening:
		return &Screening{Tests: copyTests(c.Tests(role)), Categories: []CategorySummary{}}
	case KindDonorAssessment:
		return &DonorAssessment{
			CTAngiogram: CTAngiogram{
				AccessoryVessels:             "None",
				ParenchymalQuality:           "Normal",
				CalcificationAtherosclerosis: "None",
				AnatomicalVariations:         "None",
			},
			SurgicalPlan: DonorSurgicalPlan{CalculatedRisk: RiskNotCalculated},
		}
	case KindRecipientAssessment:
		tests := make([]ImagingTest, 0, len(c.RecipientImaging))
		for _, it := range c.RecipientImaging {
			tests = append(tests, ImagingTest{ID: it.ID, Name: it.Name, Status: ItemPending})
		}
		return &RecipientAssessment{ImagingTests: tests}
	case KindConsultations:
		src := c.RecipientConsultations
		if role == models.RoleDonor {
			src = c.DonorConsultations
		}
		items := make([]Consultation, 0, len(src))
		for _, item := range src {
			items = append(items, Consultation{
				ID:            item.ID,
				Department:    item.Department,
				IsApplicable:  item.IsApplicable,
				Applicability: item.Applicability,
				Status:        ItemPending,
			})
		}
		return &Consultations{Items: items}
	case KindLegalClearance:
		return &LegalClearance{Status: ItemPending}
	case KindTissueTyping:
		return &TissueTyping{
			Crossmatch:      Crossmatch{CDC: ResultPending, Flow: ResultPending, DSA: ResultPending},
			Compatibility:   hla.Empty(),
			FinalAssessment: FinalAssessment{FinalResult: ResultPending},
			Documents:       []Document{},
		}
	case KindFinalReview:
		src := c.RecipientClearance
		if role == models.RoleDonor {
			src = c.DonorClearance
		}
		items := make([]ClearanceItem, 0, len(src))
		for _, item := range src {
			items = append(items, ClearanceItem{ID: item.ID, Title: item.Title, Description: item.Description, Status: ItemPending})
		}
		return &FinalReview{ClearanceItems: items}
	case KindTeamReview:
		items := make([]ReviewItem, 0, len(c.ReviewItems))
		for _, item := range c.ReviewItems {
			items = append(items, ReviewItem{ID: item.ID, Title: item.Title, Description: item.Description, Status: ItemPending})
		}
		return &TeamReview{ReviewItems: items}
	case KindSurgeryPreparation:
		return &SurgeryPreparation{
			OperativeSchedule: OperativeSchedule{
				SurgicalTeam:     SurgicalTeam{Nurses: []string{}},
				ContingencyPlans: []string{},
			},
			DonorPreparation:     newPreparation(c.DonorPreparation, "donor"),
			RecipientPreparation: newPreparation(c.RecipientPreparation, "recipient"),
		}
	}
	return nil
}

func newPreparation(src []PrepItem, partyRole string) Preparation {
	items := make([]PrepItem, 0, len(src))
	for _, item := range src {
		item.Status = PrepPending
		item.Dependencies = append([]string{}, item.Dependencies...)
		items = append(items, item)
	}
	return Preparation{
		Items: items,
		Assessment: PreoperativeAssessment{
			PartyRole:          partyRole,
			RiskAssessment:     "pending",
			SpecialPrecautions: []string{},
		},
	}
}

func copyTests(src []TestItem) []TestItem {
	out := make([]TestItem, 0, len(src))
	for _, t := range src {
		t.DropdownOptions = append([]string{}, t.DropdownOptions...)
		t.Value = ""
		t.ConditionalValue = ""
		t.Flag = FlagNone
		t.IsAbnormal = false
		t.IsCompleted = false
		t.IsExempt = false
		t.ExemptionReason = ""
		t.ExemptionDate = ""
		t.ExemptedBy = ""
		out = append(out, t)
	}
	return out
}

// Unlock forces every locked phase to available and reports whether
// anything changed. It is a no-op under sequential gating.
func (t *Templates) Unlock(w *Workflow) bool {
	if t.gating == GatingSequential {
		return false
	}
	changed := false
	for i := range w.Phases {
		if w.Phases[i].Status == StatusLocked {
			w.Phases[i].Status = StatusAvailable
			changed = true
		}
	}
	return changed
}
