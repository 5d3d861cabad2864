package workflow

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/transplantflow/platform/pkg/common/models"
	"github.com/transplantflow/platform/pkg/hla"
)

// outcome is what a phase algorithm reports back to Calculate.
type outcome struct {
	progress int
	findings *int
	// active forces in_progress while progress is still zero.
	active bool
}

type phaseFunc func(party models.Party, payload Payload) outcome

var calculators = map[Kind]phaseFunc{
	KindScreening:           calcScreening,
	KindDonorAssessment:     calcDonorAssessment,
	KindRecipientAssessment: calcRecipientAssessment,
	KindConsultations:       calcConsultations,
	KindLegalClearance:      calcLegalClearance,
	KindTissueTyping:        calcTissueTyping,
	KindFinalReview:         calcFinalReview,
	KindTeamReview:          calcTeamReview,
	KindSurgeryPreparation:  calcSurgeryPreparation,
}

// Calculate recomputes progress, status, findings and derived payload
// fields for phase. The input is not modified.
func Calculate(party models.Party, phase Phase) Phase {
	out := phase
	if phase.Payload == nil {
		return out
	}
	payload := clonePayload(phase.Payload)
	fn, ok := calculators[payload.Kind()]
	if !ok {
		return out
	}
	res := fn(party, payload)
	out.Payload = payload
	out.Progress = res.progress
	out.AbnormalFindings = res.findings
	out.Status = statusFor(phase.Status, res.progress, res.active)
	return out
}

// statusFor applies the common status rule. Locked phases stay locked.
func statusFor(current Status, progress int, active bool) Status {
	if current == StatusLocked {
		return StatusLocked
	}
	switch {
	case progress >= 100:
		return StatusCompleted
	case progress > 0 || active:
		return StatusInProgress
	}
	return StatusAvailable
}

func clonePayload(p Payload) Payload {
	raw, err := json.Marshal(p)
	if err != nil {
		return p
	}
	cp, err := DecodePayload(p.Kind(), raw)
	if err != nil {
		return p
	}
	return cp
}

// fillPercent is filled/total as a rounded percentage; an empty set is complete.
func fillPercent(filled, total int) int {
	if total <= 0 {
		return 100
	}
	pct := int(math.Round(float64(filled) / float64(total) * 100))
	if pct >= 100 && filled < total {
		return 99
	}
	return pct
}

func countFilled(values []string) int {
	n := 0
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

func intPtr(n int) *int {
	return &n
}

func calcScreening(party models.Party, payload Payload) outcome {
	s := payload.(*Screening)
	var (
		applicable, done, abnormal int
		order                      []string
		cats                       = map[string]*CategorySummary{}
	)
	for i := range s.Tests {
		t := &s.Tests[i]
		t.IsCompleted = strings.TrimSpace(t.Value) != ""
		if t.IsExempt {
			t.Flag = FlagNone
		} else {
			t.Flag = EvaluateRange(*t)
		}
		t.IsAbnormal = t.Flag == FlagAbnormal

		if !t.Conditional.Applies(party) {
			continue
		}
		cat, ok := cats[t.Category]
		if !ok {
			cat = &CategorySummary{Category: t.Category}
			cats[t.Category] = cat
			order = append(order, t.Category)
		}
		applicable++
		cat.Applicable++
		if t.IsCompleted || t.IsExempt {
			done++
			cat.Done++
		}
		if t.IsExempt {
			cat.Exempt++
		}
		if t.IsAbnormal {
			abnormal++
			cat.Abnormal++
		}
	}

	s.Categories = make([]CategorySummary, 0, len(order))
	for _, name := range order {
		cat := cats[name]
		cat.Progress = fillPercent(cat.Done, cat.Applicable)
		s.Categories = append(s.Categories, *cat)
	}
	return outcome{progress: fillPercent(done, applicable), findings: intPtr(abnormal)}
}

func sectionPercent(complete bool, fields []string) float64 {
	if complete {
		return 100
	}
	if len(fields) == 0 {
		return 100
	}
	return float64(countFilled(fields)) / float64(len(fields)) * 100
}

func calcDonorAssessment(_ models.Party, payload Payload) outcome {
	d := payload.(*DonorAssessment)
	d.DTPARenogram.TotalGfr = TotalGFR(d.DTPARenogram.LeftKidneyGfr, d.DTPARenogram.RightKidneyGfr)
	d.SurgicalPlan.CalculatedRisk = DonorRisk(d.SurgicalPlan)

	mean := (sectionPercent(d.CTAngiogram.IsCompleted, d.CTAngiogram.fields()) +
		sectionPercent(d.DTPARenogram.IsCompleted, d.DTPARenogram.fields()) +
		sectionPercent(d.SurgicalPlan.IsCompleted, d.SurgicalPlan.fields())) / 3

	findings := 0
	if r := d.SurgicalPlan.CalculatedRisk; r == RiskHigh || r == RiskMedium {
		findings++
	}
	if d.DTPARenogram.ObstructionPresent {
		findings++
	}
	return outcome{progress: int(math.Round(mean)), findings: intPtr(findings)}
}

func calcRecipientAssessment(_ models.Party, payload Payload) outcome {
	r := payload.(*RecipientAssessment)
	done, review := 0, 0
	for i := range r.ImagingTests {
		t := &r.ImagingTests[i]
		t.IsCompleted = t.Status == ItemCompleted
		if t.IsCompleted {
			done++
		}
		if t.Status == ItemNeedsReview {
			review++
		}
	}
	if r.SurgicalPlan.IsCompleted {
		done++
	}
	return outcome{progress: fillPercent(done, len(r.ImagingTests)+1), findings: intPtr(review)}
}

func calcConsultations(party models.Party, payload Payload) outcome {
	c := payload.(*Consultations)
	applicable, done := 0, 0
	active := false
	for _, item := range c.Items {
		if !item.AppliesTo(party) {
			continue
		}
		applicable++
		if item.Status == ItemCleared || item.Status == ItemNotRequired {
			done++
		}
		if item.Status != ItemPending {
			active = true
		}
	}
	return outcome{progress: fillPercent(done, applicable), active: active}
}

func calcLegalClearance(_ models.Party, payload Payload) outcome {
	l := payload.(*LegalClearance)
	hasFile := strings.TrimSpace(l.FileName) != ""
	switch {
	case l.Status == ItemCleared && hasFile:
		return outcome{progress: 100}
	case l.Status == ItemInProgress || hasFile:
		return outcome{progress: 50}
	}
	return outcome{}
}

func calcTissueTyping(_ models.Party, payload Payload) outcome {
	t := payload.(*TissueTyping)
	if t.DonorHLA.Filled() == 0 && t.RecipientHLA.Filled() == 0 {
		t.Compatibility = hla.Empty()
	} else {
		t.Compatibility = hla.Compute(t.DonorHLA, t.RecipientHLA)
	}

	total := 2*2*len(hla.Loci) + 5
	filled := t.DonorHLA.Filled() + t.RecipientHLA.Filled()
	for _, categorical := range []string{t.Crossmatch.CDC, t.Crossmatch.Flow, t.Crossmatch.DSA, t.FinalAssessment.FinalResult} {
		if categorical != "" && categorical != ResultPending {
			filled++
		}
	}
	if strings.TrimSpace(t.Crossmatch.DSAInterpretation) != "" {
		filled++
	}

	findings := 0
	if t.Crossmatch.CDC == ResultPositive {
		findings++
	}
	if t.Crossmatch.Flow == ResultPositive {
		findings++
	}
	if t.Crossmatch.DSA == DSAPresent {
		findings++
	}
	if r := t.Compatibility.RiskLevel; r == hla.RiskHigh || r == hla.RiskModerate {
		findings++
	}

	progress := fillPercent(filled, total)
	if progress > 100 {
		progress = 100
	}
	return outcome{progress: progress, findings: intPtr(findings)}
}

func calcFinalReview(_ models.Party, payload Payload) outcome {
	f := payload.(*FinalReview)
	done := 0
	for _, item := range f.ClearanceItems {
		if item.Status == ItemCleared || item.Status == ItemNotRequired {
			done++
		}
	}
	return outcome{progress: fillPercent(done, len(f.ClearanceItems))}
}

func calcTeamReview(_ models.Party, payload Payload) outcome {
	t := payload.(*TeamReview)
	done := 0
	for _, item := range t.ReviewItems {
		if item.Status == ItemCompleted {
			done++
		}
	}
	return outcome{progress: fillPercent(done, len(t.ReviewItems))}
}

func calcSurgeryPreparation(party models.Party, payload Payload) outcome {
	s := payload.(*SurgeryPreparation)
	prep := s.For(party.Role)

	done := 0
	for _, item := range prep.Items {
		if item.Status == PrepCompleted {
			done++
		}
	}
	checklist := float64(fillPercent(done, len(prep.Items)))
	fields := prep.Assessment.assessmentFields()
	assessment := float64(countFilled(fields)) / float64(len(fields)) * 100

	return outcome{progress: int(math.Round(0.7*checklist + 0.3*assessment))}
}
