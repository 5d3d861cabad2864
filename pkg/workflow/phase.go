// Package workflow implements the eight-phase evaluation workflow: templates,
// hydration of persisted records, progress calculation and the state store.
package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/transplantflow/platform/pkg/common/models"
)

// PhaseCount is the fixed number of phases in every workflow.
const PhaseCount = 8

type Status string

const (
	StatusLocked       Status = "locked"
	StatusAvailable    Status = "available"
	StatusInProgress   Status = "in_progress"
	StatusCompleted    Status = "completed"
	StatusReviewNeeded Status = "review_needed"
)

// Kind tags the payload variant a phase carries.
type Kind string

const (
	KindScreening           Kind = "screening"
	KindDonorAssessment     Kind = "donorAssessment"
	KindRecipientAssessment Kind = "recipientAssessment"
	KindConsultations       Kind = "consultations"
	KindLegalClearance      Kind = "legalClearance"
	KindTissueTyping        Kind = "tissueTyping"
	KindFinalReview         Kind = "finalReview"
	KindTeamReview          Kind = "teamReview"
	KindSurgeryPreparation  Kind = "surgeryPreparation"
)

// KindFor resolves the payload variant for a phase id and party role.
func KindFor(role models.Role, phaseID int) (Kind, error) {
	switch phaseID {
	case 1:
		return KindScreening, nil
	case 2:
		if role == models.RoleDonor {
			return KindDonorAssessment, nil
		}
		return KindRecipientAssessment, nil
	case 3:
		return KindConsultations, nil
	case 4:
		return KindLegalClearance, nil
	case 5:
		return KindTissueTyping, nil
	case 6:
		return KindFinalReview, nil
	case 7:
		return KindTeamReview, nil
	case 8:
		return KindSurgeryPreparation, nil
	}
	return "", fmt.Errorf("phase %d out of range 1..%d", phaseID, PhaseCount)
}

// shared lists the phases whose payload is mirrored between pair members.
var shared = map[int]bool{4: true, 5: true, 6: true, 7: true, 8: true}

func IsShared(phaseID int) bool {
	return shared[phaseID]
}

// Payload is implemented by every phase payload variant.
type Payload interface {
	Kind() Kind
	// Validate rejects states that may not be entered, such as an exemption
	// without a reason.
	Validate() error
}

// NewPayload returns a zero value of the variant for kind.
func NewPayload(kind Kind) (Payload, error) {
	switch kind {
	case KindScreening:
		return &Screening{}, nil
	case KindDonorAssessment:
		return &DonorAssessment{}, nil
	case KindRecipientAssessment:
		return &RecipientAssessment{}, nil
	case KindConsultations:
		return &Consultations{}, nil
	case KindLegalClearance:
		return &LegalClearance{}, nil
	case KindTissueTyping:
		return &TissueTyping{}, nil
	case KindFinalReview:
		return &FinalReview{}, nil
	case KindTeamReview:
		return &TeamReview{}, nil
	case KindSurgeryPreparation:
		return &SurgeryPreparation{}, nil
	}
	return nil, fmt.Errorf("unknown payload kind %q", kind)
}

// DecodePayload decodes raw JSON into the variant named by kind.
func DecodePayload(kind Kind, raw []byte) (Payload, error) {
	p, err := NewPayload(kind)
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
	}
	return p, nil
}

type Phase struct {
	ID               int     `json:"id"`
	Name             string  `json:"name"`
	Description      string  `json:"description"`
	Status           Status  `json:"status"`
	Progress         int     `json:"progress"`
	AbnormalFindings *int    `json:"abnormalFindings,omitempty"`
	Kind             Kind    `json:"kind"`
	Payload          Payload `json:"payload"`
}

func (p *Phase) UnmarshalJSON(data []byte) error {
	type plain Phase
	var raw struct {
		plain
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	payload, err := DecodePayload(raw.Kind, raw.Payload)
	if err != nil {
		return fmt.Errorf("phase %d: %w", raw.ID, err)
	}
	*p = Phase(raw.plain)
	p.Payload = payload
	return nil
}

// Workflow is one party's ordered phase list.
type Workflow struct {
	PartyID string      `json:"partyId"`
	Role    models.Role `json:"role"`
	Phases  []Phase     `json:"phases"`
}

// Phase returns a pointer to the phase with id, or nil.
func (w *Workflow) Phase(id int) *Phase {
	for i := range w.Phases {
		if w.Phases[i].ID == id {
			return &w.Phases[i]
		}
	}
	return nil
}
