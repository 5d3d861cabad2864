package models

import (
	"time"
)

type Role string

const (
	RoleDonor     Role = "Donor"
	RoleRecipient Role = "Recipient"
)

func (r Role) Valid() bool {
	return r == RoleDonor || r == RoleRecipient
}

type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

var BloodTypes = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

// Party is one person under evaluation, either the donor or the recipient.
type Party struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Role             Role      `json:"role"`
	Age              int       `json:"age"`
	Gender           Gender    `json:"gender"`
	BloodType        string    `json:"bloodType"`
	ContactNumber    string    `json:"contactNumber"`
	MedicalHistory   []string  `json:"medicalHistory"`
	Medications      []string  `json:"medications"`
	Allergies        []string  `json:"allergies"`
	RegistrationDate time.Time `json:"registrationDate"`
}

// Pair links exactly one donor-role party to one recipient-role party.
type Pair struct {
	ID                  string              `json:"id"`
	DonorID             string              `json:"donorId"`
	RecipientID         string              `json:"recipientId"`
	CompatibilityStatus CompatibilityStatus `json:"compatibilityStatus"`
	CreatedAt           time.Time           `json:"createdAt"`
}

type CompatibilityStatus string

const (
	CompatibilityPending      CompatibilityStatus = "Pending"
	CompatibilityCompatible   CompatibilityStatus = "Compatible"
	CompatibilityIncompatible CompatibilityStatus = "Incompatible"
)

// Partner returns the other member of the pair, or "" when partyID is not in it.
func (p Pair) Partner(partyID string) string {
	switch partyID {
	case p.DonorID:
		return p.RecipientID
	case p.RecipientID:
		return p.DonorID
	}
	return ""
}

type RegisterPartyRequest struct {
	Name           string   `json:"name"`
	Role           Role     `json:"role"`
	Age            int      `json:"age"`
	Gender         Gender   `json:"gender"`
	BloodType      string   `json:"bloodType"`
	ContactNumber  string   `json:"contactNumber,omitempty"`
	MedicalHistory []string `json:"medicalHistory,omitempty"`
	Medications    []string `json:"medications,omitempty"`
	Allergies      []string `json:"allergies,omitempty"`
}

type CreatePairRequest struct {
	DonorID     string `json:"donorId"`
	RecipientID string `json:"recipientId"`
}

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

const (
	EventPhaseCommitted = "workflow.phase_committed"
	EventPhaseSynced    = "workflow.phase_synced"
)
