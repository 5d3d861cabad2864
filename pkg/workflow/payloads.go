package workflow

import (
	"strings"

	"github.com/transplantflow/platform/pkg/common/errs"
	"github.com/transplantflow/platform/pkg/common/models"
	"github.com/transplantflow/platform/pkg/hla"
)

// Item statuses used across the checklist phases.
const (
	ItemPending     = "Pending"
	ItemInProgress  = "In Progress"
	ItemCleared     = "Cleared"
	ItemNotRequired = "Not Required"
	ItemCompleted   = "Completed"
	ItemNeedsReview = "Requires Review"
)

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return errs.Validation("%s: %q is not one of %s", field, value, strings.Join(allowed, ", "))
}

// --- Phase 1 ---

type InputType string

const (
	InputNumber   InputType = "number"
	InputText     InputType = "text"
	InputDropdown InputType = "dropdown"
)

type ConditionType string

const (
	ConditionNone   ConditionType = ""
	ConditionGender ConditionType = "gender"
	ConditionAge    ConditionType = "age"
	ConditionBoth   ConditionType = "both"
)

// Conditional restricts an item to parties matching a gender and/or age band.
// Zero age bounds are open.
type Conditional struct {
	Type   ConditionType `json:"type" yaml:"type"`
	Gender models.Gender `json:"gender" yaml:"gender"`
	MinAge int           `json:"minAge" yaml:"minAge"`
	MaxAge int           `json:"maxAge" yaml:"maxAge"`
}

func (c Conditional) Applies(party models.Party) bool {
	switch c.Type {
	case ConditionGender:
		return party.Gender == c.Gender
	case ConditionAge:
		return c.ageOK(party.Age)
	case ConditionBoth:
		return party.Gender == c.Gender && c.ageOK(party.Age)
	}
	return true
}

func (c Conditional) ageOK(age int) bool {
	if c.MinAge > 0 && age < c.MinAge {
		return false
	}
	if c.MaxAge > 0 && age > c.MaxAge {
		return false
	}
	return true
}

type ConditionalInput struct {
	OnValue     string `json:"onValue" yaml:"onValue"`
	Placeholder string `json:"placeholder" yaml:"placeholder"`
}

type TestItem struct {
	ID               string           `json:"id" yaml:"id"`
	Name             string           `json:"name" yaml:"name"`
	Category         string           `json:"category" yaml:"category"`
	InputType        InputType        `json:"inputType" yaml:"inputType"`
	Unit             string           `json:"unit" yaml:"unit"`
	NormalRange      string           `json:"normalRange" yaml:"normalRange"`
	DropdownOptions  []string         `json:"dropdownOptions" yaml:"dropdownOptions"`
	Conditional      Conditional      `json:"conditional" yaml:"conditional"`
	ConditionalInput ConditionalInput `json:"conditionalInput" yaml:"conditionalInput"`
	Value            string           `json:"value" yaml:"-"`
	ConditionalValue string           `json:"conditionalValue" yaml:"-"`
	Flag             Flag             `json:"flag" yaml:"-"`
	IsAbnormal       bool             `json:"isAbnormal" yaml:"-"`
	IsCompleted      bool             `json:"isCompleted" yaml:"-"`
	IsExempt         bool             `json:"isExempt" yaml:"-"`
	ExemptionReason  string           `json:"exemptionReason" yaml:"-"`
	ExemptionDate    string           `json:"exemptionDate" yaml:"-"`
	ExemptedBy       string           `json:"exemptedBy" yaml:"-"`
}

type CategorySummary struct {
	Category   string `json:"category"`
	Applicable int    `json:"applicable"`
	Done       int    `json:"done"`
	Exempt     int    `json:"exempt"`
	Abnormal   int    `json:"abnormal"`
	Progress   int    `json:"progress"`
}

type Screening struct {
	Tests      []TestItem        `json:"tests"`
	Categories []CategorySummary `json:"categories"`
}

func (*Screening) Kind() Kind { return KindScreening }

func (s *Screening) Validate() error {
	seen := make(map[string]bool, len(s.Tests))
	for _, t := range s.Tests {
		if seen[t.ID] {
			return errs.Validation("duplicate test id %q", t.ID)
		}
		seen[t.ID] = true
		if t.IsExempt && strings.TrimSpace(t.ExemptionReason) == "" {
			return errs.Validation("test %q: exemption requires a reason", t.ID)
		}
	}
	return nil
}

// --- Phase 2 (donor) ---

type CTAngiogram struct {
	IsCompleted                  bool   `json:"isCompleted"`
	DatePerformed                string `json:"datePerformed"`
	LeftKidneyLength             string `json:"leftKidneyLength"`
	LeftKidneyWidth              string `json:"leftKidneyWidth"`
	LeftKidneyVolume             string `json:"leftKidneyVolume"`
	LeftMainArteryDiameter       string `json:"leftMainArteryDiameter"`
	RightKidneyLength            string `json:"rightKidneyLength"`
	RightKidneyWidth             string `json:"rightKidneyWidth"`
	RightKidneyVolume            string `json:"rightKidneyVolume"`
	RightMainArteryDiameter      string `json:"rightMainArteryDiameter"`
	LeftRenalArteries            string `json:"leftRenalArteries"`
	LeftRenalVeins               string `json:"leftRenalVeins"`
	RightRenalArteries           string `json:"rightRenalArteries"`
	RightRenalVeins              string `json:"rightRenalVeins"`
	AccessoryVessels             string `json:"accessoryVessels"`
	CorticalThickness            string `json:"corticalThickness"`
	ParenchymalQuality           string `json:"parenchymalQuality"`
	CalcificationAtherosclerosis string `json:"calcificationAtherosclerosis"`
	AnatomicalVariations         string `json:"anatomicalVariations"`
	ClinicalInterpretation       string `json:"clinicalInterpretation"`
	RecommendedKidney            string `json:"recommendedKidney"`
	RecommendedApproach          string `json:"recommendedApproach"`
	ReportFileName               string `json:"reportFileName"`
	ReportUploaded               bool   `json:"reportUploaded"`
}

func (c CTAngiogram) fields() []string {
	return []string{
		c.DatePerformed, c.LeftKidneyLength, c.LeftKidneyWidth, c.LeftKidneyVolume,
		c.LeftMainArteryDiameter, c.RightKidneyLength, c.RightKidneyWidth, c.RightKidneyVolume,
		c.RightMainArteryDiameter, c.LeftRenalArteries, c.LeftRenalVeins, c.RightRenalArteries,
		c.RightRenalVeins, c.AccessoryVessels, c.CorticalThickness, c.ParenchymalQuality,
		c.CalcificationAtherosclerosis, c.AnatomicalVariations, c.ClinicalInterpretation,
		c.RecommendedKidney, c.RecommendedApproach, c.ReportFileName,
	}
}

type DTPARenogram struct {
	IsCompleted         bool   `json:"isCompleted"`
	DatePerformed       string `json:"datePerformed"`
	LeftKidneyGfr       string `json:"leftKidneyGfr"`
	RightKidneyGfr      string `json:"rightKidneyGfr"`
	TotalGfr            string `json:"totalGfr"`
	FunctionalAsymmetry bool   `json:"functionalAsymmetry"`
	LeftT12             string `json:"leftT12"`
	RightT12            string `json:"rightT12"`
	ObstructionPresent  bool   `json:"obstructionPresent"`
	Notes               string `json:"notes"`
	ReportFileName      string `json:"reportFileName"`
	ReportUploaded      bool   `json:"reportUploaded"`
}

func (d DTPARenogram) fields() []string {
	return []string{d.DatePerformed, d.LeftKidneyGfr, d.RightKidneyGfr, d.LeftT12, d.RightT12, d.ReportFileName}
}

type DonorSurgicalPlan struct {
	IsCompleted             bool   `json:"isCompleted"`
	FinalKidneySelection    string `json:"finalKidneySelection"`
	FinalSurgicalApproach   string `json:"finalSurgicalApproach"`
	VascularComplexity      string `json:"vascularComplexity"`
	AnesthesiaRisk          string `json:"anesthesiaRisk"`
	EstimatedTimeMinutes    string `json:"estimatedTimeMinutes"`
	AnticipatedDifficulties string `json:"anticipatedDifficulties"`
	PostOpConsiderations    string `json:"postOpConsiderations"`
	TeamAssignment          string `json:"teamAssignment"`
	GeneralNotes            string `json:"generalNotes"`
	DonorBmi                string `json:"donorBmi"`
	DonorAgeCategory        string `json:"donorAgeCategory"`
	SmokingHistory          string `json:"smokingHistory"`
	HypertensionHistory     string `json:"hypertensionHistory"`
	DiabetesHistory         string `json:"diabetesHistory"`
	CalculatedRisk          string `json:"calculatedRisk"`
}

func (s DonorSurgicalPlan) fields() []string {
	return []string{
		s.FinalKidneySelection, s.FinalSurgicalApproach, s.VascularComplexity, s.AnesthesiaRisk,
		s.EstimatedTimeMinutes, s.AnticipatedDifficulties, s.PostOpConsiderations, s.TeamAssignment,
		s.GeneralNotes, s.DonorBmi, s.DonorAgeCategory, s.SmokingHistory, s.HypertensionHistory,
		s.DiabetesHistory,
	}
}

type DonorAssessment struct {
	CTAngiogram  CTAngiogram       `json:"ctAngiogram"`
	DTPARenogram DTPARenogram      `json:"dtpaRenogram"`
	SurgicalPlan DonorSurgicalPlan `json:"surgicalPlan"`
}

func (*DonorAssessment) Kind() Kind { return KindDonorAssessment }

func (d *DonorAssessment) Validate() error {
	for _, f := range []struct{ name, value string }{
		{"smokingHistory", d.SurgicalPlan.SmokingHistory},
		{"hypertensionHistory", d.SurgicalPlan.HypertensionHistory},
		{"diabetesHistory", d.SurgicalPlan.DiabetesHistory},
	} {
		if f.value == "" {
			continue
		}
		if err := oneOf(f.name, f.value, "Yes", "No"); err != nil {
			return err
		}
	}
	return nil
}

// --- Phase 2 (recipient) ---

type ImagingTest struct {
	ID            string `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	Status        string `json:"status" yaml:"-"`
	ReportSummary string `json:"reportSummary" yaml:"-"`
	IsCompleted   bool   `json:"isCompleted" yaml:"-"`
}

type RecipientSurgicalPlan struct {
	Notes       string `json:"notes"`
	IsCompleted bool   `json:"isCompleted"`
}

type RecipientAssessment struct {
	ImagingTests []ImagingTest         `json:"imagingTests"`
	SurgicalPlan RecipientSurgicalPlan `json:"surgicalPlan"`
}

func (*RecipientAssessment) Kind() Kind { return KindRecipientAssessment }

func (r *RecipientAssessment) Validate() error {
	for _, t := range r.ImagingTests {
		if err := oneOf("imaging "+t.ID, t.Status, ItemPending, ItemCompleted, ItemNeedsReview); err != nil {
			return err
		}
	}
	return nil
}

// --- Phase 3 ---

type Consultation struct {
	ID             string      `json:"id" yaml:"id"`
	Department     string      `json:"department" yaml:"department"`
	IsApplicable   bool        `json:"isApplicable" yaml:"isApplicable"`
	Applicability  Conditional `json:"applicability" yaml:"applicability"`
	Status         string      `json:"status" yaml:"-"`
	ClearanceDate  string      `json:"clearanceDate" yaml:"-"`
	DoctorName     string      `json:"doctorName" yaml:"-"`
	Notes          string      `json:"notes" yaml:"-"`
	ReportFileName string      `json:"reportFileName" yaml:"-"`
	Justification  string      `json:"justification" yaml:"-"`
}

// AppliesTo reports whether the consultation is required for party.
func (c Consultation) AppliesTo(party models.Party) bool {
	if c.IsApplicable {
		return true
	}
	return c.Applicability.Type != ConditionNone && c.Applicability.Applies(party)
}

type Consultations struct {
	Items []Consultation `json:"consultations"`
}

func (*Consultations) Kind() Kind { return KindConsultations }

func (c *Consultations) Validate() error {
	for _, item := range c.Items {
		if err := oneOf("consultation "+item.ID, item.Status, ItemPending, ItemInProgress, ItemCleared, ItemNotRequired); err != nil {
			return err
		}
		if item.Status == ItemNotRequired && strings.TrimSpace(item.Justification) == "" {
			return errs.Validation("consultation %q: Not Required needs a justification", item.ID)
		}
	}
	return nil
}

// --- Phase 4 ---

type LegalClearance struct {
	Status        string `json:"status"`
	ClearanceDate string `json:"clearanceDate"`
	OfficerName   string `json:"officerName"`
	Notes         string `json:"notes"`
	FileName      string `json:"fileName"`
}

func (*LegalClearance) Kind() Kind { return KindLegalClearance }

func (l *LegalClearance) Validate() error {
	return oneOf("legal status", l.Status, ItemPending, ItemInProgress, ItemCleared)
}

// --- Phase 5 ---

const (
	ResultPending  = "Pending"
	ResultNegative = "Negative"
	ResultPositive = "Positive"
	DSAAbsent      = "Absent"
	DSAPresent     = "Present"
)

type Crossmatch struct {
	CDC               string `json:"cdc"`
	Flow              string `json:"flow"`
	DSA               string `json:"dsa"`
	DSAInterpretation string `json:"dsaInterpretation"`
}

type FinalAssessment struct {
	FinalResult string `json:"finalResult"`
	Date        string `json:"date"`
	Lab         string `json:"lab"`
	Notes       string `json:"notes"`
}

type Document struct {
	FileName    string `json:"fileName"`
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	UploadedBy  string `json:"uploadedBy"`
	UploadDate  string `json:"uploadDate"`
}

type TissueTyping struct {
	DonorHLA        hla.Typing      `json:"donorHla"`
	RecipientHLA    hla.Typing      `json:"recipientHla"`
	Crossmatch      Crossmatch      `json:"crossmatch"`
	Compatibility   hla.Result      `json:"hlaCompatibility"`
	FinalAssessment FinalAssessment `json:"finalAssessment"`
	Documents       []Document      `json:"documents"`
}

func (*TissueTyping) Kind() Kind { return KindTissueTyping }

func (t *TissueTyping) Validate() error {
	if err := oneOf("cdc", t.Crossmatch.CDC, ResultPending, ResultNegative, ResultPositive); err != nil {
		return err
	}
	if err := oneOf("flow", t.Crossmatch.Flow, ResultPending, ResultNegative, ResultPositive); err != nil {
		return err
	}
	if err := oneOf("dsa", t.Crossmatch.DSA, ResultPending, DSAAbsent, DSAPresent); err != nil {
		return err
	}
	return oneOf("finalResult", t.FinalAssessment.FinalResult,
		ResultPending, "Compatible", "Incompatible", "Requires further testing")
}

// --- Phase 6 ---

type ClearanceItem struct {
	ID            string `json:"id" yaml:"id"`
	Title         string `json:"title" yaml:"title"`
	Description   string `json:"description" yaml:"description"`
	Status        string `json:"status" yaml:"-"`
	Notes         string `json:"notes" yaml:"-"`
	ClearedBy     string `json:"clearedBy" yaml:"-"`
	ClearanceDate string `json:"clearanceDate" yaml:"-"`
}

type FinalReview struct {
	ClearanceItems []ClearanceItem `json:"clearanceItems"`
}

func (*FinalReview) Kind() Kind { return KindFinalReview }

func (f *FinalReview) Validate() error {
	for _, item := range f.ClearanceItems {
		if err := oneOf("clearance "+item.ID, item.Status, ItemPending, ItemCleared, ItemNotRequired); err != nil {
			return err
		}
	}
	return nil
}

// --- Phase 7 ---

type ReviewItem struct {
	ID             string `json:"id" yaml:"id"`
	Title          string `json:"title" yaml:"title"`
	Description    string `json:"description" yaml:"description"`
	Status         string `json:"status" yaml:"-"`
	CompletedBy    string `json:"completedBy" yaml:"-"`
	CompletionDate string `json:"completionDate" yaml:"-"`
}

type TeamReview struct {
	ReviewItems []ReviewItem `json:"reviewItems"`
	FinalNotes  string       `json:"finalNotes"`
	SurgeryDate string       `json:"surgeryDate"`
}

func (*TeamReview) Kind() Kind { return KindTeamReview }

func (t *TeamReview) Validate() error {
	for _, item := range t.ReviewItems {
		if err := oneOf("review "+item.ID, item.Status, ItemPending, ItemCompleted); err != nil {
			return err
		}
	}
	return nil
}

// --- Phase 8 ---

const (
	PrepPending    = "pending"
	PrepInProgress = "in_progress"
	PrepCompleted  = "completed"
	PrepDelayed    = "delayed"
)

type PrepItem struct {
	ID           string   `json:"id" yaml:"id"`
	Title        string   `json:"title" yaml:"title"`
	Description  string   `json:"description" yaml:"description"`
	Category     string   `json:"category" yaml:"category"`
	Priority     string   `json:"priority" yaml:"priority"`
	Status       string   `json:"status" yaml:"-"`
	AssignedTo   string   `json:"assignedTo" yaml:"-"`
	Deadline     string   `json:"deadline" yaml:"-"`
	Dependencies []string `json:"dependencies" yaml:"dependencies"`
}

type VitalSigns struct {
	BloodPressure    string `json:"bloodPressure"`
	HeartRate        string `json:"heartRate"`
	Temperature      string `json:"temperature"`
	OxygenSaturation string `json:"oxygenSaturation"`
	Weight           string `json:"weight"`
}

type Coagulation struct {
	PT  string `json:"pt"`
	PTT string `json:"ptt"`
	INR string `json:"inr"`
}

type LaboratoryResults struct {
	Hemoglobin  string      `json:"hemoglobin"`
	Creatinine  string      `json:"creatinine"`
	Potassium   string      `json:"potassium"`
	Glucose     string      `json:"glucose"`
	Coagulation Coagulation `json:"coagulation"`
}

type Clearances struct {
	Cardiology  bool `json:"cardiology"`
	Pulmonology bool `json:"pulmonology"`
	Anesthesia  bool `json:"anesthesia"`
	Surgery     bool `json:"surgery"`
}

type PreoperativeAssessment struct {
	PartyRole          string            `json:"partyRole"`
	AssessmentDate     string            `json:"assessmentDate"`
	VitalSigns         VitalSigns        `json:"vitalSigns"`
	LaboratoryResults  LaboratoryResults `json:"laboratoryResults"`
	Clearances         Clearances        `json:"clearances"`
	RiskAssessment     string            `json:"riskAssessment"`
	SpecialPrecautions []string          `json:"specialPrecautions"`
}

// assessmentFields are the fixed fields the preparation blend scores.
func (a PreoperativeAssessment) assessmentFields() []string {
	v := a.VitalSigns
	return []string{a.AssessmentDate, v.BloodPressure, v.HeartRate, v.Temperature, v.OxygenSaturation, v.Weight}
}

type Preparation struct {
	Items      []PrepItem             `json:"items"`
	Assessment PreoperativeAssessment `json:"assessment"`
}

type SurgicalTeam struct {
	PrimarySurgeon   string   `json:"primarySurgeon"`
	AssistingSurgeon string   `json:"assistingSurgeon"`
	Anesthesiologist string   `json:"anesthesiologist"`
	Nurses           []string `json:"nurses"`
	Coordinator      string   `json:"coordinator"`
}

type EstimatedDuration struct {
	DonorProcedure     string `json:"donorProcedure"`
	OrganTransport     string `json:"organTransport"`
	RecipientProcedure string `json:"recipientProcedure"`
}

type OperativeSchedule struct {
	DonorSurgeryTime     string            `json:"donorSurgeryTime"`
	RecipientSurgeryTime string            `json:"recipientSurgeryTime"`
	ORRoom               string            `json:"orRoom"`
	SurgicalTeam         SurgicalTeam      `json:"surgicalTeam"`
	EstimatedDuration    EstimatedDuration `json:"estimatedDuration"`
	ContingencyPlans     []string          `json:"contingencyPlans"`
}

type SurgeryPreparation struct {
	OperativeSchedule    OperativeSchedule `json:"operativeSchedule"`
	DonorPreparation     Preparation       `json:"donorPreparation"`
	RecipientPreparation Preparation       `json:"recipientPreparation"`
}

func (*SurgeryPreparation) Kind() Kind { return KindSurgeryPreparation }

func (s *SurgeryPreparation) Validate() error {
	for _, prep := range []Preparation{s.DonorPreparation, s.RecipientPreparation} {
		for _, item := range prep.Items {
			if err := oneOf("preparation "+item.ID, item.Status, PrepPending, PrepInProgress, PrepCompleted, PrepDelayed); err != nil {
				return err
			}
		}
	}
	return nil
}

// For returns the preparation section that belongs to role.
func (s *SurgeryPreparation) For(role models.Role) Preparation {
	if role == models.RoleDonor {
		return s.DonorPreparation
	}
	return s.RecipientPreparation
}
