package workflow

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/transplantflow/platform/pkg/common/models"
	"gopkg.in/yaml.v3"
)

// Catalog holds the canonical item sets templates are built from.
type Catalog struct {
	DonorTests             []TestItem      `yaml:"donorTests"`
	RecipientTests         []TestItem      `yaml:"recipientTests"`
	RecipientImaging       []ImagingTest   `yaml:"recipientImaging"`
	DonorConsultations     []Consultation  `yaml:"donorConsultations"`
	RecipientConsultations []Consultation  `yaml:"recipientConsultations"`
	DonorClearance         []ClearanceItem `yaml:"donorClearance"`
	RecipientClearance     []ClearanceItem `yaml:"recipientClearance"`
	ReviewItems            []ReviewItem    `yaml:"reviewItems"`
	DonorPreparation       []PrepItem      `yaml:"donorPreparation"`
	RecipientPreparation   []PrepItem      `yaml:"recipientPreparation"`
}

// LoadCatalog reads a YAML catalog. Sections the file omits keep their
// defaults; an empty path returns DefaultCatalog.
func LoadCatalog(path string) (Catalog, error) {
	def := DefaultCatalog()
	if path == "" {
		return def, nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return def, err
	}
	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	cat.fillFrom(def)
	if err := cat.validate(); err != nil {
		return Catalog{}, err
	}
	return cat, nil
}

func (c *Catalog) fillFrom(def Catalog) {
	if len(c.DonorTests) == 0 {
		c.DonorTests = def.DonorTests
	}
	if len(c.RecipientTests) == 0 {
		c.RecipientTests = def.RecipientTests
	}
	if len(c.RecipientImaging) == 0 {
		c.RecipientImaging = def.RecipientImaging
	}
	if len(c.DonorConsultations) == 0 {
		c.DonorConsultations = def.DonorConsultations
	}
	if len(c.RecipientConsultations) == 0 {
		c.RecipientConsultations = def.RecipientConsultations
	}
	if len(c.DonorClearance) == 0 {
		c.DonorClearance = def.DonorClearance
	}
	if len(c.RecipientClearance) == 0 {
		c.RecipientClearance = def.RecipientClearance
	}
	if len(c.ReviewItems) == 0 {
		c.ReviewItems = def.ReviewItems
	}
	if len(c.DonorPreparation) == 0 {
		c.DonorPreparation = def.DonorPreparation
	}
	if len(c.RecipientPreparation) == 0 {
		c.RecipientPreparation = def.RecipientPreparation
	}
}

func (c Catalog) validate() error {
	sections := map[string][]string{}
	for _, t := range c.DonorTests {
		sections["donorTests"] = append(sections["donorTests"], t.ID)
	}
	for _, t := range c.RecipientTests {
		sections["recipientTests"] = append(sections["recipientTests"], t.ID)
	}
	for _, t := range c.RecipientImaging {
		sections["recipientImaging"] = append(sections["recipientImaging"], t.ID)
	}
	for _, t := range c.DonorConsultations {
		sections["donorConsultations"] = append(sections["donorConsultations"], t.ID)
	}
	for _, t := range c.RecipientConsultations {
		sections["recipientConsultations"] = append(sections["recipientConsultations"], t.ID)
	}
	for _, t := range c.ReviewItems {
		sections["reviewItems"] = append(sections["reviewItems"], t.ID)
	}
	for name, ids := range sections {
		seen := map[string]bool{}
		for _, id := range ids {
			if id == "" {
				return fmt.Errorf("catalog %s: item without id", name)
			}
			if seen[id] {
				return fmt.Errorf("catalog %s: duplicate id %q", name, id)
			}
			seen[id] = true
		}
	}
	return nil
}

// Tests returns the screening catalog for role.
func (c Catalog) Tests(role models.Role) []TestItem {
	if role == models.RoleDonor {
		return c.DonorTests
	}
	return c.RecipientTests
}

const (
	catBlood   = "Blood Tests & Laboratory Studies"
	catUrine   = "Urine & Other Tests"
	catImaging = "Imaging & Specialized Tests"
)

var (
	reactiveOptions = []string{"Non-Reactive", "Reactive"}
	positiveOptions = []string{"Negative", "Positive"}
	growthOptions   = []string{"No Growth", "Positive"}
	organismInput   = ConditionalInput{OnValue: "Positive", Placeholder: "Specify organism"}
)

func numTest(id, name, unit, normalRange, category string) TestItem {
	return TestItem{ID: id, Name: name, Unit: unit, NormalRange: normalRange, Category: category, InputType: InputNumber}
}

func textTest(id, name, normalRange, category string) TestItem {
	return TestItem{ID: id, Name: name, NormalRange: normalRange, Category: category, InputType: InputText}
}

func dropTest(id, name string, options []string, category string) TestItem {
	return TestItem{ID: id, Name: name, DropdownOptions: options, Category: category, InputType: InputDropdown}
}

func withConditional(t TestItem, c Conditional) TestItem {
	t.Conditional = c
	return t
}

func withInput(t TestItem, in ConditionalInput) TestItem {
	t.ConditionalInput = in
	return t
}

func bloodGroupTest() TestItem {
	t := dropTest("blood_group", "Blood Grouping", models.BloodTypes, catBlood)
	t.NormalRange = BloodTypeRange
	return t
}

func DefaultCatalog() Catalog {
	return Catalog{
		DonorTests:             defaultDonorTests(),
		RecipientTests:         defaultRecipientTests(),
		RecipientImaging:       defaultRecipientImaging(),
		DonorConsultations:     defaultConsultations("donor", dept{suffix: "uro", name: "Urology"}),
		RecipientConsultations: defaultConsultations("rec", dept{suffix: "nephro", name: "Nephrology"}),
		DonorClearance: []ClearanceItem{
			{ID: "donor_med_review", Title: "Final Medical Review", Description: "Comprehensive assessment of all evaluation data."},
			{ID: "donor_surg_clear", Title: "Surgical Clearance", Description: "Final sign-off on operative fitness for donation."},
			{ID: "donor_anesth_clear", Title: "Anesthesia Clearance", Description: "Final assessment of perioperative risk."},
			{ID: "donor_consent", Title: "Final Donation Consent", Description: "Verification of informed consent for donation."},
			{ID: "donor_advocate", Title: "Independent Advocate Clearance", Description: "Confirmation of ethical oversight and donor well-being."},
		},
		RecipientClearance: []ClearanceItem{
			{ID: "rec_med_review", Title: "Comprehensive Medical Review", Description: "Final assessment of readiness for transplant."},
			{ID: "rec_surg_clear", Title: "Surgical Clearance", Description: "Final sign-off on operative candidacy."},
			{ID: "rec_anesth_clear", Title: "Anesthesia Clearance", Description: "Final assessment of perioperative optimization."},
			{ID: "rec_consent", Title: "Final Informed Consent", Description: "Verification of informed consent for transplant procedure."},
		},
		ReviewItems: []ReviewItem{
			{ID: "case_presentation", Title: "Case Presentation", Description: "Present patient case to multidisciplinary team"},
			{ID: "team_discussion", Title: "Team Discussion", Description: "Multidisciplinary team discussion and evaluation"},
			{ID: "risk_review", Title: "Risk Assessment Review", Description: "Review of surgical and medical risks"},
			{ID: "transplant_approval", Title: "Transplant Approval", Description: "Official transplant committee approval"},
			{ID: "surgery_date", Title: "Surgery Date Assignment", Description: "Assignment of tentative transplant date"},
		},
		DonorPreparation: []PrepItem{
			{ID: "donor_final_crossmatch", Title: "Final Crossmatch", Description: "Final compatibility test before surgery.", Category: "medical", Priority: "critical"},
			{ID: "donor_pre_admit_testing", Title: "Pre-admission Testing (PAT)", Description: "Final blood work and ECG.", Category: "medical", Priority: "high"},
			{ID: "donor_anesthesia_consult", Title: "Anesthesia Pre-Op Consult", Description: "Final assessment by the anesthesiologist.", Category: "anesthesia", Priority: "high"},
			{ID: "donor_surgical_consent", Title: "Surgical Consent Signed", Description: "Informed consent for nephrectomy confirmed and signed.", Category: "administrative", Priority: "critical"},
			{ID: "donor_admission_scheduled", Title: "Hospital Admission Scheduled", Description: "Bed and admission time confirmed.", Category: "administrative", Priority: "medium"},
			{ID: "donor_npo_verified", Title: "NPO Status Verified", Description: "Confirmation of nothing-by-mouth status.", Category: "surgical", Priority: "critical"},
		},
		RecipientPreparation: []PrepItem{
			{ID: "rec_final_crossmatch", Title: "Final Crossmatch", Description: "Final compatibility test before surgery.", Category: "medical", Priority: "critical"},
			{ID: "rec_pre_op_dialysis", Title: "Pre-operative Dialysis", Description: "Final dialysis session completed as scheduled.", Category: "medical", Priority: "high"},
			{ID: "rec_immuno_protocol", Title: "Immunosuppression Protocol Initiated", Description: "First dose of induction immunosuppressants administered.", Category: "medical", Priority: "critical"},
			{ID: "rec_anesthesia_consult", Title: "Anesthesia Pre-Op Consult", Description: "Final assessment by the anesthesiologist.", Category: "anesthesia", Priority: "high"},
			{ID: "rec_surgical_consent", Title: "Surgical Consent Signed", Description: "Informed consent for transplantation confirmed and signed.", Category: "administrative", Priority: "critical"},
			{ID: "rec_blood_products", Title: "Blood Products Availability Confirmed", Description: "Availability of matched blood products confirmed.", Category: "surgical", Priority: "high"},
		},
	}
}

type dept struct {
	suffix, name string
	applicable   bool
	cond         Conditional
}

// defaultConsultations builds the department list shared by both roles,
// led by the role-specific department.
func defaultConsultations(prefix string, lead dept) []Consultation {
	lead.applicable = true
	depts := []dept{lead}
	depts = append(depts,
		dept{suffix: "cardio", name: "Cardiology", applicable: true},
		dept{suffix: "pulmo", name: "Pulmonology", applicable: true},
		dept{suffix: "psych", name: "Psychiatry/Social Worker", applicable: true},
		dept{suffix: "dental", name: "Dental", applicable: true},
		dept{suffix: "ent", name: "ENT", applicable: true},
		dept{suffix: "gyno", name: "Gynecology", cond: Conditional{Type: ConditionGender, Gender: models.GenderFemale}},
		dept{suffix: "anesth", name: "Anesthesiology (PAC)", applicable: true},
	)
	if prefix == "rec" {
		depts = append(depts, dept{suffix: "gi", name: "Gastroenterology (GI)"})
	}

	out := make([]Consultation, 0, len(depts))
	for _, d := range depts {
		out = append(out, Consultation{
			ID:            prefix + "_" + d.suffix,
			Department:    d.name,
			IsApplicable:  d.applicable,
			Applicability: d.cond,
		})
	}
	return out
}

func defaultRecipientImaging() []ImagingTest {
	return []ImagingTest{
		{ID: "echo", Name: "Echocardiogram (ECHO)"},
		{ID: "usg_doppler_iliac", Name: "USG Doppler of Iliac Vessels"},
		{ID: "coronary_angiography", Name: "Coronary Angiography (if indicated)"},
	}
}

func defaultRecipientTests() []TestItem {
	return []TestItem{
		bloodGroupTest(),
		numTest("hemoglobin", "Hemoglobin (Hb)", "g/dL", "13.5-17.5", catBlood),
		numTest("total_count", "Total Count (TC)", "cells/mcL", "4500-11000", catBlood),
		numTest("neutrophils", "Neutrophils", "%", "40-60", catBlood),
		numTest("lymphocytes", "Lymphocytes", "%", "20-40", catBlood),
		numTest("platelets", "Platelets", "x10^3/uL", "150-450", catBlood),
		numTest("urea", "Urea", "mg/dL", "7-20", catBlood),
		numTest("creatinine", "Creatinine", "mg/dL", "0.6-1.3", catBlood),
		numTest("sodium", "Sodium (Na)", "mEq/L", "135-145", catBlood),
		numTest("potassium", "Potassium (K)", "mEq/L", "3.5-5.1", catBlood),
		numTest("uric_acid_rft", "Uric Acid", "mg/dL", "3.5-7.2", catBlood),
		numTest("bt", "Bleeding Time (BT)", "mins", "2-7", catBlood),
		numTest("ct", "Clotting Time (CT)", "mins", "8-15", catBlood),
		numTest("pt", "Prothrombin Time (PT)", "seconds", "11-13.5", catBlood),
		numTest("inr", "INR", "", "0.8-1.1", catBlood),
		numTest("aptt", "APTT", "seconds", "25-35", catBlood),
		numTest("fbs", "FBS", "mg/dL", "70-100", catBlood),
		numTest("ppbs", "PP", "mg/dL", "70-140", catBlood),
		numTest("hba1c", "HbA1C", "%", "<5.7", catBlood),
		dropTest("hbsag", "HBsAg", reactiveOptions, catBlood),
		dropTest("anti_hcv", "Anti-HCV", reactiveOptions, catBlood),
		dropTest("hiv", "HIV 1 & 2", reactiveOptions, catBlood),
		numTest("total_bilirubin", "Bilirubin (Total)", "mg/dL", "0.1-1.2", catBlood),
		numTest("cong_bilirubin", "Bilirubin (Conjugated)", "mg/dL", "0.0-0.3", catBlood),
		numTest("sgpt", "SGPT (ALT)", "U/L", "7-56", catBlood),
		numTest("sgot", "SGOT (AST)", "U/L", "10-40", catBlood),
		numTest("alp", "Alkaline Phosphatase (ALP)", "U/L", "44-147", catBlood),
		numTest("ft3", "Free T3", "pg/mL", "2.0-4.4", catBlood),
		numTest("ft4", "Free T4", "ng/dL", "0.8-1.8", catBlood),
		numTest("tsh", "TSH", "mIU/L", "0.4-4.0", catBlood),
		numTest("total_cholesterol", "Total Cholesterol", "mg/dL", "<200", catBlood),
		numTest("triglycerides", "Triglycerides (TG)", "mg/dL", "<150", catBlood),
		numTest("hdl", "HDL Cholesterol", "mg/dL", ">40", catBlood),
		numTest("ldl", "LDL Cholesterol", "mg/dL", "<100", catBlood),
		numTest("calcium", "Calcium", "mg/dL", "8.6-10.3", catBlood),
		numTest("phosphorus", "Phosphorus", "mg/dL", "2.5-4.5", catBlood),
		numTest("ipth", "iPTH", "pg/mL", "10-65", catBlood),
		numTest("vitd", "Vitamin D", "ng/mL", "30-100", catBlood),
		numTest("total_protein", "Total Protein", "g/dL", "6.0-8.3", catBlood),
		numTest("albumin", "Albumin", "g/dL", "3.4-5.4", catBlood),
		numTest("serum_iron", "Serum Iron", "mcg/dL", "60-170", catBlood),
		numTest("ferritin", "Ferritin", "ng/mL", "30-400", catBlood),
		numTest("tibc", "TIBC", "mcg/dL", "240-450", catBlood),
		numTest("tsat", "TSAT", "%", "20-50", catBlood),
		withInput(dropTest("blood_cs", "Blood C/S", growthOptions, catBlood), organismInput),
		dropTest("ana_screening", "ANA-Screening", positiveOptions, catBlood),
		numTest("cmv_igg", "Cytomegalovirus (CMV) - IgG", "AU/mL", "<0.6", catBlood),
		numTest("cmv_igm", "Cytomegalovirus (CMV) - IgM", "Index", "<0.85", catBlood),
		withConditional(numTest("psa", "PSA", "ng/mL", "<4.0", catBlood),
			Conditional{Type: ConditionBoth, Gender: models.GenderMale, MinAge: 50}),

		textTest("urine_re", "Urine R/E", "Clear, pH 5-8", catUrine),
		withConditional(dropTest("pregnancy_test", "Urine Pregnancy Test", positiveOptions, catUrine),
			Conditional{Type: ConditionGender, Gender: models.GenderFemale}),
		textTest("stool_re", "Stool R/E", "No parasites/ova", catUrine),
		dropTest("stool_occult", "Stool Occult Blood", positiveOptions, catUrine),

		textTest("chest_xray", "Chest X-ray P/A view", "Clear lung fields", catImaging),
		textTest("kub_xray", "X-ray KUB", "No calcification", catImaging),
		textTest("ecg", "ECG", "Normal sinus rhythm", catImaging),
		textTest("echo", "ECHO", "", catImaging),
		textTest("usg_abdomen", "USG Abdomen & Pelvis", "Normal organ size", catImaging),
		textTest("usg_doppler", "USG Doppler of bilateral iliac vessels", "Patent vessels", catImaging),
		dropTest("sputum_afb", "Sputum AFB: I & II", positiveOptions, catImaging),
		withInput(dropTest("sputum_cs", "Sputum C/S", growthOptions, catImaging), organismInput),
		withConditional(textTest("colonoscopy", "Colonoscopy", "Normal findings", catImaging),
			Conditional{Type: ConditionAge, MinAge: 60}),
	}
}

func defaultDonorTests() []TestItem {
	return []TestItem{
		bloodGroupTest(),
		numTest("hemoglobin", "Hemoglobin (Hb)", "g/dL", "13.5-17.5", catBlood),
		numTest("total_count", "Total Count (TC)", "cells/mcL", "4500-11000", catBlood),
		numTest("platelets", "Platelets", "x10^3/uL", "150-450", catBlood),
		numTest("urea", "Urea", "mg/dL", "7-20", catBlood),
		numTest("creatinine", "Creatinine", "mg/dL", "0.6-1.3", catBlood),
		numTest("egfr", "eGFR", "mL/min/1.73m2", ">90", catBlood),
		numTest("sodium", "Sodium (Na)", "mEq/L", "135-145", catBlood),
		numTest("potassium", "Potassium (K)", "mEq/L", "3.5-5.1", catBlood),
		numTest("uric_acid", "Uric Acid", "mg/dL", "3.5-7.2", catBlood),
		numTest("pt", "Prothrombin Time (PT)", "seconds", "11-13.5", catBlood),
		numTest("inr", "INR", "", "0.8-1.1", catBlood),
		numTest("aptt", "APTT", "seconds", "25-35", catBlood),
		numTest("fbs", "FBS", "mg/dL", "70-100", catBlood),
		numTest("ppbs", "PP", "mg/dL", "70-140", catBlood),
		numTest("hba1c", "HbA1C", "%", "<5.7", catBlood),
		numTest("ogtt", "OGTT (2 hr)", "mg/dL", "<140", catBlood),
		dropTest("hbsag", "HBsAg", reactiveOptions, catBlood),
		dropTest("anti_hcv", "Anti-HCV", reactiveOptions, catBlood),
		dropTest("hiv", "HIV 1 & 2", reactiveOptions, catBlood),
		dropTest("vdrl", "VDRL", reactiveOptions, catBlood),
		numTest("total_bilirubin", "Bilirubin (Total)", "mg/dL", "0.1-1.2", catBlood),
		numTest("sgpt", "SGPT (ALT)", "U/L", "7-56", catBlood),
		numTest("sgot", "SGOT (AST)", "U/L", "10-40", catBlood),
		numTest("tsh", "TSH", "mIU/L", "0.4-4.0", catBlood),
		numTest("total_cholesterol", "Total Cholesterol", "mg/dL", "<200", catBlood),
		numTest("triglycerides", "Triglycerides (TG)", "mg/dL", "<150", catBlood),
		numTest("hdl", "HDL Cholesterol", "mg/dL", ">40", catBlood),
		numTest("ldl", "LDL Cholesterol", "mg/dL", "<100", catBlood),
		numTest("cmv_igg", "Cytomegalovirus (CMV) - IgG", "AU/mL", "<0.6", catBlood),
		withConditional(numTest("psa", "PSA", "ng/mL", "<4.0", catBlood),
			Conditional{Type: ConditionBoth, Gender: models.GenderMale, MinAge: 50}),

		textTest("urine_re", "Urine R/E", "Clear, pH 5-8", catUrine),
		withInput(dropTest("urine_cs", "Urine C/S", growthOptions, catUrine), organismInput),
		numTest("urine_acr", "Urine Albumin/Creatinine Ratio", "mg/g", "<30", catUrine),
		numTest("urine_protein_24h", "24h Urine Protein", "mg/day", "<150", catUrine),
		numTest("creatinine_clearance", "24h Creatinine Clearance", "mL/min", "90-140", catUrine),
		withConditional(dropTest("pregnancy_test", "Urine Pregnancy Test", positiveOptions, catUrine),
			Conditional{Type: ConditionGender, Gender: models.GenderFemale}),

		textTest("chest_xray", "Chest X-ray P/A view", "Clear lung fields", catImaging),
		textTest("ecg", "ECG", "Normal sinus rhythm", catImaging),
		textTest("echo", "ECHO", "", catImaging),
		textTest("usg_abdomen", "USG Abdomen & Pelvis", "Normal organ size", catImaging),
		withConditional(textTest("mammography", "Mammography", "BIRADS 1", catImaging),
			Conditional{Type: ConditionBoth, Gender: models.GenderFemale, MinAge: 40}),
		withConditional(textTest("pap_smear", "PAP Smear", "NILM", catImaging),
			Conditional{Type: ConditionGender, Gender: models.GenderFemale}),
		withConditional(textTest("colonoscopy", "Colonoscopy", "Normal findings", catImaging),
			Conditional{Type: ConditionAge, MinAge: 50}),
	}
}
