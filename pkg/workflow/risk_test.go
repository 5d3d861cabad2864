package workflow

import "testing"

func TestDonorRisk(t *testing.T) {
	base := DonorSurgicalPlan{
		DonorBmi:            "24",
		DonorAgeCategory:    AgeYoung,
		SmokingHistory:      "No",
		HypertensionHistory: "No",
		DiabetesHistory:     "No",
	}

	cases := []struct {
		name   string
		mutate func(p *DonorSurgicalPlan)
		want   string
	}{
		{"healthy", func(p *DonorSurgicalPlan) {}, RiskLow},
		{"missing input", func(p *DonorSurgicalPlan) { p.DiabetesHistory = "" }, RiskNotCalculated},
		{"bad bmi", func(p *DonorSurgicalPlan) { p.DonorBmi = "tall" }, RiskNotCalculated},
		{"obese only", func(p *DonorSurgicalPlan) { p.DonorBmi = "36" }, RiskMedium},
		{"overweight only", func(p *DonorSurgicalPlan) { p.DonorBmi = "31" }, RiskLow},
		{"middle aged hypertensive", func(p *DonorSurgicalPlan) {
			p.DonorAgeCategory = AgeMiddleAged
			p.HypertensionHistory = "Yes"
		}, RiskMedium},
		{"elderly smoker diabetic", func(p *DonorSurgicalPlan) {
			p.DonorAgeCategory = AgeElderly
			p.SmokingHistory = "Yes"
			p.DiabetesHistory = "Yes"
		}, RiskHigh},
		{"score exactly five", func(p *DonorSurgicalPlan) {
			p.DonorBmi = "36"
			p.SmokingHistory = "Yes"
			p.HypertensionHistory = "Yes"
		}, RiskHigh},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := base
			tc.mutate(&p)
			if got := DonorRisk(p); got != tc.want {
				t.Fatalf("DonorRisk = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTotalGFR(t *testing.T) {
	if got := TotalGFR("48.5", "51.25"); got != "99.75" {
		t.Fatalf("TotalGFR = %q", got)
	}
	if got := TotalGFR("48", ""); got != "" {
		t.Fatalf("TotalGFR with missing side = %q, want empty", got)
	}
}
