package workflow

import (
	"strconv"
	"strings"
)

const (
	RiskNotCalculated = "Not Calculated"
	RiskLow           = "Low"
	RiskMedium        = "Medium"
	RiskHigh          = "High"

	AgeElderly    = "Elderly (60+)"
	AgeMiddleAged = "Middle-aged (40-59)"
	AgeYoung      = "Young (<40)"
)

// DonorRisk scores the surgical plan's risk inputs. Any missing input yields
// RiskNotCalculated.
func DonorRisk(plan DonorSurgicalPlan) string {
	inputs := []string{plan.DonorBmi, plan.DonorAgeCategory, plan.SmokingHistory, plan.HypertensionHistory, plan.DiabetesHistory}
	for _, in := range inputs {
		if strings.TrimSpace(in) == "" {
			return RiskNotCalculated
		}
	}
	bmi, err := strconv.ParseFloat(strings.TrimSpace(plan.DonorBmi), 64)
	if err != nil {
		return RiskNotCalculated
	}

	score := 0
	switch {
	case bmi > 35:
		score += 2
	case bmi > 30:
		score++
	}
	switch plan.DonorAgeCategory {
	case AgeElderly:
		score += 2
	case AgeMiddleAged:
		score++
	}
	if plan.SmokingHistory == "Yes" {
		score += 2
	}
	if plan.HypertensionHistory == "Yes" {
		score++
	}
	if plan.DiabetesHistory == "Yes" {
		score += 2
	}

	switch {
	case score >= 5:
		return RiskHigh
	case score >= 2:
		return RiskMedium
	}
	return RiskLow
}

// TotalGFR sums the split GFR values, or returns "" when either side is not
// a number.
func TotalGFR(left, right string) string {
	l, err := strconv.ParseFloat(strings.TrimSpace(left), 64)
	if err != nil {
		return ""
	}
	r, err := strconv.ParseFloat(strings.TrimSpace(right), 64)
	if err != nil {
		return ""
	}
	return strconv.FormatFloat(l+r, 'f', 2, 64)
}
