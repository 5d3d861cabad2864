package hla

import "testing"

func fullTyping(a, b, c, dr, dq, dp [2]string) Typing {
	return Typing{A: a, B: b, C: c, DR: dr, DQ: dq, DP: dp}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"A*02":         "A02",
		" hla-a*01 ":   "A01",
		"DRB1*04":      "DR04",
		"HLA-DQB1*03":  "DQ03",
		"dpb1*04:01":   "DP04:01",
		"B*07*":        "B07",
		"   ":          "",
		"DR15":         "DR15",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLocusMismatchIsDirectional(t *testing.T) {
	same := Compute(Typing{A: [2]string{"A1", "A2"}}, Typing{A: [2]string{"A1", "A2"}})
	if same.MismatchResult.Details.A != 0 {
		t.Fatalf("expected 0 mismatches at A, got %d", same.MismatchResult.Details.A)
	}

	one := Compute(Typing{A: [2]string{"A1", "A3"}}, Typing{A: [2]string{"A1", "A2"}})
	if one.MismatchResult.Details.A != 1 {
		t.Fatalf("expected 1 mismatch at A, got %d", one.MismatchResult.Details.A)
	}
}

func TestComputeModerateRisk(t *testing.T) {
	donor := fullTyping(
		[2]string{"A*01", "A*02"},
		[2]string{"B*07", "B*08"},
		[2]string{"C*03", "C*04"},
		[2]string{"DRB1*15", "DRB1*04"},
		[2]string{"DQB1*06", "DQB1*03"},
		[2]string{"DPB1*04", "DPB1*02"},
	)
	recipient := fullTyping(
		[2]string{"A*01", "A*03"}, // A02 mismatched
		[2]string{"B*07", "B*44"}, // B08 mismatched
		[2]string{"C*03", "C*04"},
		[2]string{"DR15", "DR04"},
		[2]string{"DQ06", "DQ05"}, // DQ03 mismatched
		[2]string{"DP04", "DP02"},
	)

	res := Compute(donor, recipient)
	if res.MismatchResult.Total != 3 || res.MismatchResult.Class1 != 2 || res.MismatchResult.Class2 != 1 {
		t.Fatalf("unexpected mismatch result %+v", res.MismatchResult)
	}
	if res.MatchRatio != "9/12" {
		t.Fatalf("expected 9/12, got %s", res.MatchRatio)
	}
	if res.RiskLevel != RiskModerate {
		t.Fatalf("expected Moderate, got %s", res.RiskLevel)
	}
}

func TestComputePendingWhenLocusIncomplete(t *testing.T) {
	donor := fullTyping(
		[2]string{"A1", ""},
		[2]string{"B7", "B8"},
		[2]string{"C3", "C4"},
		[2]string{"DR1", "DR4"},
		[2]string{"DQ2", "DQ3"},
		[2]string{"DP1", "DP2"},
	)
	recipient := fullTyping(
		[2]string{"A2", "A3"},
		[2]string{"B7", "B8"},
		[2]string{"C3", "C4"},
		[2]string{"DR1", "DR4"},
		[2]string{"DQ2", "DQ3"},
		[2]string{"DP1", "DP2"},
	)

	res := Compute(donor, recipient)
	if res.RiskLevel != RiskPending {
		t.Fatalf("expected Pending, got %s", res.RiskLevel)
	}
	if res.MismatchResult.Total != 1 || res.MatchRatio != "11/12" {
		t.Fatalf("partial counts should still be reported, got %+v %s", res.MismatchResult, res.MatchRatio)
	}
}

func TestRiskTiers(t *testing.T) {
	cases := []struct {
		total int
		want  RiskLevel
	}{
		{0, RiskIdentical},
		{1, RiskLow},
		{2, RiskLow},
		{3, RiskModerate},
		{4, RiskModerate},
		{5, RiskHigh},
		{12, RiskHigh},
	}
	for _, tc := range cases {
		if got := tier(tc.total); got != tc.want {
			t.Fatalf("tier(%d) = %s, want %s", tc.total, got, tc.want)
		}
	}
}

func TestIdenticalTyping(t *testing.T) {
	typing := fullTyping(
		[2]string{"A1", "A2"},
		[2]string{"B7", "B8"},
		[2]string{"C3", "C4"},
		[2]string{"DR1", "DR4"},
		[2]string{"DQ2", "DQ3"},
		[2]string{"DP1", "DP2"},
	)
	res := Compute(typing, typing)
	if res.RiskLevel != RiskIdentical || res.MatchRatio != "12/12" {
		t.Fatalf("expected identical 12/12, got %s %s", res.RiskLevel, res.MatchRatio)
	}
	if typing.Filled() != 12 {
		t.Fatalf("expected 12 filled slots, got %d", typing.Filled())
	}
}

func TestEmpty(t *testing.T) {
	res := Empty()
	if res.MatchRatio != "0/12" {
		t.Fatalf("unexpected ratio %s", res.MatchRatio)
	}
	if res.RiskLevel != RiskPending {
		t.Fatalf("expected Pending, got %s", res.RiskLevel)
	}
}
