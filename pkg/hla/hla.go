// Package hla scores donor/recipient tissue typing into per-locus antigen
// mismatches and a risk tier.
package hla

import (
	"fmt"
	"strings"
)

type Locus string

const (
	LocusA  Locus = "A"
	LocusB  Locus = "B"
	LocusC  Locus = "C"
	LocusDR Locus = "DR"
	LocusDQ Locus = "DQ"
	LocusDP Locus = "DP"
)

// Loci lists the six loci in report order.
var Loci = []Locus{LocusA, LocusB, LocusC, LocusDR, LocusDQ, LocusDP}

var (
	classI  = []Locus{LocusA, LocusB, LocusC}
	classII = []Locus{LocusDR, LocusDQ, LocusDP}
)

// MaxMismatches is six loci with two alleles each.
const MaxMismatches = 12

type RiskLevel string

const (
	RiskPending   RiskLevel = "Pending"
	RiskIdentical RiskLevel = "Identical"
	RiskLow       RiskLevel = "Low"
	RiskModerate  RiskLevel = "Moderate"
	RiskHigh      RiskLevel = "High"
)

// Typing is one party's typing: two free-text allele slots per locus.
type Typing struct {
	A  [2]string `json:"A"`
	B  [2]string `json:"B"`
	C  [2]string `json:"C"`
	DR [2]string `json:"DR"`
	DQ [2]string `json:"DQ"`
	DP [2]string `json:"DP"`
}

func (t Typing) Alleles(l Locus) [2]string {
	switch l {
	case LocusA:
		return t.A
	case LocusB:
		return t.B
	case LocusC:
		return t.C
	case LocusDR:
		return t.DR
	case LocusDQ:
		return t.DQ
	case LocusDP:
		return t.DP
	}
	return [2]string{}
}

// Slot returns a pointer to the allele array for l so callers can update it in place.
func (t *Typing) Slot(l Locus) *[2]string {
	switch l {
	case LocusA:
		return &t.A
	case LocusB:
		return &t.B
	case LocusC:
		return &t.C
	case LocusDR:
		return &t.DR
	case LocusDQ:
		return &t.DQ
	case LocusDP:
		return &t.DP
	}
	return nil
}

// Filled counts the non-blank allele slots across all loci.
func (t Typing) Filled() int {
	n := 0
	for _, l := range Loci {
		for _, a := range t.Alleles(l) {
			if strings.TrimSpace(a) != "" {
				n++
			}
		}
	}
	return n
}

type MismatchDetails struct {
	A  int `json:"A"`
	B  int `json:"B"`
	C  int `json:"C"`
	DR int `json:"DR"`
	DQ int `json:"DQ"`
	DP int `json:"DP"`
}

func (d *MismatchDetails) set(l Locus, n int) {
	switch l {
	case LocusA:
		d.A = n
	case LocusB:
		d.B = n
	case LocusC:
		d.C = n
	case LocusDR:
		d.DR = n
	case LocusDQ:
		d.DQ = n
	case LocusDP:
		d.DP = n
	}
}

func (d MismatchDetails) Get(l Locus) int {
	switch l {
	case LocusA:
		return d.A
	case LocusB:
		return d.B
	case LocusC:
		return d.C
	case LocusDR:
		return d.DR
	case LocusDQ:
		return d.DQ
	case LocusDP:
		return d.DP
	}
	return 0
}

type MismatchResult struct {
	Total   int             `json:"total"`
	Class1  int             `json:"class1"`
	Class2  int             `json:"class2"`
	Details MismatchDetails `json:"details"`
}

type Result struct {
	MismatchResult MismatchResult `json:"mismatchResult"`
	MatchRatio     string         `json:"matchRatio"`
	RiskLevel      RiskLevel      `json:"riskLevel"`
}

// Empty is the placeholder stored before any typing has been entered.
func Empty() Result {
	return Result{MatchRatio: fmt.Sprintf("0/%d", MaxMismatches), RiskLevel: RiskPending}
}

// Compute counts, per locus, the donor antigens the recipient lacks.
func Compute(donor, recipient Typing) Result {
	var res Result
	complete := true

	for _, l := range Loci {
		d := normalizeSet(donor.Alleles(l))
		r := normalizeSet(recipient.Alleles(l))
		if len(d) < 2 || len(r) < 2 {
			complete = false
		}

		mismatches := 0
		for _, allele := range d {
			if !contains(r, allele) {
				mismatches++
			}
		}
		res.MismatchResult.Details.set(l, mismatches)
	}

	for _, l := range classI {
		res.MismatchResult.Class1 += res.MismatchResult.Details.Get(l)
	}
	for _, l := range classII {
		res.MismatchResult.Class2 += res.MismatchResult.Details.Get(l)
	}
	res.MismatchResult.Total = res.MismatchResult.Class1 + res.MismatchResult.Class2
	res.MatchRatio = ratio(res.MismatchResult.Total)

	if !complete {
		res.RiskLevel = RiskPending
		return res
	}
	res.RiskLevel = tier(res.MismatchResult.Total)
	return res
}

func tier(total int) RiskLevel {
	switch {
	case total == 0:
		return RiskIdentical
	case total <= 2:
		return RiskLow
	case total <= 4:
		return RiskModerate
	default:
		return RiskHigh
	}
}

func ratio(total int) string {
	return fmt.Sprintf("%d/%d", MaxMismatches-total, MaxMismatches)
}

func normalizeSet(alleles [2]string) []string {
	out := make([]string, 0, 2)
	for _, a := range alleles {
		if n := Normalize(a); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
