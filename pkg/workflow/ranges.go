package workflow

import (
	"regexp"
	"strconv"
	"strings"
)

// Flag is the tri-state interpretation of a lab value against its range.
type Flag string

const (
	FlagNone     Flag = ""
	FlagNormal   Flag = "normal"
	FlagAbnormal Flag = "abnormal"
)

// BloodTypeRange is the encoding used by the blood group item; any valid
// ABO group with an Rh sign is normal.
const BloodTypeRange = "A/B/AB/O [+/-]"

var (
	spanPattern      = regexp.MustCompile(`^(-?\d+(?:\.\d+)?)\s*-\s*(-?\d+(?:\.\d+)?)$`)
	bloodTypePattern = regexp.MustCompile(`^(A|B|AB|O)\s*[+-]$`)
)

// EvaluateRange flags item.Value against item.NormalRange.
func EvaluateRange(item TestItem) Flag {
	value := strings.TrimSpace(item.Value)
	if value == "" {
		return FlagNone
	}
	lower := strings.ToLower(value)
	if item.InputType == InputDropdown && (lower == "positive" || lower == "reactive") {
		return FlagAbnormal
	}

	rng := strings.TrimSpace(item.NormalRange)
	if rng == "" {
		if item.InputType == InputDropdown {
			return FlagNormal
		}
		return FlagNone
	}

	switch {
	case rng == BloodTypeRange:
		return flagIf(bloodTypePattern.MatchString(strings.ToUpper(value)))
	case strings.HasPrefix(rng, "<"):
		return compareBound(value, rng[1:], func(v, n float64) bool { return v < n })
	case strings.HasPrefix(rng, ">"):
		return compareBound(value, rng[1:], func(v, n float64) bool { return v > n })
	case strings.Contains(rng, "|"):
		for _, allowed := range strings.Split(rng, "|") {
			if strings.EqualFold(strings.TrimSpace(allowed), value) {
				return FlagNormal
			}
		}
		return FlagAbnormal
	}

	if m := spanPattern.FindStringSubmatch(rng); m != nil {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return FlagNone
		}
		lo, _ := strconv.ParseFloat(m[1], 64)
		hi, _ := strconv.ParseFloat(m[2], 64)
		return flagIf(v >= lo && v <= hi)
	}

	return flagIf(strings.EqualFold(rng, value))
}

func compareBound(value, bound string, ok func(v, n float64) bool) Flag {
	n, err := strconv.ParseFloat(strings.TrimSpace(bound), 64)
	if err != nil {
		return FlagNone
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return FlagNone
	}
	return flagIf(ok(v, n))
}

func flagIf(normal bool) Flag {
	if normal {
		return FlagNormal
	}
	return FlagAbnormal
}
