package enums

import "fmt"

// DistributionMethod selects how a rule payout is split into a settlement breakdown.
type DistributionMethod string

const (
	DistributionUsers       DistributionMethod = "USERS"
	DistributionRegion      DistributionMethod = "REGION"
	DistributionGovernorate DistributionMethod = "GOVERNORATE"
	DistributionDistrict    DistributionMethod = "DISTRICT"
	DistributionSegment     DistributionMethod = "SEGMENT"
	DistributionApplyAll    DistributionMethod = "APPLYALL"
)

var validDistributionMethods = []DistributionMethod{
	DistributionUsers,
	DistributionRegion,
	DistributionGovernorate,
	DistributionDistrict,
	DistributionSegment,
	DistributionApplyAll,
}

// String implements fmt.Stringer.
func (m DistributionMethod) String() string {
	return string(m)
}

// IsValid reports whether the value is a known distribution method.
func (m DistributionMethod) IsValid() bool {
	for _, candidate := range validDistributionMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsEntityScoped reports whether the method yields one entry per population entity.
func (m DistributionMethod) IsEntityScoped() bool {
	switch m {
	case DistributionGovernorate, DistributionDistrict, DistributionSegment:
		return true
	default:
		return false
	}
}

// ParseDistributionMethod converts raw input into DistributionMethod.
func ParseDistributionMethod(value string) (DistributionMethod, error) {
	for _, candidate := range validDistributionMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid distribution method %q", value)
}
