package enums

import "fmt"

// BillingCycle is the recurring interval of a subscription.
type BillingCycle string

const (
	BillingCycleMonthly    BillingCycle = "monthly"
	BillingCycleQuarterly  BillingCycle = "quarterly"
	BillingCycleSemiannual BillingCycle = "semiannual"
	BillingCycleAnnual     BillingCycle = "annual"
	BillingCycleLifetime   BillingCycle = "lifetime"
)

var validBillingCycles = []BillingCycle{
	BillingCycleMonthly,
	BillingCycleQuarterly,
	BillingCycleSemiannual,
	BillingCycleAnnual,
	BillingCycleLifetime,
}

// String implements fmt.Stringer.
func (c BillingCycle) String() string {
	return string(c)
}

// IsValid reports whether the value is known.
func (c BillingCycle) IsValid() bool {
	for _, candidate := range validBillingCycles {
		if candidate == c {
			return true
		}
	}
	return false
}

// Months returns the cycle length in months. Lifetime has no period and
// returns zero.
func (c BillingCycle) Months() int {
	switch c {
	case BillingCycleMonthly:
		return 1
	case BillingCycleQuarterly:
		return 3
	case BillingCycleSemiannual:
		return 6
	case BillingCycleAnnual:
		return 12
	default:
		return 0
	}
}

// ParseBillingCycle converts raw input into a BillingCycle.
func ParseBillingCycle(value string) (BillingCycle, error) {
	for _, candidate := range validBillingCycles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing cycle %q", value)
}
