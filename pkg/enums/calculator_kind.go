package enums

import "fmt"

// CalculatorKind selects how a shipping method prices a package.
type CalculatorKind string

const (
	CalculatorFlatRate CalculatorKind = "flat_rate"
	CalculatorPerItem  CalculatorKind = "per_item"
	CalculatorRemote   CalculatorKind = "remote"
)

var validCalculatorKinds = []CalculatorKind{
	CalculatorFlatRate,
	CalculatorPerItem,
	CalculatorRemote,
}

func (c CalculatorKind) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CalculatorKind.
func (c CalculatorKind) IsValid() bool {
	for _, candidate := range validCalculatorKinds {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCalculatorKind converts raw input into a CalculatorKind.
func ParseCalculatorKind(value string) (CalculatorKind, error) {
	for _, candidate := range validCalculatorKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid calculator kind %q", value)
}
