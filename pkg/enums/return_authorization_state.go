package enums

import "fmt"

type ReturnAuthorizationState string

const (
	ReturnAuthorizationAuthorized ReturnAuthorizationState = "authorized"
	ReturnAuthorizationCanceled   ReturnAuthorizationState = "canceled"
)

var validReturnAuthorizationStates = []ReturnAuthorizationState{
	ReturnAuthorizationAuthorized,
	ReturnAuthorizationCanceled,
}

func (r ReturnAuthorizationState) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReturnAuthorizationState.
func (r ReturnAuthorizationState) IsValid() bool {
	for _, candidate := range validReturnAuthorizationStates {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReturnAuthorizationState converts raw input into a ReturnAuthorizationState.
func ParseReturnAuthorizationState(value string) (ReturnAuthorizationState, error) {
	for _, candidate := range validReturnAuthorizationStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return authorization state %q", value)
}
