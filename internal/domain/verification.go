package domain

import "strings"

// ChallengeType distinguishes which PIN the server asks for.
type ChallengeType string

const (
	ChallengeEmailPin   ChallengeType = "EMAIL_PIN"
	ChallengeAccountPin ChallengeType = "ACCOUNT_PIN"
)

// ParseChallengeType maps the request_pin payload type ("ACCOUNT", "EMAIL")
// to a ChallengeType. Unknown values are treated as an email-bound PIN.
func ParseChallengeType(s string) ChallengeType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ACCOUNT", string(ChallengeAccountPin):
		return ChallengeAccountPin
	default:
		return ChallengeEmailPin
	}
}

// Challenge exists only while a PIN is pending.
type Challenge struct {
	Type       ChallengeType `json:"type"`
	AttemptPin string        `json:"-"`
}

// PinSubmission is validated before a verify_pin event is emitted.
type PinSubmission struct {
	Pin string `validate:"required,number,min=4,max=6"`
}
