package validation

import (
	"regexp"

	passwordvalidator "github.com/wagslane/go-password-validator"
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 6

// minPasswordEntropy is the entropy floor applied server-side on top of the
// per-requirement checks. A backstop: any password clearing the character-class
// requirements already carries at least ~30 bits, so this only bites if the
// requirement set ever loosens.
const minPasswordEntropy = 30

// PasswordRequirement is a single independent check a password must satisfy.
type PasswordRequirement struct {
	Label string
	re    *regexp.Regexp
}

// passwordRequirements are the character-class requirements shown to users and
// enforced server-side. The length requirement is checked separately.
var passwordRequirements = []PasswordRequirement{
	{Label: "Includes lowercase letter", re: regexp.MustCompile(`[a-z]`)},
	{Label: "Includes uppercase letter", re: regexp.MustCompile(`[A-Z]`)},
	{Label: "Includes number", re: regexp.MustCompile(`[0-9]`)},
	{Label: "Includes special symbol", re: regexp.MustCompile(`[$&+,:;=?@#|'<>.^*()%!_-]`)},
}

// RequirementResult reports one requirement's pass/fail for a candidate
// password, suitable for real-time feedback.
type RequirementResult struct {
	Label string `json:"label"`
	Meets bool   `json:"meets"`
}

// CheckPassword evaluates the candidate against every requirement. Pure
// function, no I/O.
func CheckPassword(password string) []RequirementResult {
	results := make([]RequirementResult, 0, len(passwordRequirements)+1)

	results = append(results, RequirementResult{
		Label: "Has at least 6 characters",
		Meets: len(password) >= MinPasswordLength,
	})

	for _, requirement := range passwordRequirements {
		results = append(results, RequirementResult{
			Label: requirement.Label,
			Meets: requirement.re.MatchString(password),
		})
	}

	return results
}

// IsPasswordValid reports whether the candidate meets every requirement.
func IsPasswordValid(password string) bool {
	for _, result := range CheckPassword(password) {
		if !result.Meets {
			return false
		}
	}
	return true
}

// PasswordStrength scores the candidate from 10 to 100 based on how many
// requirements it misses. 100 means all requirements met.
func PasswordStrength(password string) int {
	multiplier := 0
	if len(password) < MinPasswordLength {
		multiplier++
	}
	for _, requirement := range passwordRequirements {
		if !requirement.re.MatchString(password) {
			multiplier++
		}
	}

	strength := 100 - (100/(len(passwordRequirements)+1))*multiplier
	if strength < 10 {
		return 10
	}
	return strength
}

// PasswordPolicyError is returned when a candidate password is rejected.
// Handlers pair it with CheckPassword results for field-level feedback.
type PasswordPolicyError struct {
	Reason string
}

func (e *PasswordPolicyError) Error() string {
	return e.Reason
}

// ValidatePassword is the server-side gate before accepting a credential:
// every requirement must pass and the password must clear the entropy floor.
func ValidatePassword(password string) error {
	if !IsPasswordValid(password) {
		return &PasswordPolicyError{Reason: "password does not meet complexity requirements"}
	}

	// bcrypt silently truncates beyond 72 bytes
	if len(password) > 72 {
		return &PasswordPolicyError{Reason: "password must not exceed 72 characters"}
	}

	err := passwordvalidator.Validate(password, minPasswordEntropy)
	if err != nil {
		return &PasswordPolicyError{Reason: "password is too predictable, please choose a stronger one"}
	}

	return nil
}
