// Package validation provides input validation for the registry,
// directory, and ledger commands. Join codes are exactly 8 uppercase
// alphanumeric characters; dates use the YYYY-MM-DD calendar form.
package validation

import (
	"fmt"
	"time"

	"github.com/mealsync/mealsync/internal/domain"
)

// JoinCodeLength is the fixed length of a group join code.
const JoinCodeLength = 8

// maxNameLength caps group and member names.
const maxNameLength = 64

// isUpper returns true if the byte is an uppercase ASCII letter.
func isUpper(b byte) bool {
	return b >= 'A' && b <= 'Z'
}

// isDigit returns true if the byte is an ASCII digit.
func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// ValidateJoinCode checks the ^[A-Z0-9]{8}$ join code form.
func ValidateJoinCode(code string) error {
	if len(code) != JoinCodeLength {
		return fmt.Errorf("join code must be exactly %d characters", JoinCodeLength)
	}
	for _, b := range []byte(code) {
		if !isUpper(b) && !isDigit(b) {
			return fmt.Errorf("join code can only contain uppercase letters and digits")
		}
	}
	return nil
}

// ValidateDate checks the YYYY-MM-DD date form, including calendar
// validity (2024-02-30 is rejected).
func ValidateDate(date string) error {
	if date == "" {
		return fmt.Errorf("date must not be empty")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("date must be in YYYY-MM-DD form")
	}
	return nil
}

// ValidateMealType checks for one of breakfast, lunch, dinner.
func ValidateMealType(m domain.MealType) error {
	if !domain.ValidMealType(m) {
		return fmt.Errorf("meal type must be breakfast, lunch, or dinner")
	}
	return nil
}

// ValidateGroupName checks a family group display name.
func ValidateGroupName(name string) error {
	if name == "" {
		return fmt.Errorf("group name must not be empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("group name must be at most %d bytes", maxNameLength)
	}
	return nil
}

// ValidateMemberName checks a member display name.
func ValidateMemberName(name string) error {
	if name == "" {
		return fmt.Errorf("member name must not be empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("member name must be at most %d bytes", maxNameLength)
	}
	return nil
}

// ValidateRole checks a member role label.
func ValidateRole(role domain.MemberRole) error {
	if !domain.ValidRole(role) {
		return fmt.Errorf("role must be parent or child")
	}
	return nil
}
