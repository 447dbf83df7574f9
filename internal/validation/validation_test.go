package validation

import (
	"strings"
	"testing"

	"github.com/mealsync/mealsync/internal/domain"
)

func TestValidateJoinCode(t *testing.T) {
	valid := []string{"ABCD1234", "AAAAAAAA", "00000000", "Z9Z9Z9Z9"}
	for _, code := range valid {
		if err := ValidateJoinCode(code); err != nil {
			t.Errorf("ValidateJoinCode(%q) = %v, want nil", code, err)
		}
	}

	invalid := []string{
		"",
		"ABC123",    // too short
		"ABCD12345", // too long
		"abcd1234",  // lowercase
		"ABCD-234",  // punctuation
		"ABCD 234",  // space
	}
	for _, code := range invalid {
		if err := ValidateJoinCode(code); err == nil {
			t.Errorf("ValidateJoinCode(%q) = nil, want error", code)
		}
	}
}

func TestValidateDate(t *testing.T) {
	valid := []string{"2025-01-15", "2024-02-29", "2025-12-31"}
	for _, date := range valid {
		if err := ValidateDate(date); err != nil {
			t.Errorf("ValidateDate(%q) = %v, want nil", date, err)
		}
	}

	invalid := []string{
		"",
		"2025-1-5",
		"15-01-2025",
		"2025/01/15",
		"2025-02-30", // not a calendar day
		"2025-13-01",
	}
	for _, date := range invalid {
		if err := ValidateDate(date); err == nil {
			t.Errorf("ValidateDate(%q) = nil, want error", date)
		}
	}
}

func TestValidateMealType(t *testing.T) {
	for _, m := range domain.MealTypes() {
		if err := ValidateMealType(m); err != nil {
			t.Errorf("ValidateMealType(%q) = %v, want nil", m, err)
		}
	}
	if err := ValidateMealType("brunch"); err == nil {
		t.Error("ValidateMealType(brunch) = nil, want error")
	}
	if err := ValidateMealType(""); err == nil {
		t.Error("ValidateMealType(\"\") = nil, want error")
	}
}

func TestValidateNames(t *testing.T) {
	if err := ValidateGroupName("The Smiths"); err != nil {
		t.Errorf("ValidateGroupName = %v, want nil", err)
	}
	if err := ValidateGroupName(""); err == nil {
		t.Error("empty group name accepted")
	}
	if err := ValidateGroupName(strings.Repeat("x", 65)); err == nil {
		t.Error("oversized group name accepted")
	}

	if err := ValidateMemberName("Alice"); err != nil {
		t.Errorf("ValidateMemberName = %v, want nil", err)
	}
	if err := ValidateMemberName(""); err == nil {
		t.Error("empty member name accepted")
	}
}

func TestValidateRole(t *testing.T) {
	if err := ValidateRole(domain.RoleParent); err != nil {
		t.Errorf("ValidateRole(parent) = %v, want nil", err)
	}
	if err := ValidateRole(domain.RoleChild); err != nil {
		t.Errorf("ValidateRole(child) = %v, want nil", err)
	}
	if err := ValidateRole("admin"); err == nil {
		t.Error("ValidateRole(admin) = nil, want error")
	}
}

func TestValidationErrorsCollect(t *testing.T) {
	var errs ValidationErrors
	if errs.HasErrors() {
		t.Error("fresh collection reports errors")
	}
	errs.Add("name", "", "must not be empty")
	errs.Add("role", "admin", "unknown role")
	if !errs.HasErrors() {
		t.Error("collection with entries reports no errors")
	}
	if len(errs) != 2 {
		t.Errorf("len = %d, want 2", len(errs))
	}
	if !strings.Contains(errs.Error(), "name") {
		t.Errorf("Error() = %q, want field name mentioned", errs.Error())
	}
}
