package utils_test

import (
	"strings"
	"testing"

	"github.com/dlvery/dlvery_backend/utils"
)

func TestValidatePasswordAcceptsStrongPasswords(t *testing.T) {
	strong := []string{
		"Tr0ng!Pass",
		"My$ecure9Word",
		"xK9#mQ2pL",
	}
	for _, pw := range strong {
		if errs := utils.ValidatePassword(pw); len(errs) != 0 {
			t.Errorf("%q rejected: %v", pw, errs)
		}
	}
}

func TestValidatePasswordViolations(t *testing.T) {
	cases := []struct {
		name     string
		password string
		wantPart string
	}{
		{"empty", "", "Password is required"},
		{"too short", "Ab1!", "at least 8 characters"},
		{"too long", strings.Repeat("Ab1!", 40), "must not exceed 128"},
		{"no uppercase", "weak$pass1", "uppercase letter"},
		{"no lowercase", "WEAK$PASS1", "lowercase letter"},
		{"no digit", "Weak$Pass", "digit"},
		{"no special", "WeakPass1", "special character"},
		{"common weak", "Password123", "too common"},
		{"repeated run", "Abbb$9xkm", "consecutive identical"},
		{"ascending run", "Abc1$defg", "sequential characters"},
		{"descending run", "A9$cbafgh", "sequential characters"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			errs := utils.ValidatePassword(tc.password)
			if len(errs) == 0 {
				t.Fatalf("%q should be rejected", tc.password)
			}
			for _, e := range errs {
				if strings.Contains(e, tc.wantPart) {
					return
				}
			}
			t.Fatalf("%q: no violation mentioning %q in %v", tc.password, tc.wantPart, errs)
		})
	}
}

func TestValidatePasswordReturnsAllViolations(t *testing.T) {
	errs := utils.ValidatePassword("short")
	if len(errs) < 3 {
		t.Fatalf("expected multiple violations, got %v", errs)
	}
}
