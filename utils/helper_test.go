package utils_test

import (
	"testing"

	"github.com/dlvery/dlvery_backend/utils"
)

func TestIsValidEmail(t *testing.T) {
	valid := []string{"agent@dlvery.com", "first.last+tag@sub.example.co"}
	for _, email := range valid {
		if !utils.IsValidEmail(email) {
			t.Errorf("%q should be valid", email)
		}
	}
	invalid := []string{"", "plainaddress", "missing@tld", "@no-local.com", "spaces in@example.com"}
	for _, email := range invalid {
		if utils.IsValidEmail(email) {
			t.Errorf("%q should be invalid", email)
		}
	}
}

func TestParseDecimal(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"15.50", "15.5"},
		{" 1,250.75 ", "1250.75"},
		{"", "0"},
		{"0", "0"},
	}
	for _, tc := range cases {
		got, err := utils.ParseDecimal(tc.input)
		if err != nil {
			t.Errorf("ParseDecimal(%q): %v", tc.input, err)
			continue
		}
		if got.String() != tc.want {
			t.Errorf("ParseDecimal(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
	if _, err := utils.ParseDecimal("abc"); err == nil {
		t.Error("non-numeric input should fail")
	}
}

func TestUniqueSlice(t *testing.T) {
	got := utils.UniqueSlice([]string{"a", "b", "a", "c", "b"})
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("got %v", got)
	}
}

func TestDereferencePtr(t *testing.T) {
	v := 7
	if got := utils.DereferencePtr(&v); got != 7 {
		t.Errorf("got %d", got)
	}
	if got := utils.DereferencePtr[int](nil); got != 0 {
		t.Errorf("nil without default = %d, want 0", got)
	}
	if got := utils.DereferencePtr[int](nil, 42); got != 42 {
		t.Errorf("nil with default = %d, want 42", got)
	}
}

func TestValidatePhoneNumber(t *testing.T) {
	if err := utils.ValidatePhoneNumber("+919876543210", utils.CountryCode); err != nil {
		t.Errorf("valid Indian mobile rejected: %v", err)
	}
	if err := utils.ValidatePhoneNumber("12345", utils.CountryCode); err == nil {
		t.Error("short number should be rejected")
	}
}
