package utils

import (
	"fmt"
	"strings"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
)

var commonWeakPasswords = []string{
	"password", "123456", "password123", "admin", "qwerty",
	"letmein", "welcome", "monkey", "1234567890", "password1",
}

const specialChars = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

// ValidatePassword checks a candidate password against the signup policy
// and returns every violation, not just the first.
func ValidatePassword(password string) []string {
	var errs []string

	if password == "" {
		return []string{"Password is required"}
	}

	if len(password) < minPasswordLength {
		errs = append(errs, fmt.Sprintf("Password must be at least %d characters long", minPasswordLength))
	}
	if len(password) > maxPasswordLength {
		errs = append(errs, fmt.Sprintf("Password must not exceed %d characters", maxPasswordLength))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(specialChars, r):
			hasSpecial = true
		}
	}
	if !hasUpper {
		errs = append(errs, "Password must contain at least one uppercase letter")
	}
	if !hasLower {
		errs = append(errs, "Password must contain at least one lowercase letter")
	}
	if !hasDigit {
		errs = append(errs, "Password must contain at least one digit")
	}
	if !hasSpecial {
		errs = append(errs, "Password must contain at least one special character")
	}

	lower := strings.ToLower(password)
	for _, weak := range commonWeakPasswords {
		if lower == weak {
			errs = append(errs, "Password is too common and easily guessable")
			break
		}
	}

	if hasRepeatedCharacters(password, 3) {
		errs = append(errs, "Password cannot contain more than 3 consecutive identical characters")
	}
	if hasSequentialCharacters(password, 3) {
		errs = append(errs, "Password cannot contain 3 or more sequential characters")
	}

	return errs
}

func hasRepeatedCharacters(password string, window int) bool {
	b := []byte(password)
	for i := 0; i+window <= len(b); i++ {
		repeated := true
		for j := 1; j < window; j++ {
			if b[i+j] != b[i] {
				repeated = false
				break
			}
		}
		if repeated {
			return true
		}
	}
	return false
}

func hasSequentialCharacters(password string, minSequence int) bool {
	b := []byte(password)
	for i := 0; i+minSequence <= len(b); i++ {
		ascending, descending := true, true
		for j := 1; j < minSequence; j++ {
			if b[i+j] != b[i+j-1]+1 {
				ascending = false
			}
			if b[i+j] != b[i+j-1]-1 {
				descending = false
			}
		}
		if ascending || descending {
			return true
		}
	}
	return false
}
