package ui

import (
	"strings"
	"time"
)

// Client-side form validation. These checks gate the network call; the server
// revalidates everything.

const minPasswordLen = 8

func validateRequired(value, label string) string {
	if strings.TrimSpace(value) == "" {
		return label + " is required"
	}
	return ""
}

func validateEmail(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "Email is required"
	}
	at := strings.Index(value, "@")
	if at <= 0 || !strings.Contains(value[at:], ".") {
		return "Enter a valid email address"
	}
	return ""
}

func validatePassword(value string) string {
	if len(value) < minPasswordLen {
		return "Password must be at least 8 characters"
	}
	return ""
}

func validateDOB(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "Date of birth is required"
	}
	dob, err := time.Parse("2006-01-02", value)
	if err != nil {
		return "Date of birth must be YYYY-MM-DD"
	}
	if dob.After(time.Now()) {
		return "Date of birth cannot be in the future"
	}
	return ""
}
