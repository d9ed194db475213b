package util

import "strings"

// suspiciousFragments never appear in a legitimate email address, phone
// number, or verification code.
var suspiciousFragments = []string{"<", ">", "{", "}", "script", "onerror", "onload"}

// SanitizeInput trims surrounding whitespace from caller-supplied text.
func SanitizeInput(s string) string {
	return strings.TrimSpace(s)
}

// ContainsSuspicious reports whether caller-supplied text carries markup or
// script fragments. Such input is rejected outright rather than escaped.
func ContainsSuspicious(s string) bool {
	lower := strings.ToLower(s)
	for _, fragment := range suspiciousFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
