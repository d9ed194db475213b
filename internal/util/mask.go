package util

import "strings"

// MaskEmail exposes only the first and last character of the local part.
// "john.doe@example.com" -> "j***e@example.com". Inputs that don't look like
// an email are fully masked.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "***"
	}

	local := email[:at]
	domain := email[at+1:]

	if len(local) == 1 {
		return local + "***@" + domain
	}
	return local[:1] + "***" + local[len(local)-1:] + "@" + domain
}

// MaskPhone exposes only the first 4 and last 3 digits.
// "6285800650661" -> "6285******661". Short numbers are fully masked.
func MaskPhone(phone string) string {
	if len(phone) <= 7 {
		return "***"
	}
	return phone[:4] + strings.Repeat("*", len(phone)-7) + phone[len(phone)-3:]
}

// MaskDestination picks the masking scheme by shape: addresses containing
// an '@' mask as email, everything else as phone.
func MaskDestination(destination string) string {
	if strings.Contains(destination, "@") {
		return MaskEmail(destination)
	}
	return MaskPhone(destination)
}
