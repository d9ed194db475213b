package util

import "testing"

func TestSanitizeInput(t *testing.T) {
	if got := SanitizeInput("  john.doe@example.com \n"); got != "john.doe@example.com" {
		t.Errorf("SanitizeInput = %q", got)
	}
}

func TestContainsSuspicious(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"john.doe@example.com", false},
		{"6285800650661", false},
		{"<script>alert(1)</script>", true},
		{"a@b.com\" onerror=\"x", true},
		{"ONLOAD@example.com", true},
		{"{{payload}}", true},
	}

	for _, tc := range cases {
		if got := ContainsSuspicious(tc.in); got != tc.want {
			t.Errorf("ContainsSuspicious(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
