package util

import (
	"regexp"
	"strings"
)

var invitationCodeRegex = regexp.MustCompile(`^\d{5}$`)

// NormalizeInvitationCode trims surrounding whitespace and reports whether the
// result is a five digit code.
func NormalizeInvitationCode(s string) (string, bool) {
	code := strings.TrimSpace(s)
	return code, invitationCodeRegex.MatchString(code)
}

func IsValidEnum(value string, validValues []string) bool {
	if value == "" {
		return true
	}
	for _, v := range validValues {
		if value == v {
			return true
		}
	}
	return false
}
