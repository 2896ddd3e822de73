package util

import (
	"regexp"
)

var steamID64Regex = regexp.MustCompile(`^7656119\d{10}$`)

// IsValidSteamID64 reports whether s looks like an individual account's
// 64-bit Steam identifier.
func IsValidSteamID64(s string) bool {
	return steamID64Regex.MatchString(s)
}

// MaskSecret hides all but the first two characters of a credential for
// log output.
func MaskSecret(s string) string {
	if len(s) <= 2 {
		return "****"
	}
	return s[:2] + "****"
}
