package util

import "strings"

// mexicanMobilePrefix is the legacy "52 1" mobile prefix the platform reports
// for Mexican numbers; outbound sends expect the form without the "1".
const mexicanMobilePrefix = "521"

// NormalizeSenderID returns the canonical form of a raw sender number.
// A 13-character id starting with "521" loses its third character; every other
// input is returned unchanged. The result is stable under repeated application.
func NormalizeSenderID(raw string) string {
	if len(raw) == 13 && strings.HasPrefix(raw, mexicanMobilePrefix) {
		return "52" + raw[3:]
	}
	return raw
}
