// Package timeofday converts between "HH:MM" strings and minutes since midnight.
//
// Every function here fails soft: malformed input yields a zero value rather
// than an error, so a bad record can never break layout or scheduling.
package timeofday

import (
	"fmt"
	"strconv"
	"strings"
)

// split extracts the hour and minute components of s. A trailing suffix after
// the minutes (e.g. "09:30 AM") is ignored.
func split(s string) (hours, minutes int, ok bool) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0, 0, false
	}

	hs := strings.TrimSpace(parts[0])
	ms := strings.TrimSpace(parts[1])
	if i := strings.IndexByte(ms, ' '); i >= 0 {
		ms = ms[:i]
	}

	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, false
	}
	m, err := strconv.Atoi(ms)
	if err != nil {
		return 0, 0, false
	}
	return h, m, true
}

// ParseMinutes returns hours*60 + minutes for s, or 0 when s is malformed.
func ParseMinutes(s string) int {
	h, m, ok := split(s)
	if !ok {
		return 0
	}
	return h*60 + m
}

// Valid reports whether s has a parseable hour and minute component.
func Valid(s string) bool {
	h, m, ok := split(s)
	return ok && h >= 0 && m >= 0
}

// FormatDisplay re-renders s as zero-padded "HH:MM". It returns "" for
// malformed or negative input. FormatDisplay(FormatDisplay(x)) == FormatDisplay(x).
func FormatDisplay(s string) string {
	h, m, ok := split(s)
	if !ok || h < 0 || m < 0 {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

// Format renders minutes since midnight as "HH:MM". Negative values clamp to "00:00".
func Format(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
