// Package util provides common utility functions used across the extension.
package util

import (
	"fmt"
	"math"
	"strings"
)

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// SplitArgs splits a command argument string on whitespace, keeping double
// quoted sections together. An unterminated quote runs to the end of input.
// Input: `alert low "Go repair"` -> [alert low Go repair]
func SplitArgs(s string) []string {
	var (
		args    []string
		b       strings.Builder
		quoted  bool
		pending bool
	)
	flush := func() {
		if pending {
			args = append(args, b.String())
			b.Reset()
			pending = false
		}
	}
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			pending = true
		case !quoted && (r == ' ' || r == '\t' || r == '\n'):
			flush()
		default:
			b.WriteRune(r)
			pending = true
		}
	}
	flush()
	return args
}

// ParseSwitch parses an on/off style argument.
func ParseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1", "enable", "enabled":
		return true, nil
	case "off", "false", "no", "0", "disable", "disabled":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

// FormatPercent renders a 0..100 value. Without decimals the value is
// floored, so 99.9 never reads as 100.
func FormatPercent(v float32, showSign, showDecimals bool) string {
	var s string
	if showDecimals {
		s = fmt.Sprintf("%.2f", v)
	} else {
		s = fmt.Sprintf("%.0f", math.Floor(float64(v)))
	}
	if showSign {
		s += "%"
	}
	return s
}

// Contains reports whether str is in slice.
func Contains(slice []string, str string) bool {
	for _, s := range slice {
		if s == str {
			return true
		}
	}
	return false
}
