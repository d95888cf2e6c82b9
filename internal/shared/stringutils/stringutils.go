package stringutils

import "unicode/utf8"

// Clip returns the first n characters (runes) of s, without any marker.
func Clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Truncate shortens s to at most n characters, adding "..." if it was truncated.
func Truncate(s string, n int) string {
	clipped := Clip(s, n)
	if len(clipped) == len(s) {
		return s
	}
	return clipped + "..."
}

// OrDefault returns s if it's not empty, or def if s is empty.
func OrDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
