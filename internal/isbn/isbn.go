// Package isbn normalizes and validates ISBN-10 and ISBN-13 identifiers.
package isbn

import "strings"

// Normalize strips hyphens and whitespace and upper-cases the result so an
// ISBN-10 'x' check digit compares equal to 'X'.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch r {
		case '-', ' ', '\t', '\n', '\r':
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

// IsValid reports whether s is a well-formed ISBN-10 or ISBN-13 with a
// correct check digit. s is expected to be normalized already.
func IsValid(s string) bool {
	switch len(s) {
	case 10:
		return validISBN10(s)
	case 13:
		return validISBN13(s)
	default:
		return false
	}
}

// Parse normalizes raw and reports whether the result is valid.
func Parse(raw string) (string, bool) {
	n := Normalize(raw)
	return n, IsValid(n)
}

func validISBN10(s string) bool {
	sum := 0
	for i := 0; i < 10; i++ {
		c := s[i]
		var v int
		switch {
		case c >= '0' && c <= '9':
			v = int(c - '0')
		case c == 'X' && i == 9:
			v = 10
		default:
			return false
		}
		sum += v * (10 - i)
	}
	return sum%11 == 0
}

func validISBN13(s string) bool {
	sum := 0
	for i := 0; i < 13; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	for i := 0; i < 12; i++ {
		d := int(s[i] - '0')
		if i%2 == 0 {
			sum += d
		} else {
			sum += d * 3
		}
	}
	check := (10 - sum%10) % 10
	return int(s[12]-'0') == check
}
