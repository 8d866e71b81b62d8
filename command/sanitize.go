package command

import "strings"

var stripChars = strings.NewReplacer(`'`, "", `"`, "", ";", "", "*", "")

// Sanitize removes quote, semicolon and asterisk characters and collapses whitespace runs to a
// single space.
func Sanitize(s string) string {
	return strings.Join(strings.Fields(stripChars.Replace(s)), " ")
}

// SanitizeIdent is Sanitize with all whitespace removed, for room and topic identifiers.
func SanitizeIdent(s string) string {
	return strings.Join(strings.Fields(stripChars.Replace(s)), "")
}

// splitFirst returns the first whitespace separated token of s and the remainder.
func splitFirst(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, isSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f' }
