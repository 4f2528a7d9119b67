package catalog

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	spaceRE    = regexp.MustCompile(`\s+`)
	nonAlnumRE = regexp.MustCompile(`[^A-Z0-9]+`)

	titleCaser = cases.Title(language.Vietnamese)
)

// NormalizeDepartment collapses whitespace and title-cases a department name.
// This is the canonical key for legacy name-keyed lookups and for backfill
// matching, so every write and read path must go through it.
func NormalizeDepartment(s string) string {
	collapsed := strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
	return titleCaser.String(collapsed)
}

// CleanDisplayName produces a user-facing department name: hard newlines
// removed, runs of whitespace collapsed, accents recomposed to NFC.
func CleanDisplayName(s string) string {
	if s == "" {
		return s
	}
	out := strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
	out = strings.TrimSpace(spaceRE.ReplaceAllString(out, " "))
	return norm.NFC.String(out)
}

// StripAccents removes combining marks after NFD decomposition.
func StripAccents(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DeriveCodeFromName builds a short department code from a display name:
// accent-stripped initials of each word, at most 6 characters. Names that
// yield fewer than 3 letters are padded from the concatenated words, and a
// name with no usable letters falls back to "DEPT".
func DeriveCodeFromName(name string) string {
	base := strings.ToUpper(StripAccents(name))
	parts := []string{}
	for _, p := range nonAlnumRE.Split(base, -1) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "DEPT"
	}
	var initials strings.Builder
	for _, p := range parts {
		initials.WriteByte(p[0])
	}
	letters := initials.String()
	if len(letters) > 6 {
		letters = letters[:6]
	}
	if len(letters) < 3 {
		letters = letters + strings.Join(parts, "")
		if len(letters) > 3 {
			letters = letters[:3]
		}
	}
	if letters == "" {
		return "DEPT"
	}
	return letters
}
