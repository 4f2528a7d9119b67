package planner

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var firstBraceRE = regexp.MustCompile(`\{[\s\S]*`)

// ErrMalformedJSON is returned when a reasoner response cannot be parsed even
// after repair.
var ErrMalformedJSON = errors.New("planner: empty_or_malformed_json")

// FixTruncatedJSON trims leading garbage before the first '{' and closes any
// unbalanced braces at the end. Truncated structured output from the reasoner
// is common enough that every JSON parse goes through this first.
func FixTruncatedJSON(text string) string {
	if text == "" {
		return text
	}
	if m := firstBraceRE.FindString(text); m != "" {
		text = m
	}
	text = strings.TrimSpace(text)
	opens := strings.Count(text, "{")
	closes := strings.Count(text, "}")
	if opens > closes {
		text += strings.Repeat("}", opens-closes)
	}
	return text
}

// DecodeLooseJSON repairs and parses a reasoner response into dst.
func DecodeLooseJSON(text string, dst any) error {
	text = FixTruncatedJSON(text)
	if text == "" {
		return ErrMalformedJSON
	}
	if err := json.Unmarshal([]byte(text), dst); err != nil {
		return ErrMalformedJSON
	}
	return nil
}
