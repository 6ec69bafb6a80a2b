package viva

import (
	"regexp"
	"strconv"
	"strings"
)

// Score extraction recovers a numeric integrity score from free-form spoken
// agent text. It is best-effort by design: a miss returns ok=false and
// callers fall back to DefaultFallbackScore.

const (
	// Plausible band for an extracted score. Matches outside it are skipped
	// and later patterns keep being tried.
	minPlausibleScore = 30
	maxPlausibleScore = 100

	// DefaultFallbackScore is used when no score can be recovered from the
	// review text.
	DefaultFallbackScore = 75
)

// Digit patterns are tried first, in priority order, so a plain "85" wins
// over an accidental partial spoken-word match in the same sentence.
var digitScorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)integrity score is (\d{1,3})`),
	regexp.MustCompile(`(?i)score is (\d{1,3})`),
	regexp.MustCompile(`(?i)(\d{1,3}) out of (?:100|one hundred)`),
	regexp.MustCompile(`(?i)(\d{1,3})/100`),
	regexp.MustCompile(`(?i)score[:\s]+(\d{1,3})`),
	regexp.MustCompile(`(?i)(\d{1,3})\s*percent`),
	regexp.MustCompile(`(?i)(\d{1,3})%`),
}

var spokenScorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)integrity score is ([a-z\-\s]+) out of`),
	regexp.MustCompile(`(?i)score is ([a-z\-\s]+) out of`),
	regexp.MustCompile(`(?i)score of ([a-z\-\s]+) out of`),
	regexp.MustCompile(`(?i)([a-z\-\s]+) out of (?:100|one hundred)`),
}

var wordToNumber = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4,
	"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
	"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
	"hundred": 100,
}

// ExtractScore recovers an integer score in [30,100] from text. Digit
// patterns are tried before spoken-word patterns; the first in-band match
// wins. ok is false when nothing plausible is found.
func ExtractScore(text string) (int, bool) {
	if strings.TrimSpace(text) == "" {
		return 0, false
	}

	for _, pattern := range digitScorePatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		score, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		if score >= minPlausibleScore && score <= maxPlausibleScore {
			return score, true
		}
		// Out-of-band digit match: keep trying later patterns.
	}

	for _, pattern := range spokenScorePatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		score, ok := ParseSpokenNumber(match[1])
		if ok && score >= minPlausibleScore && score <= maxPlausibleScore {
			return score, true
		}
	}

	return 0, false
}

// ParseSpokenNumber converts a spelled-out English number to an integer.
// Hyphenated and space-separated compounds parse identically: tens and ones
// accumulate additively, and "hundred" multiplies the accumulator (or stands
// for a literal 100 when nothing has accumulated yet). A zero sum means no
// number was found.
func ParseSpokenNumber(text string) (int, bool) {
	normalized := strings.ReplaceAll(strings.ToLower(text), "-", " ")
	current := 0
	for _, word := range strings.Fields(normalized) {
		value, ok := wordToNumber[word]
		if !ok {
			continue
		}
		if value == 100 {
			if current == 0 {
				current = 100
			} else {
				current *= 100
			}
			continue
		}
		current += value
	}
	if current <= 0 {
		return 0, false
	}
	return current, true
}

// ConfidenceTag bands a final score into the human-readable confidence label.
func ConfidenceTag(score int) string {
	switch {
	case score >= 85:
		return "Likely original"
	case score >= 65:
		return "Probably student-made"
	default:
		return "Needs verification"
	}
}

// ClampScore bounds a score to [0,100].
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
