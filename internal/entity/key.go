package entity

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultTokenLength caps storage tokens so they stay usable as file names.
const DefaultTokenLength = 40

// NormalizeKey folds an identity value into its comparison form.
func NormalizeKey(value string) string {
	value = norm.NFC.String(value)
	value = strings.Join(strings.Fields(value), " ")
	if value == "" {
		return ""
	}
	return cases.Fold().String(value)
}

// Token derives a file-system-safe identifier from a normalized key. Runes
// outside letter and digit classes become '_' and the result is capped at
// maxLen runes.
func Token(key string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultTokenLength
	}
	var b strings.Builder
	count := 0
	for _, r := range key {
		if count == maxLen {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
		count++
	}
	return b.String()
}

// Tokens lowercases text and splits it on whitespace into a set.
func Tokens(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}

// Overlap counts the tokens shared by a and b.
func Overlap(a, b string) int {
	left := Tokens(a)
	right := Tokens(b)
	if len(right) < len(left) {
		left, right = right, left
	}
	count := 0
	for token := range left {
		if _, ok := right[token]; ok {
			count++
		}
	}
	return count
}
