package store

import (
	"regexp"
	"strings"
	"unicode"
)

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// TokenizeCode splits text into lowercase terms, breaking identifiers at
// camelCase, PascalCase and snake_case boundaries. Terms shorter than two
// characters are dropped.
func TokenizeCode(text string) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, part := range SplitCodeToken(word) {
			lower := strings.ToLower(part)
			if len(lower) >= 2 {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

// SplitCodeToken splits one identifier on underscores and case changes.
func SplitCodeToken(token string) []string {
	if !strings.Contains(token, "_") {
		return SplitCamelCase(token)
	}
	var out []string
	for _, part := range strings.Split(token, "_") {
		if part != "" {
			out = append(out, SplitCamelCase(part)...)
		}
	}
	return out
}

// SplitCamelCase splits camelCase and PascalCase, keeping acronyms whole:
// "parseHTTPRequest" becomes ["parse", "HTTP", "Request"].
func SplitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var (
		out     []string
		current strings.Builder
	)
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if (prevLower || nextLower) && current.Len() > 0 {
				out = append(out, current.String())
				current.Reset()
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}

// FilterStopWords drops tokens found in stopWords (compared lowercased).
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, stop := stopWords[strings.ToLower(t)]; !stop {
			out = append(out, t)
		}
	}
	return out
}

// BuildStopWordMap turns a word list into a lowercase lookup set.
func BuildStopWordMap(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}
