package actions

import (
	"errors"
	"regexp"
	"strings"
)

// Matcher decides whether one insight entry carries a cue.
type Matcher interface {
	Match(text string) bool
}

// KeywordMatcher matches when any keyword is a case-insensitive substring of
// the text.
type KeywordMatcher []string

func Keywords(words ...string) KeywordMatcher {
	out := make(KeywordMatcher, 0, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func (k KeywordMatcher) Match(text string) bool {
	text = strings.ToLower(text)
	for _, w := range k {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

type RegexMatcher struct {
	re *regexp.Regexp
}

// Regex compiles pattern case-insensitively.
func Regex(pattern string) (RegexMatcher, error) {
	if strings.TrimSpace(pattern) == "" {
		return RegexMatcher{}, errors.New("actions: regex pattern must not be empty")
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return RegexMatcher{}, err
	}
	return RegexMatcher{re: re}, nil
}

func MustRegex(pattern string) RegexMatcher {
	m, err := Regex(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

func (m RegexMatcher) Match(text string) bool {
	return m.re != nil && m.re.MatchString(text)
}

// AnyOf matches when at least one of the matchers does.
type AnyOf []Matcher

func (a AnyOf) Match(text string) bool {
	for _, m := range a {
		if m != nil && m.Match(text) {
			return true
		}
	}
	return false
}
