package completion

import (
	"fmt"
	"regexp"
)

// Intercept answers a small set of prompts deterministically without
// calling the upstream at all. Used for brand questions ("who made you")
// where the canned reply must never vary.
type Intercept struct {
	rules []*regexp.Regexp
	reply string
}

// NewIntercept compiles the given patterns case-insensitively. A nil
// Intercept is returned when no patterns are configured.
func NewIntercept(patterns []string, reply string) (*Intercept, error) {
	if len(patterns) == 0 || reply == "" {
		return nil, nil
	}
	rules := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("completion: compile intercept pattern %q: %w", p, err)
		}
		rules = append(rules, re)
	}
	return &Intercept{rules: rules, reply: reply}, nil
}

// Match reports whether prompt triggers the intercept and, if so, the
// canned reply to return.
func (i *Intercept) Match(prompt string) (string, bool) {
	if i == nil {
		return "", false
	}
	for _, re := range i.rules {
		if re.MatchString(prompt) {
			return i.reply, true
		}
	}
	return "", false
}
