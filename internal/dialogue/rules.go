package dialogue

import (
	"fmt"
	"strings"

	"github.com/ashureev/hubdesk/internal/domain"
)

// Rule maps free-text keywords to a canned reply with a contextual option set.
type Rule struct {
	Name     string
	Keywords []string
	Response string
	Options  []domain.Option
}

// NewRule validates and normalizes a keyword rule.
func NewRule(name string, keywords []string, response string, options []domain.Option) (Rule, error) {
	if name == "" {
		return Rule{}, fmt.Errorf("rule name is required")
	}
	if strings.TrimSpace(response) == "" {
		return Rule{}, fmt.Errorf("rule %q has no response", name)
	}
	norm := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			norm = append(norm, k)
		}
	}
	if len(norm) == 0 {
		return Rule{}, fmt.Errorf("rule %q has no keywords", name)
	}
	return Rule{
		Name:     name,
		Keywords: norm,
		Response: response,
		Options:  append([]domain.Option(nil), options...),
	}, nil
}

// Matches reports whether any keyword occurs in text, ignoring case.
func (r Rule) Matches(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range r.Keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
