// Package dialogue implements the scripted troubleshooting conversation:
// the step catalog, the free-text keyword rules and the engine that walks them.
package dialogue

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ashureev/hubdesk/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed troubleshooting.yaml
var defaultDefinition []byte

// Replies holds the fixed texts that do not belong to any step.
type Replies struct {
	Resolve  string `yaml:"resolve"`
	Escalate string `yaml:"escalate"`
	Fallback string `yaml:"fallback"`
}

type yamlOption struct {
	Text string    `yaml:"text"`
	Next yaml.Node `yaml:"next"`
}

type yamlStep struct {
	ID      int          `yaml:"id"`
	Text    string       `yaml:"text"`
	Options []yamlOption `yaml:"options"`
}

type yamlRule struct {
	Name     string       `yaml:"name"`
	Keywords []string     `yaml:"keywords"`
	Response string       `yaml:"response"`
	Options  []yamlOption `yaml:"options"`
}

type yamlDefinition struct {
	Replies Replies    `yaml:"replies"`
	Steps   []yamlStep `yaml:"steps"`
	Rules   []yamlRule `yaml:"rules"`
}

// Definition is a parsed, validated dialogue configuration.
type Definition struct {
	Catalog *Catalog
	Rules   []Rule
	Replies Replies
}

// Catalog is an immutable mapping from step ID to step.
type Catalog struct {
	steps map[domain.StepID]domain.Step
}

// NewCatalog builds a catalog and checks that it is closed: the root exists
// and every step outcome names a step of the catalog.
func NewCatalog(steps []domain.Step) (*Catalog, error) {
	c := &Catalog{steps: make(map[domain.StepID]domain.Step, len(steps))}
	for _, s := range steps {
		if !s.ID.Valid() {
			return nil, fmt.Errorf("step id %d must be positive", s.ID)
		}
		if _, dup := c.steps[s.ID]; dup {
			return nil, fmt.Errorf("duplicate step %d", s.ID)
		}
		if strings.TrimSpace(s.Text) == "" {
			return nil, fmt.Errorf("step %d has no text", s.ID)
		}
		if len(s.Options) == 0 {
			return nil, fmt.Errorf("step %d has no options", s.ID)
		}
		s.Options = append([]domain.Option(nil), s.Options...)
		c.steps[s.ID] = s
	}
	if _, ok := c.steps[domain.RootStep]; !ok {
		return nil, fmt.Errorf("root step %d missing", domain.RootStep)
	}
	for _, s := range c.steps {
		if err := c.checkOptions(s.Options); err != nil {
			return nil, fmt.Errorf("step %d: %w", s.ID, err)
		}
	}
	return c, nil
}

func (c *Catalog) checkOptions(opts []domain.Option) error {
	for _, o := range opts {
		if !o.Next.IsStep() {
			continue
		}
		if _, ok := c.steps[o.Next.Step]; !ok {
			return fmt.Errorf("option %q: %w", o.Text, &domain.UnknownStepError{Step: o.Next.Step})
		}
	}
	return nil
}

// Get returns the step with the given ID. The returned options are a copy.
func (c *Catalog) Get(id domain.StepID) (domain.Step, bool) {
	s, ok := c.steps[id]
	if !ok {
		return domain.Step{}, false
	}
	s.Options = append([]domain.Option(nil), s.Options...)
	return s, true
}

// Root returns the entry step.
func (c *Catalog) Root() domain.Step {
	s, _ := c.Get(domain.RootStep)
	return s
}

// Steps returns every step ordered by ID.
func (c *Catalog) Steps() []domain.Step {
	out := make([]domain.Step, 0, len(c.steps))
	for id := range c.steps {
		s, _ := c.Get(id)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of steps.
func (c *Catalog) Len() int {
	return len(c.steps)
}

// ParseDefinition decodes and validates a YAML dialogue definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var raw yamlDefinition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode dialogue definition: %w", err)
	}
	if raw.Replies.Resolve == "" || raw.Replies.Escalate == "" || raw.Replies.Fallback == "" {
		return nil, errors.New("replies.resolve, replies.escalate and replies.fallback are required")
	}

	steps := make([]domain.Step, 0, len(raw.Steps))
	for _, s := range raw.Steps {
		opts, err := convertOptions(s.Options)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", s.ID, err)
		}
		steps = append(steps, domain.Step{ID: domain.StepID(s.ID), Text: s.Text, Options: opts})
	}
	catalog, err := NewCatalog(steps)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	rules := make([]Rule, 0, len(raw.Rules))
	for _, r := range raw.Rules {
		opts, err := convertOptions(r.Options)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		rule, err := NewRule(r.Name, r.Keywords, r.Response, opts)
		if err != nil {
			return nil, err
		}
		if err := catalog.checkOptions(rule.Options); err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		rules = append(rules, rule)
	}

	return &Definition{Catalog: catalog, Rules: rules, Replies: raw.Replies}, nil
}

func convertOptions(in []yamlOption) ([]domain.Option, error) {
	out := make([]domain.Option, 0, len(in))
	for _, o := range in {
		next, err := domain.ParseOutcome(strings.TrimSpace(o.Next.Value))
		if err != nil {
			return nil, fmt.Errorf("option %q: %w", o.Text, err)
		}
		out = append(out, domain.Option{Text: o.Text, Next: next})
	}
	return out, nil
}

// DefaultDefinition returns the embedded SmartHome Hub troubleshooting tree.
func DefaultDefinition() (*Definition, error) {
	return ParseDefinition(defaultDefinition)
}

// LoadDefinition reads a definition from path, or the embedded default when path is empty.
func LoadDefinition(path string) (*Definition, error) {
	if path == "" {
		return DefaultDefinition()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dialogue definition: %w", err)
	}
	return ParseDefinition(data)
}
