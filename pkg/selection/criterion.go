package selection

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/macropower/rulepool/pkg/expr"
	"github.com/macropower/rulepool/pkg/rule"
)

// Criterion matches rules by an AND of its populated fields. An empty
// criterion matches every rule.
type Criterion struct {
	// Categories the rule's category must be in.
	Categories []rule.Category `json:"categories,omitempty" jsonschema:"title=Categories"`
	// Urgency levels the rule's urgency must be in.
	Urgency []rule.Urgency `json:"urgency,omitempty" jsonschema:"title=Urgency"`
	// ProjectTypes the rule must apply to. Rules for ALL always match.
	ProjectTypes []rule.ProjectType `json:"projectTypes,omitempty" jsonschema:"title=Project Types"`
	// Tags of which the rule must carry at least one.
	Tags []string `json:"tags,omitempty" jsonschema:"title=Tags"`
	// Sources the rule's source file must end with.
	Sources []string `json:"sources,omitempty" jsonschema:"title=Sources"`
	// ContentSearch is a case-insensitive substring of the rule content.
	ContentSearch string `json:"contentSearch,omitempty" jsonschema:"title=Content Search"`
	// TitlePattern is a case-insensitive regular expression for the title.
	TitlePattern string `json:"titlePattern,omitempty" jsonschema:"title=Title Pattern"`
	// Match is a CEL expression evaluated against the rule.
	Match string `json:"match,omitempty" jsonschema:"title=Match Expression"`
}

type compiledCriterion struct {
	*Criterion

	title   *regexp.Regexp
	matcher *expr.Matcher
	content string
}

func (c *Criterion) compile() (*compiledCriterion, error) {
	cc := &compiledCriterion{
		Criterion: c,
		content:   strings.ToLower(c.ContentSearch),
	}

	if c.TitlePattern != "" {
		re, err := regexp.Compile("(?i)" + c.TitlePattern)
		if err != nil {
			return nil, fmt.Errorf("%w: title pattern %q: %w", ErrInvalidCriterion, c.TitlePattern, err)
		}

		cc.title = re
	}

	if c.Match != "" {
		m, err := expr.CompileMatcher(c.Match)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCriterion, err)
		}

		cc.matcher = m
	}

	return cc, nil
}

func (cc *compiledCriterion) matches(r *rule.Rule) (bool, error) {
	if len(cc.Categories) > 0 && !slices.Contains(cc.Categories, r.Category) {
		return false, nil
	}
	if len(cc.Urgency) > 0 && !slices.Contains(cc.Urgency, r.Urgency) {
		return false, nil
	}
	if len(cc.ProjectTypes) > 0 && !r.AppliesToProject(cc.ProjectTypes...) {
		return false, nil
	}
	if len(cc.Tags) > 0 && !r.HasAnyTag(cc.Tags...) {
		return false, nil
	}
	if len(cc.Sources) > 0 && !slices.ContainsFunc(cc.Sources, func(s string) bool {
		return r.SourceFile != "" && strings.HasSuffix(r.SourceFile, s)
	}) {
		return false, nil
	}
	if cc.content != "" && !strings.Contains(strings.ToLower(r.Content), cc.content) {
		return false, nil
	}
	if cc.title != nil && !cc.title.MatchString(r.Title) {
		return false, nil
	}
	if cc.matcher != nil {
		ok, err := cc.matcher.Match(r)
		if err != nil {
			return false, fmt.Errorf("%w: %w", ErrInvalidCriterion, err)
		}

		return ok, nil
	}

	return true, nil
}

func (c *Criterion) validate() error {
	for _, cat := range c.Categories {
		if !cat.Valid() {
			return fmt.Errorf("%w: %w: %q", ErrInvalidCriterion, rule.ErrUnknownCategory, cat)
		}
	}
	for _, u := range c.Urgency {
		if !u.Valid() {
			return fmt.Errorf("%w: %w: %d", ErrInvalidCriterion, rule.ErrUnknownUrgency, u)
		}
	}

	return nil
}

// Matcher is a compiled [Criterion].
type Matcher struct {
	cc *compiledCriterion
}

// Compile validates c and prepares its pattern and expression.
func (c *Criterion) Compile() (*Matcher, error) {
	err := c.validate()
	if err != nil {
		return nil, err
	}

	cc, err := c.compile()
	if err != nil {
		return nil, err
	}

	return &Matcher{cc: cc}, nil
}

// Match reports whether r satisfies every populated field of the criterion.
func (m *Matcher) Match(r *rule.Rule) (bool, error) {
	return m.cc.matches(r)
}
