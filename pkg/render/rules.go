package render

import (
	"cmp"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/macropower/rulepool/pkg/mode"
	"github.com/macropower/rulepool/pkg/rule"
	"github.com/macropower/rulepool/pkg/selection"
)

// NoRules is rendered in place of an empty rule list.
const NoRules = "<!-- No rules to render -->"

const (
	otherGroup    = "Other"
	unknownSource = "Unknown Source"
)

// ApplyOverrides returns copies of rules with overrides applied. Title,
// content and urgency replace the rule's own values, tags are added, and
// disabled rules are dropped. The input rules are not modified.
func ApplyOverrides(rules []*rule.Rule, overrides map[string]mode.RuleOverride) []*rule.Rule {
	out := make([]*rule.Rule, 0, len(rules))

	for _, r := range rules {
		o, ok := overrides[r.ID]
		if !ok {
			out = append(out, r)
			continue
		}
		if o.Disabled {
			continue
		}

		c := r.Clone()
		if o.Title != nil {
			c.Title = *o.Title
		}
		if o.Content != nil {
			c.Content = *o.Content
		}
		if o.Urgency != nil {
			c.Urgency = *o.Urgency
		}

		for _, tag := range o.Tags {
			if !slices.Contains(c.Tags, tag) {
				c.Tags = append(c.Tags, tag)
			}
		}

		out = append(out, c)
	}

	return out
}

// Order sorts rules in place. All orderings are stable; an empty order
// keeps the input order.
func Order(rules []*rule.Rule, by mode.OrderBy, customOrder []string) {
	switch by {
	case mode.OrderByUrgency:
		slices.SortStableFunc(rules, func(a, b *rule.Rule) int {
			return cmp.Compare(b.Urgency, a.Urgency)
		})
	case mode.OrderByTitle:
		slices.SortStableFunc(rules, func(a, b *rule.Rule) int {
			return cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		})
	case mode.OrderByCreated:
		slices.SortStableFunc(rules, func(a, b *rule.Rule) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		})
	case mode.OrderByCustom:
		// Unlisted rules go last.
		rank := func(id string) int {
			if i := slices.Index(customOrder, id); i >= 0 {
				return i
			}

			return len(customOrder)
		}

		slices.SortStableFunc(rules, func(a, b *rule.Rule) int {
			return cmp.Compare(rank(a.ID), rank(b.ID))
		})
	}
}

// Group is a headed bucket of rendered rules.
type Group struct {
	// Key identifies the group in header templates, e.g. a category name.
	Key   string
	Name  string
	Rules []*rule.Rule
}

// GroupRules buckets rules. Category, urgency and source groups appear in
// first-seen order. Custom groups appear in their configured order, each
// rule landing in the first group it matches; unmatched rules are collected
// in a trailing "Other" group. [mode.GroupByNone] returns a single unnamed
// group. Every rule appears in exactly one group.
func GroupRules(rules []*rule.Rule, by mode.GroupBy, custom []mode.Group) ([]Group, error) {
	switch by {
	case mode.GroupByCategory:
		return groupBy(rules, func(r *rule.Rule) (string, string) {
			return string(r.Category), CategoryName(r.Category)
		}), nil
	case mode.GroupByUrgency:
		return groupBy(rules, func(r *rule.Rule) (string, string) {
			return r.Urgency.String(), titleCase(r.Urgency.String())
		}), nil
	case mode.GroupBySource:
		return groupBy(rules, func(r *rule.Rule) (string, string) {
			if r.SourceFile == "" {
				return "", unknownSource
			}

			return r.SourceFile, filepath.Base(r.SourceFile)
		}), nil
	case mode.GroupByCustom:
		return groupCustom(rules, custom)
	}

	return []Group{{Rules: rules}}, nil
}

func groupBy(rules []*rule.Rule, key func(*rule.Rule) (string, string)) []Group {
	var groups []Group

	index := map[string]int{}

	for _, r := range rules {
		k, name := key(r)

		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{Key: k, Name: name})
		}

		groups[i].Rules = append(groups[i].Rules, r)
	}

	return groups
}

func groupCustom(rules []*rule.Rule, custom []mode.Group) ([]Group, error) {
	defs := slices.Clone(custom)
	slices.SortStableFunc(defs, func(a, b mode.Group) int {
		return cmp.Compare(a.Order, b.Order)
	})

	matchers := make([]*selection.Matcher, len(defs))
	groups := make([]Group, len(defs))

	for i, d := range defs {
		m, err := d.Criteria.Compile()
		if err != nil {
			return nil, fmt.Errorf("custom group %q: %w", d.ID, err)
		}

		matchers[i] = m

		name := d.Header
		if name == "" {
			name = d.Name
		}

		groups[i] = Group{Key: d.ID, Name: name}
	}

	other := Group{Key: otherGroup, Name: otherGroup}

	for _, r := range rules {
		placed := false

		for i, m := range matchers {
			ok, err := m.Match(r)
			if err != nil {
				return nil, fmt.Errorf("custom group %q: %w", defs[i].ID, err)
			}
			if ok {
				groups[i].Rules = append(groups[i].Rules, r)
				placed = true

				break
			}
		}

		if !placed {
			other.Rules = append(other.Rules, r)
		}
	}

	groups = slices.DeleteFunc(groups, func(g Group) bool { return len(g.Rules) == 0 })
	if len(other.Rules) > 0 {
		groups = append(groups, other)
	}

	return groups, nil
}

// Marker returns the urgency indicator shown before a rule title.
func Marker(u rule.Urgency) string {
	switch u {
	case rule.UrgencyCritical:
		return "🚨"
	case rule.UrgencyHigh:
		return "⚠️"
	case rule.UrgencyLow:
		return "💡"
	case rule.UrgencyInfo:
		return "ℹ️"
	}

	return "📋"
}

// CategoryName formats a category for display, e.g. "Testing Requirements".
func CategoryName(c rule.Category) string {
	return titleCase(strings.ReplaceAll(string(c), "_", " "))
}

func titleCase(s string) string {
	// Casers are stateful.
	return cases.Title(language.English).String(strings.ToLower(s))
}

// MetadataLine returns the italic category, urgency and tags summary.
func MetadataLine(r *rule.Rule) string {
	tags := strings.Join(r.Tags, ", ")
	if tags == "" {
		tags = "None"
	}

	return fmt.Sprintf("*Category: %s | Urgency: %s | Tags: %s*", CategoryName(r.Category), r.Urgency, tags)
}

// ruleValues returns the placeholders available to rule templates.
func ruleValues(r *rule.Rule) Values {
	return Values{
		"rule.id":          r.ID,
		"rule.title":       r.Title,
		"rule.description": r.Description,
		"rule.content":     r.Content,
		"rule.category":    CategoryName(r.Category),
		"rule.urgency":     r.Urgency.String(),
		"rule.marker":      Marker(r.Urgency),
		"rule.tags":        strings.Join(r.Tags, ", "),
		"rule.author":      r.Author,
		"rule.version":     r.Version,
	}
}

func groupValues(g Group) Values {
	return Values{
		"group.key":   g.Key,
		"group.name":  g.Name,
		"group.count": strconv.Itoa(len(g.Rules)),
	}
}

// layout controls how a rule list is rendered.
type layout struct {
	headerTemplates     map[string]string
	ruleTemplate        string
	groupHeaderTemplate string
	groupBy             mode.GroupBy
	orderBy             mode.OrderBy
	customOrder         []string
	customGroups        []mode.Group
	includeHeaders      bool
	includeMetadata     bool
}

func renderRule(r *rule.Rule, l *layout) string {
	if l.ruleTemplate != "" {
		return strings.TrimRight(Substitute(l.ruleTemplate, ruleValues(r).Lookup), "\n")
	}

	lines := []string{fmt.Sprintf("### %s %s", Marker(r.Urgency), r.Title)}
	if r.Description != "" {
		lines = append(lines, r.Description, "")
	}

	lines = append(lines, r.Content)

	if l.includeMetadata {
		lines = append(lines, "", MetadataLine(r))
	}

	return strings.Join(lines, "\n")
}

func groupHeader(g Group, l *layout) string {
	if tpl, ok := l.headerTemplates[g.Key]; ok {
		return Substitute(tpl, groupValues(g).Lookup)
	}
	if l.groupHeaderTemplate != "" {
		return Substitute(l.groupHeaderTemplate, groupValues(g).Lookup)
	}

	return fmt.Sprintf("## %s (%d rules)", g.Name, len(g.Rules))
}

// renderRules orders, groups and renders rules, which must already have
// overrides applied.
func renderRules(rules []*rule.Rule, l *layout) (string, error) {
	if len(rules) == 0 {
		return NoRules, nil
	}

	rules = slices.Clone(rules)
	Order(rules, l.orderBy, l.customOrder)

	groups, err := GroupRules(rules, l.groupBy, l.customGroups)
	if err != nil {
		return "", err
	}

	var lines []string

	for _, g := range groups {
		if l.includeHeaders && l.groupBy != mode.GroupByNone && l.groupBy != "" {
			lines = append(lines, groupHeader(g, l), "")
		}

		for _, r := range g.Rules {
			lines = append(lines, renderRule(r, l), "")
		}
	}

	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}
