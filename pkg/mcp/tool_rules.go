package mcp

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sahilm/fuzzy"

	"github.com/macropower/rulepool/pkg/pool"
	"github.com/macropower/rulepool/pkg/rule"
)

const (
	defaultSearchLimit = 50
	maxSuggestions     = 3
)

// SearchRulesParams defines parameters for the search_rules tool.
type SearchRulesParams struct {
	Query        string   `json:"query,omitempty"`
	Categories   []string `json:"categories,omitempty"`
	Urgencies    []string `json:"urgencies,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	ProjectTypes []string `json:"projectTypes,omitempty"`
	Limit        int      `json:"limit,omitempty"`
}

// SearchRulesResult contains the result of searching the pool.
type SearchRulesResult struct {
	Categories map[string]int `json:"categories"`
	Urgencies  map[string]int `json:"urgencies"`
	Tags       map[string]int `json:"tags"`
	Error      string         `json:"error,omitempty"`
	Message    string         `json:"message"`
	Rules      []RuleSummary  `json:"rules"`
	Total      int            `json:"total"`
}

// RuleSummary is the listing form of a rule.
type RuleSummary struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category"`
	Urgency     string   `json:"urgency"`
	Tags        []string `json:"tags"`
}

// GetRuleParams defines parameters for the get_rule tool.
type GetRuleParams struct {
	ID string `json:"id"`
}

// GetRuleResult contains the result of getting a single rule.
type GetRuleResult struct {
	Rule        *RuleDetails `json:"rule,omitempty"`
	Message     string       `json:"message"`
	Suggestions []string     `json:"suggestions,omitempty"`
	Found       bool         `json:"found"`
}

// RuleDetails is the full form of a rule.
type RuleDetails struct {
	RuleSummary

	Content   string   `json:"content"`
	Author    string   `json:"author"`
	Version   string   `json:"version"`
	UpdatedAt string   `json:"updatedAt"`
	AppliesTo []string `json:"appliesTo"`
	DependsOn []string `json:"dependsOn,omitempty"`
	IsActive  bool     `json:"isActive"`
	IsCustom  bool     `json:"isCustom"`
}

func (s *Server) registerRuleTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_rules",
		Description: "Search the rule pool. All filters are optional and combined with AND; values within one filter are alternatives.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query":        stringProperty("Case-insensitive text matched against title, description, content and tags."),
				"categories":   stringArrayProperty("Rule categories, e.g. SECURITY_RULES or TESTING_REQUIREMENTS."),
				"urgencies":    stringArrayProperty("Urgencies: INFO, LOW, MEDIUM, HIGH or CRITICAL."),
				"tags":         stringArrayProperty("Tags; a rule matches when it has any of them."),
				"projectTypes": stringArrayProperty("Project types, e.g. FLUTTER or TYPESCRIPT. Rules for ALL always match."),
				"limit": {
					Type:        "integer",
					Description: fmt.Sprintf("Maximum number of rules to return. Defaults to %d.", defaultSearchLimit),
				},
			},
		},
	}, WithTracing(s.tracer, s.handleSearchRules))

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_rule",
		Description: "Get the full content of a rule. You MUST use an EXACT id from a search_rules or resolve_mode output.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"id": stringProperty("The rule id."),
			},
			Required: []string{"id"},
		},
	}, WithTracing(s.tracer, s.handleGetRule))
}

// criteria converts params to pool search criteria.
func (p SearchRulesParams) criteria() (pool.Criteria, error) {
	c := pool.Criteria{
		Query: p.Query,
		Tags:  p.Tags,
	}

	for _, v := range p.Categories {
		cat, err := rule.ParseCategory(v)
		if err != nil {
			return c, err //nolint:wrapcheck // Names the bad value.
		}

		c.Categories = append(c.Categories, cat)
	}

	for _, v := range p.Urgencies {
		u, err := rule.ParseUrgency(v)
		if err != nil {
			return c, err //nolint:wrapcheck // Names the bad value.
		}

		c.Urgencies = append(c.Urgencies, u)
	}

	for _, v := range p.ProjectTypes {
		pt, err := rule.ParseProjectType(v)
		if err != nil {
			return c, err //nolint:wrapcheck // Names the bad value.
		}

		c.ProjectTypes = append(c.ProjectTypes, pt)
	}

	return c, nil
}

// handleSearchRules handles the search_rules tool call.
func (s *Server) handleSearchRules(
	_ context.Context,
	_ *mcp.ServerSession,
	params *mcp.CallToolParamsFor[SearchRulesParams],
) (*mcp.CallToolResultFor[SearchRulesResult], error) {
	result := SearchRulesResult{
		Rules:      []RuleSummary{},
		Categories: map[string]int{},
		Urgencies:  map[string]int{},
		Tags:       map[string]int{},
	}

	c, err := params.Arguments.criteria()
	if err != nil {
		result.Error = err.Error()
		result.Message = "INVALID INPUT ERROR: " + err.Error()

		return toolResult(result.Message, result), nil
	}

	found := s.store.Search(c)

	limit := params.Arguments.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	for _, r := range found.Rules[:min(limit, len(found.Rules))] {
		result.Rules = append(result.Rules, summarize(r))
	}

	for k, v := range found.Facets.Categories {
		result.Categories[string(k)] = v
	}
	for k, v := range found.Facets.Urgencies {
		result.Urgencies[k.String()] = v
	}
	maps.Copy(result.Tags, found.Facets.Tags)

	result.Total = found.Total
	result.Message = fmt.Sprintf("Found %d rules.", found.Total)
	if len(result.Rules) < found.Total {
		result.Message += fmt.Sprintf(" Showing the first %d.", len(result.Rules))
	}

	return toolResult(result.Message, result), nil
}

// handleGetRule handles the get_rule tool call.
func (s *Server) handleGetRule(
	_ context.Context,
	_ *mcp.ServerSession,
	params *mcp.CallToolParamsFor[GetRuleParams],
) (*mcp.CallToolResultFor[GetRuleResult], error) {
	id := strings.TrimSpace(params.Arguments.ID)

	r, ok := s.store.Get(id)
	if !ok {
		result := GetRuleResult{
			Suggestions: s.suggest(id),
			Message: fmt.Sprintf(
				"INVALID INPUT ERROR: Rule %q not found. Use an EXACT id from the search_rules tool.", id),
		}

		return toolResult(result.Message, result), nil
	}

	appliesTo := make([]string, 0, len(r.AppliesTo))
	for _, pt := range r.AppliesTo {
		appliesTo = append(appliesTo, string(pt))
	}

	result := GetRuleResult{
		Found:   true,
		Message: fmt.Sprintf("Found rule %s.", r.ID),
		Rule: &RuleDetails{
			RuleSummary: summarize(r),
			Content:     r.Content,
			Author:      r.Author,
			Version:     r.Version,
			UpdatedAt:   r.UpdatedAt.UTC().Format(time.RFC3339),
			AppliesTo:   appliesTo,
			DependsOn:   r.DependsOn,
			IsActive:    r.IsActive,
			IsCustom:    r.IsCustom,
		},
	}

	return toolResult(result.Message+"\n\n"+r.Content, result), nil
}

// suggest returns the ids closest to id.
func (s *Server) suggest(id string) []string {
	if id == "" {
		return nil
	}

	var ids []string
	for _, r := range s.store.All() {
		ids = append(ids, r.ID)
	}

	var out []string
	for _, m := range fuzzy.Find(id, ids) {
		out = append(out, m.Str)
	}

	return out[:min(len(out), maxSuggestions)]
}

func summarize(r *rule.Rule) RuleSummary {
	return RuleSummary{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Category:    string(r.Category),
		Urgency:     r.Urgency.String(),
		Tags:        slices.Clone(r.Tags),
	}
}
