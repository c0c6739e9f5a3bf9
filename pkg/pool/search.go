package pool

import (
	"cmp"
	"slices"
	"strings"

	"github.com/macropower/rulepool/pkg/rule"
)

const topN = 10

// Criteria filters rules in [Pool.Search]. Every populated field must match.
type Criteria struct {
	IsActive     *bool              `json:"isActive,omitempty"`
	IsCustom     *bool              `json:"isCustom,omitempty"`
	Query        string             `json:"query,omitempty"`
	Author       string             `json:"author,omitempty"`
	Categories   []rule.Category    `json:"categories,omitempty"`
	Urgencies    []rule.Urgency     `json:"urgencies,omitempty"`
	Tags         []string           `json:"tags,omitempty"`
	ProjectTypes []rule.ProjectType `json:"projectTypes,omitempty"`
}

// Facets holds per-facet counts computed over a filtered result.
type Facets struct {
	Categories   map[rule.Category]int    `json:"categories"`
	Urgencies    map[rule.Urgency]int     `json:"urgencies"`
	Tags         map[string]int           `json:"tags"`
	ProjectTypes map[rule.ProjectType]int `json:"projectTypes"`
}

// SearchResult is the outcome of [Pool.Search].
type SearchResult struct {
	Facets Facets       `json:"facets"`
	Rules  []*rule.Rule `json:"rules"`
	Total  int          `json:"total"`
}

// Search filters the pool by c. Rules are returned in id order.
func (p *Pool) Search(c Criteria) *SearchResult {
	p.mu.RLock()
	all := p.sortedLocked()
	p.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(c.Query))

	res := &SearchResult{
		Rules: []*rule.Rule{},
		Facets: Facets{
			Categories:   map[rule.Category]int{},
			Urgencies:    map[rule.Urgency]int{},
			Tags:         map[string]int{},
			ProjectTypes: map[rule.ProjectType]int{},
		},
	}

	for _, r := range all {
		if query != "" && !matchesQuery(r, query) {
			continue
		}
		if !c.matches(r) {
			continue
		}

		res.Rules = append(res.Rules, r)

		res.Facets.Categories[r.Category]++
		res.Facets.Urgencies[r.Urgency]++
		for _, tag := range r.Tags {
			res.Facets.Tags[tag]++
		}
		for _, pt := range r.AppliesTo {
			res.Facets.ProjectTypes[pt]++
		}
	}

	res.Total = len(res.Rules)

	return res
}

func matchesQuery(r *rule.Rule, query string) bool {
	if strings.Contains(strings.ToLower(r.Title), query) ||
		strings.Contains(strings.ToLower(r.Description), query) ||
		strings.Contains(strings.ToLower(r.Content), query) {
		return true
	}

	return slices.ContainsFunc(r.Tags, func(tag string) bool {
		return strings.Contains(strings.ToLower(tag), query)
	})
}

func (c Criteria) matches(r *rule.Rule) bool {
	if len(c.Categories) > 0 && !slices.Contains(c.Categories, r.Category) {
		return false
	}
	if len(c.Urgencies) > 0 && !slices.Contains(c.Urgencies, r.Urgency) {
		return false
	}
	if len(c.Tags) > 0 && !r.HasAnyTag(c.Tags...) {
		return false
	}
	if len(c.ProjectTypes) > 0 && !r.AppliesToProject(c.ProjectTypes...) {
		return false
	}
	if c.Author != "" && r.Author != c.Author {
		return false
	}
	if c.IsActive != nil && r.IsActive != *c.IsActive {
		return false
	}
	if c.IsCustom != nil && r.IsCustom != *c.IsCustom {
		return false
	}

	return true
}

// TagCount pairs a tag with its usage count.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Statistics summarizes the pool.
type Statistics struct {
	ByCategory      map[rule.Category]int    `json:"byCategory"`
	ByUrgency       map[rule.Urgency]int     `json:"byUrgency"`
	ByProjectType   map[rule.ProjectType]int `json:"byProjectType"`
	MostUsedTags    []TagCount               `json:"mostUsedTags"`
	RecentlyUpdated []*rule.Rule             `json:"recentlyUpdated"`
	TotalRules      int                      `json:"totalRules"`
	CustomRules     int                      `json:"customRules"`
	PredefinedRules int                      `json:"predefinedRules"`
	ActiveRules     int                      `json:"activeRules"`
	InactiveRules   int                      `json:"inactiveRules"`
}

// Statistics computes counts over the whole pool.
func (p *Pool) Statistics() *Statistics {
	p.mu.RLock()
	all := p.sortedLocked()
	p.mu.RUnlock()

	stats := &Statistics{
		ByCategory:    map[rule.Category]int{},
		ByUrgency:     map[rule.Urgency]int{},
		ByProjectType: map[rule.ProjectType]int{},
		TotalRules:    len(all),
	}

	tagCounts := map[string]int{}

	for _, r := range all {
		stats.ByCategory[r.Category]++
		stats.ByUrgency[r.Urgency]++
		for _, pt := range r.AppliesTo {
			stats.ByProjectType[pt]++
		}
		for _, tag := range r.Tags {
			tagCounts[tag]++
		}

		if r.IsCustom {
			stats.CustomRules++
		} else {
			stats.PredefinedRules++
		}
		if r.IsActive {
			stats.ActiveRules++
		} else {
			stats.InactiveRules++
		}
	}

	for tag, n := range tagCounts {
		stats.MostUsedTags = append(stats.MostUsedTags, TagCount{Tag: tag, Count: n})
	}

	slices.SortFunc(stats.MostUsedTags, func(a, b TagCount) int {
		return cmp.Or(cmp.Compare(b.Count, a.Count), cmp.Compare(a.Tag, b.Tag))
	})

	if len(stats.MostUsedTags) > topN {
		stats.MostUsedTags = stats.MostUsedTags[:topN]
	}

	recent := slices.Clone(all)
	slices.SortStableFunc(recent, func(a, b *rule.Rule) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})

	if len(recent) > topN {
		recent = recent[:topN]
	}

	stats.RecentlyUpdated = recent

	return stats
}
