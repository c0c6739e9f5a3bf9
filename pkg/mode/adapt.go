package mode

import (
	"slices"

	"github.com/macropower/rulepool/pkg/rule"
	"github.com/macropower/rulepool/pkg/selection"
)

const (
	DefaultMaxRules = 100
	MigrationAuthor = "Migration"
)

// Adapt converts a migrated configuration, which carries only the legacy
// ruleSelection and ruleOrganization, into per-document rule sets. Both
// copilotInstructions and projectRules receive the same flat selection
// bounded to LOW..CRITICAL unless a minimum is given. Missing metadata and
// deployment structure are filled in. A legacy explicitIncludes list, even
// an empty one, limits the result to the listed rules and categories. It
// reports whether cfg changed.
func Adapt(cfg *Configuration) bool {
	if cfg.RuleSelection == nil || cfg.Rules.CopilotInstructions != nil || cfg.Rules.ProjectRules != nil {
		return false
	}

	legacy := cfg.RuleSelection

	minimum := rule.UrgencyLow
	switch {
	case legacy.MinimumUrgency != nil:
		minimum = *legacy.MinimumUrgency
	case legacy.MinUrgency != nil:
		minimum = *legacy.MinUrgency
	case legacy.UrgencyFilter != nil && legacy.UrgencyFilter.Minimum != nil:
		minimum = *legacy.UrgencyFilter.Minimum
	}

	maxRules := legacy.MaxRules
	if maxRules == 0 {
		maxRules = DefaultMaxRules
	}

	org := Organization{
		GroupBy:        GroupByCategory,
		OrderBy:        OrderByUrgency,
		IncludeHeaders: true,
	}
	if lo := cfg.RuleOrganization; lo != nil {
		if lo.GroupBy != "" {
			org.GroupBy = lo.GroupBy
		}
		if o := lo.Order(); o != "" {
			org.OrderBy = o
		}

		org.CustomOrder = slices.Clone(lo.CustomOrder)
	}

	ruleSet := func() *RuleSet {
		return &RuleSet{
			Selection: selection.Selection{
				IncludeRules:      slices.Concat(legacy.ExplicitIncludes, legacy.IncludeRules),
				ExcludeRules:      slices.Concat(legacy.ExplicitExcludes, legacy.ExcludeRules),
				Categories:        slices.Concat(legacy.IncludeCategories, legacy.Categories),
				ExcludeCategories: slices.Clone(legacy.ExcludeCategories),
				UrgencyFilter: &selection.UrgencyFilter{
					Minimum: ptr(minimum),
					Maximum: ptr(rule.UrgencyCritical),
				},
				MaxRules:     maxRules,
				ExplicitOnly: legacy.ExplicitOnly || legacy.ExplicitIncludes != nil,
			},
			Organization: org,
		}
	}

	cfg.Rules.CopilotInstructions = ruleSet()
	cfg.Rules.ProjectRules = ruleSet()

	if cfg.Metadata == nil {
		cfg.Metadata = migratedMetadata(cfg.Type)
		cfg.EnsureDefaults()
	}

	if cfg.Deployment.Structure == nil {
		cfg.Deployment.Structure = &DeploymentStructure{Root: ".github"}
		cfg.Deployment.BackupExisting = true
	}

	if cfg.Templates.BaseTemplate == "" {
		cfg.Templates.BaseTemplate = "default"
	}

	return true
}

func migratedMetadata(t Type) *Metadata {
	m := &Metadata{
		Version:      DefaultVersion,
		ProjectTypes: []string{"typescript", "javascript", "flutter"},
		Author:       MigrationAuthor,
		Tags:         []string{string(t), "migrated"},
	}

	switch t {
	case TypeEnterprise:
		m.Complexity = ComplexityEnterprise
		m.EstimatedHours = EstimatedHours{Min: 50, Max: 500}
	case TypeSimplified:
		m.Complexity = ComplexityBasic
		m.EstimatedHours = EstimatedHours{Min: 1, Max: 10}
	default:
		m.Complexity = ComplexityMedium
		m.EstimatedHours = EstimatedHours{Min: 10, Max: 50}
	}

	return m
}
