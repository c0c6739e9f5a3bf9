package mode

import (
	"time"

	"github.com/google/uuid"

	"github.com/macropower/rulepool/pkg/rule"
	"github.com/macropower/rulepool/pkg/selection"
)

func urgencies(us ...rule.Urgency) []rule.Urgency {
	return us
}

func categories(cs ...rule.Category) []rule.Category {
	return cs
}

func githubFiles(names ...string) *GitHub {
	gh := &GitHub{UseGitHubDir: true}
	for _, n := range names {
		gh.Files = append(gh.Files, GitHubFile{
			Source: n + ".md",
			Target: n + ".md",
			Type:   n,
		})
	}

	return gh
}

func taskDirs(descriptions ...[2]string) ([]Directory, []string) {
	dirs := make([]Directory, 0, len(descriptions))
	paths := make([]string, 0, len(descriptions))

	for _, d := range descriptions {
		dirs = append(dirs, Directory{Path: d[0], Description: d[1], Required: true})
		paths = append(paths, d[0])
	}

	return dirs, paths
}

// Builtin returns a fresh copy of the built-in template for t. Unknown types
// get the custom template. Timestamps are left unset.
func Builtin(t Type) *Configuration {
	switch t {
	case TypeEnterprise:
		return enterprise()
	case TypeSimplified:
		return simplified()
	default:
		return custom()
	}
}

func enterprise() *Configuration {
	dirs, paths := taskDirs(
		[2]string{".tasks/system", "Core system files"},
		[2]string{".tasks/epics", "Large-scale task orchestration"},
		[2]string{".tasks/1_planning", "Task planning"},
		[2]string{".tasks/2_review", "Task review"},
		[2]string{".tasks/3_execution", "Active task execution"},
		[2]string{".tasks/4_completion", "Completion tracking"},
		[2]string{".tasks/cross_machine", "Multi-machine sync"},
	)

	return &Configuration{
		Name:        "Enterprise Mode",
		Description: "Full-featured enterprise development environment with comprehensive task management",
		Type:        TypeEnterprise,
		Metadata: &Metadata{
			Version:        DefaultVersion,
			ProjectTypes:   []string{"flutter", "typescript", "javascript"},
			Complexity:     ComplexityEnterprise,
			EstimatedHours: EstimatedHours{Min: 50, Max: 500},
			Tags:           []string{"enterprise", "task-management", "automation"},
		},
		Rules: Rules{
			CopilotInstructions: &RuleSet{
				Selection: selection.Selection{
					Include: []selection.Criterion{
						{Categories: categories(rule.CategoryCustom, rule.CategoryTaskManagement, rule.CategoryEnterpriseFeatures)},
						{Urgency: urgencies(rule.UrgencyCritical, rule.UrgencyHigh)},
					},
					MinUrgency: ptr(rule.UrgencyMedium),
				},
				Organization: Organization{GroupBy: GroupByCategory, OrderBy: OrderByUrgency, IncludeHeaders: true},
			},
			ProjectRules: &RuleSet{
				Selection: selection.Selection{
					Include: []selection.Criterion{
						{Categories: categories(rule.CategoryCleanArchitecture, rule.CategorySOLIDPrinciples, rule.CategoryFilePractices)},
						{Urgency: urgencies(rule.UrgencyCritical, rule.UrgencyHigh)},
					},
				},
				Organization: Organization{GroupBy: GroupByCategory, OrderBy: OrderByUrgency, IncludeHeaders: true},
			},
		},
		Structure: Structure{
			Directories:         dirs,
			Scripts:             []Script{},
			Automation:          []Automation{},
			IncludeAutomation:   true,
			IncludeScripts:      true,
			TaskManagementLevel: "enterprise",
		},
		Templates: Templates{
			BaseTemplate: "enterprise",
			Variables: map[string]any{
				"mode":     "ENTERPRISE",
				"features": "Epic-scale task orchestration, Priority interrupt system, Cross-machine sync",
			},
		},
		Deployment: Deployment{
			Structure: &DeploymentStructure{
				Root:   ".",
				GitHub: githubFiles(string(OutputCopilotInstructions), string(OutputProjectRules)),
				Tasks:  &TaskSystem{Structure: paths, Type: "enterprise"},
			},
		},
	}
}

func simplified() *Configuration {
	dirs, paths := taskDirs(
		[2]string{".tasks/current", "Current tasks"},
		[2]string{".tasks/completed", "Completed tasks"},
		[2]string{".tasks/backups", "Automatic backups"},
	)

	return &Configuration{
		Name:        "Simplified Mode",
		Description: "Streamlined development environment for small to medium projects",
		Type:        TypeSimplified,
		Metadata: &Metadata{
			Version:        DefaultVersion,
			ProjectTypes:   []string{"flutter", "typescript", "javascript"},
			Complexity:     ComplexityBasic,
			EstimatedHours: EstimatedHours{Min: 5, Max: 20},
			Tags:           []string{"simplified", "basic", "lightweight"},
		},
		Rules: Rules{
			CopilotInstructions: &RuleSet{
				Selection: selection.Selection{
					Include: []selection.Criterion{
						{Categories: categories(rule.CategoryCustom, rule.CategoryTaskManagement)},
						{Urgency: urgencies(rule.UrgencyCritical, rule.UrgencyHigh)},
					},
					Exclude: []selection.Criterion{
						{Categories: categories(rule.CategoryEnterpriseFeatures)},
					},
				},
				Organization: Organization{GroupBy: GroupByUrgency, OrderBy: OrderByUrgency},
			},
			ProjectRules: &RuleSet{
				Selection: selection.Selection{
					Include: []selection.Criterion{
						{Categories: categories(rule.CategoryFilePractices, rule.CategoryDevelopmentWorkflow)},
					},
					MinUrgency: ptr(rule.UrgencyMedium),
				},
				Organization: Organization{GroupBy: GroupByNone, OrderBy: OrderByUrgency},
			},
		},
		Structure: Structure{
			Directories:         dirs,
			Scripts:             []Script{},
			Automation:          []Automation{},
			IncludeAutomation:   true,
			TaskManagementLevel: "simplified",
		},
		Templates: Templates{
			BaseTemplate: "simplified",
			Variables: map[string]any{
				"mode":     "SIMPLIFIED",
				"features": "Basic task management, Essential automation, Simple backup/recovery",
			},
		},
		Deployment: Deployment{
			Structure: &DeploymentStructure{
				Root:   ".",
				GitHub: githubFiles(string(OutputCopilotInstructions), string(OutputProjectRules)),
				Tasks:  &TaskSystem{Structure: paths, Type: "simple"},
			},
		},
	}
}

func custom() *Configuration {
	return &Configuration{
		Name:        "Custom Mode",
		Description: "Custom mode configuration",
		Type:        TypeCustom,
		Metadata: &Metadata{
			Version:        DefaultVersion,
			ProjectTypes:   []string{"all"},
			Complexity:     ComplexityMedium,
			EstimatedHours: EstimatedHours{Min: 1, Max: 100},
			Tags:           []string{"custom", "configurable"},
		},
		Rules: Rules{
			CopilotInstructions: &RuleSet{
				Selection: selection.Selection{
					Include: []selection.Criterion{{Categories: categories(rule.CategoryCustom)}},
				},
				Organization: Organization{GroupBy: GroupByNone, OrderBy: OrderByTitle},
			},
			ProjectRules: &RuleSet{
				Selection: selection.Selection{
					Include: []selection.Criterion{{Categories: categories(rule.CategoryFilePractices)}},
				},
				Organization: Organization{GroupBy: GroupByNone, OrderBy: OrderByTitle},
			},
		},
		Structure: Structure{
			Directories: []Directory{},
			Scripts:     []Script{},
			Automation:  []Automation{},
		},
		Templates: Templates{
			BaseTemplate: "basic",
			Variables:    map[string]any{},
		},
		Deployment: Deployment{
			Structure: &DeploymentStructure{
				Root:   ".",
				GitHub: githubFiles(string(OutputCopilotInstructions)),
			},
		},
	}
}

// Create returns the built-in template for t with the non-zero top-level
// fields of customizations applied over it. Metadata is merged field by
// field. The result gets a new id, unless customizations sets one, and
// fresh timestamps.
func Create(t Type, customizations *Configuration) *Configuration {
	return create(t, customizations, time.Now().UTC())
}

func create(t Type, c *Configuration, now time.Time) *Configuration {
	cfg := Builtin(t)

	if c != nil {
		mergeConfiguration(cfg, c)
	}

	if cfg.ID == "" {
		cfg.ID = NewID()
	}

	cfg.Metadata.Created = now
	cfg.Metadata.LastModified = now

	return cfg
}

// NewID returns a new mode id.
func NewID() string {
	return "mode_" + uuid.NewString()
}

//nolint:gocognit,cyclop // Flat list of field merges.
func mergeConfiguration(dst, src *Configuration) {
	if src.ID != "" {
		dst.ID = src.ID
	}
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Description != "" {
		dst.Description = src.Description
	}
	if src.Type != "" {
		dst.Type = src.Type
	}
	if src.Rules.CopilotInstructions != nil || src.Rules.ProjectRules != nil || src.Rules.CustomFiles != nil {
		dst.Rules = src.Rules
	}
	if src.RuleSelection != nil {
		dst.RuleSelection = src.RuleSelection
	}
	if src.RuleOrganization != nil {
		dst.RuleOrganization = src.RuleOrganization
	}
	if src.Structure.Directories != nil || src.Structure.Scripts != nil || src.Structure.TaskManagementLevel != "" ||
		src.Structure.IncludeAutomation || src.Structure.IncludeScripts {
		dst.Structure = src.Structure
	}
	if src.Templates.BaseTemplate != "" || src.Templates.Variables != nil || src.Templates.Overrides != nil {
		dst.Templates = src.Templates
	}
	if src.Deployment.Structure != nil {
		dst.Deployment = src.Deployment
	}
	if src.Overrides != nil {
		dst.Overrides = src.Overrides
	}

	if src.Metadata == nil {
		return
	}

	m, s := dst.Metadata, src.Metadata
	if s.Version != "" {
		m.Version = s.Version
	}
	if s.ProjectTypes != nil {
		m.ProjectTypes = s.ProjectTypes
	}
	if s.Complexity != "" {
		m.Complexity = s.Complexity
	}
	if s.EstimatedHours != (EstimatedHours{}) {
		m.EstimatedHours = s.EstimatedHours
	}
	if s.Author != "" {
		m.Author = s.Author
	}
	if s.Tags != nil {
		m.Tags = s.Tags
	}
	if s.MigrationDate != "" {
		m.MigrationDate = s.MigrationDate
	}
	if s.OriginalFiles != nil {
		m.OriginalFiles = s.OriginalFiles
	}
}
