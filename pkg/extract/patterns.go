package extract

import (
	"regexp"

	"github.com/macropower/rulepool/pkg/rule"
)

// Pattern assigns Category to sections whose heading or body matches any
// of Patterns.
type Pattern struct {
	Category     rule.Category
	Patterns     []*regexp.Regexp
	ProjectTypes []rule.ProjectType
}

// Match reports whether s matches the pattern.
func (p Pattern) Match(s Section) bool {
	for _, re := range p.Patterns {
		if re.MatchString(s.Title) || re.MatchString(s.Content) {
			return true
		}
	}

	return false
}

func patterns(exprs ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		res = append(res, regexp.MustCompile("(?i)"+e))
	}

	return res
}

// DefaultPatterns returns the built-in pattern library in match order.
func DefaultPatterns() []Pattern {
	all := []rule.ProjectType{rule.ProjectTypeAll}
	flutter := []rule.ProjectType{rule.ProjectTypeFlutter}

	return []Pattern{
		{
			Category: rule.CategorySOLIDPrinciples,
			Patterns: patterns(
				`SOLID.*Principles`,
				`Single Responsibility`,
				`Open.*Closed`,
				`Liskov.*Substitution`,
				`Interface.*Segregation`,
				`Dependency.*Inversion`,
			),
			ProjectTypes: all,
		},
		{
			Category:     rule.CategoryCleanArchitecture,
			Patterns:     patterns(`Clean Architecture`, `lib/core`, `lib/data`, `lib/presentation`, `lib/domain`),
			ProjectTypes: flutter,
		},
		{
			Category: rule.CategoryTestingRequirements,
			Patterns: patterns(
				`Testing.*Requirements`,
				`Unit Tests`,
				`Widget Tests`,
				`Integration Tests`,
				`test.*coverage`,
			),
			ProjectTypes: all,
		},
		{
			Category: rule.CategoryFilePractices,
			Patterns: patterns(
				`File.*Practices`,
				`SINGLE-FILE.*MONSTERS`,
				`Max.*lines.*per.*file`,
				`EXTRACT.*reusable`,
			),
			ProjectTypes: all,
		},
		{
			Category:     rule.CategoryBackupStrategy,
			Patterns:     patterns(`Backup.*Strategy`, `git.*commit`, `feature.*branch`, `backup.*branch`),
			ProjectTypes: all,
		},
		{
			Category:     rule.CategoryStateManagement,
			Patterns:     patterns(`State Management`, `Provider.*setState`, `Riverpod.*Bloc`, `global.*variables`),
			ProjectTypes: flutter,
		},
		{
			Category: rule.CategoryPerformanceGuidelines,
			Patterns: patterns(
				`Performance.*Guidelines`,
				`Lazy Loading`,
				`Image Optimization`,
				`Memory Management`,
				`Build Optimization`,
			),
			ProjectTypes: flutter,
		},
		{
			Category:     rule.CategoryTaskManagement,
			Patterns:     patterns(`Task Management`, `MANDATORY.*WORKFLOW`, `\.tasks/`, `Epic.*scale`),
			ProjectTypes: all,
		},
	}
}
