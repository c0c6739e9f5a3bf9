package extract

import (
	"regexp"
	"slices"
	"strings"

	"github.com/macropower/rulepool/pkg/rule"
)

// minRuleLength is the shortest trimmed text [LooksLikeRule] accepts.
const minRuleLength = 50

type keywordCategory struct {
	keyword  string
	category rule.Category
}

// headingCategories is checked in order; the first keyword found wins.
var headingCategories = []keywordCategory{
	{"solid", rule.CategorySOLIDPrinciples},
	{"architecture", rule.CategoryCleanArchitecture},
	{"test", rule.CategoryTestingRequirements},
	{"file", rule.CategoryFilePractices},
	{"backup", rule.CategoryBackupStrategy},
	{"state", rule.CategoryStateManagement},
	{"performance", rule.CategoryPerformanceGuidelines},
	{"task", rule.CategoryTaskManagement},
	{"security", rule.CategorySecurityRules},
	{"workflow", rule.CategoryDevelopmentWorkflow},
	{"refactor", rule.CategoryRefactoringGuidelines},
	{"enterprise", rule.CategoryEnterpriseFeatures},
	{"mode", rule.CategoryModeSwitching},
}

type urgencyTier struct {
	keywords []string
	urgency  rule.Urgency
}

// urgencyTiers is checked from the most to the least urgent tier.
var urgencyTiers = []urgencyTier{
	{urgency: rule.UrgencyCritical, keywords: []string{"MUST", "NEVER", "MANDATORY", "REQUIRED", "CRITICAL", "⚠️", "🚨"}},
	{urgency: rule.UrgencyHigh, keywords: []string{"SHOULD", "NON-NEGOTIABLE", "ENFORCED", "IMPORTANT"}},
	{urgency: rule.UrgencyMedium, keywords: []string{"RECOMMENDED", "BEST PRACTICE", "GUIDELINE", "STANDARD"}},
	{urgency: rule.UrgencyLow, keywords: []string{"SUGGESTION", "CONSIDER", "OPTIONAL", "PREFER"}},
	{urgency: rule.UrgencyInfo, keywords: []string{"NOTE", "INFO", "DOCUMENTATION", "EXPLANATION"}},
}

var (
	ruleIndicatorRe = regexp.MustCompile(
		`(?i)MUST|NEVER|SHOULD|REQUIRED|MANDATORY|best practice|guideline|rule|principle|requirement|standard|convention`,
	)
	headingMarkerRe = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)
	blankLinesRe    = regexp.MustCompile(`\n{3,}`)
)

// Categorize maps a heading to a category by keyword, ignoring case.
// Headings without a known keyword are [rule.CategoryCustom].
func Categorize(heading string) rule.Category {
	h := strings.ToLower(heading)
	for _, kc := range headingCategories {
		if strings.Contains(h, kc.keyword) {
			return kc.category
		}
	}

	return rule.CategoryCustom
}

// InferUrgency returns the urgency of the first keyword tier found in
// content, ignoring case, or [rule.UrgencyMedium].
func InferUrgency(content string) rule.Urgency {
	upper := strings.ToUpper(content)
	for _, tier := range urgencyTiers {
		for _, kw := range tier.keywords {
			if strings.Contains(upper, kw) {
				return tier.urgency
			}
		}
	}

	return rule.UrgencyMedium
}

// InferTags derives tags from heading keywords and content markers.
func InferTags(heading, content string) []string {
	h := strings.ToLower(heading)

	var tags []string
	for _, kw := range []string{"flutter", "typescript", "enterprise", "simplified", "hybrid"} {
		if strings.Contains(h, kw) {
			tags = append(tags, kw)
		}
	}

	for _, m := range []struct{ marker, tag string }{
		{"lib/", "flutter"},
		{"npm install", "node"},
		{"requirements.txt", "python"},
		{".tasks/", "task-management"},
		{"git ", "git"},
		{"test", "testing"},
	} {
		if strings.Contains(content, m.marker) && !slices.Contains(tags, m.tag) {
			tags = append(tags, m.tag)
		}
	}

	if tags == nil {
		return []string{}
	}

	return tags
}

// InferProjectTypes derives project types from content and tags, or
// returns [rule.ProjectTypeAll].
func InferProjectTypes(content string, tags []string) []rule.ProjectType {
	c := strings.ToLower(content)

	var types []rule.ProjectType
	if strings.Contains(c, "flutter") || strings.Contains(c, "lib/") || slices.Contains(tags, "flutter") {
		types = append(types, rule.ProjectTypeFlutter)
	}
	if strings.Contains(c, "typescript") || strings.Contains(c, "npm") || slices.Contains(tags, "typescript") {
		types = append(types, rule.ProjectTypeTypeScript)
	}
	if strings.Contains(c, "python") || strings.Contains(c, "requirements.txt") || slices.Contains(tags, "python") {
		types = append(types, rule.ProjectTypePython)
	}
	if strings.Contains(c, "react") || slices.Contains(tags, "react") {
		types = append(types, rule.ProjectTypeReact)
	}

	if len(types) == 0 {
		return []rule.ProjectType{rule.ProjectTypeAll}
	}

	return types
}

// LooksLikeRule reports whether text reads like guidance: it mentions a
// rule indicator and is not trivially short.
func LooksLikeRule(text string) bool {
	return len(strings.TrimSpace(text)) > minRuleLength && ruleIndicatorRe.MatchString(text)
}

// CleanContent strips heading markers and collapses runs of blank lines.
func CleanContent(content string) string {
	content = headingMarkerRe.ReplaceAllString(content, "")
	content = blankLinesRe.ReplaceAllString(content, "\n\n")

	return strings.TrimSpace(content)
}
