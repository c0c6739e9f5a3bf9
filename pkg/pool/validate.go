package pool

import (
	"fmt"
	"maps"
	"slices"

	"github.com/macropower/rulepool/pkg/rule"
)

const (
	CodeDuplicateIDs       = "DUPLICATE_IDS"
	CodeDanglingDependency = "DANGLING_DEPENDENCY"
)

// Report aggregates validation findings for the whole pool.
type Report struct {
	Issues   []rule.Issue `json:"issues"`
	Errors   int          `json:"errors"`
	Warnings int          `json:"warnings"`
	Valid    bool         `json:"valid"`
}

// Validate checks every rule and the relations between them. It never stops
// at the first problem.
func (p *Pool) Validate() *Report {
	p.mu.RLock()
	defer p.mu.RUnlock()

	issues := slices.Clone(p.loadIssues)

	for _, id := range slices.Sorted(maps.Keys(p.rules)) {
		r := p.rules[id]
		issues = append(issues, r.Validate()...)

		for _, dep := range r.DependsOn {
			if _, ok := p.rules[dep]; !ok {
				issues = append(issues, rule.Issue{
					RuleID:   id,
					Field:    "dependsOn",
					Code:     CodeDanglingDependency,
					Message:  fmt.Sprintf("depends on unknown rule %q", dep),
					Severity: rule.SeverityWarning,
				})
			}
		}
	}

	rep := &Report{Issues: issues}
	for _, issue := range issues {
		if issue.Severity == rule.SeverityError {
			rep.Errors++
		} else {
			rep.Warnings++
		}
	}

	rep.Valid = rep.Errors == 0

	return rep
}
