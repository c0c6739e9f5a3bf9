package mode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/macropower/rulepool/pkg/rule"
	"github.com/macropower/rulepool/pkg/selection"
)

const (
	CodeMissingID                  = "MISSING_ID"
	CodeMissingName                = "MISSING_NAME"
	CodeMissingMetadata            = "MISSING_METADATA"
	CodeMissingBaseTemplate        = "MISSING_BASE_TEMPLATE"
	CodeNoDirectories              = "NO_DIRECTORIES"
	CodeMissingDeploymentStructure = "MISSING_DEPLOYMENT_STRUCTURE"

	maxSuggestions = 3
)

var (
	ErrUnknownType = errors.New("unknown mode type")
	ErrInvalid     = errors.New("invalid mode configuration")
)

// Issue is a single validation finding.
type Issue struct {
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Path     string        `json:"path"`
	Severity rule.Severity `json:"severity"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s (%s)", i.Path, i.Message, i.Code)
}

// FailedResolution records a rule set whose selection could not be
// resolved, or that named rules which do not exist.
type FailedResolution struct {
	Criteria    selection.Selection `json:"criteria"`
	RuleSet     string              `json:"ruleSet"`
	Reason      string              `json:"reason"`
	Suggestions []string            `json:"suggestions,omitempty"`
}

// Resolution summarizes the rules referenced by a configuration.
type Resolution struct {
	ByCategory    map[rule.Category]int `json:"rulesByCategory"`
	ByUrgency     map[rule.Urgency]int  `json:"rulesByUrgency"`
	ResolvedRules []string              `json:"resolvedRules"`
	Failed        []FailedResolution    `json:"failedResolutions,omitempty"`
	TotalRules    int                   `json:"totalRules"`
}

// Report is the outcome of [Validate].
type Report struct {
	Resolution *Resolution `json:"ruleResolution,omitempty"`
	Errors     []Issue     `json:"errors"`
	Warnings   []Issue     `json:"warnings"`
	Valid      bool        `json:"valid"`
}

// Err returns the error-severity issues joined into one error wrapping
// [ErrInvalid], or nil.
func (r *Report) Err() error {
	if r.Valid {
		return nil
	}

	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}

	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

func (r *Report) addError(code, path, msg string) {
	r.Errors = append(r.Errors, Issue{Code: code, Path: path, Message: msg, Severity: rule.SeverityError})
}

func (r *Report) addWarning(code, path, msg string) {
	r.Warnings = append(r.Warnings, Issue{Code: code, Path: path, Message: msg, Severity: rule.SeverityWarning})
}

// Validate runs the structural, rule reference, template and deployment
// checks. Rule references are only checked when src is not nil. Resolution
// failures are recorded in the report but do not make it invalid.
func Validate(cfg *Configuration, src selection.RuleSource) *Report {
	r := &Report{
		Errors:   []Issue{},
		Warnings: []Issue{},
	}

	if cfg.ID == "" {
		r.addError(CodeMissingID, "id", "Mode configuration must have an ID")
	}
	if cfg.Name == "" {
		r.addError(CodeMissingName, "name", "Mode configuration must have a name")
	}
	if cfg.Metadata == nil {
		r.addError(CodeMissingMetadata, "metadata", "Mode configuration must have metadata")
	}

	if src != nil {
		r.Resolution = ResolveReferences(cfg, src)
	}

	if cfg.Templates.BaseTemplate == "" {
		r.addWarning(CodeMissingBaseTemplate, "templates.baseTemplate", "No base template specified, using default")
	}

	if len(cfg.Structure.Directories) == 0 {
		r.addWarning(CodeNoDirectories, "structure.directories", "No directories specified in structure")
	}

	if cfg.Deployment.Structure == nil {
		r.addError(CodeMissingDeploymentStructure, "deployment.structure", "Deployment structure must be specified")
	}

	r.Valid = len(r.Errors) == 0

	return r
}

// ResolveReferences resolves every rule set of cfg against src. Resolved
// ids are deduplicated across rule sets in [Configuration.RuleSets] order.
func ResolveReferences(cfg *Configuration, src selection.RuleSource) *Resolution {
	res := &Resolution{
		ByCategory:    map[rule.Category]int{},
		ByUrgency:     map[rule.Urgency]int{},
		ResolvedRules: []string{},
	}

	seen := map[string]bool{}

	var ids []string

	for _, entry := range cfg.RuleSets() {
		out, err := ResolveRuleSet(src, entry.RuleSet)
		if err != nil {
			res.Failed = append(res.Failed, FailedResolution{
				RuleSet:  entry.Path,
				Criteria: entry.RuleSet.Selection,
				Reason:   fmt.Sprintf("resolve %s: %v", entry.Path, err),
			})

			continue
		}

		if len(out.Unresolved) > 0 {
			if ids == nil {
				for _, r := range src.All() {
					ids = append(ids, r.ID)
				}
			}

			res.Failed = append(res.Failed, FailedResolution{
				RuleSet:     entry.Path,
				Criteria:    entry.RuleSet.Selection,
				Reason:      "unknown rule ids: " + strings.Join(out.Unresolved, ", "),
				Suggestions: suggest(out.Unresolved, ids),
			})
		}

		for _, id := range out.IDs {
			if seen[id] {
				continue
			}

			seen[id] = true

			res.ResolvedRules = append(res.ResolvedRules, id)

			if r, ok := src.Get(id); ok {
				res.ByCategory[r.Category]++
				res.ByUrgency[r.Urgency]++
			}
		}
	}

	res.TotalRules = len(res.ResolvedRules)

	return res
}

// ResolveRuleSet resolves the selection of rs against src.
func ResolveRuleSet(src selection.RuleSource, rs *RuleSet) (*selection.Result, error) {
	spec, err := rs.Selection.Spec()
	if err != nil {
		return nil, err //nolint:wrapcheck // Already carries context.
	}

	out, err := selection.Resolve(src, spec)
	if err != nil {
		return nil, err //nolint:wrapcheck // Already carries context.
	}

	return out, nil
}

// suggest returns up to maxSuggestions known ids per unknown id, best
// fuzzy match first.
func suggest(unknown, known []string) []string {
	var out []string

	seen := map[string]bool{}

	for _, id := range unknown {
		matches := fuzzy.Find(id, known)
		for i, m := range matches {
			if i == maxSuggestions {
				break
			}
			if seen[m.Str] {
				continue
			}

			seen[m.Str] = true

			out = append(out, m.Str)
		}
	}

	return out
}
