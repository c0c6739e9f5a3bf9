package rule

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is returned when a rule fails error-severity validation.
var ErrInvalid = errors.New("invalid rule")

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

const (
	CodeRequired       = "REQUIRED"
	CodeEmptyAppliesTo = "EMPTY_APPLIES_TO"
	CodeInvalidEnum    = "INVALID_VALUE"
)

// Issue is a single validation finding for a rule.
type Issue struct {
	RuleID   string   `json:"ruleId,omitempty"`
	Field    string   `json:"field"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s (%s)", i.Field, i.Message, i.Code)
}

// Validate returns every issue found on r without stopping at the first one.
func (r *Rule) Validate() []Issue {
	var issues []Issue

	add := func(field, code, msg string, sev Severity) {
		issues = append(issues, Issue{
			RuleID:   r.ID,
			Field:    field,
			Code:     code,
			Message:  msg,
			Severity: sev,
		})
	}

	if strings.TrimSpace(r.Title) == "" {
		add("title", CodeRequired, "title is required", SeverityError)
	}
	if strings.TrimSpace(r.Content) == "" {
		add("content", CodeRequired, "content is required", SeverityError)
	}
	if !r.Category.Valid() {
		add("category", CodeInvalidEnum, fmt.Sprintf("unknown category %q", r.Category), SeverityError)
	}
	if !r.Urgency.Valid() {
		add("urgency", CodeInvalidEnum, fmt.Sprintf("unknown urgency %d", int(r.Urgency)), SeverityError)
	}
	if len(r.AppliesTo) == 0 {
		add("appliesTo", CodeEmptyAppliesTo, "rule applies to no project types", SeverityWarning)
	}

	return issues
}

// Check validates r and returns an error wrapping [ErrInvalid] when any
// error-severity issue is present. Warnings are returned separately.
func (r *Rule) Check() ([]Issue, error) {
	var (
		warnings []Issue
		msgs     []string
	)
	for _, issue := range r.Validate() {
		if issue.Severity == SeverityError {
			msgs = append(msgs, issue.String())
			continue
		}

		warnings = append(warnings, issue)
	}
	if len(msgs) > 0 {
		return warnings, fmt.Errorf("%w %q: %s", ErrInvalid, r.ID, strings.Join(msgs, "; "))
	}

	return warnings, nil
}
