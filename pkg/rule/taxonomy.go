package rule

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/invopop/jsonschema"
)

var (
	ErrUnknownUrgency     = errors.New("unknown urgency")
	ErrUnknownCategory    = errors.New("unknown category")
	ErrUnknownContentType = errors.New("unknown content type")
	ErrUnknownProjectType = errors.New("unknown project type")
)

// Urgency ranks how strongly a rule must be followed.
type Urgency int

const (
	UrgencyInfo Urgency = iota
	UrgencyLow
	UrgencyMedium
	UrgencyHigh
	UrgencyCritical
)

var urgencyNames = [...]string{
	UrgencyInfo:     "INFO",
	UrgencyLow:      "LOW",
	UrgencyMedium:   "MEDIUM",
	UrgencyHigh:     "HIGH",
	UrgencyCritical: "CRITICAL",
}

// AllUrgencies lists every urgency, lowest first.
var AllUrgencies = []Urgency{
	UrgencyInfo,
	UrgencyLow,
	UrgencyMedium,
	UrgencyHigh,
	UrgencyCritical,
}

// ParseUrgency parses an urgency name, ignoring case.
func ParseUrgency(s string) (Urgency, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for u, n := range urgencyNames {
		if n == name {
			return Urgency(u), nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownUrgency, s)
}

func (u Urgency) String() string {
	if !u.Valid() {
		return fmt.Sprintf("Urgency(%d)", int(u))
	}

	return urgencyNames[u]
}

// Valid reports whether u is one of the five defined levels.
func (u Urgency) Valid() bool {
	return u >= UrgencyInfo && u <= UrgencyCritical
}

// AtLeast reports whether u ranks at or above min.
func (u Urgency) AtLeast(minimum Urgency) bool {
	return u >= minimum
}

func (u Urgency) MarshalText() ([]byte, error) {
	if !u.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownUrgency, int(u))
	}

	return []byte(u.String()), nil
}

func (u *Urgency) UnmarshalText(text []byte) error {
	parsed, err := ParseUrgency(string(text))
	if err != nil {
		return err
	}

	*u = parsed

	return nil
}

func (Urgency) JSONSchema() *jsonschema.Schema {
	return enumSchema("Urgency", urgencyNames[:])
}

// Category is a fixed taxonomy bucket for rules.
type Category string

const (
	CategorySOLIDPrinciples       Category = "SOLID_PRINCIPLES"
	CategoryCleanArchitecture     Category = "CLEAN_ARCHITECTURE"
	CategoryFilePractices         Category = "FILE_PRACTICES"
	CategoryTestingRequirements   Category = "TESTING_REQUIREMENTS"
	CategoryBackupStrategy        Category = "BACKUP_STRATEGY"
	CategoryStateManagement       Category = "STATE_MANAGEMENT"
	CategoryPerformanceGuidelines Category = "PERFORMANCE_GUIDELINES"
	CategoryTaskManagement        Category = "TASK_MANAGEMENT"
	CategorySecurityRules         Category = "SECURITY_RULES"
	CategoryDevelopmentWorkflow   Category = "DEVELOPMENT_WORKFLOW"
	CategoryRefactoringGuidelines Category = "REFACTORING_GUIDELINES"
	CategoryEnterpriseFeatures    Category = "ENTERPRISE_FEATURES"
	CategoryModeSwitching         Category = "MODE_SWITCHING"
	CategoryCustom                Category = "CUSTOM"
)

// AllCategories lists the taxonomy in declaration order.
var AllCategories = []Category{
	CategorySOLIDPrinciples,
	CategoryCleanArchitecture,
	CategoryFilePractices,
	CategoryTestingRequirements,
	CategoryBackupStrategy,
	CategoryStateManagement,
	CategoryPerformanceGuidelines,
	CategoryTaskManagement,
	CategorySecurityRules,
	CategoryDevelopmentWorkflow,
	CategoryRefactoringGuidelines,
	CategoryEnterpriseFeatures,
	CategoryModeSwitching,
	CategoryCustom,
}

// ParseCategory parses a category name, ignoring case and surrounding space.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}

	return c, nil
}

func (c Category) Valid() bool {
	return slices.Contains(AllCategories, c)
}

func (Category) JSONSchema() *jsonschema.Schema {
	return enumSchema("Category", toStrings(AllCategories))
}

// ContentType describes how a rule's content body is shaped.
type ContentType string

const (
	ContentTypeMarkdown     ContentType = "MARKDOWN"
	ContentTypeChecklist    ContentType = "CHECKLIST"
	ContentTypeCodeSnippet  ContentType = "CODE_SNIPPET"
	ContentTypeShellCommand ContentType = "SHELL_COMMAND"
	ContentTypeWorkflow     ContentType = "WORKFLOW"
)

var AllContentTypes = []ContentType{
	ContentTypeMarkdown,
	ContentTypeChecklist,
	ContentTypeCodeSnippet,
	ContentTypeShellCommand,
	ContentTypeWorkflow,
}

func ParseContentType(s string) (ContentType, error) {
	ct := ContentType(strings.ToUpper(strings.TrimSpace(s)))
	if !slices.Contains(AllContentTypes, ct) {
		return "", fmt.Errorf("%w: %q", ErrUnknownContentType, s)
	}

	return ct, nil
}

func (ContentType) JSONSchema() *jsonschema.Schema {
	return enumSchema("Content Type", toStrings(AllContentTypes))
}

// ProjectType tags the kind of project a rule applies to.
// [ProjectTypeAll] matches every project.
type ProjectType string

const (
	ProjectTypeFlutter    ProjectType = "FLUTTER"
	ProjectTypeTypeScript ProjectType = "TYPESCRIPT"
	ProjectTypeJavaScript ProjectType = "JAVASCRIPT"
	ProjectTypePython     ProjectType = "PYTHON"
	ProjectTypeReact      ProjectType = "REACT"
	ProjectTypeAngular    ProjectType = "ANGULAR"
	ProjectTypeVue        ProjectType = "VUE"
	ProjectTypeNode       ProjectType = "NODE"
	ProjectTypeAll        ProjectType = "ALL"
)

var AllProjectTypes = []ProjectType{
	ProjectTypeFlutter,
	ProjectTypeTypeScript,
	ProjectTypeJavaScript,
	ProjectTypePython,
	ProjectTypeReact,
	ProjectTypeAngular,
	ProjectTypeVue,
	ProjectTypeNode,
	ProjectTypeAll,
}

func ParseProjectType(s string) (ProjectType, error) {
	pt := ProjectType(strings.ToUpper(strings.TrimSpace(s)))
	if !slices.Contains(AllProjectTypes, pt) {
		return "", fmt.Errorf("%w: %q", ErrUnknownProjectType, s)
	}

	return pt, nil
}

func (ProjectType) JSONSchema() *jsonschema.Schema {
	return enumSchema("Project Type", toStrings(AllProjectTypes))
}

func enumSchema(title string, values []string) *jsonschema.Schema {
	enum := make([]any, 0, len(values))
	for _, v := range values {
		enum = append(enum, v)
	}

	return &jsonschema.Schema{
		Type:  "string",
		Title: title,
		Enum:  enum,
	}
}

func toStrings[T ~string](values []T) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, string(v))
	}

	return out
}
