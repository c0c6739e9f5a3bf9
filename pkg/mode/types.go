package mode

import (
	"time"

	"github.com/macropower/rulepool/pkg/rule"
	"github.com/macropower/rulepool/pkg/selection"
)

// Type is the kind of mode a configuration describes.
type Type string

const (
	TypeEnterprise Type = "enterprise"
	TypeSimplified Type = "simplified"
	TypeCustom     Type = "custom"
)

// AllTypes lists the built-in mode types.
var AllTypes = []Type{TypeEnterprise, TypeSimplified, TypeCustom}

// Complexity describes the size of project a mode targets.
type Complexity string

const (
	ComplexityBasic      Complexity = "basic"
	ComplexityMedium     Complexity = "medium"
	ComplexityEnterprise Complexity = "enterprise"
)

// GroupBy selects how rules are grouped in a rendered document.
type GroupBy string

const (
	GroupByCategory GroupBy = "category"
	GroupByUrgency  GroupBy = "urgency"
	GroupBySource   GroupBy = "source"
	GroupByNone     GroupBy = "none"
	GroupByCustom   GroupBy = "custom"
)

// OrderBy selects how rules are ordered in a rendered document.
type OrderBy string

const (
	OrderByUrgency OrderBy = "urgency"
	OrderByTitle   OrderBy = "title"
	OrderByCreated OrderBy = "created"
	OrderByCustom  OrderBy = "custom"
)

// Position places custom content relative to the rendered rules.
type Position string

const (
	PositionBefore  Position = "before"
	PositionAfter   Position = "after"
	PositionReplace Position = "replace"
)

// Output names a generated document.
type Output string

const (
	OutputCopilotInstructions Output = "copilot-instructions"
	OutputProjectRules        Output = "project-rules"
	OutputTaskManagement      Output = "task-management"
)

// Configuration describes a mode: which rules each generated document
// contains, how they are organized, and what else is deployed alongside.
//
//nolint:govet // Field order is the serialized order.
type Configuration struct {
	ID          string `json:"id"             jsonschema:"title=ID"`
	Name        string `json:"name"           jsonschema:"title=Name"`
	Description string `json:"description"    jsonschema:"title=Description"`
	Type        Type   `json:"type,omitempty" jsonschema:"title=Type,enum=enterprise,enum=simplified,enum=custom"`
	// Metadata describes the mode.
	Metadata *Metadata `json:"metadata,omitempty" jsonschema:"title=Metadata"`
	// Rules configures rule selection per generated document.
	Rules Rules `json:"rules" jsonschema:"title=Rules"`
	// RuleSelection is the legacy single selection of migrated documents.
	// See [Adapt].
	RuleSelection *selection.Selection `json:"ruleSelection,omitempty" jsonschema:"title=Rule Selection (Legacy)"`
	// RuleOrganization is the legacy organization of migrated documents.
	RuleOrganization *Organization `json:"ruleOrganization,omitempty" jsonschema:"title=Rule Organization (Legacy)"`
	// Structure describes directories and scripts deployed with the mode.
	Structure Structure `json:"structure" jsonschema:"title=Structure"`
	// Templates selects document templates and their variables.
	Templates Templates `json:"templates" jsonschema:"title=Templates"`
	// Deployment describes where generated files go.
	Deployment Deployment `json:"deployment" jsonschema:"title=Deployment"`
	// Overrides adjust individual rules when rendered for this mode.
	Overrides map[string]RuleOverride `json:"overrides,omitempty" jsonschema:"title=Overrides"`
}

// Metadata describes a mode.
type Metadata struct {
	Created        time.Time      `json:"created"                 jsonschema:"title=Created"`
	LastModified   time.Time      `json:"lastModified"            jsonschema:"title=Last Modified"`
	EstimatedHours EstimatedHours `json:"estimatedHours"          jsonschema:"title=Estimated Hours"`
	Version        string         `json:"version"                 jsonschema:"title=Version"`
	Complexity     Complexity     `json:"complexity,omitempty"    jsonschema:"title=Complexity,enum=basic,enum=medium,enum=enterprise"`
	Author         string         `json:"author,omitempty"        jsonschema:"title=Author"`
	MigrationDate  string         `json:"migrationDate,omitempty" jsonschema:"title=Migration Date"`
	ProjectTypes   []string       `json:"projectTypes"            jsonschema:"title=Project Types"`
	Tags           []string       `json:"tags"                    jsonschema:"title=Tags"`
	OriginalFiles  []string       `json:"originalFiles,omitempty" jsonschema:"title=Original Files"`
}

// EstimatedHours is an effort range.
type EstimatedHours struct {
	Min int `json:"min" jsonschema:"title=Minimum,minimum=0"`
	Max int `json:"max" jsonschema:"title=Maximum,minimum=0"`
}

// Rules holds one [RuleSet] per generated document.
type Rules struct {
	CopilotInstructions *RuleSet `json:"copilotInstructions,omitempty" jsonschema:"title=Copilot Instructions"`
	ProjectRules        *RuleSet `json:"projectRules,omitempty"        jsonschema:"title=Project Rules"`
	// CustomFiles are extra documents keyed by file name.
	CustomFiles map[string]*RuleSet `json:"customFiles,omitempty" jsonschema:"title=Custom Files"`
}

// RuleSet selects and organizes the rules of one document.
type RuleSet struct {
	Selection         selection.Selection `json:"selection"                   jsonschema:"title=Selection"`
	TemplateOverrides *TemplateOverrides  `json:"templateOverrides,omitempty" jsonschema:"title=Template Overrides"`
	Organization      Organization        `json:"organization"                jsonschema:"title=Organization"`
	CustomContent     []CustomContent     `json:"customContent,omitempty"     jsonschema:"title=Custom Content"`
}

// Organization controls grouping and ordering.
type Organization struct {
	HeaderTemplates map[string]string `json:"headerTemplates,omitempty" jsonschema:"title=Header Templates"`
	GroupBy         GroupBy           `json:"groupBy,omitempty"         jsonschema:"title=Group By,enum=category,enum=urgency,enum=source,enum=none,enum=custom"`
	OrderBy         OrderBy           `json:"orderBy,omitempty"         jsonschema:"title=Order By,enum=urgency,enum=title,enum=created,enum=custom"`
	// SortBy is accepted as an alias of OrderBy.
	SortBy         OrderBy  `json:"sortBy,omitempty"         jsonschema:"title=Sort By (Alias),enum=urgency,enum=title,enum=created,enum=custom"`
	CustomOrder    []string `json:"customOrder,omitempty"    jsonschema:"title=Custom Order"`
	CustomGroups   []Group  `json:"customGroups,omitempty"   jsonschema:"title=Custom Groups"`
	IncludeHeaders bool     `json:"includeHeaders"           jsonschema:"title=Include Headers"`
}

// Order returns OrderBy, falling back to SortBy.
func (o Organization) Order() OrderBy {
	if o.OrderBy != "" {
		return o.OrderBy
	}

	return o.SortBy
}

// Group is a named bucket used with [GroupByCustom].
type Group struct {
	ID       string              `json:"id"               jsonschema:"title=ID"`
	Name     string              `json:"name"             jsonschema:"title=Name"`
	Header   string              `json:"header,omitempty" jsonschema:"title=Header"`
	Criteria selection.Criterion `json:"criteria"         jsonschema:"title=Criteria"`
	Order    int                 `json:"order"            jsonschema:"title=Order"`
}

// CustomContent is literal text placed around the rendered rules.
type CustomContent struct {
	ID       string   `json:"id"               jsonschema:"title=ID"`
	Type     string   `json:"type,omitempty"   jsonschema:"title=Type,enum=markdown,enum=text,enum=template"`
	Position Position `json:"position"         jsonschema:"title=Position,enum=before,enum=after,enum=replace"`
	Target   string   `json:"target,omitempty" jsonschema:"title=Target"`
	Content  string   `json:"content"          jsonschema:"title=Content"`
	Order    int      `json:"order"            jsonschema:"title=Order"`
}

// TemplateOverrides replace parts of a rendered document.
type TemplateOverrides struct {
	Variables           map[string]any `json:"variables,omitempty"           jsonschema:"title=Variables"`
	Header              string         `json:"header,omitempty"              jsonschema:"title=Header"`
	Footer              string         `json:"footer,omitempty"              jsonschema:"title=Footer"`
	RuleTemplate        string         `json:"ruleTemplate,omitempty"        jsonschema:"title=Rule Template"`
	GroupHeaderTemplate string         `json:"groupHeaderTemplate,omitempty" jsonschema:"title=Group Header Template"`
}

// RuleOverride adjusts one rule at render time. Unset fields keep the
// rule's own value; Tags are added to the rule's tags.
type RuleOverride struct {
	Title    *string       `json:"title,omitempty"    jsonschema:"title=Title"`
	Content  *string       `json:"content,omitempty"  jsonschema:"title=Content"`
	Urgency  *rule.Urgency `json:"urgency,omitempty"  jsonschema:"title=Urgency"`
	Tags     []string      `json:"tags,omitempty"     jsonschema:"title=Tags"`
	Disabled bool          `json:"disabled,omitempty" jsonschema:"title=Disabled"`
}

// Structure describes files and directories deployed with a mode.
type Structure struct {
	TaskManagementLevel string       `json:"taskManagementLevel,omitempty" jsonschema:"title=Task Management Level,enum=basic,enum=enterprise,enum=simplified"`
	Directories         []Directory  `json:"directories"                   jsonschema:"title=Directories"`
	Scripts             []Script     `json:"scripts"                       jsonschema:"title=Scripts"`
	Automation          []Automation `json:"automation"                    jsonschema:"title=Automation"`
	IncludeAutomation   bool         `json:"includeAutomation,omitempty"   jsonschema:"title=Include Automation"`
	IncludeScripts      bool         `json:"includeScripts,omitempty"      jsonschema:"title=Include Scripts"`
}

// Directory is created in the target project.
type Directory struct {
	Path        string `json:"path"                  jsonschema:"title=Path"`
	Description string `json:"description,omitempty" jsonschema:"title=Description"`
	Required    bool   `json:"required"              jsonschema:"title=Required"`
}

// Script is copied from SourcePath, relative to the mode file, to
// TargetPath in the output directory.
type Script struct {
	Filename     string   `json:"filename"               jsonschema:"title=File Name"`
	SourcePath   string   `json:"sourcePath"             jsonschema:"title=Source Path"`
	TargetPath   string   `json:"targetPath"             jsonschema:"title=Target Path"`
	Description  string   `json:"description,omitempty"  jsonschema:"title=Description"`
	Dependencies []string `json:"dependencies,omitempty" jsonschema:"title=Dependencies"`
	Executable   bool     `json:"executable"             jsonschema:"title=Executable"`
}

// Automation describes a hook or monitor deployed with the mode.
type Automation struct {
	Type       string `json:"type"       jsonschema:"title=Type,enum=script,enum=task,enum=git-hook,enum=monitor"`
	ID         string `json:"id"         jsonschema:"title=ID"`
	Name       string `json:"name"       jsonschema:"title=Name"`
	SourcePath string `json:"sourcePath" jsonschema:"title=Source Path"`
	TargetPath string `json:"targetPath" jsonschema:"title=Target Path"`
}

// Templates selects the document templates.
type Templates struct {
	// Variables are available as {{variables.<key>}}.
	Variables map[string]any `json:"variables,omitempty" jsonschema:"title=Variables"`
	// Overrides name a different template per document.
	Overrides    *TemplateOverrideSet `json:"overrides,omitempty"    jsonschema:"title=Overrides"`
	BaseTemplate string               `json:"baseTemplate,omitempty" jsonschema:"title=Base Template"`
	Inherits     []string             `json:"inherits,omitempty"     jsonschema:"title=Inherits"`
}

// TemplateOverrideSet names the template for each document.
type TemplateOverrideSet struct {
	CustomFiles         map[string]string `json:"customFiles,omitempty"         jsonschema:"title=Custom Files"`
	CopilotInstructions string            `json:"copilotInstructions,omitempty" jsonschema:"title=Copilot Instructions"`
	ProjectRules        string            `json:"projectRules,omitempty"        jsonschema:"title=Project Rules"`
}

// Deployment describes where generated files go in a project.
type Deployment struct {
	Structure      *DeploymentStructure `json:"structure,omitempty"      jsonschema:"title=Structure"`
	BackupExisting bool                 `json:"backupExisting,omitempty" jsonschema:"title=Backup Existing"`
}

// DeploymentStructure lays out the deployed files.
type DeploymentStructure struct {
	GitHub *GitHub     `json:"github,omitempty" jsonschema:"title=GitHub"`
	Tasks  *TaskSystem `json:"tasks,omitempty"  jsonschema:"title=Tasks"`
	Root   string      `json:"root"             jsonschema:"title=Root"`
}

// GitHub configures files deployed under .github.
type GitHub struct {
	Files        []GitHubFile `json:"files"        jsonschema:"title=Files"`
	UseGitHubDir bool         `json:"useGitHubDir" jsonschema:"title=Use GitHub Directory"`
}

// GitHubFile maps a generated file to its deployed name.
type GitHubFile struct {
	Source string `json:"source" jsonschema:"title=Source"`
	Target string `json:"target" jsonschema:"title=Target"`
	Type   string `json:"type"   jsonschema:"title=Type,enum=copilot-instructions,enum=project-rules,enum=workflow,enum=template"`
}

// TaskSystem lists task directories.
type TaskSystem struct {
	Type      string   `json:"type"      jsonschema:"title=Type"`
	Structure []string `json:"structure" jsonschema:"title=Structure"`
}
