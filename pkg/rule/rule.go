package rule

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTitle   = "Untitled Rule"
	DefaultAuthor  = "System"
	DefaultVersion = "1.0.0"
)

// Rule is a tagged, categorized, urgency-ranked unit of reusable
// configuration text.
type Rule struct {
	CreatedAt     time.Time     `json:"createdAt"               jsonschema:"title=Created At"`
	UpdatedAt     time.Time     `json:"updatedAt"               jsonschema:"title=Updated At"`
	ID            string        `json:"id"                      jsonschema:"title=ID"`
	Title         string        `json:"title"                   jsonschema:"title=Title"`
	Description   string        `json:"description"             jsonschema:"title=Description"`
	Category      Category      `json:"category"                jsonschema:"title=Category"`
	Version       string        `json:"version"                 jsonschema:"title=Version"`
	Content       string        `json:"content"                 jsonschema:"title=Content"`
	ContentType   ContentType   `json:"contentType"             jsonschema:"title=Content Type"`
	Author        string        `json:"author"                  jsonschema:"title=Author"`
	SourceFile    string        `json:"sourceFile,omitempty"    jsonschema:"title=Source File"`
	SourceSection string        `json:"sourceSection,omitempty" jsonschema:"title=Source Section"`
	Tags          []string      `json:"tags"                    jsonschema:"title=Tags"`
	AppliesTo     []ProjectType `json:"appliesTo"               jsonschema:"title=Applies To"`
	Sources       []string      `json:"sources,omitempty"       jsonschema:"title=Sources"`
	SourceModes   []string      `json:"sourceModes,omitempty"   jsonschema:"title=Source Modes"`
	DependsOn     []string      `json:"dependsOn,omitempty"     jsonschema:"title=Depends On"`
	Conflicts     []string      `json:"conflicts,omitempty"     jsonschema:"title=Conflicts"`
	Supersedes    []string      `json:"supersedes,omitempty"    jsonschema:"title=Supersedes"`
	Urgency       Urgency       `json:"urgency"                 jsonschema:"title=Urgency"`
	IsCustom      bool          `json:"isCustom"                jsonschema:"title=Is Custom"`
	IsActive      bool          `json:"isActive"                jsonschema:"title=Is Active"`
}

// Opt configures a [Rule] created by [New].
type Opt func(*Rule)

// New creates a [Rule] with a fresh id and default values, then applies opts.
func New(opts ...Opt) *Rule {
	now := time.Now().UTC()

	r := &Rule{
		ID:          uuid.NewString(),
		Title:       DefaultTitle,
		Category:    CategoryCustom,
		Urgency:     UrgencyMedium,
		Version:     DefaultVersion,
		ContentType: ContentTypeMarkdown,
		Tags:        []string{},
		AppliesTo:   []ProjectType{ProjectTypeAll},
		Author:      DefaultAuthor,
		IsCustom:    true,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// UnmarshalJSON decodes a rule, filling fields absent from data with the
// defaults of [New]. Title, content and id are left for validation.
func (r *Rule) UnmarshalJSON(data []byte) error {
	type plain Rule

	p := plain{
		Category:    CategoryCustom,
		Urgency:     UrgencyMedium,
		Version:     DefaultVersion,
		ContentType: ContentTypeMarkdown,
		Tags:        []string{},
		AppliesTo:   []ProjectType{ProjectTypeAll},
		Author:      DefaultAuthor,
		IsCustom:    true,
		IsActive:    true,
	}

	err := json.Unmarshal(data, &p)
	if err != nil {
		return err //nolint:wrapcheck // Decoding errors carry their own context.
	}

	*r = Rule(p)

	return nil
}

func WithID(id string) Opt {
	return func(r *Rule) {
		r.ID = id
	}
}

func WithTitle(title string) Opt {
	return func(r *Rule) {
		r.Title = title
	}
}

func WithDescription(description string) Opt {
	return func(r *Rule) {
		r.Description = description
	}
}

func WithContent(content string) Opt {
	return func(r *Rule) {
		r.Content = content
	}
}

func WithContentType(ct ContentType) Opt {
	return func(r *Rule) {
		r.ContentType = ct
	}
}

func WithCategory(c Category) Opt {
	return func(r *Rule) {
		r.Category = c
	}
}

func WithUrgency(u Urgency) Opt {
	return func(r *Rule) {
		r.Urgency = u
	}
}

func WithTags(tags ...string) Opt {
	return func(r *Rule) {
		r.Tags = tags
	}
}

func WithAppliesTo(pts ...ProjectType) Opt {
	return func(r *Rule) {
		r.AppliesTo = pts
	}
}

func WithAuthor(author string) Opt {
	return func(r *Rule) {
		r.Author = author
	}
}

func WithDependsOn(ids ...string) Opt {
	return func(r *Rule) {
		r.DependsOn = ids
	}
}

// WithSource records where an extracted rule came from.
func WithSource(file, section string, modes ...string) Opt {
	return func(r *Rule) {
		r.SourceFile = file
		r.SourceSection = section
		r.SourceModes = modes
	}
}

func WithCustom(custom bool) Opt {
	return func(r *Rule) {
		r.IsCustom = custom
	}
}

func WithActive(active bool) Opt {
	return func(r *Rule) {
		r.IsActive = active
	}
}

// WithTimestamps sets both creation and update times.
func WithTimestamps(t time.Time) Opt {
	return func(r *Rule) {
		r.CreatedAt = t
		r.UpdatedAt = t
	}
}

// AppliesToProject reports whether the rule applies to any of the given
// project types. Rules tagged [ProjectTypeAll] apply to every project.
func (r *Rule) AppliesToProject(pts ...ProjectType) bool {
	if slices.Contains(r.AppliesTo, ProjectTypeAll) {
		return true
	}
	for _, pt := range pts {
		if pt == ProjectTypeAll || slices.Contains(r.AppliesTo, pt) {
			return true
		}
	}

	return false
}

// HasAnyTag reports whether the rule carries at least one of tags.
func (r *Rule) HasAnyTag(tags ...string) bool {
	for _, t := range tags {
		if slices.Contains(r.Tags, t) {
			return true
		}
	}

	return false
}

// Clone returns a deep copy of r.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}

	c := *r
	c.Tags = slices.Clone(r.Tags)
	c.AppliesTo = slices.Clone(r.AppliesTo)
	c.Sources = slices.Clone(r.Sources)
	c.SourceModes = slices.Clone(r.SourceModes)
	c.DependsOn = slices.Clone(r.DependsOn)
	c.Conflicts = slices.Clone(r.Conflicts)
	c.Supersedes = slices.Clone(r.Supersedes)

	return &c
}

func (r *Rule) String() string {
	return r.ID + ": " + r.Title
}
