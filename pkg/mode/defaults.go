package mode

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/macropower/rulepool/api/v1beta1"
)

const DefaultVersion = "1.0.0"

var _ v1beta1.Defaulter = (*Configuration)(nil)

// ParseType parses a mode type name.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if slices.Contains(AllTypes, t) {
		return t, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// EnsureDefaults stamps missing metadata timestamps and initializes tags.
// A missing metadata block is left missing so that validation reports it.
func (c *Configuration) EnsureDefaults() {
	c.ensureDefaults(time.Now().UTC())
}

func (c *Configuration) ensureDefaults(now time.Time) {
	if c.Metadata == nil {
		return
	}

	if c.Metadata.Created.IsZero() {
		c.Metadata.Created = now
	}
	if c.Metadata.LastModified.IsZero() {
		c.Metadata.LastModified = now
	}
	if c.Metadata.Tags == nil {
		c.Metadata.Tags = []string{}
	}
	if c.Metadata.Version == "" {
		c.Metadata.Version = DefaultVersion
	}
}

// RuleSetEntry is a named [RuleSet] of a configuration.
type RuleSetEntry struct {
	RuleSet *RuleSet
	// Name is the output file stem, e.g. "copilot-instructions".
	Name string
	// Path locates the rule set in the document, e.g. "rules.projectRules".
	Path string
}

// RuleSets returns the configured rule sets in resolution order:
// copilotInstructions, projectRules, then custom files sorted by name.
func (c *Configuration) RuleSets() []RuleSetEntry {
	var out []RuleSetEntry

	if c.Rules.CopilotInstructions != nil {
		out = append(out, RuleSetEntry{
			Name:    string(OutputCopilotInstructions),
			Path:    "rules.copilotInstructions",
			RuleSet: c.Rules.CopilotInstructions,
		})
	}

	if c.Rules.ProjectRules != nil {
		out = append(out, RuleSetEntry{
			Name:    string(OutputProjectRules),
			Path:    "rules.projectRules",
			RuleSet: c.Rules.ProjectRules,
		})
	}

	for _, name := range slices.Sorted(maps.Keys(c.Rules.CustomFiles)) {
		rs := c.Rules.CustomFiles[name]
		if rs == nil {
			continue
		}

		out = append(out, RuleSetEntry{
			Name:    name,
			Path:    "rules.customFiles." + name,
			RuleSet: rs,
		})
	}

	return out
}

// TemplateName returns the template used for the named output. Per-document
// overrides win over the base template.
func (c *Configuration) TemplateName(output string) string {
	if o := c.Templates.Overrides; o != nil {
		switch output {
		case string(OutputCopilotInstructions):
			if o.CopilotInstructions != "" {
				return o.CopilotInstructions
			}
		case string(OutputProjectRules):
			if o.ProjectRules != "" {
				return o.ProjectRules
			}
		default:
			if name := o.CustomFiles[output]; name != "" {
				return name
			}
		}
	}

	return output
}

// Clone returns a deep copy of c.
func (c *Configuration) Clone() *Configuration {
	if c == nil {
		return nil
	}

	out := &Configuration{}

	// The JSON form is the source of truth for what a configuration holds.
	err := roundTrip(c, out)
	if err != nil {
		panic(fmt.Sprintf("clone mode configuration: %v", err))
	}

	return out
}
