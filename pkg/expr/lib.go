package expr

import (
	"math"
	"path/filepath"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/macropower/rulepool/pkg/rule"
)

type lib struct{}

func (lib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		ext.Strings(),
		ext.Lists(),
		ext.Sets(),

		// `urgencyLevel` returns the ordinal of an urgency name.
		// Example: rule.urgency >= urgencyLevel("HIGH").
		cel.Function("urgencyLevel",
			cel.Overload("urgency_level_string", []*cel.Type{cel.StringType}, cel.IntType,
				cel.UnaryBinding(func(name ref.Val) ref.Val {
					s, ok := name.(types.String).Value().(string)
					if !ok {
						return types.NewErr("urgencyLevel: invalid string value")
					}

					u, err := rule.ParseUrgency(s)
					if err != nil {
						return types.NewErr("urgencyLevel: %v", err)
					}

					return types.Int(u)
				}),
			),
		),

		// `pathBase` returns the last element of the path.
		// Example: pathBase(rule.sourceFile) == "CLAUDE.md".
		cel.Function("pathBase",
			cel.Overload("path_base", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(pathFunc("pathBase", filepath.Base)),
			),
		),

		// `pathDir` returns all but the last element of the path.
		cel.Function("pathDir",
			cel.Overload("path_dir", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(pathFunc("pathDir", filepath.Dir)),
			),
		),

		// `pathExt` returns the file extension of the path.
		// Example: pathExt(rule.sourceFile) in [".md", ".mdc"].
		cel.Function("pathExt",
			cel.Overload("path_ext", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(pathFunc("pathExt", filepath.Ext)),
			),
		),
	}
}

func (lib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}

func pathFunc(name string, fn func(string) string) func(ref.Val) ref.Val {
	return func(path ref.Val) ref.Val {
		s, ok := path.(types.String).Value().(string)
		if !ok {
			return types.NewErr("%s: invalid string value", name)
		}

		return types.String(fn(s))
	}
}

// Activation returns the CEL value bound to the `rule` variable for r.
//
//nolint:ireturn // Following CEL's function signature.
func Activation(r *rule.Rule) ref.Val {
	appliesTo := make([]any, 0, len(r.AppliesTo))
	for _, pt := range r.AppliesTo {
		appliesTo = append(appliesTo, string(pt))
	}

	tags := make([]any, 0, len(r.Tags))
	for _, tag := range r.Tags {
		tags = append(tags, tag)
	}

	return ConvertToCELValue(map[string]any{
		"id":            r.ID,
		"title":         r.Title,
		"description":   r.Description,
		"content":       r.Content,
		"category":      string(r.Category),
		"urgency":       int(r.Urgency),
		"contentType":   string(r.ContentType),
		"tags":          tags,
		"appliesTo":     appliesTo,
		"author":        r.Author,
		"sourceFile":    r.SourceFile,
		"sourceSection": r.SourceSection,
		"isCustom":      r.IsCustom,
		"isActive":      r.IsActive,
	})
}

// ConvertToCELValue converts a Go value to a CEL value.
// Unsupported types become null.
//
//nolint:ireturn // Following CEL's function signature.
func ConvertToCELValue(value any) ref.Val {
	switch v := value.(type) {
	case nil:
		return types.NullValue

	case bool:
		return types.Bool(v)

	case int:
		return types.Int(v)

	case int64:
		return types.Int(v)

	case uint64:
		if v > math.MaxInt64 {
			return types.Double(float64(v))
		}

		return types.Int(int64(v))

	case float64:
		return types.Double(v)

	case string:
		return types.String(v)

	case []string:
		vals := make([]ref.Val, len(v))
		for i, item := range v {
			vals[i] = types.String(item)
		}

		return types.NewDynamicList(types.DefaultTypeAdapter, vals)

	case []any:
		vals := make([]ref.Val, len(v))
		for i, item := range v {
			vals[i] = ConvertToCELValue(item)
		}

		return types.NewDynamicList(types.DefaultTypeAdapter, vals)

	case map[string]any:
		m := make(map[ref.Val]ref.Val, len(v))
		for key, val := range v {
			m[types.String(key)] = ConvertToCELValue(val)
		}

		return types.NewDynamicMap(types.DefaultTypeAdapter, m)

	default:
		return types.NullValue
	}
}
