package extract

import (
	"regexp"
	"slices"
	"strings"

	"github.com/mattn/go-shellwords"
)

// ScriptSection is the source section of rules extracted from scripts.
const ScriptSection = "Script Comments"

var (
	toolNameRe = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.+-]*$`)

	shellKeywords = []string{
		"if", "then", "else", "elif", "fi", "for", "while", "until", "do", "done",
		"case", "esac", "function", "return", "exit", "local", "export", "set",
		"unset", "echo", "printf", "read", "cd", "source", "shift", "true", "false",
		"break", "continue", "eval", "exec", "trap", "wait", "declare", "readonly",
	}
)

// CommentBlocks returns the text of each run of consecutive "#" comment
// lines in a shell script, without the markers. Shebang lines are skipped.
func CommentBlocks(script string) []string {
	var (
		blocks  []string
		current []string
	)

	flush := func() {
		if text := strings.TrimSpace(strings.Join(current, "\n")); text != "" {
			blocks = append(blocks, text)
		}

		current = nil
	}

	for line := range strings.Lines(script) {
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "#!"):
			continue
		case strings.HasPrefix(trimmed, "#"):
			current = append(current, strings.TrimSpace(strings.TrimPrefix(trimmed, "#")))
		default:
			flush()
		}
	}

	flush()

	return blocks
}

// Tools returns the external commands a shell script invokes, sorted and
// without duplicates. Shell keywords, builtins and paths are ignored.
func Tools(script string) []string {
	var tools []string

	for line := range strings.Lines(script) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		for _, name := range commands(trimmed) {
			if !slices.Contains(tools, name) {
				tools = append(tools, name)
			}
		}
	}

	slices.Sort(tools)

	return tools
}

// commands returns the command names of a line split at ";", "&" and "|".
// Parsing stops at a redirection.
func commands(line string) []string {
	var names []string

	for line != "" {
		p := shellwords.NewParser()

		args, err := p.Parse(line)
		if err != nil {
			break
		}

		if name := commandName(args); name != "" {
			names = append(names, name)
		}

		if p.Position < 0 || p.Position >= len(line) {
			break
		}

		sep := line[p.Position]
		if sep == '<' || sep == '>' {
			break
		}

		line = strings.TrimLeft(line[p.Position:], ";&| \t")
	}

	return names
}

func commandName(args []string) string {
	for _, arg := range args {
		// Leading variable assignments.
		if strings.IndexByte(arg, '=') > 0 {
			continue
		}

		if !toolNameRe.MatchString(arg) || slices.Contains(shellKeywords, arg) {
			return ""
		}

		return arg
	}

	return ""
}
