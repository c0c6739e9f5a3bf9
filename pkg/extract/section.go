package extract

import (
	"regexp"
	"strings"
)

// SectionType is the coarse role of a section, derived from its title.
type SectionType string

const (
	SectionWorkflow   SectionType = "workflow"
	SectionPrinciples SectionType = "principles"
	SectionFeatures   SectionType = "features"
	SectionStructure  SectionType = "structure"
	SectionRules      SectionType = "rules"
	SectionOther      SectionType = "other"
)

var headingRe = regexp.MustCompile(`^(#{1,3})[ \t]+(.+)$`)

// Section is a heading-delimited part of a document. Content includes the
// heading line. Line numbers are zero-based and inclusive.
type Section struct {
	Title     string      `json:"title"`
	Content   string      `json:"content"`
	Type      SectionType `json:"type"`
	Level     int         `json:"level"`
	LineStart int         `json:"lineStart"`
	LineEnd   int         `json:"lineEnd"`
}

// Segment splits markdown into sections at level 1 to 3 headings. Headings
// inside fenced code blocks do not start a section, and text before the
// first heading is dropped.
func Segment(content string) []Section {
	lines := strings.Split(content, "\n")

	var (
		sections []Section
		current  *Section
		fence    byte
		fenceLen int
	)

	closeSection := func(end int) {
		if current == nil {
			return
		}

		current.LineEnd = end
		current.Content = strings.Join(lines[current.LineStart:end+1], "\n")
		sections = append(sections, *current)
	}

	for i, line := range lines {
		c, n, rest := fenceMarker(line)
		switch {
		case fence == 0 && c != 0:
			fence, fenceLen = c, n

			continue
		case fence != 0:
			// Only a bare run of the same character, at least as long as
			// the opener, closes the block.
			if c == fence && n >= fenceLen && rest == "" {
				fence, fenceLen = 0, 0
			}

			continue
		}

		m := headingRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		closeSection(i - 1)

		title := strings.TrimSpace(m[2])
		current = &Section{
			Title:     title,
			Level:     len(m[1]),
			LineStart: i,
			Type:      ClassifySection(title),
		}
	}

	closeSection(len(lines) - 1)

	return sections
}

// ClassifySection returns the [SectionType] for a section title.
func ClassifySection(title string) SectionType {
	t := strings.ToLower(title)

	switch {
	case strings.Contains(t, "workflow"), strings.Contains(t, "steps"):
		return SectionWorkflow
	case strings.Contains(t, "principle"), strings.Contains(t, "solid"):
		return SectionPrinciples
	case strings.Contains(t, "feature"), strings.Contains(t, "command"):
		return SectionFeatures
	case strings.Contains(t, "structure"), strings.Contains(t, "organization"):
		return SectionStructure
	case strings.Contains(t, "rule"), strings.Contains(t, "requirement"):
		return SectionRules
	}

	return SectionOther
}

// fenceMarker reports the character and length of the code fence opening
// line, and the trimmed text after it. c is zero when line is not a fence.
func fenceMarker(line string) (c byte, n int, rest string) {
	s := strings.TrimLeft(line, " \t")
	if len(s) < 3 || (s[0] != '`' && s[0] != '~') {
		return 0, 0, ""
	}

	n = len(s) - len(strings.TrimLeft(s, s[:1]))
	if n < 3 {
		return 0, 0, ""
	}

	return s[0], n, strings.TrimSpace(s[n:])
}
