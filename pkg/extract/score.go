package extract

import (
	"regexp"
	"slices"
	"strings"

	"github.com/macropower/rulepool/pkg/rule"
)

const (
	minKeywordLength = 4
	overlapRatio     = 0.3
)

var (
	nonWordRe = regexp.MustCompile(`[^\w\s]`)

	stopWords = []string{
		"this", "that", "with", "have", "will", "from", "they", "been", "their", "said",
		"each", "which", "more", "only", "other", "after", "first", "never", "these",
	}
)

// Scorer rates how well a pool rule covers a document section. Scores are
// non-negative; zero means unrelated.
type Scorer interface {
	Score(s Section, r *rule.Rule) float64
}

// KeywordScorer scores by word overlap:
//
//   - +3 when the rule title's significant words mostly appear in the
//     section title.
//   - +2 for the same test on the rule content against the section body.
//   - +1 or +2 when the section type correlates with the rule category.
//   - +0.5 for each distinct section keyword found in the rule content.
type KeywordScorer struct{}

func (KeywordScorer) Score(s Section, r *rule.Rule) float64 {
	sectionTitle := strings.ToLower(s.Title)
	sectionContent := strings.ToLower(s.Content)
	ruleTitle := strings.ToLower(r.Title)
	ruleContent := strings.ToLower(r.Content)

	var score float64

	if overlaps(sectionTitle, ruleTitle) {
		score += 3
	}
	if overlaps(sectionContent, ruleContent) {
		score += 2
	}

	score += correlation(s.Type, r.Category)

	for _, kw := range Keywords(sectionContent) {
		if strings.Contains(ruleContent, kw) {
			score += 0.5
		}
	}

	return score
}

func correlation(t SectionType, c rule.Category) float64 {
	switch {
	case t == SectionWorkflow && c == rule.CategoryCustom:
		return 1
	case t == SectionPrinciples && c == rule.CategorySOLIDPrinciples:
		return 2
	case t == SectionFeatures && c == rule.CategoryEnterpriseFeatures:
		return 1
	case t == SectionStructure && c == rule.CategoryFilePractices:
		return 1
	}

	return 0
}

// overlaps reports whether more than 30% of the significant words of
// reference occur in text.
func overlaps(text, reference string) bool {
	var words, matches int

	for _, w := range strings.Fields(reference) {
		if len(w) < minKeywordLength {
			continue
		}

		words++

		if strings.Contains(text, w) {
			matches++
		}
	}

	return matches > 0 && float64(matches)/float64(words) > overlapRatio
}

// Keywords returns the distinct significant lower-case words of text in
// first-seen order.
func Keywords(text string) []string {
	var kws []string

	seen := map[string]bool{}
	for _, w := range strings.Fields(nonWordRe.ReplaceAllString(strings.ToLower(text), " ")) {
		if len(w) < minKeywordLength || seen[w] || slices.Contains(stopWords, w) {
			continue
		}

		seen[w] = true
		kws = append(kws, w)
	}

	return kws
}
