// Package rule defines the Rule entity stored in the rule pool, along with
// its fixed taxonomy: categories, urgencies, content types and project types.
//
// Urgency is a total order (INFO < LOW < MEDIUM < HIGH < CRITICAL) that is
// serialized by name and compared by ordinal.
package rule
