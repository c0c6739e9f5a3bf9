// Package selection resolves rule selections against a rule source.
//
// A [Selection] is the document form found in mode configurations. It
// accepts two shapes: criteria objects (include/exclude, minUrgency,
// requiredCategories) and flat lists (explicit ids and category lists, with
// their legacy aliases). [Selection.Spec] classifies a document into a
// canonical [Spec], and [Resolve] turns a [Spec] into a deterministic,
// ordered list of rule ids.
package selection
