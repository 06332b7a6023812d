// Package validation checks parsed quiz documents for the shape each question kind requires.
package validation

// ItemsKey is the top-level collection every document must carry
const ItemsKey = "questions"

// StructureProblem explains why a parsed document cannot be used as a question set.
// It returns an empty string for an acceptable document.
func StructureProblem(doc any) string {
	root, ok := doc.(map[string]any)
	if !ok {
		return "the structured block is not a keyed collection; expected an object with a \"questions\" list"
	}
	raw, ok := root[ItemsKey]
	if !ok || raw == nil {
		return "the structured block has no \"questions\" list"
	}
	items, ok := raw.([]any)
	if !ok {
		return "\"questions\" is present but is not a list"
	}
	if len(items) == 0 {
		return "the \"questions\" list is empty; at least one question is required"
	}
	return ""
}

// ValidateStructure reports whether doc is a keyed collection with a non-empty questions list
func ValidateStructure(doc any) bool {
	return StructureProblem(doc) == ""
}
