package graphstore

import "strings"

// canonicalEntityTypes is the closed set of ~25 labels the extractor's
// free-form entity "type" strings are normalized to before persistence.
// An input that matches none of these (after casefolding and alias lookup)
// becomes "Other".
var canonicalEntityTypes = map[string]bool{
	"Person": true, "Organization": true, "Product": true, "Technology": true,
	"Concept": true, "Place": true, "Event": true, "Book": true, "Company": true,
	"Tool": true, "Framework": true, "Language": true, "Algorithm": true,
	"Dataset": true, "Paper": true, "Award": true, "University": true,
	"Government": true, "Law": true, "Currency": true, "Disease": true,
	"Drug": true, "Species": true, "Project": true, "Other": true,
}

var entityTypeAliases = map[string]string{
	"human": "Person", "individual": "Person", "speaker": "Person",
	"company": "Company", "corporation": "Organization", "org": "Organization",
	"nonprofit": "Organization", "startup": "Company",
	"software": "Technology", "app": "Product", "application": "Product",
	"city": "Place", "country": "Place", "location": "Place",
	"conference": "Event", "meeting": "Event",
	"idea": "Concept", "theory": "Concept", "methodology": "Concept",
	"library": "Framework", "programming_language": "Language",
	"model": "Technology", "ai_model": "Technology",
}

// NormalizeEntityType maps a free-form extractor type string onto the
// canonical ~25-label vocabulary, falling back to "Other".
func NormalizeEntityType(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return "Other"
	}
	if alias, ok := entityTypeAliases[key]; ok {
		return alias
	}
	titled := strings.ToUpper(key[:1]) + key[1:]
	if canonicalEntityTypes[titled] {
		return titled
	}
	return "Other"
}
