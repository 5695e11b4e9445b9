package documents

import (
	"strings"

	"docfill-backend/internal/extract"
)

// fillKeywords maps label keywords to extracted categories, in match order.
var fillKeywords = []struct {
	keyword  string
	category extract.Category
}{
	{"name", extract.CategoryName},
	{"address", extract.CategoryAddress},
	{"birth", extract.CategoryDateOfBirth},
	{"phone", extract.CategoryPhone},
	{"email", extract.CategoryEmail},
}

// applyExtracted overwrites values of fields whose label names a category with a candidate.
// The first keyword in fillKeywords that appears in the label and has a candidate wins.
func applyExtracted(fields []Field, found extract.Result) int {
	changed := 0
	for i := range fields {
		label := strings.ToLower(fields[i].Label)
		for _, kw := range fillKeywords {
			if !strings.Contains(label, kw.keyword) {
				continue
			}
			value, ok := found[kw.category]
			if !ok || value == "" {
				continue
			}
			fields[i].Value = value
			changed++
			break
		}
	}
	return changed
}

// mergeValues copies values onto fields with matching ids; unknown ids are ignored.
func mergeValues(fields []Field, updates []FieldValue) int {
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		index[f.ID] = i
	}
	changed := 0
	for _, u := range updates {
		i, ok := index[u.ID]
		if !ok {
			continue
		}
		fields[i].Value = u.Value
		changed++
	}
	return changed
}
