package extract

import (
	"sort"
	"strings"
)

// Result maps each category that matched to its raw matched text.
type Result map[Category]string

// Get returns the value for c and whether one was found.
func (r Result) Get(c Category) (string, bool) {
	v, ok := r[c]
	return v, ok
}

// Extractor applies an ordered rule table to free-form text.
// It is stateless after construction and safe for concurrent use.
type Extractor struct {
	rules []Rule
}

// New orders rules by priority. Ties keep their input order.
func New(rules []Rule) *Extractor {
	ordered := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Pattern != nil {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})
	return &Extractor{rules: ordered}
}

// Default returns an extractor over DefaultRules.
func Default() *Extractor {
	return New(DefaultRules)
}

// Extract finds at most one value per category. The first matching rule for a
// category wins; values are returned verbatim.
func (e *Extractor) Extract(text string) Result {
	out := Result{}
	if strings.TrimSpace(text) == "" {
		return out
	}
	for _, rule := range e.rules {
		if _, done := out[rule.Category]; done {
			continue
		}
		if v, ok := apply(rule, text); ok {
			out[rule.Category] = v
		}
	}
	return out
}

func apply(rule Rule, text string) (string, bool) {
	m := rule.Pattern.FindStringSubmatch(text)
	if m == nil || rule.Group >= len(m) {
		return "", false
	}
	v := strings.TrimSpace(m[rule.Group])
	return v, v != ""
}

// Registry picks a rule table per language, falling back to the default.
type Registry struct {
	fallback *Extractor
	byLang   map[string]*Extractor
}

// NewRegistry builds a registry whose fallback is fallback.
func NewRegistry(fallback *Extractor) *Registry {
	if fallback == nil {
		fallback = Default()
	}
	return &Registry{fallback: fallback, byLang: map[string]*Extractor{}}
}

// Register installs an extractor for a language name (case-insensitive).
func (r *Registry) Register(language string, e *Extractor) {
	r.byLang[strings.ToLower(strings.TrimSpace(language))] = e
}

// For returns the extractor for language.
func (r *Registry) For(language string) *Extractor {
	if e, ok := r.byLang[strings.ToLower(strings.TrimSpace(language))]; ok {
		return e
	}
	return r.fallback
}
