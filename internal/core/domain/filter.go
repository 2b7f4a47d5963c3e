package domain

// Payload field keys recognized by filter conditions.
const (
	FieldSchemeName = "scheme_name"
	FieldTheme      = "theme"
)

// FieldCondition matches a payload field against either a single value or
// any of a list of values. Exactly one of Value/Any is set.
type FieldCondition struct {
	Key   string   `json:"key"`
	Value string   `json:"value,omitempty"`
	Any   []string `json:"any,omitempty"`
}

// Filter is a conjunction of field conditions applied at the vector store.
type Filter struct {
	Must []FieldCondition `json:"must"`
}

// SchemeFilter builds an equality filter for one scheme or an any-of filter
// for several.
func SchemeFilter(schemeNames []string) *Filter {
	if len(schemeNames) == 0 {
		return nil
	}
	if len(schemeNames) == 1 {
		return &Filter{Must: []FieldCondition{{Key: FieldSchemeName, Value: schemeNames[0]}}}
	}
	return &Filter{Must: []FieldCondition{{Key: FieldSchemeName, Any: schemeNames}}}
}

// WithTheme returns a copy of the filter extended with a theme equality
// condition. A nil receiver yields a theme-only filter.
func (f *Filter) WithTheme(theme string) *Filter {
	if theme == "" {
		return f
	}
	cond := FieldCondition{Key: FieldTheme, Value: theme}
	if f == nil {
		return &Filter{Must: []FieldCondition{cond}}
	}
	out := &Filter{Must: make([]FieldCondition, 0, len(f.Must)+1)}
	out.Must = append(out.Must, f.Must...)
	out.Must = append(out.Must, cond)
	return out
}

// Matches reports whether a payload satisfies every condition. Used by the
// in-memory store and the metadata retriever's corpus scan.
func (f *Filter) Matches(p Payload) bool {
	if f == nil {
		return true
	}
	for _, cond := range f.Must {
		var got string
		switch cond.Key {
		case FieldSchemeName:
			got = p.SchemeName
		case FieldTheme:
			got = p.Theme
		default:
			return false
		}
		if cond.Value != "" {
			if got != cond.Value {
				return false
			}
			continue
		}
		found := false
		for _, v := range cond.Any {
			if got == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
