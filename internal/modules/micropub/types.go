package micropub

import "errors"

var (
	errUnknownContentType = errors.New("unknown content type")
	errMissingToken       = errors.New("missing access token")
)

// Object is the canonical shape every Micropub request body is normalized
// into, regardless of wire format: an h-type plus a property bag in which
// every value is a list and every key uses underscore separators.
type Object struct {
	Type       string                   `json:"type"`
	Properties map[string][]interface{} `json:"properties"`
}

// First returns the first value of a property as a string, or "".
func (o Object) First(key string) string {
	values, ok := o.Properties[key]
	if !ok || len(values) == 0 {
		return ""
	}
	s, _ := values[0].(string)
	return s
}

// Strings returns all string values of a property.
func (o Object) Strings(key string) []string {
	var out []string
	for _, v := range o.Properties[key] {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Has reports whether a property is present with at least one value.
func (o Object) Has(key string) bool {
	return len(o.Properties[key]) > 0
}

// ValidationErrors is the per-field error payload returned on 400s.
type ValidationErrors map[string][]string

func (v ValidationErrors) add(field, msg string) {
	v[field] = append(v[field], msg)
}
