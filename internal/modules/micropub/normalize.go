package micropub

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"strings"
)

const (
	ContentTypeForm      = "application/x-www-form-urlencoded"
	ContentTypeMultipart = "multipart/form-data"
	ContentTypeJSON      = "application/json"
)

// reserved form keys that carry transport concerns, not entry properties.
var reservedFormKeys = map[string]struct{}{
	"h":            {},
	"access_token": {},
	"action":       {},
	"url":          {},
}

// Normalize converts a raw Micropub request body into the canonical Object.
// The normalizer only reshapes syntax; it attaches no meaning to properties.
func Normalize(contentType string, body []byte, form url.Values) (Object, error) {
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}

	switch mediaType {
	case ContentTypeForm, ContentTypeMultipart:
		return normalizeForm(form), nil
	case ContentTypeJSON:
		return normalizeJSON(body)
	default:
		return Object{}, fmt.Errorf("%w: %q", errUnknownContentType, contentType)
	}
}

// normalizeForm handles form-urlencoded and multipart value fields. Keys
// ending in "[]" are repeated-value keys; every value is coerced to a list.
func normalizeForm(form url.Values) Object {
	obj := Object{
		Type:       "h-entry",
		Properties: map[string][]interface{}{},
	}
	if h := strings.TrimSpace(form.Get("h")); h != "" {
		obj.Type = "h-" + strings.TrimPrefix(h, "h-")
	}

	for key, values := range form {
		key = strings.TrimSuffix(key, "[]")
		if _, reserved := reservedFormKeys[key]; reserved {
			continue
		}
		key = normalizeKey(key)
		for _, v := range values {
			obj.Properties[key] = append(obj.Properties[key], v)
		}
	}
	return obj
}

type jsonBody struct {
	Type       []string                 `json:"type"`
	Properties map[string]interface{}   `json:"properties"`
}

// normalizeJSON handles JSON bodies. The mf2 "type" arrives as a one-element
// list and is unwrapped to a bare string.
func normalizeJSON(body []byte) (Object, error) {
	var raw jsonBody
	if err := json.Unmarshal(body, &raw); err != nil {
		return Object{}, fmt.Errorf("invalid json body: %w", err)
	}

	obj := Object{
		Type:       "h-entry",
		Properties: map[string][]interface{}{},
	}
	if len(raw.Type) > 0 && raw.Type[0] != "" {
		obj.Type = raw.Type[0]
	}

	for key, value := range raw.Properties {
		key = normalizeKey(key)
		if key == "access_token" {
			continue
		}
		obj.Properties[key] = listify(value)
	}
	return obj, nil
}

// normalizeKey rewrites hyphenated mf2 property names (in-reply-to) to the
// underscore style used internally (in_reply_to).
func normalizeKey(key string) string {
	return strings.ReplaceAll(strings.TrimSpace(key), "-", "_")
}

// listify coerces any JSON value to a list so downstream access is uniform.
func listify(v interface{}) []interface{} {
	switch value := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return value
	default:
		return []interface{}{value}
	}
}
