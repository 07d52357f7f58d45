// Package location consolidates scattered microformat location properties
// (location, adr, geo) into a single record, following the IndieWeb
// location-determination algorithm.
package location

import (
	"strconv"
	"strings"
)

// Record is a consolidated location. Latitude/Longitude are pointers because
// a location signal may carry only address fields; persistence requires both.
type Record struct {
	Name          string
	URL           string
	StreetAddress string
	Locality      string
	Region        string
	CountryName   string
	PostalCode    string
	Latitude      *float64
	Longitude     *float64
	Altitude      *float64
}

// HasPoint reports whether the record carries a usable geo point.
func (r *Record) HasPoint() bool {
	return r != nil && r.Latitude != nil && r.Longitude != nil
}

// properties recognized as belonging to a location.
var locationKeys = []string{
	"name", "url", "street_address", "locality", "region",
	"country_name", "postal_code", "latitude", "longitude", "altitude",
}

// Extract consolidates location data out of an h-entry property bag.
// Candidate property sets are stacked in a fixed order (top-level
// properties first, then nested location/adr, then geo) and for each
// recognized key the first non-empty value in push order wins. The
// top-level "name" is the entry's title, never the location label, so name
// lookups skip the first stack frame.
func Extract(props map[string][]interface{}) *Record {
	stack := []map[string][]interface{}{props}

	for _, key := range []string{"location", "adr"} {
		values, ok := props[key]
		if !ok || len(values) == 0 {
			continue
		}
		switch v := values[0].(type) {
		case string:
			// A bare string location is just a label.
			stack = append(stack, map[string][]interface{}{"name": {v}})
		default:
			if nested := Nested(v); nested != nil {
				stack = append(stack, nested)
			}
		}
	}

	if values, ok := props["geo"]; ok && len(values) > 0 {
		switch v := values[0].(type) {
		case string:
			if geo := parseGeoURI(v); geo != nil {
				stack = append(stack, geo)
			}
		default:
			if nested := Nested(v); nested != nil {
				stack = append(stack, nested)
			}
		}
	}

	rec := &Record{}
	found := false
	for _, key := range locationKeys {
		value := scanStack(stack, key)
		if value == "" {
			continue
		}
		found = true
		switch key {
		case "name":
			rec.Name = value
		case "url":
			rec.URL = value
		case "street_address":
			rec.StreetAddress = value
		case "locality":
			rec.Locality = value
		case "region":
			rec.Region = value
		case "country_name":
			rec.CountryName = value
		case "postal_code":
			rec.PostalCode = value
		case "latitude":
			rec.Latitude = parseFloat(value)
		case "longitude":
			rec.Longitude = parseFloat(value)
		case "altitude":
			rec.Altitude = parseFloat(value)
		}
	}

	if !found {
		return nil
	}
	return rec
}

// scanStack returns the first non-empty value for key in push order.
// The top-level frame (index 0) never contributes a name.
func scanStack(stack []map[string][]interface{}, key string) string {
	for i, frame := range stack {
		if i == 0 && key == "name" {
			continue
		}
		values, ok := frame[key]
		if !ok {
			continue
		}
		for _, v := range values {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// Nested unwraps an mf2 object ({"type": [...], "properties": {...}})
// or a flat property map into a normalized property bag.
func Nested(v interface{}) map[string][]interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	if inner, ok := m["properties"].(map[string]interface{}); ok {
		m = inner
	}

	out := make(map[string][]interface{}, len(m))
	for key, value := range m {
		key = strings.ReplaceAll(strings.TrimSpace(key), "-", "_")
		switch vv := value.(type) {
		case []interface{}:
			out[key] = vv
		default:
			out[key] = []interface{}{vv}
		}
	}
	return out
}

// parseGeoURI parses an RFC 5870 geo URI ("geo:lat,lon[,alt][;params]")
// into a synthetic property bag.
func parseGeoURI(raw string) map[string][]interface{} {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "geo:") {
		return nil
	}
	body := strings.TrimPrefix(raw, "geo:")
	if i := strings.Index(body, ";"); i >= 0 {
		body = body[:i]
	}
	parts := strings.Split(body, ",")
	if len(parts) < 2 {
		return nil
	}

	out := map[string][]interface{}{
		"latitude":  {strings.TrimSpace(parts[0])},
		"longitude": {strings.TrimSpace(parts[1])},
	}
	if len(parts) >= 3 && strings.TrimSpace(parts[2]) != "" {
		out["altitude"] = []interface{}{strings.TrimSpace(parts[2])}
	}
	return out
}

func parseFloat(s string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &f
}
