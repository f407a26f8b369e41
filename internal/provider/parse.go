package provider

import (
	"encoding/json"
	"strconv"
	"strings"
)

// doc is a loosely typed JSON object. Accessors tolerate missing keys,
// nulls and numbers encoded as strings.
type doc map[string]any

func decodeDoc(body []byte) (doc, error) {
	var d doc
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, err
	}
	return d, nil
}

// str returns a non-empty trimmed string or nil. "N/A" counts as absent.
func (d doc) str(key string) *string {
	v, ok := d[key].(string)
	if !ok {
		return nil
	}
	v = strings.TrimSpace(v)
	if v == "" || v == "N/A" {
		return nil
	}
	return &v
}

func (d doc) text(key string) string {
	if s := d.str(key); s != nil {
		return *s
	}
	return ""
}

func (d doc) float(key string) *float64 {
	switch v := d[key].(type) {
	case float64:
		return &v
	case string:
		v = strings.ReplaceAll(strings.TrimSpace(v), ",", "")
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

func (d doc) int(key string) *int {
	f := d.float(key)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

func (d doc) intOr(key string, def int) int {
	if n := d.int(key); n != nil {
		return *n
	}
	return def
}

func (d doc) bool(key string) bool {
	switch v := d[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func (d doc) obj(key string) doc {
	if m, ok := d[key].(map[string]any); ok {
		return doc(m)
	}
	return doc{}
}

func (d doc) list(key string) []doc {
	raw, ok := d[key].([]any)
	if !ok {
		return nil
	}
	out := make([]doc, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, doc(m))
		}
	}
	return out
}
