package ai

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// Hosted models answer with plain JSON, JSON inside a fenced block, JSON
// surrounded by prose, or an object wrapping the array under some key. The
// helpers here try those shapes in that order and return the first array that
// decodes.

var fencedBlockRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)```")

var preferredArrayKeys = []string{"tags", "items", "results", "pages", "data", "suggestions"}

// ExtractJSONArray returns the first JSON array found in text.
func ExtractJSONArray(text string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}
	if raw, ok := asArray(trimmed); ok {
		return raw, true
	}
	fenced := fencedBodies(trimmed)
	for _, body := range fenced {
		if raw, ok := asArray(body); ok {
			return raw, true
		}
	}
	if raw, ok := firstValue(trimmed, '['); ok {
		return raw, true
	}
	candidates := append([]string{trimmed}, fenced...)
	for _, c := range candidates {
		if raw, ok := arrayInObject(c); ok {
			return raw, true
		}
	}
	if obj, ok := firstValue(trimmed, '{'); ok {
		if raw, ok := arrayInObject(string(obj)); ok {
			return raw, true
		}
	}
	return nil, false
}

// ParseStringList decodes the first JSON array of strings in text.
// Non-string elements are skipped; an array with no strings is a miss.
func ParseStringList(text string) ([]string, bool) {
	raw, ok := ExtractJSONArray(text)
	if !ok {
		return nil, false
	}
	var items []interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 && len(items) > 0 {
		return nil, false
	}
	return out, true
}

// ParseObjectList decodes the first JSON array in text into dst, which must
// be a pointer to a slice.
func ParseObjectList(text string, dst interface{}) bool {
	raw, ok := ExtractJSONArray(text)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func asArray(s string) (json.RawMessage, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, false
	}
	return json.RawMessage(s), true
}

func fencedBodies(s string) []string {
	matches := fencedBlockRe.FindAllStringSubmatch(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		body := strings.TrimSpace(m[1])
		if body != "" {
			out = append(out, body)
		}
	}
	return out
}

// firstValue decodes the first complete JSON value that starts with open,
// ignoring whatever text follows it.
func firstValue(s string, open byte) (json.RawMessage, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != open {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(s[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			continue
		}
		return raw, true
	}
	return nil, false
}

func arrayInObject(s string) (json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	for _, key := range preferredArrayKeys {
		if raw, ok := obj[key]; ok {
			if _, isArr := asArray(string(raw)); isArr {
				return raw, true
			}
		}
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, isArr := asArray(string(obj[k])); isArr {
			return obj[k], true
		}
	}
	return nil, false
}
