// Package present holds presentation helpers that sit outside the browse
// core: extra-field listing, best-effort date ordering and ICS export.
// Nothing here changes what the core considers visible or its order.
package present

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"calbrowse/internal/model"
	"calbrowse/internal/normalize"
)

// Field is one unmapped raw field prepared for display.
type Field struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

var (
	separatorRe = regexp.MustCompile(`[_-]+`)
	camelRe     = regexp.MustCompile(`([a-z])([A-Z])`)
)

// ExtraFields lists raw fields that no display field consumed, skipping
// null and empty values. Keys are sorted; nested values are indented JSON.
func ExtraFields(raw model.RawRecord) []Field {
	mapped := normalize.MappedFields()

	keys := make([]string, 0, len(raw))
	for k := range raw {
		if _, ok := mapped[k]; ok {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Field, 0, len(keys))
	for _, k := range keys {
		v := raw[k]
		var value string
		switch t := v.(type) {
		case nil:
			continue
		case string:
			value = t
		case map[string]any, []any:
			b, err := json.MarshalIndent(t, "", "  ")
			if err != nil {
				value = normalize.Stringify(t)
			} else {
				value = string(b)
			}
		default:
			value = normalize.Stringify(t)
		}
		if value == "" {
			continue
		}
		out = append(out, Field{Key: k, Label: PrettifyKey(k), Value: value})
	}
	return out
}

// PrettifyKey turns a raw field name into a label:
// "start_date" -> "Start Date", "degreeType" -> "Degree Type".
func PrettifyKey(k string) string {
	s := separatorRe.ReplaceAllString(k, " ")
	s = camelRe.ReplaceAllString(s, "$1 $2")

	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
