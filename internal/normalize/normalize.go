// Package normalize maps heterogeneous category records onto model.Record.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"calbrowse/internal/model"
)

// Candidate tables. Order matters: the first candidate with a non-empty
// trimmed value wins. These lists are the de facto schema of the data files.
var (
	titleFields        = []string{"title", "name", "program", "event", "id"}
	websiteFields      = []string{"website", "url", "link"}
	locationFields     = []string{"location", "city", "where"}
	datesFields        = []string{"dates", "date", "startDate", "start_date", "when", "schedule"}
	frequencyFields    = []string{"frequency", "cadence"}
	deadlinesFields    = []string{"submissionDeadlines", "submissionDeadline", "applicationDeadline", "deadlines", "deadline", "datesDeadline"}
	organizationFields = []string{"organization", "organizer", "institution", "institutionProgram", "journal", "company", "department", "degreeType"}
	descriptionFields  = []string{"description", "details", "notes", "summary"}
	idFields           = []string{"id"}
)

// Normalize converts one raw record. It never fails: missing or unusable
// fields become "".
func Normalize(raw model.RawRecord, cat model.Category) model.Record {
	title := coalesce(raw, titleFields)
	if title == "" {
		title = model.UntitledPlaceholder
	}

	return model.Record{
		CategoryTag:   cat.Tag,
		CategoryLabel: cat.Label,
		SourceID:      coalesce(raw, idFields),

		Title:        title,
		Website:      coalesce(raw, websiteFields),
		Location:     coalesce(raw, locationFields),
		Dates:        coalesce(raw, datesFields),
		Frequency:    coalesce(raw, frequencyFields),
		Deadlines:    coalesce(raw, deadlinesFields),
		Organization: coalesce(raw, organizationFields),
		Description:  coalesce(raw, descriptionFields),

		Raw: raw,
	}
}

// NormalizeAll normalizes raws in order.
func NormalizeAll(raws []model.RawRecord, cat model.Category) []model.Record {
	out := make([]model.Record, 0, len(raws))
	for _, raw := range raws {
		out = append(out, Normalize(raw, cat))
	}
	return out
}

// MappedFields returns every raw key that some display field can consume,
// except "id", which stays visible among the extra fields.
func MappedFields() map[string]struct{} {
	tables := [][]string{
		titleFields, websiteFields, locationFields, datesFields, frequencyFields,
		deadlinesFields, organizationFields, descriptionFields,
	}
	out := make(map[string]struct{})
	for _, t := range tables {
		for _, k := range t {
			if k == "id" {
				continue
			}
			out[k] = struct{}{}
		}
	}
	return out
}

func coalesce(raw model.RawRecord, keys []string) string {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		if s := strings.TrimSpace(Stringify(v)); s != "" {
			return s
		}
	}
	return ""
}

// Stringify renders a decoded JSON value as text. Objects and arrays become
// compact JSON; nil becomes "".
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any, []any, model.RawRecord:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
