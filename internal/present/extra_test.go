package present

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calbrowse/internal/model"
)

func TestPrettifyKey(t *testing.T) {
	tests := map[string]string{
		"start_date":    "Start Date",
		"degreeType":    "Degree Type",
		"contact-email": "Contact Email",
		"pi__name":      "Pi Name",
		"id":            "Id",
		"":              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, PrettifyKey(in), in)
	}
}

func TestExtraFields(t *testing.T) {
	raw := model.RawRecord{
		"id":        "abc",
		"title":     "Mapped",
		"website":   "https://x.test",
		"zeta":      "last",
		"alpha":     "first",
		"empty":     "",
		"missing":   nil,
		"count":     3,
		"topics":    []any{"vision", "color"},
		"startDate": "2026-01-01",
	}

	fields := ExtraFields(raw)
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"alpha", "count", "id", "topics", "zeta"}, keys)

	byKey := map[string]Field{}
	for _, f := range fields {
		byKey[f.Key] = f
	}
	assert.Equal(t, "3", byKey["count"].Value)
	assert.Equal(t, "[\n  \"vision\",\n  \"color\"\n]", byKey["topics"].Value)
	assert.Equal(t, "Id", byKey["id"].Label)
}

func TestExtraFields_Empty(t *testing.T) {
	fields := ExtraFields(model.RawRecord{"title": "only mapped"})
	require.NotNil(t, fields)
	assert.Empty(t, fields)
}
