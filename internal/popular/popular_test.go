package popular

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calbrowse/internal/config"
	appLog "calbrowse/internal/log"
	"calbrowse/internal/model"
)

func defaultMatcher(t *testing.T) *Matcher {
	t.Helper()
	entries, err := Compile(config.DefaultPopular())
	require.NoError(t, err)
	return NewMatcher(entries)
}

func conf(id, title string) model.Record {
	return model.Record{CategoryTag: model.ConferencesTag, SourceID: id, Title: title}
}

func TestIsPopular(t *testing.T) {
	m := defaultMatcher(t)

	tests := []struct {
		name string
		rec  model.Record
		want bool
	}{
		{"curated id", conf("vision-sciences-society-vss-2026", "VSS 2026"), true},
		{"unknown id with matching acronym title", conf("ava-xmas-2025", "AVA Christmas Meeting"), false},
		{"unknown id with full name title", conf("some-other-id", "Vision Sciences Society"), false},
		{"no id, pattern of id-less entry", conf("", "ARVO Annual Meeting"), true},
		{"no id, pattern case-insensitive", conf("", "bay area vision research day"), true},
		{"no id, pattern of entry that has an id", conf("", "VSS 2026"), false},
		{"no id, no pattern", conf("", "Local Reading Group"), false},
		{"word boundary respected", conf("", "Mapsmith Summit"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.IsPopular(tt.rec))
		})
	}
}

func TestFilter_KeepsOrderAndIsNeverNil(t *testing.T) {
	m := defaultMatcher(t)

	recs := []model.Record{
		conf("", "APS Convention"),
		conf("x", "x"),
		conf("society-for-neuroscience-sfn-2026", "SfN"),
	}
	got := m.Filter(recs)
	require.Len(t, got, 2)
	assert.Equal(t, "APS Convention", got[0].Title)
	assert.Equal(t, "SfN", got[1].Title)

	none := m.Filter([]model.Record{conf("x", "x")})
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestBuildIndex(t *testing.T) {
	appLog.SetOutput(io.Discard)
	m := defaultMatcher(t)

	recs := []model.Record{
		conf("vision-sciences-society-vss-2026", "VSS 2026"),
		conf("", "MODVIS Workshop"),
		conf("ava-xmas-2025", "AVA Christmas"),
	}
	links := m.BuildIndex(recs)

	assert.Equal(t, []QuickLink{
		{Key: "modvis", Label: "MODVIS", Anchor: "popular-modvis"},
		{Key: "vss", Label: "VSS", Anchor: "vision-sciences-society-vss-2026"},
	}, links)
}

func TestCompile(t *testing.T) {
	_, err := Compile([]config.PopularConfig{{Key: "x", Label: "X"}})
	assert.ErrorIs(t, err, config.ErrPopularNoMatch)

	_, err = Compile([]config.PopularConfig{{Key: "x", Label: "X", Title: "("}})
	assert.Error(t, err)

	entries, err := Compile([]config.PopularConfig{{Label: "Only ID", ID: "only-id"}})
	require.NoError(t, err)
	assert.Equal(t, "entry-0", entries[0].Key)
	assert.Nil(t, entries[0].TitlePattern)
}
