// Package popular decides which conference records belong to the curated
// "popular" set.
//
// Matching has two tiers that must stay separate:
//
//   - a record with a source id is popular only if that id is one of the
//     curated ids; title patterns are never consulted for it.
//   - a record without an id is matched by title, and only against curated
//     entries that have no id of their own.
//
// Merging the tiers into one "id or pattern" predicate lets short acronym
// patterns promote unrelated records.
package popular

import (
	"fmt"
	"regexp"

	"calbrowse/internal/config"
	appLog "calbrowse/internal/log"
	"calbrowse/internal/model"
)

// QuickLink points at the first loaded record of a curated entry.
type QuickLink struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	// Anchor is the record id, or "popular-<key>" for records without one.
	Anchor string `json:"anchor"`
}

// Matcher classifies normalized conference records.
type Matcher struct {
	entries []model.PopularConference
	ids     map[string]struct{}
	// titleOnly are the entries without an id, in table order.
	titleOnly []model.PopularConference
}

// Compile turns config entries into curated descriptors. Title patterns are
// compiled case-insensitively.
func Compile(cfgs []config.PopularConfig) ([]model.PopularConference, error) {
	out := make([]model.PopularConference, 0, len(cfgs))
	for i, c := range cfgs {
		if c.ID == "" && c.Title == "" {
			return nil, fmt.Errorf("popular[%d] (%s): %w", i, c.Label, config.ErrPopularNoMatch)
		}
		pc := model.PopularConference{Key: c.Key, Label: c.Label, ID: c.ID}
		if pc.Key == "" {
			pc.Key = fmt.Sprintf("entry-%d", i)
		}
		if c.Title != "" {
			re, err := regexp.Compile("(?i)" + c.Title)
			if err != nil {
				return nil, fmt.Errorf("popular[%d] (%s): bad title pattern: %w", i, c.Label, err)
			}
			pc.TitlePattern = re
		}
		out = append(out, pc)
	}
	return out, nil
}

// NewMatcher builds a Matcher. Entries with neither id nor pattern can never
// match and are dropped.
func NewMatcher(entries []model.PopularConference) *Matcher {
	m := &Matcher{ids: make(map[string]struct{})}
	for _, e := range entries {
		if e.ID == "" && e.TitlePattern == nil {
			continue
		}
		m.entries = append(m.entries, e)
		if e.ID != "" {
			m.ids[e.ID] = struct{}{}
			continue
		}
		m.titleOnly = append(m.titleOnly, e)
	}
	return m
}

// IsPopular reports whether rec belongs to the curated set.
func (m *Matcher) IsPopular(rec model.Record) bool {
	if rec.SourceID != "" {
		_, ok := m.ids[rec.SourceID]
		return ok
	}
	for _, e := range m.titleOnly {
		if e.TitlePattern.MatchString(rec.Title) {
			return true
		}
	}
	return false
}

// Filter returns the popular records of recs in their original order. The
// result is empty, not nil, when nothing matches.
func (m *Matcher) Filter(recs []model.Record) []model.Record {
	out := make([]model.Record, 0)
	for _, r := range recs {
		if m.IsPopular(r) {
			out = append(out, r)
		}
	}
	return out
}

// BuildIndex returns a quick link for every curated entry that has a match
// in recs. Entries without a match are logged and skipped; the table may
// name conferences that are not in the data yet.
func (m *Matcher) BuildIndex(recs []model.Record) []QuickLink {
	links := make([]QuickLink, 0, len(m.entries))
	for _, e := range m.entries {
		rec, ok := firstMatch(e, recs)
		if !ok {
			appLog.Warn("popular conference not found in data yet", "label", e.Label, "key", e.Key)
			continue
		}
		anchor := rec.SourceID
		if anchor == "" {
			anchor = "popular-" + e.Key
		}
		links = append(links, QuickLink{Key: e.Key, Label: e.Label, Anchor: anchor})
	}
	return links
}

// firstMatch applies the tier rule for a single curated entry.
func firstMatch(e model.PopularConference, recs []model.Record) (model.Record, bool) {
	for _, r := range recs {
		if e.ID != "" {
			if r.SourceID == e.ID {
				return r, true
			}
			continue
		}
		if r.SourceID == "" && e.TitlePattern.MatchString(r.Title) {
			return r, true
		}
	}
	return model.Record{}, false
}
