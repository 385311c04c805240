package model

import "regexp"

// ConferencesTag is the category that carries the "popular" sub-view.
const ConferencesTag = "conferences"

// UntitledPlaceholder is used when no title candidate is present.
const UntitledPlaceholder = "(Untitled)"

// Category describes one fixed partition of records and where its data lives.
type Category struct {
	Tag   string
	Label string
	// Locator is resolved against the configured data base (e.g. "conferences.json").
	Locator string
}

// Categories is the ordered, immutable set of categories known at startup.
type Categories struct {
	list  []Category
	byTag map[string]int
}

// NewCategories builds a registry. Later duplicates of a tag are ignored.
func NewCategories(cats []Category) *Categories {
	c := &Categories{byTag: make(map[string]int, len(cats))}
	for _, cat := range cats {
		if cat.Tag == "" {
			continue
		}
		if _, dup := c.byTag[cat.Tag]; dup {
			continue
		}
		c.byTag[cat.Tag] = len(c.list)
		c.list = append(c.list, cat)
	}
	return c
}

// Lookup returns the category for tag.
func (c *Categories) Lookup(tag string) (Category, bool) {
	i, ok := c.byTag[tag]
	if !ok {
		return Category{}, false
	}
	return c.list[i], true
}

// Label returns the category label, or the tag itself if unknown.
func (c *Categories) Label(tag string) string {
	if cat, ok := c.Lookup(tag); ok {
		return cat.Label
	}
	return tag
}

// All returns a copy of the categories in declaration order.
func (c *Categories) All() []Category {
	out := make([]Category, len(c.list))
	copy(out, c.list)
	return out
}

// Tags returns every tag in declaration order.
func (c *Categories) Tags() []string {
	out := make([]string, 0, len(c.list))
	for _, cat := range c.list {
		out = append(out, cat.Tag)
	}
	return out
}

// RawRecord is one JSON object as delivered by a data file. Numbers are kept
// as json.Number so that their original text survives.
type RawRecord map[string]any

// Record is the canonical display unit produced by the normalizer.
type Record struct {
	CategoryTag   string
	CategoryLabel string
	// SourceID is the raw "id" field; empty when the source has none.
	SourceID string

	Title        string
	Website      string
	Location     string
	Dates        string
	Frequency    string
	Deadlines    string
	Organization string
	Description  string

	// Raw is retained verbatim so unmapped fields can still be shown.
	Raw RawRecord
}

// PopularConference is one entry of the curated popular-conference table.
// At least one of ID and TitlePattern is set.
type PopularConference struct {
	Key          string
	Label        string
	ID           string
	TitlePattern *regexp.Regexp
}

// SubMode is the conferences-only secondary filter.
type SubMode string

const (
	SubModeAll     SubMode = "all"
	SubModePopular SubMode = "popular"
)

// Valid reports whether m is a known sub-mode.
func (m SubMode) Valid() bool {
	return m == SubModeAll || m == SubModePopular
}

// Selection is the user-driven browse state.
type Selection struct {
	// ActiveTag is empty when no category is chosen.
	ActiveTag string
	SubMode   SubMode
	Query     string
}
