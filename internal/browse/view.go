package browse

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/text/cases"

	"calbrowse/internal/cache"
	"calbrowse/internal/fetch"
	"calbrowse/internal/model"
	"calbrowse/internal/popular"
)

// Status tells a renderer which kind of view it is looking at.
type Status string

const (
	// StatusNoSelection means no category is chosen and no search is active.
	// It is deliberately distinct from StatusEmpty.
	StatusNoSelection Status = "no_selection"
	StatusLoading     Status = "loading"
	StatusReady       Status = "ready"
	// StatusEmpty is a finished view with zero records.
	StatusEmpty  Status = "empty"
	StatusFailed Status = "failed"
	// StatusSearching is a search whose load-all is still running; Records
	// holds the matches found so far.
	StatusSearching Status = "searching"
)

// Hints shown with every category load failure.
var failureHints = []string{
	"A JSON file has invalid JSON (e.g., NaN or trailing commas)",
	"A filename doesn't match exactly (case-sensitive on most hosts)",
	"Wrong publish folder/path (HTML returned instead of JSON)",
}

// ErrorInfo describes a failed category for display.
type ErrorInfo struct {
	Category      string   `json:"category"`
	CategoryLabel string   `json:"category_label"`
	Kind          string   `json:"kind"`
	Message       string   `json:"message"`
	Hints         []string `json:"hints"`
}

// View is the derived visible state. Records share backing storage with the
// cache and must be treated as read-only.
type View struct {
	Selection     model.Selection
	Records       []model.Record
	Status        Status
	StatusMessage string
	Error         *ErrorInfo
}

// Reader is the read-only side of the category cache.
type Reader interface {
	Get(tag string) (cache.Entry, bool)
	State(tag string) cache.State
}

// Derive computes the visible view from cache contents and selection. It is
// pure: the same inputs always give the same view, in cache order.
func Derive(c Reader, sel model.Selection, m *popular.Matcher, cats *model.Categories) View {
	v := View{Selection: sel, Records: []model.Record{}}

	switch {
	case sel.Query != "":
		return deriveSearch(c, sel, cats, v)

	case sel.ActiveTag == "":
		v.Status = StatusNoSelection
		v.StatusMessage = "Select a category above to view items."
		return v
	}

	label := cats.Label(sel.ActiveTag)
	entry, ok := c.Get(sel.ActiveTag)
	if !ok {
		v.Status = StatusLoading
		v.StatusMessage = fmt.Sprintf("Loading all items in %s…", label)
		return v
	}

	if !entry.OK() {
		v.Status = StatusFailed
		v.StatusMessage = fmt.Sprintf("Could not load %s.", label)
		v.Error = &ErrorInfo{
			Category:      sel.ActiveTag,
			CategoryLabel: label,
			Kind:          fetch.KindOf(entry.Err),
			Message:       entry.Err.Error(),
			Hints:         append([]string(nil), failureHints...),
		}
		return v
	}

	items := entry.Items
	suffix := ""
	if sel.ActiveTag == model.ConferencesTag && sel.SubMode == model.SubModePopular {
		items = m.Filter(items)
		suffix = " (Popular Conferences)"
	}
	if items == nil {
		items = []model.Record{}
	}
	v.Records = items

	if len(items) == 0 {
		v.Status = StatusEmpty
		v.StatusMessage = fmt.Sprintf("No items found for %s%s yet.", label, suffix)
		return v
	}
	v.Status = StatusReady
	v.StatusMessage = fmt.Sprintf("Loaded %d items in %s%s.", len(items), label, suffix)
	return v
}

func deriveSearch(c Reader, sel model.Selection, cats *model.Categories, v View) View {
	folder := cases.Fold()
	needle := folder.String(sel.Query)

	pending := 0
	tags := cats.Tags()
	for _, tag := range tags {
		entry, ok := c.Get(tag)
		if !ok {
			pending++
			continue
		}
		if !entry.OK() {
			continue
		}
		v.Records = append(v.Records, lo.Filter(entry.Items, func(r model.Record, _ int) bool {
			return strings.Contains(folder.String(searchText(r)), needle)
		})...)
	}

	switch {
	case pending > 0:
		v.Status = StatusSearching
		v.StatusMessage = fmt.Sprintf("Searching… %d of %d categories loaded.", len(tags)-pending, len(tags))
	case len(v.Records) == 0:
		v.Status = StatusEmpty
		v.StatusMessage = fmt.Sprintf("No items match %q.", sel.Query)
	default:
		v.Status = StatusReady
		v.StatusMessage = fmt.Sprintf("Found %d items matching %q.", len(v.Records), sel.Query)
	}
	return v
}

// searchText joins every display field of r.
func searchText(r model.Record) string {
	return strings.Join([]string{
		r.Title, r.Website, r.Location, r.Dates, r.Frequency,
		r.Deadlines, r.Organization, r.Description,
	}, "\n")
}
