package present

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"calbrowse/internal/model"
)

// Date strings in the data are free text ("May 15-20, 2026", "TBD",
// "Spring 2026"). Parsing is best-effort: the first recognizable date wins,
// and anything else reports ok=false.

const monthAlt = `(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)\.?`

var (
	isoDateRe      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	monthDayYearRe = regexp.MustCompile(`(?i)\b` + monthAlt + `\s+(\d{1,2})(?:st|nd|rd|th)?(?:\s*[-–]\s*(?:` + monthAlt + `\s+)?\d{1,2})?,?\s+(\d{4})\b`)
	dayMonthYearRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?:\s*[-–]\s*\d{1,2})?\s+` + monthAlt + `,?\s+(\d{4})\b`)
	monthYearRe    = regexp.MustCompile(`(?i)\b` + monthAlt + `,?\s+(\d{4})\b`)
	yearOnlyRe     = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	monthByPrefix  = map[string]time.Month{
		"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
		"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
		"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
	}
)

// ParseStart returns the first date found in s, at midnight UTC.
func ParseStart(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		return makeDate(m[1], month(m[2]), m[3])
	}
	if m := monthDayYearRe.FindStringSubmatch(s); m != nil {
		// groups: month, day, optional end month, year
		return makeDate(m[4], monthName(m[1]), m[2])
	}
	if m := dayMonthYearRe.FindStringSubmatch(s); m != nil {
		return makeDate(m[3], monthName(m[2]), m[1])
	}
	if m := monthYearRe.FindStringSubmatch(s); m != nil {
		return makeDate(m[2], monthName(m[1]), "1")
	}
	if m := yearOnlyRe.FindStringSubmatch(s); m != nil {
		return makeDate(m[1], time.January, "1")
	}
	return time.Time{}, false
}

// SortByStart returns a copy of recs ordered by parsed start date. Records
// without a parseable date keep their relative order at the end.
func SortByStart(recs []model.Record) []model.Record {
	type keyed struct {
		rec   model.Record
		start time.Time
		ok    bool
	}
	ks := make([]keyed, 0, len(recs))
	for _, r := range recs {
		t, ok := ParseStart(r.Dates)
		ks = append(ks, keyed{rec: r, start: t, ok: ok})
	}
	slices.SortStableFunc(ks, func(a, b keyed) int {
		switch {
		case a.ok && !b.ok:
			return -1
		case !a.ok && b.ok:
			return 1
		case !a.ok && !b.ok:
			return 0
		}
		return a.start.Compare(b.start)
	})

	out := make([]model.Record, 0, len(ks))
	for _, k := range ks {
		out = append(out, k.rec)
	}
	return out
}

func month(s string) time.Month {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 12 {
		return 0
	}
	return time.Month(n)
}

func monthName(s string) time.Month {
	s = strings.ToLower(strings.TrimSuffix(s, "."))
	if len(s) < 3 {
		return 0
	}
	return monthByPrefix[s[:3]]
}

func makeDate(yearStr string, m time.Month, dayStr string) (time.Time, bool) {
	year, err := strconv.Atoi(yearStr)
	if err != nil || m == 0 {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, m, day, 0, 0, 0, 0, time.UTC)
	// Reject dates that time.Date normalized, e.g. February 30.
	if t.Day() != day || t.Month() != m {
		return time.Time{}, false
	}
	return t, true
}
