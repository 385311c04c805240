package present

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "calbrowse/internal/log"
	"calbrowse/internal/model"
)

const productID = "-//calbrowse//EN"

// recurrences maps free-text frequency phrases to RRULE options. Order
// matters: "biannual" and "biennial" must be tested before "annual".
var recurrences = []struct {
	phrases  []string
	freq     rrule.Frequency
	interval int
}{
	{[]string{"biannual", "semiannual", "semi-annual", "twice a year"}, rrule.MONTHLY, 6},
	{[]string{"biennial", "every two years", "every 2 years"}, rrule.YEARLY, 2},
	{[]string{"annual", "yearly", "every year"}, rrule.YEARLY, 0},
	{[]string{"monthly", "every month"}, rrule.MONTHLY, 0},
	{[]string{"biweekly", "every two weeks", "every 2 weeks"}, rrule.WEEKLY, 2},
	{[]string{"weekly", "every week"}, rrule.WEEKLY, 0},
}

// RecurrenceRule maps a Frequency field such as "Annual" to an RRULE value
// anchored at start. ok is false when the phrase is not recognized.
func RecurrenceRule(frequency string, start time.Time) (string, bool) {
	f := strings.ToLower(strings.TrimSpace(frequency))
	if f == "" {
		return "", false
	}
	for _, rec := range recurrences {
		for _, p := range rec.phrases {
			if !strings.Contains(f, p) {
				continue
			}
			r, err := rrule.NewRRule(rrule.ROption{
				Freq:     rec.freq,
				Interval: rec.interval,
				Dtstart:  start,
			})
			if err != nil {
				appLog.Error("export: invalid recurrence", err, "frequency", frequency)
				return "", false
			}
			return r.OrigOptions.RRuleString(), true
		}
	}
	return "", false
}

// ExportICS renders records with a parseable start date as all-day events.
// Records without one are skipped.
func ExportICS(recs []model.Record, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	skipped := 0
	for i, r := range recs {
		start, ok := ParseStart(r.Dates)
		if !ok {
			skipped++
			continue
		}

		ev := cal.AddEvent(eventUID(r, i))
		ev.SetDtStampTime(now.UTC())
		ev.SetSummary(r.Title)
		ev.SetAllDayStartAt(start)
		ev.SetAllDayEndAt(start.AddDate(0, 0, 1))
		if r.Location != "" {
			ev.SetLocation(r.Location)
		}
		if desc := eventDescription(r); desc != "" {
			ev.SetDescription(desc)
		}
		if r.Website != "" {
			ev.SetURL(r.Website)
		}
		if r.CategoryLabel != "" {
			ev.SetProperty(ical.ComponentPropertyCategories, r.CategoryLabel)
		}
		if rule, ok := RecurrenceRule(r.Frequency, start); ok {
			ev.SetProperty(ical.ComponentPropertyRrule, rule)
		}
	}

	appLog.Debug("export: calendar built", "events", len(recs)-skipped, "skipped", skipped)
	return cal.Serialize()
}

func eventUID(r model.Record, i int) string {
	id := r.SourceID
	if id == "" {
		id = fmt.Sprintf("item-%d", i)
	}
	return fmt.Sprintf("%s-%s@calbrowse", r.CategoryTag, id)
}

func eventDescription(r model.Record) string {
	parts := make([]string, 0, 4)
	if r.Organization != "" {
		parts = append(parts, "Organization: "+r.Organization)
	}
	if r.Deadlines != "" {
		parts = append(parts, "Deadlines: "+r.Deadlines)
	}
	if r.Dates != "" {
		parts = append(parts, "Dates: "+r.Dates)
	}
	if r.Description != "" {
		parts = append(parts, r.Description)
	}
	return strings.Join(parts, "\n")
}
