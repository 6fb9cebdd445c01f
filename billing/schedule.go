package billing

import (
	"fmt"
	"time"

	"github.com/yourusername/billdesk/models"
)

// AddPeriods moves anchor forward by n periods of f. Month-based frequencies
// clamp to the last day of the target month, and the day of month is taken
// from the anchor every time, so Jan 31 yields Feb 28 and then Mar 31.
func AddPeriods(anchor time.Time, f models.Frequency, n int) (time.Time, error) {
	switch f {
	case models.FrequencyWeekly:
		return anchor.AddDate(0, 0, 7*n), nil
	case models.FrequencyBiweekly:
		return anchor.AddDate(0, 0, 14*n), nil
	case models.FrequencyMonthly:
		return addMonths(anchor, n), nil
	case models.FrequencyQuarterly:
		return addMonths(anchor, 3*n), nil
	case models.FrequencySemiannually:
		return addMonths(anchor, 6*n), nil
	case models.FrequencyAnnually:
		return addMonths(anchor, 12*n), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unknown frequency %q", ErrConsistency, f)
	}
}

func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// nextPeriod returns the issue date of the next instance of tmpl.
func nextPeriod(tmpl *models.Invoice) (time.Time, error) {
	return AddPeriods(dateOnly(tmpl.IssueDate), tmpl.Recurrence.Frequency, tmpl.Recurrence.GeneratedCount+1)
}

// dueOffsetDays is the number of days between a template's issue and due dates.
func dueOffsetDays(tmpl *models.Invoice) int {
	return int(dateOnly(tmpl.DueDate).Sub(dateOnly(tmpl.IssueDate)).Hours() / 24)
}
