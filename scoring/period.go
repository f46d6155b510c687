package scoring

import (
	"errors"
	"fmt"
	"time"

	"habit-league/models"
)

// ErrUnknownPeriod is returned for a period kind other than weekly or monthly.
var ErrUnknownPeriod = errors.New("unknown period kind")

// Bounds is an inclusive calendar window.
type Bounds struct {
	Start string `json:"start_date"`
	End   string `json:"end_date"`
}

// Contains reports whether date falls inside the window, both ends included.
func (b Bounds) Contains(date string) bool {
	return date >= b.Start && date <= b.End
}

// CurrentPeriodBounds returns the period that contains reference.
func CurrentPeriodBounds(period models.Period, reference string) (Bounds, error) {
	ref, err := ParseDate(reference)
	if err != nil {
		return Bounds{}, err
	}
	return boundsAround(period, ref)
}

// NextPeriodBounds returns the period that starts right after previousEnd.
func NextPeriodBounds(period models.Period, previousEnd string) (Bounds, error) {
	end, err := ParseDate(previousEnd)
	if err != nil {
		return Bounds{}, err
	}
	return boundsAround(period, end.AddDate(0, 0, 1))
}

func boundsAround(period models.Period, ref time.Time) (Bounds, error) {
	switch period {
	case models.PeriodWeekly:
		// Sunday closes the week, it does not open it.
		weekday := int(ref.Weekday())
		offset := 1 - weekday
		if weekday == 0 {
			offset = -6
		}
		monday := ref.AddDate(0, 0, offset)
		return Bounds{Start: FormatDate(monday), End: FormatDate(monday.AddDate(0, 0, 6))}, nil
	case models.PeriodMonthly:
		first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
		last := time.Date(ref.Year(), ref.Month()+1, 0, 0, 0, 0, 0, time.UTC)
		return Bounds{Start: FormatDate(first), End: FormatDate(last)}, nil
	default:
		return Bounds{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, period)
	}
}
