package cycle

import (
	"fmt"
	"time"

	"tally/internal/core"
)

// Window is an inclusive date range.
type Window struct {
	Start core.Date `json:"startDate"`
	End   core.Date `json:"endDate"`
}

// Resolve returns the period of s containing ref.
//
// Days past the end of a short month are clamped to its last day, so a
// salary day of 31 starts on Feb 29 in 2024 and consecutive salary
// windows never overlap or leave gaps. Custom periods that do not cover
// the whole year return the most recently started period, which may end
// before ref.
func Resolve(s Setting, ref core.Date) (Window, error) {
	if err := s.Validate(); err != nil {
		return Window{}, err
	}
	ref = core.DateOf(ref.Time)
	year, month := ref.Year(), ref.Time.Month()

	switch s.Type {
	case Natural:
		return Window{
			Start: core.NewDate(year, int(month), 1),
			End:   clampedDate(year, month, 31),
		}, nil

	case Salary:
		thisStart := clampedDate(year, month, s.StartDay)
		if !ref.Before(thisStart) {
			return Window{
				Start: thisStart,
				End:   clampedDate(year, month+1, s.StartDay).AddDays(-1),
			}, nil
		}
		return Window{
			Start: clampedDate(year, month-1, s.StartDay),
			End:   thisStart.AddDays(-1),
		}, nil

	case Custom:
		w := customWindow(s, year)
		if ref.Before(w.Start) {
			w = customWindow(s, year-1)
		}
		return w, nil
	}
	return Window{}, fmt.Errorf("unknown cycle type %q", s.Type)
}

// Next returns the period following w.
func Next(s Setting, w Window) (Window, error) {
	if s.Type == Custom {
		if err := s.Validate(); err != nil {
			return Window{}, err
		}
		return customWindow(s, w.Start.Year()+1), nil
	}
	return Resolve(s, w.End.AddDays(1))
}

// Previous returns the period preceding w.
func Previous(s Setting, w Window) (Window, error) {
	if s.Type == Custom {
		if err := s.Validate(); err != nil {
			return Window{}, err
		}
		return customWindow(s, w.Start.Year()-1), nil
	}
	return Resolve(s, w.Start.AddDays(-1))
}

// Contains reports whether d falls inside w, bounds included.
func Contains(w Window, d core.Date) bool {
	d = core.DateOf(d.Time)
	return !d.Before(w.Start) && !d.After(w.End)
}

// Format renders w as "Feb 1–29" or "Jan 15–Feb 14".
func Format(w Window) string {
	sm, em := w.Start.Time.Month(), w.End.Time.Month()
	if sm == em && w.Start.Year() == w.End.Year() {
		return fmt.Sprintf("%s %d–%d", monthAbbr(sm), w.Start.Day(), w.End.Day())
	}
	return fmt.Sprintf("%s %d–%s %d", monthAbbr(sm), w.Start.Day(), monthAbbr(em), w.End.Day())
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.Start, w.End)
}

func customWindow(s Setting, year int) Window {
	endYear := year
	if s.EndMonth < s.StartMonth {
		endYear++
	}
	return Window{
		Start: clampedDate(year, time.Month(s.StartMonth), s.StartDay),
		End:   clampedDate(endYear, time.Month(s.EndMonth), s.EndDay),
	}
}

// clampedDate builds year/month/day, pulling day back to the month's last
// day when it overflows. month may be outside 1..12 and is normalized.
func clampedDate(year int, month time.Month, day int) core.Date {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return core.NewDate(first.Year(), int(first.Month()), day)
}
