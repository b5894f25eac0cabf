// Package cycle resolves accounting periods: the recurring date windows
// against which budgets and reports are scoped.
package cycle

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Natural Type = "natural"
	Salary  Type = "salary"
	Custom  Type = "custom"
)

type Type string

// Setting describes how accounting periods are laid out.
//
// Natural periods are calendar months. Salary periods start every month
// on StartDay. Custom periods run once a year from StartMonth/StartDay to
// EndMonth/EndDay; an EndMonth before StartMonth crosses the year boundary.
type Setting struct {
	Type       Type `json:"type"`
	StartDay   int  `json:"startDay,omitempty"`
	StartMonth int  `json:"startMonth,omitempty"`
	EndMonth   int  `json:"endMonth,omitempty"`
	EndDay     int  `json:"endDay,omitempty"`
}

func NaturalMonth() Setting { return Setting{Type: Natural} }

func SalaryFrom(startDay int) Setting { return Setting{Type: Salary, StartDay: startDay} }

func CustomRange(startMonth, startDay, endMonth, endDay int) Setting {
	return Setting{Type: Custom, StartMonth: startMonth, StartDay: startDay, EndMonth: endMonth, EndDay: endDay}
}

// Validate reports every problem with the setting at once.
func (s Setting) Validate() error {
	var problems []string
	switch s.Type {
	case Natural:
	case Salary:
		if s.StartDay < 1 || s.StartDay > 31 {
			problems = append(problems, fmt.Sprintf("start day %d must be between 1 and 31", s.StartDay))
		}
	case Custom:
		if s.StartMonth < 1 || s.StartMonth > 12 {
			problems = append(problems, fmt.Sprintf("start month %d must be between 1 and 12", s.StartMonth))
		}
		if s.EndMonth < 1 || s.EndMonth > 12 {
			problems = append(problems, fmt.Sprintf("end month %d must be between 1 and 12", s.EndMonth))
		}
		if s.StartDay < 1 || s.StartDay > 31 {
			problems = append(problems, fmt.Sprintf("start day %d must be between 1 and 31", s.StartDay))
		}
		if s.EndDay < 1 || s.EndDay > 31 {
			problems = append(problems, fmt.Sprintf("end day %d must be between 1 and 31", s.EndDay))
		}
		if s.StartMonth == s.EndMonth && s.StartDay >= s.EndDay {
			problems = append(problems, "within a single month the start day must precede the end day")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown cycle type %q", s.Type))
	}
	if len(problems) > 0 {
		return errors.New("invalid cycle setting: " + strings.Join(problems, "; "))
	}
	return nil
}

// Describe returns a short human-readable summary of the layout.
func (s Setting) Describe() string {
	switch s.Type {
	case Natural:
		return "every month, day 1 to month end"
	case Salary:
		if s.StartDay == 1 {
			return "every month, day 1 to month end"
		}
		return fmt.Sprintf("every month, day %d to day %d of the next month", s.StartDay, s.StartDay-1)
	case Custom:
		if s.StartMonth == s.EndMonth {
			return fmt.Sprintf("every year, %s %d–%d", monthAbbr(time.Month(s.StartMonth)), s.StartDay, s.EndDay)
		}
		return fmt.Sprintf("every year, %s %d–%s %d",
			monthAbbr(time.Month(s.StartMonth)), s.StartDay,
			monthAbbr(time.Month(s.EndMonth)), s.EndDay)
	}
	return string(s.Type)
}

func monthAbbr(m time.Month) string {
	if m < time.January || m > time.December {
		return "?"
	}
	return m.String()[:3]
}
