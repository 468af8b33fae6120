// Package schedule holds the weekly board data model: the fixed delivery
// slots, the week window and the (date, slot, lane) grouping of orders.
package schedule

import (
	"fmt"
	"time"
)

const DateLayout = time.DateOnly

// Slots are the five two-hour delivery windows of a day, in board order.
var Slots = []string{
	"08:00-10:00",
	"10:00-12:00",
	"12:00-14:00",
	"14:00-16:00",
	"16:00-18:00",
}

func IsSlot(label string) bool {
	return slotIndex(label) >= 0
}

func slotIndex(label string) int {
	for i, s := range Slots {
		if s == label {
			return i
		}
	}
	return -1
}

func ParseDay(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

func FormatDay(t time.Time) string {
	return t.Format(DateLayout)
}

// WeekStart returns the Monday of the week containing ref, at midnight.
func WeekStart(ref time.Time) time.Time {
	day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
	wd := int(day.Weekday())
	if wd == 0 {
		wd = 7
	}
	return day.AddDate(0, 0, -(wd - 1))
}

// WeekDays returns the seven ISO dates starting at start.
func WeekDays(start time.Time) []string {
	days := make([]string, 7)
	for i := range days {
		days[i] = FormatDay(start.AddDate(0, 0, i))
	}
	return days
}
