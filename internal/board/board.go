// Package board holds the view models of the delivery boards: the daily
// list and the weekly drag-and-drop grid.
package board

import (
	"gitlab.ozon.dev/qwestard/dispatch/internal/backend"
)

// API is the part of the backend the boards use.
type API interface {
	backend.Lookups
	backend.Orders
	backend.Documents
}

// DailyColumns is the column count of the daily table; the empty-day
// placeholder spans all of them.
const DailyColumns = 6

const (
	EmptyDay     = "No deliveries for this day."
	NoTruckLabel = "-"
)
