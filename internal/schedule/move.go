package schedule

import "gitlab.ozon.dev/qwestard/dispatch/internal/models"

// MovePatch builds the update of a drag-and-drop move. It always carries the
// date, the slot and the truck of the destination together; dropping on the
// unassigned lane clears the truck.
func MovePatch(dest CellKey) models.OrderPatch {
	p := models.OrderPatch{
		Date:     models.String(dest.Date),
		TimeSlot: models.String(dest.Slot),
	}
	if id, ok := dest.Lane.TruckID(); ok {
		p.TruckID = models.Int64(id)
	} else {
		p.ClearTruck = true
	}
	return p
}
