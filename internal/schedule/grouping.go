package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gitlab.ozon.dev/qwestard/dispatch/internal/models"
)

const (
	keySep         = "|"
	unassignedLane = "-"
)

var ErrBadCellKey = errors.New("invalid cell key")

// Lane is the truck column of a cell: either a specific truck or the lane of
// orders that have no truck yet.
type Lane struct {
	truckID  int64
	assigned bool
}

func Assigned(truckID int64) Lane { return Lane{truckID: truckID, assigned: true} }

func Unassigned() Lane { return Lane{} }

func LaneOf(truckID *int64) Lane {
	if truckID == nil {
		return Unassigned()
	}
	return Assigned(*truckID)
}

func (l Lane) TruckID() (int64, bool) { return l.truckID, l.assigned }

func (l Lane) IsAssigned() bool { return l.assigned }

func (l Lane) String() string {
	if !l.assigned {
		return unassignedLane
	}
	return strconv.FormatInt(l.truckID, 10)
}

// CellKey identifies one cell of the weekly board.
type CellKey struct {
	Date string
	Slot string
	Lane Lane
}

func (k CellKey) String() string {
	return k.Date + keySep + k.Slot + keySep + k.Lane.String()
}

// ParseCellKey decodes a key produced by CellKey.String, e.g. a drop target id.
func ParseCellKey(s string) (CellKey, error) {
	parts := strings.Split(s, keySep)
	if len(parts) != 3 {
		return CellKey{}, fmt.Errorf("%w %q: want date|slot|truck", ErrBadCellKey, s)
	}
	if _, err := ParseDay(parts[0]); err != nil {
		return CellKey{}, fmt.Errorf("%w %q: %v", ErrBadCellKey, s, err)
	}
	if !IsSlot(parts[1]) {
		return CellKey{}, fmt.Errorf("%w %q: unknown slot %q", ErrBadCellKey, s, parts[1])
	}
	key := CellKey{Date: parts[0], Slot: parts[1]}
	if parts[2] == unassignedLane {
		key.Lane = Unassigned()
		return key, nil
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || id <= 0 {
		return CellKey{}, fmt.Errorf("%w %q: bad truck %q", ErrBadCellKey, s, parts[2])
	}
	key.Lane = Assigned(id)
	return key, nil
}

type Options struct {
	// ShowUnassigned adds the lane of orders without a truck.
	ShowUnassigned bool
}

// Grid is the weekly board: every visible day × lane × slot has a cell, empty
// or not. Orders that fall in no visible cell are kept in Outside.
type Grid struct {
	Days    []string
	Lanes   []Lane
	Outside []models.WeekRow
	cells   map[CellKey][]models.WeekRow
}

// Group places each row in exactly one cell of the grid spanned by days and
// trucks.
func Group(rows []models.WeekRow, days []string, trucks []models.Truck, opts Options) *Grid {
	g := &Grid{
		Days:  days,
		Lanes: make([]Lane, 0, len(trucks)+1),
		cells: make(map[CellKey][]models.WeekRow, len(days)*len(Slots)*(len(trucks)+1)),
	}
	for _, t := range trucks {
		g.Lanes = append(g.Lanes, Assigned(t.ID))
	}
	if opts.ShowUnassigned {
		g.Lanes = append(g.Lanes, Unassigned())
	}
	for _, d := range days {
		for _, l := range g.Lanes {
			for _, s := range Slots {
				g.cells[CellKey{Date: d, Slot: s, Lane: l}] = []models.WeekRow{}
			}
		}
	}

	for _, row := range rows {
		key := CellKey{Date: row.Date, Slot: row.TimeSlot, Lane: LaneOf(row.TruckID)}
		if _, ok := g.cells[key]; !ok {
			g.Outside = append(g.Outside, row)
			continue
		}
		g.cells[key] = append(g.cells[key], row)
	}
	return g
}

// Cell returns the orders of a cell and whether the cell is part of the grid.
func (g *Grid) Cell(key CellKey) ([]models.WeekRow, bool) {
	rows, ok := g.cells[key]
	return rows, ok
}

// Keys lists every cell in board order: day, then lane, then slot.
func (g *Grid) Keys() []CellKey {
	keys := make([]CellKey, 0, len(g.cells))
	for _, d := range g.Days {
		for _, l := range g.Lanes {
			for _, s := range Slots {
				keys = append(keys, CellKey{Date: d, Slot: s, Lane: l})
			}
		}
	}
	return keys
}

func (g *Grid) Len() int { return len(g.cells) }

// Locate returns the cell holding the order with the given id.
func (g *Grid) Locate(orderID int64) (CellKey, bool) {
	for key, rows := range g.cells {
		for _, r := range rows {
			if r.ID == orderID {
				return key, true
			}
		}
	}
	return CellKey{}, false
}
