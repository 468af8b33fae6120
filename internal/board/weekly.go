package board

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"gitlab.ozon.dev/qwestard/dispatch/internal/audit"
	"gitlab.ozon.dev/qwestard/dispatch/internal/events"
	"gitlab.ozon.dev/qwestard/dispatch/internal/models"
	"gitlab.ozon.dev/qwestard/dispatch/internal/schedule"
)

const ActionMove = "board.move"

type WeeklyBoard struct {
	api      API
	notifier events.Notifier
	audit    audit.Logger
	log      logrus.FieldLogger
	opts     schedule.Options

	trucks  []models.Truck
	loaded  bool
	start   time.Time
	truckID *int64
	grid    *schedule.Grid
	err     error
}

func NewWeeklyBoard(api API, notifier events.Notifier, auditLog audit.Logger, log logrus.FieldLogger, opts schedule.Options) *WeeklyBoard {
	return &WeeklyBoard{
		api:      api,
		notifier: notifier,
		audit:    auditLog,
		log:      log,
		opts:     opts,
	}
}

// Load shows the week containing ref. With truckID set only that truck's
// lane is shown.
func (b *WeeklyBoard) Load(ctx context.Context, ref time.Time, truckID *int64) error {
	b.start = schedule.WeekStart(ref)
	b.truckID = truckID
	if !b.loaded {
		trucks, err := b.api.ListTrucks(ctx)
		if err != nil {
			b.log.WithError(err).Warn("weekly board: trucks not loaded")
		}
		b.trucks, b.loaded = trucks, true
	}
	return b.reload(ctx)
}

func (b *WeeklyBoard) activeTrucks() []models.Truck {
	if b.truckID == nil {
		return b.trucks
	}
	for _, t := range b.trucks {
		if t.ID == *b.truckID {
			return []models.Truck{t}
		}
	}
	return nil
}

func (b *WeeklyBoard) reload(ctx context.Context) error {
	days := schedule.WeekDays(b.start)
	rows, err := b.api.FetchWeek(ctx, schedule.FormatDay(b.start), b.truckID)
	if err != nil {
		b.err = err
		b.grid = schedule.Group(nil, days, b.activeTrucks(), b.gridOptions())
		return err
	}
	b.err = nil
	b.grid = schedule.Group(rows, days, b.activeTrucks(), b.gridOptions())
	return nil
}

func (b *WeeklyBoard) gridOptions() schedule.Options {
	opts := b.opts
	if b.truckID != nil {
		opts.ShowUnassigned = false
	}
	return opts
}

// Drop moves an order to the cell named by destKey. The order gets the
// destination date, slot and truck in one update, then the week is fetched
// again whatever the outcome. A failed update is returned to the caller.
func (b *WeeklyBoard) Drop(ctx context.Context, orderID int64, destKey string) error {
	dest, err := schedule.ParseCellKey(destKey)
	if err != nil {
		return err
	}
	entry := b.log.WithFields(logrus.Fields{"order_id": orderID, "cell": destKey})

	_, upErr := b.api.UpdateOrder(ctx, orderID, schedule.MovePatch(dest))
	b.audit.Log(audit.Record{
		Action:  ActionMove,
		OrderID: orderID,
		Message: fmt.Sprintf("order moved to %s", destKey),
		Err:     audit.Failed(upErr),
	})
	if upErr != nil {
		entry.WithError(upErr).Warn("move failed")
	} else {
		entry.Info("order moved")
		if err := b.notifier.Notify(ctx, events.Change{Action: ActionMove, OrderID: orderID, Date: dest.Date}); err != nil {
			entry.WithError(err).Warn("board change not announced")
		}
	}

	reloadErr := b.reload(ctx)
	if upErr != nil {
		return fmt.Errorf("move order %d: %w", orderID, upErr)
	}
	return reloadErr
}

func (b *WeeklyBoard) Grid() *schedule.Grid { return b.grid }

type Card struct {
	ID      int64         `json:"id"`
	Client  string        `json:"client"`
	Address string        `json:"address"`
	Status  models.Status `json:"status"`
}

type CellView struct {
	Key    string `json:"key"`
	Date   string `json:"date"`
	Slot   string `json:"slot"`
	Lane   string `json:"lane"`
	Orders []Card `json:"orders"`
}

type LaneView struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type DayView struct {
	Date  string     `json:"date"`
	Label string     `json:"label"`
	Cells []CellView `json:"cells"`
}

type WeekView struct {
	Start   string         `json:"start"`
	TruckID *int64         `json:"truck_id"`
	Trucks  []models.Truck `json:"trucks"`
	Lanes   []LaneView     `json:"lanes"`
	Slots   []string       `json:"slots"`
	Days    []DayView      `json:"days"`
	Outside []Card         `json:"outside"`
	Error   string         `json:"error,omitempty"`
}

func cards(rows []models.WeekRow) []Card {
	out := make([]Card, 0, len(rows))
	for _, r := range rows {
		out = append(out, Card{ID: r.ID, Client: r.Client, Address: r.Address, Status: r.Status})
	}
	return out
}

// UnassignedName labels the lane of orders without a truck.
const UnassignedName = "Unassigned"

func (b *WeeklyBoard) View() WeekView {
	v := WeekView{
		Start:   schedule.FormatDay(b.start),
		TruckID: b.truckID,
		Trucks:  b.trucks,
		Slots:   schedule.Slots,
		Lanes:   []LaneView{},
		Days:    []DayView{},
		Outside: []Card{},
	}
	if v.Trucks == nil {
		v.Trucks = []models.Truck{}
	}
	if b.err != nil {
		v.Error = b.err.Error()
	}
	if b.grid == nil {
		return v
	}

	names := make(map[int64]string, len(b.trucks))
	for _, t := range b.trucks {
		names[t.ID] = t.Name
	}
	for _, l := range b.grid.Lanes {
		name := UnassignedName
		if id, ok := l.TruckID(); ok {
			name = names[id]
		}
		v.Lanes = append(v.Lanes, LaneView{Key: l.String(), Name: name})
	}

	byDay := make(map[string]*DayView, len(b.grid.Days))
	for _, d := range b.grid.Days {
		label := d
		if t, err := schedule.ParseDay(d); err == nil {
			label = t.Format("Mon 02/01")
		}
		v.Days = append(v.Days, DayView{Date: d, Label: label, Cells: []CellView{}})
	}
	for i := range v.Days {
		byDay[v.Days[i].Date] = &v.Days[i]
	}
	for _, key := range b.grid.Keys() {
		rows, _ := b.grid.Cell(key)
		day := byDay[key.Date]
		day.Cells = append(day.Cells, CellView{
			Key:    key.String(),
			Date:   key.Date,
			Slot:   key.Slot,
			Lane:   key.Lane.String(),
			Orders: cards(rows),
		})
	}
	v.Outside = cards(b.grid.Outside)
	return v
}
