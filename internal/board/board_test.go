package board_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/qwestard/dispatch/internal/audit"
	"gitlab.ozon.dev/qwestard/dispatch/internal/backend"
	"gitlab.ozon.dev/qwestard/dispatch/internal/board"
	"gitlab.ozon.dev/qwestard/dispatch/internal/events"
	"gitlab.ozon.dev/qwestard/dispatch/internal/models"
	"gitlab.ozon.dev/qwestard/dispatch/internal/schedule"
)

// fakeAPI keeps week rows in memory. Methods the boards never call panic
// through the nil embedded interface.
type fakeAPI struct {
	board.API
	trucks    []models.Truck
	rows      map[int64]models.WeekRow
	schedule  []models.ScheduleRow
	patches   []models.OrderPatch
	updateErr error
	fetchErr  error
	weekCalls int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		trucks: []models.Truck{{ID: 3, Name: "Truck 3"}, {ID: 5, Name: "Truck 5"}},
		rows:   map[int64]models.WeekRow{},
	}
}

func (f *fakeAPI) ListTrucks(context.Context) ([]models.Truck, error) { return f.trucks, nil }

func (f *fakeAPI) FetchSchedule(_ context.Context, _ string, _ *int64) ([]models.ScheduleRow, error) {
	return f.schedule, f.fetchErr
}

func (f *fakeAPI) FetchWeek(_ context.Context, start string, truckID *int64) ([]models.WeekRow, error) {
	f.weekCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []models.WeekRow
	for _, r := range f.rows {
		if truckID != nil && (r.TruckID == nil || *r.TruckID != *truckID) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeAPI) UpdateOrder(_ context.Context, id int64, p models.OrderPatch) (*models.Order, error) {
	f.patches = append(f.patches, p)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	r := f.rows[id]
	if p.Date != nil {
		r.Date = *p.Date
	}
	if p.TimeSlot != nil {
		r.TimeSlot = *p.TimeSlot
	}
	if p.ClearTruck {
		r.TruckID = nil
	} else if p.TruckID != nil {
		r.TruckID = models.Int64(*p.TruckID)
	}
	f.rows[id] = r
	return &models.Order{ID: id, Date: r.Date, TimeSlot: r.TimeSlot, TruckID: r.TruckID}, nil
}

func (f *fakeAPI) QuotePDFURL(id int64) (string, error) {
	return "http://api/quotes/pdf", nil
}

func (f *fakeAPI) ScheduleExportURL(format backend.ExportFormat, _ string, _ *int64) (string, error) {
	return "http://api/export." + string(format), nil
}

type recordingNotifier struct{ changes []events.Change }

func (n *recordingNotifier) Notify(_ context.Context, ch events.Change) error {
	n.changes = append(n.changes, ch)
	return nil
}

type recordingAudit struct{ recs []audit.Record }

func (a *recordingAudit) Log(rec audit.Record) { a.recs = append(a.recs, rec) }

func day(s string) time.Time {
	d, _ := schedule.ParseDay(s)
	return d
}

func newWeekly(api *fakeAPI) (*board.WeeklyBoard, *recordingNotifier, *recordingAudit) {
	log, _ := test.NewNullLogger()
	n, a := &recordingNotifier{}, &recordingAudit{}
	return board.NewWeeklyBoard(api, n, a, log, schedule.Options{ShowUnassigned: true}), n, a
}

func TestDropMovesAllThreeFields(t *testing.T) {
	api := newFakeAPI()
	api.rows[1] = models.WeekRow{ID: 1, Date: "2024-06-01", TimeSlot: "10:00-12:00", TruckID: models.Int64(3), Client: "A"}
	b, n, a := newWeekly(api)
	ctx := context.Background()
	require.NoError(t, b.Load(ctx, day("2024-06-01"), nil))

	src := schedule.CellKey{Date: "2024-06-01", Slot: "10:00-12:00", Lane: schedule.Assigned(3)}
	dst := schedule.CellKey{Date: "2024-06-02", Slot: "14:00-16:00", Lane: schedule.Assigned(5)}
	rows, _ := b.Grid().Cell(src)
	require.Len(t, rows, 1)

	require.NoError(t, b.Drop(ctx, 1, dst.String()))

	require.Len(t, api.patches, 1)
	p := api.patches[0]
	assert.Equal(t, "2024-06-02", *p.Date)
	assert.Equal(t, "14:00-16:00", *p.TimeSlot)
	assert.Equal(t, int64(5), *p.TruckID)

	rows, _ = b.Grid().Cell(src)
	assert.Empty(t, rows)
	rows, _ = b.Grid().Cell(dst)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].ID)

	require.Len(t, n.changes, 1)
	assert.Equal(t, "2024-06-02", n.changes[0].Date)
	require.Len(t, a.recs, 1)
	assert.Equal(t, board.ActionMove, a.recs[0].Action)
	assert.Empty(t, a.recs[0].Err)
}

func TestDropFailureIsReturnedAndReloads(t *testing.T) {
	api := newFakeAPI()
	api.rows[1] = models.WeekRow{ID: 1, Date: "2024-06-03", TimeSlot: "08:00-10:00", TruckID: models.Int64(3)}
	b, n, a := newWeekly(api)
	ctx := context.Background()
	require.NoError(t, b.Load(ctx, day("2024-06-03"), nil))
	calls := api.weekCalls

	api.updateErr = &backend.StatusError{Op: "update order", Status: 409, Body: "order is paid"}
	err := b.Drop(ctx, 1, "2024-06-04|08:00-10:00|5")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "order is paid")
	assert.Equal(t, calls+1, api.weekCalls)
	assert.Empty(t, n.changes)
	require.Len(t, a.recs, 1)
	assert.NotEmpty(t, a.recs[0].Err)

	_, ok := b.Grid().Locate(1)
	assert.True(t, ok)
}

func TestDropBadKeySendsNothing(t *testing.T) {
	api := newFakeAPI()
	b, _, _ := newWeekly(api)
	require.NoError(t, b.Load(context.Background(), day("2024-06-03"), nil))

	err := b.Drop(context.Background(), 1, "2024-06-04|09:00-10:00|5")
	assert.True(t, errors.Is(err, schedule.ErrBadCellKey))
	assert.Empty(t, api.patches)
}

func TestUnassignedOrdersStayUnassigned(t *testing.T) {
	api := newFakeAPI()
	api.rows[7] = models.WeekRow{ID: 7, Date: "2024-06-04", TimeSlot: "12:00-14:00"}
	b, _, _ := newWeekly(api)
	require.NoError(t, b.Load(context.Background(), day("2024-06-04"), nil))

	key, ok := b.Grid().Locate(7)
	require.True(t, ok)
	assert.False(t, key.Lane.IsAssigned())

	v := b.View()
	require.Len(t, v.Lanes, 3)
	assert.Equal(t, board.UnassignedName, v.Lanes[2].Name)
	assert.Equal(t, "2024-06-03", v.Start)
	require.Len(t, v.Days, 7)
	assert.Len(t, v.Days[0].Cells, 3*len(schedule.Slots))
}

func TestDropOnUnassignedLaneClearsTruck(t *testing.T) {
	api := newFakeAPI()
	api.rows[2] = models.WeekRow{ID: 2, Date: "2024-06-04", TimeSlot: "12:00-14:00", TruckID: models.Int64(5)}
	b, _, _ := newWeekly(api)
	require.NoError(t, b.Load(context.Background(), day("2024-06-04"), nil))

	require.NoError(t, b.Drop(context.Background(), 2, "2024-06-04|12:00-14:00|-"))
	assert.True(t, api.patches[0].ClearTruck)
	assert.Nil(t, api.rows[2].TruckID)
}

func TestTruckFilterShowsOneLane(t *testing.T) {
	api := newFakeAPI()
	api.rows[1] = models.WeekRow{ID: 1, Date: "2024-06-04", TimeSlot: "08:00-10:00", TruckID: models.Int64(3)}
	api.rows[2] = models.WeekRow{ID: 2, Date: "2024-06-04", TimeSlot: "08:00-10:00", TruckID: models.Int64(5)}
	b, _, _ := newWeekly(api)
	require.NoError(t, b.Load(context.Background(), day("2024-06-04"), models.Int64(5)))

	v := b.View()
	require.Len(t, v.Lanes, 1)
	assert.Equal(t, "5", v.Lanes[0].Key)
	_, ok := b.Grid().Locate(1)
	assert.False(t, ok)
}

func TestDailyBoardPlaceholderAndRows(t *testing.T) {
	api := newFakeAPI()
	log, _ := test.NewNullLogger()
	b := board.NewDailyBoard(api, log)

	require.NoError(t, b.Load(context.Background(), "2024-06-01", nil))
	v := b.View()
	assert.Empty(t, v.Rows)
	assert.Equal(t, board.EmptyDay, v.Placeholder)
	assert.Equal(t, board.DailyColumns, v.Colspan)
	assert.Equal(t, "http://api/export.csv", v.Exports.CSV)

	truck := "Truck 3"
	api.schedule = []models.ScheduleRow{
		{ID: 1, Client: "A", TimeSlot: "08:00-10:00", Truck: &truck},
		{ID: 2, Client: "B", TimeSlot: "10:00-12:00"},
	}
	require.NoError(t, b.Load(context.Background(), "2024-06-01", nil))
	v = b.View()
	assert.Empty(t, v.Placeholder)
	require.Len(t, v.Rows, 2)
	assert.Equal(t, "Truck 3", v.Rows[0].Truck)
	assert.Equal(t, board.NoTruckLabel, v.Rows[1].Truck)
}

func TestDailyBoardShowsLoadError(t *testing.T) {
	api := newFakeAPI()
	api.fetchErr = errors.New("backend down")
	log, _ := test.NewNullLogger()
	b := board.NewDailyBoard(api, log)

	assert.Error(t, b.Load(context.Background(), "2024-06-01", nil))
	v := b.View()
	assert.Equal(t, "backend down", v.Error)
	assert.Empty(t, v.Placeholder)
}
