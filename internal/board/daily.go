package board

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"gitlab.ozon.dev/qwestard/dispatch/internal/backend"
	"gitlab.ozon.dev/qwestard/dispatch/internal/models"
)

type DailyBoard struct {
	api API
	log logrus.FieldLogger

	day     string
	truckID *int64
	trucks  []models.Truck
	rows    []models.ScheduleRow
	loaded  bool
	busy    bool
	err     error
}

func NewDailyBoard(api API, log logrus.FieldLogger) *DailyBoard {
	return &DailyBoard{api: api, log: log}
}

// Load fetches the schedule of day, optionally for one truck. The truck list
// is fetched on the first load only; failing to get it leaves the filter
// empty but does not fail the board.
func (b *DailyBoard) Load(ctx context.Context, day string, truckID *int64) error {
	b.day, b.truckID = day, truckID
	b.busy, b.err = true, nil
	defer func() { b.busy = false }()

	if !b.loaded {
		trucks, err := b.api.ListTrucks(ctx)
		if err != nil {
			b.log.WithError(err).Warn("daily board: trucks not loaded")
		}
		b.trucks, b.loaded = trucks, true
	}

	rows, err := b.api.FetchSchedule(ctx, day, truckID)
	if err != nil {
		b.err = err
		b.rows = nil
		return err
	}
	b.rows = rows
	return nil
}

type DailyRow struct {
	ID       int64         `json:"id"`
	TimeSlot string        `json:"time_slot"`
	Client   string        `json:"client"`
	Address  string        `json:"address"`
	Truck    string        `json:"truck"`
	Status   models.Status `json:"status"`
	Notes    string        `json:"notes"`
	QuoteURL string        `json:"quote_url,omitempty"`
}

type ExportLinks struct {
	CSV string `json:"csv,omitempty"`
	PDF string `json:"pdf,omitempty"`
}

type DailyView struct {
	Day         string         `json:"day"`
	TruckID     *int64         `json:"truck_id"`
	Trucks      []models.Truck `json:"trucks"`
	Rows        []DailyRow     `json:"rows"`
	Placeholder string         `json:"placeholder,omitempty"`
	Colspan     int            `json:"colspan"`
	Exports     ExportLinks    `json:"exports"`
	Busy        bool           `json:"busy"`
	Error       string         `json:"error,omitempty"`
}

func (b *DailyBoard) View() DailyView {
	v := DailyView{
		Day:     b.day,
		TruckID: b.truckID,
		Trucks:  b.trucks,
		Rows:    make([]DailyRow, 0, len(b.rows)),
		Colspan: DailyColumns,
		Exports: b.exports(),
		Busy:    b.busy,
	}
	if v.Trucks == nil {
		v.Trucks = []models.Truck{}
	}
	if b.err != nil {
		v.Error = b.err.Error()
	}
	for _, r := range b.rows {
		row := DailyRow{
			ID:       r.ID,
			TimeSlot: r.TimeSlot,
			Client:   r.Client,
			Address:  r.Address,
			Truck:    NoTruckLabel,
			Status:   r.Status,
			Notes:    r.Notes,
		}
		if r.Truck != nil {
			row.Truck = *r.Truck
		}
		if u, err := b.api.QuotePDFURL(r.ID); err == nil {
			row.QuoteURL = u
		}
		v.Rows = append(v.Rows, row)
	}
	if len(v.Rows) == 0 && !b.busy && b.err == nil {
		v.Placeholder = EmptyDay
	}
	return v
}

// exports builds the download links. Backends that cannot render exports
// yield no links.
func (b *DailyBoard) exports() ExportLinks {
	var links ExportLinks
	csv, err := b.api.ScheduleExportURL(backend.ExportCSV, b.day, b.truckID)
	if err != nil && !errors.Is(err, backend.ErrUnsupported) {
		b.log.WithError(err).Warn("daily board: csv export link")
	}
	pdf, err := b.api.ScheduleExportURL(backend.ExportPDF, b.day, b.truckID)
	if err != nil && !errors.Is(err, backend.ErrUnsupported) {
		b.log.WithError(err).Warn("daily board: pdf export link")
	}
	links.CSV, links.PDF = csv, pdf
	return links
}
