package editor

import (
	"context"
	"strings"

	"gitlab.ozon.dev/qwestard/dispatch/internal/models"
	"gitlab.ozon.dev/qwestard/dispatch/internal/schedule"
)

type NewOrderForm struct {
	State
	lineEditor

	api API

	Clients  []models.Client `json:"clients"`
	Trucks   []models.Truck  `json:"trucks"`
	ClientID int64           `json:"client_id"`
	Date     string          `json:"date"`
	TimeSlot string          `json:"time_slot"`
	TruckID  *int64          `json:"truck_id"`
	Address  string          `json:"address"`
	Notes    string          `json:"notes"`

	Created *models.Order `json:"created,omitempty"`
}

// NewOrder starts an order form for day. The slot defaults to the first
// delivery window.
func NewOrder(api API, day string) *NewOrderForm {
	return &NewOrderForm{
		api:      api,
		Date:     day,
		TimeSlot: schedule.Slots[0],
	}
}

// Open loads clients, products and trucks and preselects the first client
// and truck.
func (f *NewOrderForm) Open(ctx context.Context) error {
	clients, err := f.api.ListClients(ctx)
	if err != nil {
		return f.opened(err)
	}
	products, err := f.api.ListProducts(ctx)
	if err != nil {
		return f.opened(err)
	}
	trucks, err := f.api.ListTrucks(ctx)
	if err != nil {
		return f.opened(err)
	}
	f.Clients, f.Products, f.Trucks = clients, products, trucks
	if f.ClientID == 0 && len(clients) > 0 {
		f.ClientID = clients[0].ID
	}
	if f.TruckID == nil && len(trucks) > 0 {
		f.TruckID = models.Int64(trucks[0].ID)
	}
	if len(f.Lines) == 0 {
		f.Lines = []Line{blankLine()}
	}
	return f.opened(nil)
}

func (f *NewOrderForm) Validate() error {
	if f.ClientID == 0 {
		return invalid("client_id", "select a client")
	}
	if _, err := schedule.ParseDay(f.Date); err != nil {
		return invalid("date", "invalid delivery date %q", f.Date)
	}
	if !schedule.IsSlot(f.TimeSlot) {
		return invalid("time_slot", "unknown time slot %q", f.TimeSlot)
	}
	if len(f.Lines) == 0 {
		return invalid("items", "add at least one product")
	}
	return f.validateLines()
}

func (f *NewOrderForm) Submit(ctx context.Context) (*models.Order, error) {
	if err := f.begin(); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, f.fail(err)
	}
	order, err := f.api.CreateOrder(ctx, models.NewOrder{
		ClientID: f.ClientID,
		Date:     f.Date,
		TimeSlot: f.TimeSlot,
		TruckID:  f.TruckID,
		Address:  f.Address,
		Notes:    f.Notes,
		Items:    f.items(),
	})
	if err != nil {
		return nil, f.fail(err)
	}
	f.Created = order
	f.done()
	return order, nil
}

// QuickCreateClient creates a client from inside the order form, puts it on
// top of the list and selects it. An empty order address takes the client's.
func (f *NewOrderForm) QuickCreateClient(ctx context.Context, c models.Client) (*models.Client, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, f.fail(invalid("name", "client name is required"))
	}
	f.Busy, f.Err = true, ""
	created, err := f.api.CreateClient(ctx, c)
	if err != nil {
		return nil, f.fail(err)
	}
	f.Busy = false
	f.Clients = append([]models.Client{*created}, f.Clients...)
	f.ClientID = created.ID
	if f.Address == "" {
		f.Address = created.Address
	}
	return created, nil
}

type EditOrderForm struct {
	State

	api     API
	OrderID int64 `json:"order_id"`

	Trucks   []models.Truck `json:"trucks"`
	Date     string         `json:"date"`
	TimeSlot string         `json:"time_slot"`
	TruckID  *int64         `json:"truck_id"`
	Address  string         `json:"address"`
	Notes    string         `json:"notes"`
	Status   models.Status  `json:"status"`
}

func EditOrder(api API, orderID int64) *EditOrderForm {
	return &EditOrderForm{api: api, OrderID: orderID}
}

func (f *EditOrderForm) Open(ctx context.Context) error {
	order, err := f.api.GetOrder(ctx, f.OrderID)
	if err != nil {
		return f.opened(err)
	}
	trucks, err := f.api.ListTrucks(ctx)
	if err != nil {
		return f.opened(err)
	}
	f.Trucks = trucks
	f.Date = order.Date
	f.TimeSlot = order.TimeSlot
	f.TruckID = order.TruckID
	f.Address = order.Address
	f.Notes = order.Notes
	f.Status = order.Status
	return f.opened(nil)
}

// Validate accepts slots outside the fixed windows so that older orders can
// still be edited.
func (f *EditOrderForm) Validate() error {
	if _, err := schedule.ParseDay(f.Date); err != nil {
		return invalid("date", "invalid delivery date %q", f.Date)
	}
	if !f.Status.Valid() {
		return invalid("status", "unknown status %q", f.Status)
	}
	return nil
}

func (f *EditOrderForm) patch() models.OrderPatch {
	status := f.Status
	p := models.OrderPatch{
		Date:     models.String(f.Date),
		TimeSlot: models.String(f.TimeSlot),
		Address:  models.String(f.Address),
		Notes:    models.String(f.Notes),
		Status:   &status,
	}
	if f.TruckID == nil {
		p.ClearTruck = true
	} else {
		p.TruckID = models.Int64(*f.TruckID)
	}
	return p
}

func (f *EditOrderForm) Submit(ctx context.Context) (*models.Order, error) {
	if err := f.begin(); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, f.fail(err)
	}
	order, err := f.api.UpdateOrder(ctx, f.OrderID, f.patch())
	if err != nil {
		return nil, f.fail(err)
	}
	f.done()
	return order, nil
}

// QuickStatus patches the status alone. The form stays open; OnDone still
// fires so the board behind it reloads.
func (f *EditOrderForm) QuickStatus(ctx context.Context, status models.Status) error {
	if err := f.begin(); err != nil {
		return err
	}
	if !status.Valid() {
		return f.fail(invalid("status", "unknown status %q", status))
	}
	if _, err := f.api.UpdateOrderStatus(ctx, f.OrderID, status); err != nil {
		return f.fail(err)
	}
	f.Busy = false
	f.Status = status
	if f.OnDone != nil {
		f.OnDone()
	}
	return nil
}
