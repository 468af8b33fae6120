package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusDelivered Status = "delivered"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every status in the order the edit form offers them.
var Statuses = []Status{StatusDraft, StatusScheduled, StatusDelivered, StatusPaid, StatusCancelled}

// QuickStatuses are the one-click shortcuts of the edit form.
var QuickStatuses = []Status{StatusDelivered, StatusPaid, StatusCancelled}

func (s Status) Valid() bool {
	for _, st := range Statuses {
		if st == s {
			return true
		}
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return st, nil
}

// LineItem is one product line of an order. UnitPrice is captured when the
// line is created and does not follow later product price changes.
type LineItem struct {
	ID        int64           `json:"id,omitempty" db:"id"`
	OrderID   int64           `json:"order_id,omitempty" db:"order_id"`
	ProductID int64           `json:"product_id" db:"product_id"`
	Qty       decimal.Decimal `json:"qty" db:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
}

func (li LineItem) Total() decimal.Decimal {
	return li.Qty.Mul(li.UnitPrice)
}

type Order struct {
	ID       int64      `json:"id" db:"id"`
	Date     string     `json:"date" db:"date"`
	TimeSlot string     `json:"time_slot" db:"time_slot"`
	Status   Status     `json:"status" db:"status"`
	TruckID  *int64     `json:"truck_id" db:"truck_id"`
	ClientID *int64     `json:"client_id" db:"client_id"`
	Address  string     `json:"address" db:"address"`
	Notes    string     `json:"notes" db:"notes"`
	Client   *Client    `json:"client,omitempty" db:"-"`
	Truck    *Truck     `json:"truck,omitempty" db:"-"`
	Items    []LineItem `json:"items" db:"-"`
}

func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Total())
	}
	return total
}

// NewOrder is the payload of an order creation.
type NewOrder struct {
	ClientID int64      `json:"client_id"`
	Date     string     `json:"date"`
	TimeSlot string     `json:"time_slot"`
	TruckID  *int64     `json:"truck_id"`
	Address  string     `json:"address"`
	Notes    string     `json:"notes"`
	Items    []LineItem `json:"items"`
}

// OrderPatch carries only the fields that change; nil fields are not sent.
// ClearTruck unsets the truck, which a nil TruckID cannot express.
type OrderPatch struct {
	Date       *string `json:"date,omitempty"`
	TimeSlot   *string `json:"time_slot,omitempty"`
	TruckID    *int64  `json:"truck_id,omitempty"`
	ClearTruck bool    `json:"-"`
	Address    *string `json:"address,omitempty"`
	Notes      *string `json:"notes,omitempty"`
	Status     *Status `json:"status,omitempty"`
}

func (p OrderPatch) Empty() bool {
	return p.Date == nil && p.TimeSlot == nil && p.TruckID == nil && !p.ClearTruck &&
		p.Address == nil && p.Notes == nil && p.Status == nil
}

// Fields returns the wire representation of the patch. A cleared truck is
// sent as an explicit null.
func (p OrderPatch) Fields() map[string]any {
	m := make(map[string]any)
	if p.Date != nil {
		m["date"] = *p.Date
	}
	if p.TimeSlot != nil {
		m["time_slot"] = *p.TimeSlot
	}
	if p.ClearTruck {
		m["truck_id"] = nil
	} else if p.TruckID != nil {
		m["truck_id"] = *p.TruckID
	}
	if p.Address != nil {
		m["address"] = *p.Address
	}
	if p.Notes != nil {
		m["notes"] = *p.Notes
	}
	if p.Status != nil {
		m["status"] = string(*p.Status)
	}
	return m
}

// ScheduleRow is one order as returned by the daily schedule read.
type ScheduleRow struct {
	ID       int64   `json:"id" db:"id"`
	Client   string  `json:"client" db:"client"`
	Address  string  `json:"address" db:"address"`
	Truck    *string `json:"truck" db:"truck"`
	TimeSlot string  `json:"time_slot" db:"time_slot"`
	Status   Status  `json:"status" db:"status"`
	Notes    string  `json:"notes" db:"notes"`
}

// WeekRow is one order as returned by the weekly schedule read.
type WeekRow struct {
	ID       int64  `json:"id" db:"id"`
	Date     string `json:"date" db:"date"`
	TimeSlot string `json:"time_slot" db:"time_slot"`
	Client   string `json:"client" db:"client"`
	Address  string `json:"address" db:"address"`
	TruckID  *int64 `json:"truck_id" db:"truck_id"`
	Status   Status `json:"status" db:"status"`
}

type QuoteEmail struct {
	To      []string `json:"to"`
	CC      []string `json:"cc,omitempty"`
	Subject string   `json:"subject,omitempty"`
	Body    string   `json:"body,omitempty"`
}

func Int64(v int64) *int64    { return &v }
func String(v string) *string { return &v }
