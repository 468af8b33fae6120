package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"gitlab.ozon.dev/qwestard/dispatch/internal/editor"
	"gitlab.ozon.dev/qwestard/dispatch/internal/models"
	"gitlab.ozon.dev/qwestard/dispatch/internal/schedule"
)

const (
	actionOrderCreate = "order.create"
	actionOrderUpdate = "order.update"
	actionOrderStatus = "order.status"
	actionOrderItems  = "order.items"
)

func (s *Server) handleTrucks(w http.ResponseWriter, r *http.Request) {
	trucks, err := s.api.ListTrucks(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trucks)
}

func (s *Server) handleClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.api.ListClients(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.api.ListProducts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var c models.Client
	if err := decode(r, &c); err != nil {
		s.writeError(w, r, err)
		return
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		s.writeError(w, r, &editor.ValidationError{Field: "name", Message: "client name is required"})
		return
	}
	created, err := s.api.CreateClient(r.Context(), c)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.api.GetOrder(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type itemInput struct {
	ProductID int64            `json:"product_id"`
	Qty       *decimal.Decimal `json:"qty"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

type lineSetter interface {
	AddLine()
	SelectProduct(i int, productID int64) error
	SetQty(i int, qty decimal.Decimal) error
	SetUnitPrice(i int, price decimal.Decimal) error
}

// applyLines adds one line per input. A line without unit_price gets the
// product's current price; a missing qty stays 1.
func applyLines(ed lineSetter, items []itemInput) error {
	for i, it := range items {
		ed.AddLine()
		if err := ed.SelectProduct(i, it.ProductID); err != nil {
			return err
		}
		if it.Qty != nil {
			if err := ed.SetQty(i, *it.Qty); err != nil {
				return err
			}
		}
		if it.UnitPrice != nil {
			if err := ed.SetUnitPrice(i, *it.UnitPrice); err != nil {
				return err
			}
		}
	}
	return nil
}

type newOrderInput struct {
	ClientID int64           `json:"client_id"`
	Date     string          `json:"date"`
	TimeSlot string          `json:"time_slot"`
	TruckID  json.RawMessage `json:"truck_id"`
	Address  string          `json:"address"`
	Notes    string          `json:"notes"`
	Items    []itemInput     `json:"items"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var in newOrderInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if in.Date == "" {
		in.Date = schedule.FormatDay(s.now())
	}
	f := editor.NewOrder(s.api, in.Date)
	if err := f.Open(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	f.ClientID = in.ClientID
	f.Address, f.Notes = in.Address, in.Notes
	if in.TimeSlot != "" {
		f.TimeSlot = in.TimeSlot
	}
	truck, err := truckField(in.TruckID, f.TruckID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f.TruckID = truck
	f.Lines = nil
	if err := applyLines(f, in.Items); err != nil {
		s.writeError(w, r, err)
		return
	}
	order, err := f.Submit(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.notify(r.Context(), actionOrderCreate, order.ID, f.Date)
	writeJSON(w, http.StatusCreated, order)
}

type orderPatchInput struct {
	Date     *string         `json:"date"`
	TimeSlot *string         `json:"time_slot"`
	TruckID  json.RawMessage `json:"truck_id"`
	Address  *string         `json:"address"`
	Notes    *string         `json:"notes"`
	Status   *models.Status  `json:"status"`
}

// apply copies the sent fields onto the form. truck_id null unassigns the
// truck; an absent truck_id leaves it alone.
func (in orderPatchInput) apply(f *editor.EditOrderForm) error {
	if in.Date != nil {
		f.Date = *in.Date
	}
	if in.TimeSlot != nil {
		f.TimeSlot = *in.TimeSlot
	}
	if in.Address != nil {
		f.Address = *in.Address
	}
	if in.Notes != nil {
		f.Notes = *in.Notes
	}
	if in.Status != nil {
		f.Status = *in.Status
	}
	truck, err := truckField(in.TruckID, f.TruckID)
	if err != nil {
		return err
	}
	f.TruckID = truck
	return nil
}

// truckField reads an optional truck_id: absent keeps cur, null means no
// truck.
func truckField(raw json.RawMessage, cur *int64) (*int64, error) {
	switch {
	case len(raw) == 0:
		return cur, nil
	case bytes.Equal(raw, []byte("null")):
		return nil, nil
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || id <= 0 {
		return nil, &editor.ValidationError{Field: "truck_id", Message: "invalid truck_id"}
	}
	return &id, nil
}

func (s *Server) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in orderPatchInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	f := editor.EditOrder(s.api, id)
	if err := f.Open(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := in.apply(f); err != nil {
		s.writeError(w, r, err)
		return
	}
	order, err := f.Submit(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.notify(r.Context(), actionOrderUpdate, id, f.Date)
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in struct {
		Status models.Status `json:"status"`
	}
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	f := editor.EditOrder(s.api, id)
	if err := f.Open(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := f.QuickStatus(r.Context(), in.Status); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.notify(r.Context(), actionOrderStatus, id, f.Date)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": f.Status})
}

func (s *Server) handleReplaceItems(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in struct {
		Items []itemInput `json:"items"`
	}
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	f := editor.EditItems(s.api, id)
	if err := f.Open(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	f.Lines = nil
	if err := applyLines(f, in.Items); err != nil {
		s.writeError(w, r, err)
		return
	}
	items, err := f.Submit(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.notify(r.Context(), actionOrderItems, id, "")
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleQuotePDF(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.api.QuotePDFURL(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, u, http.StatusFound)
}

func (s *Server) handleQuoteEmail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in struct {
		Recipients string `json:"recipients"`
		Subject    string `json:"subject"`
		Body       string `json:"body"`
	}
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	f := editor.QuoteEmail(s.api, id)
	f.Recipients, f.Subject, f.Body = in.Recipients, in.Subject, in.Body
	if err := f.Submit(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
