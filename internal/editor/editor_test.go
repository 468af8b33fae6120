package editor_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/qwestard/dispatch/internal/backend"
	"gitlab.ozon.dev/qwestard/dispatch/internal/editor"
	"gitlab.ozon.dev/qwestard/dispatch/internal/models"
	"gitlab.ozon.dev/qwestard/dispatch/internal/schedule"
)

type fakeAPI struct {
	editor.API

	clients  []models.Client
	products []models.Product
	trucks   []models.Truck
	order    *models.Order
	loadErr  error
	writeErr error

	calls   int
	created *models.NewOrder
	patch   *models.OrderPatch
	status  models.Status
	items   []models.LineItem
	expense *models.NewExpense
	upload  *models.InvoiceUpload
	email   *models.QuoteEmail
}

func newFake() *fakeAPI {
	return &fakeAPI{
		clients:  []models.Client{{ID: 1, Name: "Acme", Address: "Main St 1"}},
		products: []models.Product{{ID: 10, Name: "Gravel", Price: decimal.RequireFromString("12.50")}, {ID: 11, Name: "Sand", Price: decimal.RequireFromString("8")}},
		trucks:   []models.Truck{{ID: 3, Name: "Truck 3"}},
	}
}

func (f *fakeAPI) ListClients(context.Context) ([]models.Client, error)   { return f.clients, f.loadErr }
func (f *fakeAPI) ListProducts(context.Context) ([]models.Product, error) { return f.products, f.loadErr }
func (f *fakeAPI) ListTrucks(context.Context) ([]models.Truck, error)     { return f.trucks, f.loadErr }

func (f *fakeAPI) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.order, nil
}

func (f *fakeAPI) CreateClient(_ context.Context, c models.Client) (*models.Client, error) {
	f.calls++
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	c.ID = 99
	return &c, nil
}

func (f *fakeAPI) CreateOrder(_ context.Context, o models.NewOrder) (*models.Order, error) {
	f.calls++
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.created = &o
	return &models.Order{ID: 42, Date: o.Date, TimeSlot: o.TimeSlot, Items: o.Items}, nil
}

func (f *fakeAPI) UpdateOrder(_ context.Context, id int64, p models.OrderPatch) (*models.Order, error) {
	f.calls++
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.patch = &p
	return &models.Order{ID: id}, nil
}

func (f *fakeAPI) UpdateOrderStatus(_ context.Context, id int64, st models.Status) (*models.Order, error) {
	f.calls++
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.status = st
	return &models.Order{ID: id, Status: st}, nil
}

func (f *fakeAPI) ReplaceOrderItems(_ context.Context, id int64, items []models.LineItem) ([]models.LineItem, error) {
	f.calls++
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.items = items
	return items, nil
}

func (f *fakeAPI) CreateExpense(_ context.Context, e models.NewExpense) (*models.Expense, error) {
	f.calls++
	f.expense = &e
	return &models.Expense{ID: 1, Date: e.Date, Category: e.Category, Amount: e.Amount}, f.writeErr
}

func (f *fakeAPI) UploadInvoice(_ context.Context, up models.InvoiceUpload) (*models.Invoice, error) {
	f.calls++
	f.upload = &up
	return &models.Invoice{ID: 5, Kind: up.Kind}, f.writeErr
}

func (f *fakeAPI) SendQuoteEmail(_ context.Context, _ int64, msg models.QuoteEmail) error {
	f.calls++
	f.email = &msg
	return f.writeErr
}

func validationField(t *testing.T, err error) string {
	t.Helper()
	var verr *editor.ValidationError
	require.True(t, errors.As(err, &verr), "want a validation error, got %v", err)
	return verr.Field
}

func TestNewOrderFormDefaultsAndPriceCapture(t *testing.T) {
	api := newFake()
	f := editor.NewOrder(api, "2024-06-03")
	require.NoError(t, f.Open(context.Background()))

	assert.True(t, f.Ready)
	assert.Equal(t, schedule.Slots[0], f.TimeSlot)
	assert.Equal(t, int64(1), f.ClientID)
	require.NotNil(t, f.TruckID)
	assert.Equal(t, int64(3), *f.TruckID)
	require.Len(t, f.Lines, 1)

	require.NoError(t, f.SelectProduct(0, 10))
	require.NoError(t, f.SetQty(0, decimal.NewFromInt(2)))
	f.AddLine()
	require.NoError(t, f.SelectProduct(1, 11))
	assert.True(t, decimal.RequireFromString("33").Equal(f.Total()))

	api.products[0].Price = decimal.RequireFromString("99")
	assert.True(t, decimal.RequireFromString("12.50").Equal(f.Lines[0].UnitPrice))

	done := 0
	f.OnDone = func() { done++ }
	order, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), order.ID)
	assert.Equal(t, 1, done)
	assert.True(t, f.Closed)
	require.Len(t, api.created.Items, 2)
	assert.Equal(t, int64(10), api.created.Items[0].ProductID)
}

func TestNewOrderFormValidation(t *testing.T) {
	api := newFake()
	f := editor.NewOrder(api, "2024-06-03")
	require.NoError(t, f.Open(context.Background()))

	_, err := f.Submit(context.Background())
	assert.Equal(t, "items", validationField(t, err))
	assert.NotEmpty(t, f.Err)
	assert.False(t, f.Closed)

	f.ClientID = 0
	require.NoError(t, f.SelectProduct(0, 10))
	_, err = f.Submit(context.Background())
	assert.Equal(t, "client_id", validationField(t, err))

	f.ClientID = 1
	require.NoError(t, f.RemoveLine(0))
	_, err = f.Submit(context.Background())
	assert.Equal(t, "items", validationField(t, err))

	assert.Zero(t, api.calls)
}

func TestNewOrderFormBackendErrorKeepsFormOpen(t *testing.T) {
	api := newFake()
	f := editor.NewOrder(api, "2024-06-03")
	require.NoError(t, f.Open(context.Background()))
	require.NoError(t, f.SelectProduct(0, 10))

	api.writeErr = &backend.StatusError{Op: "create order", Status: 400, Body: "client is blocked"}
	_, err := f.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, "client is blocked", f.Err)
	assert.False(t, f.Closed)
	assert.False(t, f.Busy)
}

func TestOpenFailureLeavesFormUnusable(t *testing.T) {
	api := newFake()
	api.loadErr = errors.New("connection refused")
	f := editor.NewOrder(api, "2024-06-03")

	require.Error(t, f.Open(context.Background()))
	assert.False(t, f.Ready)
	assert.Equal(t, "connection refused", f.Err)

	_, err := f.Submit(context.Background())
	assert.ErrorIs(t, err, editor.ErrNotReady)
	assert.Zero(t, api.calls)
}

func TestQuickCreateClient(t *testing.T) {
	api := newFake()
	f := editor.NewOrder(api, "2024-06-03")
	require.NoError(t, f.Open(context.Background()))

	_, err := f.QuickCreateClient(context.Background(), models.Client{Name: "  "})
	assert.Equal(t, "name", validationField(t, err))
	assert.Zero(t, api.calls)

	c, err := f.QuickCreateClient(context.Background(), models.Client{Name: "Beta", Address: "Side St 2"})
	require.NoError(t, err)
	assert.Equal(t, c.ID, f.ClientID)
	assert.Equal(t, "Beta", f.Clients[0].Name)
	assert.Equal(t, "Side St 2", f.Address)
}

func TestEditOrderFormSubmitAndQuickStatus(t *testing.T) {
	api := newFake()
	api.order = &models.Order{ID: 7, Date: "2024-06-03", TimeSlot: "09:00-10:00", Status: models.StatusScheduled, Address: "A"}
	f := editor.EditOrder(api, 7)
	require.NoError(t, f.Open(context.Background()))
	assert.Equal(t, "09:00-10:00", f.TimeSlot)

	updates := 0
	f.OnDone = func() { updates++ }
	require.NoError(t, f.QuickStatus(context.Background(), models.StatusDelivered))
	assert.Equal(t, models.StatusDelivered, api.status)
	assert.Equal(t, models.StatusDelivered, f.Status)
	assert.False(t, f.Closed)
	assert.Equal(t, 1, updates)

	f.Notes = "ring twice"
	_, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, f.Closed)
	assert.Equal(t, "ring twice", *api.patch.Notes)
	assert.True(t, api.patch.ClearTruck)
	assert.Equal(t, 2, updates)
}

func TestItemsFormEmptyOrderStartsWithBlankLine(t *testing.T) {
	api := newFake()
	api.order = &models.Order{ID: 7}
	f := editor.EditItems(api, 7)
	require.NoError(t, f.Open(context.Background()))
	require.Len(t, f.Lines, 1)
	assert.Zero(t, f.Lines[0].ProductID)

	_, err := f.Submit(context.Background())
	assert.Equal(t, "items", validationField(t, err))
	assert.Zero(t, api.calls)
}

func TestItemsFormPartialReplaceKeepsDraft(t *testing.T) {
	api := newFake()
	api.order = &models.Order{ID: 7, Items: []models.LineItem{
		{ProductID: 10, Qty: decimal.NewFromInt(3), UnitPrice: decimal.RequireFromString("10")},
	}}
	f := editor.EditItems(api, 7)
	require.NoError(t, f.Open(context.Background()))
	require.NoError(t, f.SetQty(0, decimal.NewFromInt(4)))

	api.writeErr = &backend.PartialReplaceError{OrderID: 7, Deleted: 1, Cause: errors.New("insert failed")}
	_, err := f.Submit(context.Background())
	require.Error(t, err)
	assert.True(t, f.Partial)
	assert.False(t, f.Closed)
	require.Len(t, f.Lines, 1)
	assert.True(t, decimal.NewFromInt(4).Equal(f.Lines[0].Qty))
	assert.True(t, decimal.RequireFromString("10").Equal(f.Lines[0].UnitPrice))

	api.writeErr = nil
	items, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.False(t, f.Partial)
}

func TestExpenseFormRequiresFields(t *testing.T) {
	api := newFake()
	f := editor.NewExpense(api, "2024-06-03")
	assert.Equal(t, editor.DefaultExpenseCategory, f.Draft.Category)

	_, err := f.Submit(context.Background())
	assert.Equal(t, "amount", validationField(t, err))

	f.Draft.Amount = 25
	f.Draft.Category = ""
	_, err = f.Submit(context.Background())
	assert.Equal(t, "category", validationField(t, err))
	assert.Zero(t, api.calls)

	f.Draft.Category = "fuel"
	_, err = f.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fuel", api.expense.Category)
}

func TestInvoiceUploadRejectsExecutable(t *testing.T) {
	api := newFake()
	f := editor.UploadInvoice(api, "2024-06-03")

	err := f.SetFile("invoice.exe", "application/octet-stream", 10, strings.NewReader("MZ"))
	require.Error(t, err)
	assert.Equal(t, "file", validationField(t, err))
	assert.Contains(t, f.Err, "PDF / JPG / PNG")

	_, err = f.Submit(context.Background())
	assert.Equal(t, "file", validationField(t, err))
	assert.Zero(t, api.calls)
}

func TestInvoiceUploadAcceptsByTypeOrExtension(t *testing.T) {
	assert.True(t, editor.AllowedFile("scan", "image/png"))
	assert.True(t, editor.AllowedFile("INVOICE.PDF", ""))
	assert.True(t, editor.AllowedFile("photo.jpeg", "application/octet-stream"))
	assert.True(t, editor.AllowedFile("doc", "application/pdf; charset=binary"))
	assert.False(t, editor.AllowedFile("invoice.exe", ""))

	api := newFake()
	f := editor.UploadInvoice(api, "2024-06-03")
	require.NoError(t, f.SetFile("inv.pdf", "application/pdf", 3, strings.NewReader("pdf")))
	f.Vendor = " Metro "
	inv, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceSupplier, inv.Kind)
	assert.Equal(t, "Metro", api.upload.Vendor)
	assert.Equal(t, "inv.pdf", api.upload.FileName)
}

func TestQuoteEmailRecipients(t *testing.T) {
	assert.Equal(t, []string{"a@x.gr", "b@x.gr"}, editor.SplitRecipients(" a@x.gr, ,b@x.gr "))

	api := newFake()
	f := editor.QuoteEmail(api, 7)
	f.Recipients = " , "
	err := f.Submit(context.Background())
	assert.Equal(t, "to", validationField(t, err))
	assert.Zero(t, api.calls)

	f.Recipients = "customer@example.com"
	require.NoError(t, f.Submit(context.Background()))
	assert.Equal(t, []string{"customer@example.com"}, api.email.To)
}
