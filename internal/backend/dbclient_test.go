package backend_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/qwestard/dispatch/internal/backend"
	"gitlab.ozon.dev/qwestard/dispatch/internal/db"
	"gitlab.ozon.dev/qwestard/dispatch/internal/models"
)

// newDBClient connects to TEST_DSN and wipes the tables. Tests are skipped
// when no database is configured.
func newDBClient(t *testing.T) (*backend.DBClient, func(q string, args ...any) int64) {
	t.Helper()
	dsn := os.Getenv("TEST_DSN")
	if dsn == "" {
		t.Skip("TEST_DSN not set")
	}
	conn, err := db.NewDB(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = conn.Exec(`TRUNCATE vendor_rules, invoice_lines, invoice_files, invoices, expenses,
		order_items, orders, products, clients, trucks RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	insert := func(q string, args ...any) int64 {
		var id int64
		require.NoError(t, conn.QueryRow(q+" RETURNING id", args...).Scan(&id))
		return id
	}
	return backend.NewDBClient(conn), insert
}

func TestDBMoveOrder(t *testing.T) {
	c, insert := newDBClient(t)
	ctx := context.Background()

	t3 := insert(`INSERT INTO trucks (name) VALUES ('T3')`)
	t5 := insert(`INSERT INTO trucks (name) VALUES ('T5')`)
	cl := insert(`INSERT INTO clients (name, address) VALUES ('Acme', 'Main 1')`)
	id := insert(`INSERT INTO orders (delivery_date, time_slot, status, truck_id, client_id)
		VALUES ('2024-06-01', '08:00-10:00', 'scheduled', $1, $2)`, t3, cl)

	o, err := c.UpdateOrder(ctx, id, models.OrderPatch{
		Date:     models.String("2024-06-02"),
		TimeSlot: models.String("10:00-12:00"),
		TruckID:  models.Int64(t5),
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-06-02", o.Date)
	assert.Equal(t, "10:00-12:00", o.TimeSlot)
	assert.Equal(t, t5, *o.TruckID)
	assert.Equal(t, "Acme", o.Client.Name)

	week, err := c.FetchWeek(ctx, "2024-05-27", nil)
	require.NoError(t, err)
	require.Len(t, week, 1)
	assert.Equal(t, "2024-06-02", week[0].Date)

	o, err = c.UpdateOrder(ctx, id, models.OrderPatch{ClearTruck: true})
	require.NoError(t, err)
	assert.Nil(t, o.TruckID)

	_, err = c.UpdateOrder(ctx, id+100, models.OrderPatch{Notes: models.String("x")})
	assert.True(t, errors.Is(err, backend.ErrNotFound))
}

func TestDBReplaceItemsIsAtomic(t *testing.T) {
	c, insert := newDBClient(t)
	ctx := context.Background()

	p := insert(`INSERT INTO products (sku, name, price) VALUES ('A1', 'Gravel', 10)`)
	id := insert(`INSERT INTO orders (delivery_date) VALUES ('2024-06-01')`)

	items, err := c.ReplaceOrderItems(ctx, id, []models.LineItem{
		{ProductID: p, Qty: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(10)},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, err = c.ReplaceOrderItems(ctx, id, []models.LineItem{
		{ProductID: p, Qty: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(9)},
		{ProductID: p + 999, Qty: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(9)},
	})
	require.Error(t, err)

	o, err := c.GetOrder(ctx, id)
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.True(t, o.Items[0].Qty.Equal(decimal.NewFromInt(2)))
}

func assertSameItems(t *testing.T, want, got []models.LineItem) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ProductID, got[i].ProductID, "item %d product", i)
		assert.True(t, want[i].Qty.Equal(got[i].Qty), "item %d qty %s", i, got[i].Qty)
		assert.True(t, want[i].UnitPrice.Equal(got[i].UnitPrice), "item %d price %s", i, got[i].UnitPrice)
	}
}

func TestDBCreateOrderRoundTrip(t *testing.T) {
	c, insert := newDBClient(t)
	ctx := context.Background()

	cl := insert(`INSERT INTO clients (name) VALUES ('Acme')`)
	a := insert(`INSERT INTO products (sku, name, price) VALUES ('A1', 'Gravel', 10)`)
	b := insert(`INSERT INTO products (sku, name, price) VALUES ('B1', 'Sand', 7)`)
	items := []models.LineItem{
		{ProductID: b, Qty: decimal.NewFromInt(4), UnitPrice: decimal.RequireFromString("6.5")},
		{ProductID: a, Qty: decimal.RequireFromString("1.25"), UnitPrice: decimal.NewFromInt(10)},
		{ProductID: b, Qty: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(7)},
	}

	created, err := c.CreateOrder(ctx, models.NewOrder{ClientID: cl, Date: "2024-06-03", TimeSlot: "08:00-10:00", Items: items})
	require.NoError(t, err)

	o, err := c.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	assertSameItems(t, items, o.Items)
}

func TestDBReplaceItemsTwiceIsIdempotent(t *testing.T) {
	c, insert := newDBClient(t)
	ctx := context.Background()

	a := insert(`INSERT INTO products (sku, name, price) VALUES ('A1', 'Gravel', 10)`)
	b := insert(`INSERT INTO products (sku, name, price) VALUES ('B1', 'Sand', 7)`)
	id := insert(`INSERT INTO orders (delivery_date) VALUES ('2024-06-01')`)
	items := []models.LineItem{
		{ProductID: a, Qty: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(10)},
		{ProductID: b, Qty: decimal.NewFromInt(5), UnitPrice: decimal.RequireFromString("6.75")},
	}

	for i := 0; i < 2; i++ {
		got, err := c.ReplaceOrderItems(ctx, id, items)
		require.NoError(t, err)
		assertSameItems(t, items, got)
	}

	o, err := c.GetOrder(ctx, id)
	require.NoError(t, err)
	assertSameItems(t, items, o.Items)
}

func TestDBFinanceSummary(t *testing.T) {
	c, insert := newDBClient(t)
	ctx := context.Background()

	p := insert(`INSERT INTO products (sku, name, price, cost) VALUES ('A1', 'Gravel', 10, 4)`)
	o := insert(`INSERT INTO orders (delivery_date, status) VALUES ('2024-06-05', 'delivered')`)
	insert(`INSERT INTO order_items (order_id, product_id, qty, unit_price) VALUES ($1, $2, 100, 10)`, o, p)
	insert(`INSERT INTO expenses (date, category, amount) VALUES ('2024-06-06', 'fuel', 100)`)

	s, err := c.FinanceSummary(ctx, "2024-06-01", "2024-06-30")
	require.NoError(t, err)
	assert.InDelta(t, 1000, s.Revenue, 1e-9)
	assert.InDelta(t, 400, s.COGS, 1e-9)
	assert.InDelta(t, 0.6, s.GrossMargin, 1e-9)
	assert.InDelta(t, 500, s.NetProfit, 1e-9)
}

func TestDBUnsupported(t *testing.T) {
	c := backend.NewDBClient(nil)
	_, err := c.Ask(context.Background(), "q")
	assert.True(t, errors.Is(err, backend.ErrUnsupported))
	assert.True(t, errors.Is(c.ExtractInvoice(context.Background(), 1), backend.ErrUnsupported))
}
