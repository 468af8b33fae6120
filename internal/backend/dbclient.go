package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"gitlab.ozon.dev/qwestard/dispatch/internal/models"
)

// DBClient is the Backend over the relational database. Operations that
// need the API server (AI extraction, email, document rendering, web
// search) return ErrUnsupported.
type DBClient struct {
	db *sqlx.DB
}

var _ Backend = (*DBClient)(nil)

func NewDBClient(db *sqlx.DB) *DBClient {
	return &DBClient{db: db}
}

func nullableTruck(truckID *int64) any {
	if truckID == nil || *truckID <= 0 {
		return nil
	}
	return *truckID
}

func (c *DBClient) ListTrucks(ctx context.Context) ([]models.Truck, error) {
	var out []models.Truck
	if err := c.db.SelectContext(ctx, &out, `SELECT id, name FROM trucks WHERE active ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list trucks: %w", err)
	}
	return out, nil
}

func (c *DBClient) ListClients(ctx context.Context) ([]models.Client, error) {
	var out []models.Client
	const q = `SELECT id, name, phone, address, vat_number FROM clients ORDER BY name`
	if err := c.db.SelectContext(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return out, nil
}

func (c *DBClient) CreateClient(ctx context.Context, cl models.Client) (*models.Client, error) {
	const q = `
		INSERT INTO clients (name, phone, address, vat_number)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, phone, address, vat_number`
	var out models.Client
	if err := c.db.GetContext(ctx, &out, q, cl.Name, cl.Phone, cl.Address, cl.VATNumber); err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return &out, nil
}

func (c *DBClient) ListProducts(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	if err := c.db.SelectContext(ctx, &out, `SELECT id, sku, name, unit, price FROM products ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

func (c *DBClient) FetchSchedule(ctx context.Context, day string, truckID *int64) ([]models.ScheduleRow, error) {
	const q = `
		SELECT o.id,
		       COALESCE(c.name, 'Unknown') AS client,
		       COALESCE(NULLIF(o.address, ''), c.address, '') AS address,
		       t.name AS truck,
		       o.time_slot, o.status, o.notes
		FROM orders o
		LEFT JOIN clients c ON c.id = o.client_id
		LEFT JOIN trucks t ON t.id = o.truck_id
		WHERE o.delivery_date = $1
		  AND ($2::BIGINT IS NULL OR o.truck_id = $2)
		ORDER BY o.time_slot, o.id`
	var out []models.ScheduleRow
	if err := c.db.SelectContext(ctx, &out, q, day, nullableTruck(truckID)); err != nil {
		return nil, fmt.Errorf("fetch schedule: %w", err)
	}
	return out, nil
}

func (c *DBClient) FetchWeek(ctx context.Context, start string, truckID *int64) ([]models.WeekRow, error) {
	const q = `
		SELECT o.id,
		       to_char(o.delivery_date, 'YYYY-MM-DD') AS date,
		       o.time_slot,
		       COALESCE(c.name, 'Unknown') AS client,
		       COALESCE(NULLIF(o.address, ''), c.address, '') AS address,
		       o.truck_id, o.status
		FROM orders o
		LEFT JOIN clients c ON c.id = o.client_id
		WHERE o.delivery_date BETWEEN $1::DATE AND $1::DATE + 6
		  AND ($2::BIGINT IS NULL OR o.truck_id = $2)
		ORDER BY o.delivery_date, o.time_slot, o.id`
	var out []models.WeekRow
	if err := c.db.SelectContext(ctx, &out, q, start, nullableTruck(truckID)); err != nil {
		return nil, fmt.Errorf("fetch week: %w", err)
	}
	return out, nil
}

const orderColumns = `
	id, to_char(delivery_date, 'YYYY-MM-DD') AS date, time_slot, status,
	truck_id, client_id, address, notes`

func (c *DBClient) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var o models.Order
	err := c.db.GetContext(ctx, &o, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get order %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}

	if o.ClientID != nil {
		var cl models.Client
		err := c.db.GetContext(ctx, &cl, `SELECT id, name, phone, address, vat_number FROM clients WHERE id = $1`, *o.ClientID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get order %d client: %w", id, err)
		}
		if err == nil {
			o.Client = &cl
		}
	}
	if o.TruckID != nil {
		var t models.Truck
		err := c.db.GetContext(ctx, &t, `SELECT id, name FROM trucks WHERE id = $1`, *o.TruckID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get order %d truck: %w", id, err)
		}
		if err == nil {
			o.Truck = &t
		}
	}

	o.Items, err = c.orderItems(ctx, c.db, id)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *DBClient) orderItems(ctx context.Context, q sqlx.QueryerContext, orderID int64) ([]models.LineItem, error) {
	items := []models.LineItem{}
	const query = `
		SELECT id, order_id, product_id, qty, unit_price
		FROM order_items WHERE order_id = $1 ORDER BY id`
	if err := sqlx.SelectContext(ctx, q, &items, query, orderID); err != nil {
		return nil, fmt.Errorf("order %d items: %w", orderID, err)
	}
	return items, nil
}

func insertItems(ctx context.Context, tx *sqlx.Tx, orderID int64, items []models.LineItem) error {
	const q = `INSERT INTO order_items (order_id, product_id, qty, unit_price) VALUES ($1, $2, $3, $4)`
	for _, it := range items {
		if _, err := tx.ExecContext(ctx, q, orderID, it.ProductID, it.Qty, it.UnitPrice); err != nil {
			return fmt.Errorf("insert item product %d: %w", it.ProductID, err)
		}
	}
	return nil
}

func (c *DBClient) CreateOrder(ctx context.Context, o models.NewOrder) (*models.Order, error) {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("create order: begin: %w", err)
	}
	defer tx.Rollback()

	status := models.StatusDraft
	if o.TimeSlot != "" {
		status = models.StatusScheduled
	}
	const q = `
		INSERT INTO orders (delivery_date, time_slot, status, truck_id, client_id, address, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	var id int64
	if err := tx.GetContext(ctx, &id, q, o.Date, o.TimeSlot, status, nullableTruck(o.TruckID), o.ClientID, o.Address, o.Notes); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if err := insertItems(ctx, tx, id, o.Items); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create order: commit: %w", err)
	}
	return c.GetOrder(ctx, id)
}

// patchColumns maps wire field names to order columns.
var patchColumns = map[string]string{
	"date":      "delivery_date",
	"time_slot": "time_slot",
	"truck_id":  "truck_id",
	"address":   "address",
	"notes":     "notes",
	"status":    "status",
}

var patchOrder = []string{"date", "time_slot", "truck_id", "address", "notes", "status"}

// UpdateOrder writes every field of the patch in one statement, so a move
// changes date, slot and truck together or not at all.
func (c *DBClient) UpdateOrder(ctx context.Context, id int64, p models.OrderPatch) (*models.Order, error) {
	fields := p.Fields()
	if len(fields) == 0 {
		return c.GetOrder(ctx, id)
	}
	sets := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	for _, name := range patchOrder {
		v, ok := fields[name]
		if !ok {
			continue
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", patchColumns[name], len(args)))
	}
	args = append(args, id)
	q := fmt.Sprintf(`UPDATE orders SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	res, err := c.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("update order %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("update order %d: %w", id, ErrNotFound)
	}
	return c.GetOrder(ctx, id)
}

func (c *DBClient) UpdateOrderStatus(ctx context.Context, id int64, status models.Status) (*models.Order, error) {
	return c.UpdateOrder(ctx, id, models.OrderPatch{Status: &status})
}

// ReplaceOrderItems deletes and inserts inside one transaction. A failed
// insert rolls the delete back. Only a failed rollback can leave the order
// without items, which is reported as PartialReplaceError.
func (c *DBClient) ReplaceOrderItems(ctx context.Context, id int64, items []models.LineItem) ([]models.LineItem, error) {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("replace order items: begin: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, id)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("replace order items: delete: %w", err)
	}
	deleted, _ := res.RowsAffected()

	if err := insertItems(ctx, tx, id, items); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return nil, &PartialReplaceError{OrderID: id, Deleted: deleted, Cause: errors.Join(err, rbErr)}
		}
		return nil, fmt.Errorf("replace order items: %w", err)
	}

	stored, err := c.orderItems(ctx, tx, id)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("replace order items: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("replace order items: commit: %w", err)
	}
	return stored, nil
}

func (c *DBClient) ScheduleExportURL(ExportFormat, string, *int64) (string, error) {
	return "", unsupported("schedule export")
}

func (c *DBClient) QuotePDFURL(int64) (string, error) {
	return "", unsupported("quote pdf")
}

func (c *DBClient) SendQuoteEmail(context.Context, int64, models.QuoteEmail) error {
	return unsupported("send quote email")
}
