package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gitlab.ozon.dev/qwestard/dispatch/internal/models"
)

// Revenue is recognised for delivered and paid orders only.
const revenueStatuses = `('delivered', 'paid')`

func (c *DBClient) FinanceSummary(ctx context.Context, start, end string) (*models.Summary, error) {
	const q = `
		WITH sales AS (
			SELECT COALESCE(SUM(oi.qty * oi.unit_price), 0) AS revenue,
			       COALESCE(SUM(oi.qty * p.cost), 0)       AS cogs
			FROM orders o
			JOIN order_items oi ON oi.order_id = o.id
			JOIN products p ON p.id = oi.product_id
			WHERE o.delivery_date BETWEEN $1 AND $2 AND o.status IN ` + revenueStatuses + `
		), spend AS (
			SELECT COALESCE(SUM(amount), 0) AS expenses
			FROM expenses WHERE date BETWEEN $1 AND $2
		)
		SELECT s.revenue, s.cogs, sp.expenses FROM sales s, spend sp`
	var row struct {
		Revenue  float64 `db:"revenue"`
		COGS     float64 `db:"cogs"`
		Expenses float64 `db:"expenses"`
	}
	if err := c.db.GetContext(ctx, &row, q, start, end); err != nil {
		return nil, fmt.Errorf("finance summary: %w", err)
	}
	out := &models.Summary{
		Revenue:     row.Revenue,
		COGS:        row.COGS,
		GrossProfit: row.Revenue - row.COGS,
		Expenses:    row.Expenses,
	}
	if row.Revenue > 0 {
		out.GrossMargin = out.GrossProfit / row.Revenue
	}
	out.NetProfit = out.GrossProfit - row.Expenses
	return out, nil
}

func (c *DBClient) FinanceOrders(ctx context.Context, start, end string) ([]models.OrderProfit, error) {
	const q = `
		SELECT o.id AS order_id,
		       to_char(o.delivery_date, 'YYYY-MM-DD') AS date,
		       COALESCE(c.name, 'Unknown') AS client,
		       o.status,
		       COALESCE(SUM(oi.qty * oi.unit_price), 0) AS revenue,
		       COALESCE(SUM(oi.qty * p.cost), 0) AS cogs
		FROM orders o
		LEFT JOIN clients c ON c.id = o.client_id
		LEFT JOIN order_items oi ON oi.order_id = o.id
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE o.delivery_date BETWEEN $1 AND $2 AND o.status <> 'cancelled'
		GROUP BY o.id, c.name
		ORDER BY o.delivery_date DESC, o.id DESC`
	rows := []models.OrderProfit{}
	if err := c.db.SelectContext(ctx, &rows, q, start, end); err != nil {
		return nil, fmt.Errorf("finance orders: %w", err)
	}
	for i := range rows {
		rows[i].Profit = rows[i].Revenue - rows[i].COGS
		if rows[i].Revenue > 0 {
			rows[i].Margin = rows[i].Profit / rows[i].Revenue
		}
	}
	return rows, nil
}

func (c *DBClient) ListExpenses(ctx context.Context, start, end string) ([]models.Expense, error) {
	const q = `
		SELECT id, to_char(date, 'YYYY-MM-DD') AS date, category, vendor, description, amount
		FROM expenses
		WHERE ($1 = '' OR date >= $1::DATE) AND ($2 = '' OR date <= $2::DATE)
		ORDER BY date DESC, id DESC`
	out := []models.Expense{}
	if err := c.db.SelectContext(ctx, &out, q, start, end); err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return out, nil
}

func (c *DBClient) CreateExpense(ctx context.Context, e models.NewExpense) (*models.Expense, error) {
	const q = `
		INSERT INTO expenses (date, category, vendor, description, amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, to_char(date, 'YYYY-MM-DD') AS date, category, vendor, description, amount`
	var out models.Expense
	if err := c.db.GetContext(ctx, &out, q, e.Date, e.Category, e.Vendor, e.Description, e.Amount); err != nil {
		return nil, fmt.Errorf("create expense: %w", err)
	}
	return &out, nil
}

const invoiceColumns = `
	id, to_char(date, 'YYYY-MM-DD') AS date, vendor, amount, kind, file_url,
	order_id, to_char(due_date, 'YYYY-MM-DD') AS due_date, duplicate_of_id`

func (c *DBClient) ListInvoices(ctx context.Context, start, end string) ([]models.Invoice, error) {
	q := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE ($1 = '' OR date >= $1::DATE) AND ($2 = '' OR date <= $2::DATE)
		ORDER BY date DESC, id DESC`
	out := []models.Invoice{}
	if err := c.db.SelectContext(ctx, &out, q, start, end); err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return out, nil
}

func invoiceFilePath(id int64) string {
	return fmt.Sprintf("/api/finance/invoices/%d/file", id)
}

// UploadInvoice stores the invoice row and its attachment together.
func (c *DBClient) UploadInvoice(ctx context.Context, up models.InvoiceUpload) (*models.Invoice, error) {
	if up.File == nil {
		return nil, errors.New("upload invoice: no file")
	}
	data, err := io.ReadAll(up.File)
	if err != nil {
		return nil, fmt.Errorf("upload invoice: read file: %w", err)
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("upload invoice: begin: %w", err)
	}
	defer tx.Rollback()

	var id int64
	const ins = `
		INSERT INTO invoices (date, vendor, amount, kind, order_id)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := tx.GetContext(ctx, &id, ins, up.Date, up.Vendor, up.Amount, string(up.Kind), up.OrderID); err != nil {
		return nil, fmt.Errorf("upload invoice: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE invoices SET file_url = $1 WHERE id = $2`, invoiceFilePath(id), id); err != nil {
		return nil, fmt.Errorf("upload invoice: %w", err)
	}
	const file = `INSERT INTO invoice_files (invoice_id, file_name, content_type, data) VALUES ($1, $2, $3, $4)`
	if _, err := tx.ExecContext(ctx, file, id, up.FileName, up.ContentType, data); err != nil {
		return nil, fmt.Errorf("upload invoice: store file: %w", err)
	}

	var out models.Invoice
	if err := tx.GetContext(ctx, &out, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("upload invoice: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("upload invoice: commit: %w", err)
	}
	return &out, nil
}

func (c *DBClient) DeleteInvoice(ctx context.Context, id int64) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete invoice %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete invoice %d: %w", id, ErrNotFound)
	}
	return nil
}

// InvoiceFile accepts the path UploadInvoice stored on the invoice row.
func (c *DBClient) InvoiceFile(ctx context.Context, fileURL string) (*models.InvoiceFile, error) {
	rest, ok := strings.CutPrefix(fileURL, "/api/finance/invoices/")
	idStr, ok2 := strings.CutSuffix(rest, "/file")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if !ok || !ok2 || err != nil {
		return nil, fmt.Errorf("open invoice file %q: %w", fileURL, ErrNotFound)
	}
	var row struct {
		ContentType string `db:"content_type"`
		Data        []byte `db:"data"`
	}
	err = c.db.GetContext(ctx, &row, `SELECT content_type, data FROM invoice_files WHERE invoice_id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("open invoice file %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open invoice file %d: %w", id, err)
	}
	return &models.InvoiceFile{ContentType: row.ContentType, Data: row.Data}, nil
}

func (c *DBClient) ExtractInvoice(context.Context, int64) error {
	return unsupported("extract invoice")
}

// RefreshCosts sets each product cost to the average supplier price of the
// last months and returns the SKUs whose cost changed.
func (c *DBClient) RefreshCosts(ctx context.Context, months int) (*models.CostRefreshResult, error) {
	const q = `
		WITH avg_cost AS (
			SELECT il.sku, ROUND(AVG(il.unit_price), 4) AS cost
			FROM invoice_lines il
			JOIN invoices i ON i.id = il.invoice_id
			WHERE i.kind = 'supplier' AND i.duplicate_of_id IS NULL
			  AND i.date >= CURRENT_DATE - make_interval(months => $1)
			GROUP BY il.sku
		)
		UPDATE products p SET cost = a.cost
		FROM avg_cost a
		WHERE p.sku = a.sku AND p.cost <> a.cost
		RETURNING p.sku`
	out := &models.CostRefreshResult{Updated: []string{}}
	if err := c.db.SelectContext(ctx, &out.Updated, q, months); err != nil {
		return nil, fmt.Errorf("refresh costs: %w", err)
	}
	return out, nil
}

func (c *DBClient) VendorPriceHistory(ctx context.Context, sku string, months int) ([]models.VendorPricePoint, error) {
	const q = `
		SELECT to_char(i.date, 'YYYY-MM') AS ym, i.vendor, AVG(il.unit_price) AS avg_price
		FROM invoice_lines il
		JOIN invoices i ON i.id = il.invoice_id
		WHERE il.sku = $1 AND i.kind = 'supplier'
		  AND i.date >= CURRENT_DATE - make_interval(months => $2)
		GROUP BY ym, i.vendor
		ORDER BY ym, i.vendor`
	out := []models.VendorPricePoint{}
	if err := c.db.SelectContext(ctx, &out, q, sku, months); err != nil {
		return nil, fmt.Errorf("vendor price history: %w", err)
	}
	return out, nil
}

func (c *DBClient) Timeseries(ctx context.Context, start, end string) ([]models.TimePoint, error) {
	const q = `
		WITH rev AS (
			SELECT o.delivery_date AS d, SUM(oi.qty * oi.unit_price) AS revenue
			FROM orders o JOIN order_items oi ON oi.order_id = o.id
			WHERE o.delivery_date BETWEEN $1 AND $2 AND o.status IN ` + revenueStatuses + `
			GROUP BY o.delivery_date
		), exp AS (
			SELECT date AS d, SUM(amount) AS expenses
			FROM expenses WHERE date BETWEEN $1 AND $2
			GROUP BY date
		)
		SELECT to_char(COALESCE(rev.d, exp.d), 'YYYY-MM-DD') AS date,
		       COALESCE(rev.revenue, 0) AS revenue,
		       COALESCE(exp.expenses, 0) AS expenses,
		       COALESCE(rev.revenue, 0) - COALESCE(exp.expenses, 0) AS profit
		FROM rev FULL OUTER JOIN exp ON exp.d = rev.d
		ORDER BY 1`
	out := []models.TimePoint{}
	if err := c.db.SelectContext(ctx, &out, q, start, end); err != nil {
		return nil, fmt.Errorf("timeseries: %w", err)
	}
	return out, nil
}

func (c *DBClient) TopProducts(ctx context.Context, start, end string, limit int, sort string) ([]models.TopProduct, error) {
	orderBy := "revenue"
	if sort == "qty" {
		orderBy = "qty"
	}
	q := `
		SELECT p.sku, p.name, SUM(oi.qty) AS qty, SUM(oi.qty * oi.unit_price) AS revenue
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		JOIN products p ON p.id = oi.product_id
		WHERE o.delivery_date BETWEEN $1 AND $2 AND o.status IN ` + revenueStatuses + `
		GROUP BY p.sku, p.name
		ORDER BY ` + orderBy + ` DESC
		LIMIT $3`
	out := []models.TopProduct{}
	if err := c.db.SelectContext(ctx, &out, q, start, end, limit); err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}
	return out, nil
}

func (c *DBClient) ExpenseCategories(ctx context.Context, start, end string) ([]models.ExpenseCategory, error) {
	const q = `
		SELECT COALESCE(NULLIF(category, ''), 'other') AS category, SUM(amount) AS amount
		FROM expenses WHERE date BETWEEN $1 AND $2
		GROUP BY 1 ORDER BY amount DESC`
	out := []models.ExpenseCategory{}
	if err := c.db.SelectContext(ctx, &out, q, start, end); err != nil {
		return nil, fmt.Errorf("expense categories: %w", err)
	}
	return out, nil
}

// PriceSuggestions prices every purchased SKU at cost / (1 - margin).
func (c *DBClient) PriceSuggestions(ctx context.Context, targetMargin float64, months int) ([]models.PriceSuggestion, error) {
	if targetMargin <= 0 || targetMargin >= 1 {
		return nil, fmt.Errorf("price suggestions: target margin %v out of range", targetMargin)
	}
	const q = `
		WITH cost AS (
			SELECT il.sku, AVG(il.unit_price) AS avg_cost
			FROM invoice_lines il
			JOIN invoices i ON i.id = il.invoice_id
			WHERE i.kind = 'supplier' AND i.duplicate_of_id IS NULL
			  AND i.date >= CURRENT_DATE - make_interval(months => $1)
			GROUP BY il.sku
		), sold AS (
			SELECT p.sku, AVG(oi.unit_price) AS current_price_avg
			FROM order_items oi
			JOIN orders o ON o.id = oi.order_id
			JOIN products p ON p.id = oi.product_id
			WHERE o.delivery_date >= CURRENT_DATE - make_interval(months => $1)
			GROUP BY p.sku
		)
		SELECT cost.sku, cost.avg_cost, sold.current_price_avg
		FROM cost LEFT JOIN sold ON sold.sku = cost.sku
		ORDER BY cost.sku`
	out := []models.PriceSuggestion{}
	if err := c.db.SelectContext(ctx, &out, q, months); err != nil {
		return nil, fmt.Errorf("price suggestions: %w", err)
	}
	for i := range out {
		out[i].SuggestedPrice = out[i].AvgCost / (1 - targetMargin)
		if cur := out[i].CurrentPriceAvg; cur != nil {
			delta := out[i].SuggestedPrice - *cur
			out[i].DeltaVsCurrent = &delta
		}
	}
	return out, nil
}

func (c *DBClient) UpcomingPayments(ctx context.Context, days int) (*models.UpcomingPayments, error) {
	const q = `
		SELECT id, to_char(due_date, 'YYYY-MM-DD') AS due_date, vendor, amount,
		       (due_date - CURRENT_DATE) AS days_left
		FROM invoices
		WHERE kind = 'supplier' AND duplicate_of_id IS NULL
		  AND due_date BETWEEN CURRENT_DATE AND CURRENT_DATE + $1::INT
		ORDER BY due_date, id`
	out := &models.UpcomingPayments{Items: []models.UpcomingPayment{}, ByVendor: []models.VendorAmount{}}
	if err := c.db.SelectContext(ctx, &out.Items, q, days); err != nil {
		return nil, fmt.Errorf("upcoming payments: %w", err)
	}
	index := map[string]int{}
	for _, it := range out.Items {
		i, ok := index[it.Vendor]
		if !ok {
			i = len(out.ByVendor)
			index[it.Vendor] = i
			out.ByVendor = append(out.ByVendor, models.VendorAmount{Vendor: it.Vendor})
		}
		out.ByVendor[i].Amount += it.Amount
	}
	return out, nil
}

// Insights returns the computed metrics. The written brief needs the API
// server and stays empty.
func (c *DBClient) Insights(ctx context.Context, start, end string) (*models.Insights, error) {
	out := &models.Insights{Metrics: models.InsightMetrics{
		TopVendors:   []models.VendorAmount{},
		PriceChanges: []models.PriceChange{},
	}}
	const vendors = `
		SELECT vendor, SUM(amount) AS amount
		FROM invoices
		WHERE kind = 'supplier' AND duplicate_of_id IS NULL AND date BETWEEN $1 AND $2
		GROUP BY vendor ORDER BY amount DESC LIMIT 10`
	if err := c.db.SelectContext(ctx, &out.Metrics.TopVendors, vendors, start, end); err != nil {
		return nil, fmt.Errorf("insights vendors: %w", err)
	}

	const changes = `
		WITH monthly AS (
			SELECT il.sku,
			       AVG(il.unit_price) FILTER (WHERE date_trunc('month', i.date) = date_trunc('month', $1::DATE)) AS curr_avg,
			       AVG(il.unit_price) FILTER (WHERE date_trunc('month', i.date) = date_trunc('month', $1::DATE) - INTERVAL '1 month') AS prev_avg
			FROM invoice_lines il
			JOIN invoices i ON i.id = il.invoice_id
			WHERE i.kind = 'supplier'
			GROUP BY il.sku
		)
		SELECT sku, prev_avg, curr_avg
		FROM monthly
		WHERE prev_avg IS NOT NULL AND curr_avg IS NOT NULL AND prev_avg <> curr_avg
		ORDER BY ABS(curr_avg - prev_avg) / prev_avg DESC`
	var rows []struct {
		SKU     string  `db:"sku"`
		PrevAvg float64 `db:"prev_avg"`
		CurrAvg float64 `db:"curr_avg"`
	}
	if err := c.db.SelectContext(ctx, &rows, changes, end); err != nil {
		return nil, fmt.Errorf("insights price changes: %w", err)
	}
	for _, r := range rows {
		delta := r.CurrAvg - r.PrevAvg
		out.Metrics.PriceChanges = append(out.Metrics.PriceChanges, models.PriceChange{
			SKU:     r.SKU,
			PrevAvg: r.PrevAvg,
			CurrAvg: r.CurrAvg,
			Delta:   delta,
			Pct:     delta / r.PrevAvg * 100,
		})
	}
	return out, nil
}

// AutoCategorize applies the stored vendor rules to uncategorised expenses.
func (c *DBClient) AutoCategorize(ctx context.Context) (*models.CategorizeResult, error) {
	const q = `
		UPDATE expenses e SET category = r.category
		FROM vendor_rules r
		WHERE lower(e.vendor) = r.vendor AND (e.category = '' OR e.category = 'other')`
	res, err := c.db.ExecContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("auto categorize: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("auto categorize: %w", err)
	}
	return &models.CategorizeResult{Updated: int(n)}, nil
}

// AddVendorRule stores the rule under the lower-cased vendor name.
func (c *DBClient) AddVendorRule(ctx context.Context, vendor, category string) error {
	const q = `
		INSERT INTO vendor_rules (vendor, category) VALUES (lower($1), $2)
		ON CONFLICT (vendor) DO UPDATE SET category = excluded.category`
	if _, err := c.db.ExecContext(ctx, q, vendor, category); err != nil {
		return fmt.Errorf("add vendor rule: %w", err)
	}
	return nil
}

// ScanDuplicates marks an invoice as a duplicate of the oldest invoice with
// the same vendor, date, amount and kind.
func (c *DBClient) ScanDuplicates(ctx context.Context) (*models.DuplicateScanResult, error) {
	const q = `
		WITH firsts AS (
			SELECT id, MIN(id) OVER (PARTITION BY lower(vendor), date, amount, kind) AS first_id
			FROM invoices
		)
		UPDATE invoices i SET duplicate_of_id = f.first_id
		FROM firsts f
		WHERE i.id = f.id AND f.first_id <> i.id AND i.duplicate_of_id IS NULL`
	res, err := c.db.ExecContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("scan duplicates: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("scan duplicates: %w", err)
	}
	return &models.DuplicateScanResult{DuplicatesMarked: int(n)}, nil
}

func (c *DBClient) Ask(context.Context, string) (string, error) {
	return "", unsupported("ask")
}

func (c *DBClient) CompetitorSearch(context.Context, string, string) ([]models.CompetitorResult, error) {
	return nil, unsupported("competitor search")
}
