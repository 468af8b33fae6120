package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"gitlab.ozon.dev/qwestard/dispatch/internal/config"
	"gitlab.ozon.dev/qwestard/dispatch/internal/models"
)

const (
	apiKeyHeader   = "x-api-key"
	invoicesPrefix = "/api/finance/invoices/"
)

// RESTClient is the Backend over the HTTP API. Routes under /api/ carry the
// API key header; schedule, order and lookup routes are sent without it.
// Nothing is cached and nothing is retried.
type RESTClient struct {
	base   string
	apiKey string
	client *http.Client
}

var _ Backend = (*RESTClient)(nil)

func NewRESTClient(cfg config.Config) *RESTClient {
	return &RESTClient{
		base:   strings.TrimRight(cfg.APIBase, "/"),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

type request struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
	auth   bool
}

func (c *RESTClient) url(path string, query url.Values) string {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *RESTClient) send(ctx context.Context, r request, contentType string, body io.Reader) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, c.url(r.path, r.query), body)
	if err != nil {
		return nil, "", fmt.Errorf("%s: build request: %w", r.op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if r.auth {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", &TransportError{Op: r.op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &TransportError{Op: r.op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &StatusError{Op: r.op, Status: resp.StatusCode, Body: string(data)}
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// do sends r with a JSON body when r.body is set and returns the raw response.
func (c *RESTClient) do(ctx context.Context, r request) ([]byte, error) {
	var (
		body        io.Reader
		contentType string
	)
	if r.body != nil {
		buf, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode body: %w", r.op, err)
		}
		body = bytes.NewReader(buf)
		contentType = "application/json"
	}
	data, _, err := c.send(ctx, r, contentType, body)
	return data, err
}

func (c *RESTClient) doJSON(ctx context.Context, r request, out any) error {
	data, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: %w: %v", r.op, ErrBadResponse, err)
	}
	return nil
}

func rangeQuery(start, end string) url.Values {
	q := url.Values{}
	if start != "" {
		q.Set("start", start)
	}
	if end != "" {
		q.Set("end", end)
	}
	return q
}

func truckQuery(q url.Values, truckID *int64) url.Values {
	if truckID != nil && *truckID > 0 {
		q.Set("truck_id", strconv.FormatInt(*truckID, 10))
	}
	return q
}

func (c *RESTClient) ListTrucks(ctx context.Context) ([]models.Truck, error) {
	var out []models.Truck
	err := c.doJSON(ctx, request{op: "list trucks", method: http.MethodGet, path: "/trucks"}, &out)
	return out, err
}

func (c *RESTClient) ListClients(ctx context.Context) ([]models.Client, error) {
	var out []models.Client
	err := c.doJSON(ctx, request{op: "list clients", method: http.MethodGet, path: "/clients"}, &out)
	return out, err
}

func (c *RESTClient) CreateClient(ctx context.Context, cl models.Client) (*models.Client, error) {
	payload := map[string]string{
		"name":       cl.Name,
		"phone":      cl.Phone,
		"address":    cl.Address,
		"vat_number": cl.VATNumber,
	}
	var out models.Client
	if err := c.doJSON(ctx, request{op: "create client", method: http.MethodPost, path: "/clients", body: payload}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RESTClient) ListProducts(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	err := c.doJSON(ctx, request{op: "list products", method: http.MethodGet, path: "/products"}, &out)
	return out, err
}

func (c *RESTClient) FetchSchedule(ctx context.Context, day string, truckID *int64) ([]models.ScheduleRow, error) {
	q := truckQuery(url.Values{"day": {day}}, truckID)
	var out []models.ScheduleRow
	err := c.doJSON(ctx, request{op: "fetch schedule", method: http.MethodGet, path: "/schedule", query: q}, &out)
	return out, err
}

func (c *RESTClient) FetchWeek(ctx context.Context, start string, truckID *int64) ([]models.WeekRow, error) {
	q := truckQuery(url.Values{"start": {start}}, truckID)
	var out []models.WeekRow
	err := c.doJSON(ctx, request{op: "fetch week", method: http.MethodGet, path: "/schedule/week", query: q}, &out)
	return out, err
}

func orderPath(id int64) string {
	return "/orders/" + strconv.FormatInt(id, 10)
}

func (c *RESTClient) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var out models.Order
	if err := c.doJSON(ctx, request{op: "get order", method: http.MethodGet, path: orderPath(id)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// itemsPayload renders line items with plain JSON numbers for qty and price.
func itemsPayload(items []models.LineItem) []map[string]any {
	payload := make([]map[string]any, 0, len(items))
	for _, it := range items {
		payload = append(payload, map[string]any{
			"product_id": it.ProductID,
			"qty":        json.Number(it.Qty.String()),
			"unit_price": json.Number(it.UnitPrice.String()),
		})
	}
	return payload
}

func (c *RESTClient) CreateOrder(ctx context.Context, o models.NewOrder) (*models.Order, error) {
	payload := map[string]any{
		"client_id": o.ClientID,
		"date":      o.Date,
		"time_slot": o.TimeSlot,
		"truck_id":  o.TruckID,
		"address":   o.Address,
		"notes":     o.Notes,
		"items":     itemsPayload(o.Items),
	}
	var out models.Order
	if err := c.doJSON(ctx, request{op: "create order", method: http.MethodPost, path: "/orders", body: payload}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RESTClient) UpdateOrder(ctx context.Context, id int64, p models.OrderPatch) (*models.Order, error) {
	var out models.Order
	if err := c.doJSON(ctx, request{op: "update order", method: http.MethodPatch, path: orderPath(id), body: p.Fields()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RESTClient) UpdateOrderStatus(ctx context.Context, id int64, status models.Status) (*models.Order, error) {
	return c.UpdateOrder(ctx, id, models.OrderPatch{Status: &status})
}

// ReplaceOrderItems is a single PUT. A 409 answer carrying a positive
// "deleted" count means the old items are gone and the new ones were not
// stored; it becomes a PartialReplaceError.
func (c *RESTClient) ReplaceOrderItems(ctx context.Context, id int64, items []models.LineItem) ([]models.LineItem, error) {
	data, err := c.do(ctx, request{op: "replace order items", method: http.MethodPut, path: orderPath(id) + "/items", body: itemsPayload(items)})
	if err != nil {
		return nil, partialReplace(id, err)
	}
	return normalizeItems(data)
}

func (c *RESTClient) ScheduleExportURL(format ExportFormat, day string, truckID *int64) (string, error) {
	if format != ExportCSV && format != ExportPDF {
		return "", fmt.Errorf("schedule export: unknown format %q", format)
	}
	q := truckQuery(url.Values{"day": {day}}, truckID)
	q.Set(apiKeyHeader, c.apiKey)
	return c.url("/api/export/schedule."+string(format), q), nil
}

func (c *RESTClient) QuotePDFURL(orderID int64) (string, error) {
	return c.url(fmt.Sprintf("/quotes/%d/pdf", orderID), nil), nil
}

func (c *RESTClient) SendQuoteEmail(ctx context.Context, orderID int64, msg models.QuoteEmail) error {
	_, err := c.do(ctx, request{
		op:     "send quote email",
		method: http.MethodPost,
		path:   fmt.Sprintf("/api/quotes/%d/send", orderID),
		body:   msg,
		auth:   true,
	})
	return err
}

func (c *RESTClient) FinanceSummary(ctx context.Context, start, end string) (*models.Summary, error) {
	data, err := c.do(ctx, request{op: "finance summary", method: http.MethodGet, path: "/api/finance/summary", query: rangeQuery(start, end), auth: true})
	if err != nil {
		return nil, err
	}
	return normalizeSummary(data)
}

func (c *RESTClient) FinanceOrders(ctx context.Context, start, end string) ([]models.OrderProfit, error) {
	data, err := c.do(ctx, request{op: "finance orders", method: http.MethodGet, path: "/api/finance/orders", query: rangeQuery(start, end), auth: true})
	if err != nil {
		return nil, err
	}
	return normalizeOrderProfits(data)
}

func (c *RESTClient) ListExpenses(ctx context.Context, start, end string) ([]models.Expense, error) {
	data, err := c.do(ctx, request{op: "list expenses", method: http.MethodGet, path: "/api/finance/expenses", query: rangeQuery(start, end), auth: true})
	if err != nil {
		return nil, err
	}
	return normalizeExpenses(data)
}

func (c *RESTClient) CreateExpense(ctx context.Context, e models.NewExpense) (*models.Expense, error) {
	var out models.Expense
	if err := c.doJSON(ctx, request{op: "create expense", method: http.MethodPost, path: "/api/finance/expenses", body: e, auth: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RESTClient) ListInvoices(ctx context.Context, start, end string) ([]models.Invoice, error) {
	data, err := c.do(ctx, request{op: "list invoices", method: http.MethodGet, path: "/api/finance/invoices", query: rangeQuery(start, end), auth: true})
	if err != nil {
		return nil, err
	}
	return normalizeInvoices(data)
}

// UploadInvoice posts a multipart form with the file and its metadata. The
// content type carries the generated boundary.
func (c *RESTClient) UploadInvoice(ctx context.Context, up models.InvoiceUpload) (*models.Invoice, error) {
	const op = "upload invoice"
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"date", up.Date},
		{"vendor", up.Vendor},
		{"amount", strconv.FormatFloat(up.Amount, 'f', -1, 64)},
		{"kind", string(up.Kind)},
	}
	if up.OrderID != nil {
		fields = append(fields, [2]string{"order_id", strconv.FormatInt(*up.OrderID, 10)})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	part, err := w.CreateFormFile("file", up.FileName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if up.File != nil {
		if _, err := io.Copy(part, up.File); err != nil {
			return nil, fmt.Errorf("%s: read file: %w", op, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	data, _, err := c.send(ctx, request{op: op, method: http.MethodPost, path: "/api/finance/invoices/upload", auth: true}, w.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	var out models.Invoice
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", op, ErrBadResponse, err)
		}
	}
	return &out, nil
}

func (c *RESTClient) DeleteInvoice(ctx context.Context, id int64) error {
	_, err := c.do(ctx, request{op: "delete invoice", method: http.MethodDelete, path: fmt.Sprintf("/api/finance/invoices/%d", id), auth: true})
	return err
}

// InvoiceFile downloads an invoice attachment by the path the invoice row
// carries.
func (c *RESTClient) InvoiceFile(ctx context.Context, fileURL string) (*models.InvoiceFile, error) {
	fileURL, err := invoiceFileURL(fileURL)
	if err != nil {
		return nil, err
	}
	data, ct, err := c.send(ctx, request{op: "open invoice file", method: http.MethodGet, path: fileURL, auth: true}, "", nil)
	if err != nil {
		return nil, err
	}
	return &models.InvoiceFile{ContentType: ct, Data: data}, nil
}

// invoiceFileURL accepts only paths below the invoice routes, so the API key
// is never sent anywhere else.
func invoiceFileURL(fileURL string) (string, error) {
	if !strings.HasPrefix(fileURL, "/") {
		fileURL = "/" + fileURL
	}
	clean := path.Clean(fileURL)
	if clean != fileURL || strings.ContainsAny(fileURL, "?#") || !strings.HasPrefix(clean, invoicesPrefix) {
		return "", fmt.Errorf("open invoice file %q: %w", fileURL, ErrNotFound)
	}
	return clean, nil
}

func (c *RESTClient) ExtractInvoice(ctx context.Context, id int64) error {
	_, err := c.do(ctx, request{op: "extract invoice", method: http.MethodPost, path: fmt.Sprintf("/api/finance/invoices/%d/extract", id), auth: true})
	return err
}

func (c *RESTClient) RefreshCosts(ctx context.Context, months int) (*models.CostRefreshResult, error) {
	q := url.Values{"months": {strconv.Itoa(months)}}
	var out models.CostRefreshResult
	if err := c.doJSON(ctx, request{op: "refresh costs", method: http.MethodPost, path: "/api/finance/refresh-costs", query: q, auth: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RESTClient) VendorPriceHistory(ctx context.Context, sku string, months int) ([]models.VendorPricePoint, error) {
	q := url.Values{"sku": {sku}, "months": {strconv.Itoa(months)}}
	data, err := c.do(ctx, request{op: "vendor price history", method: http.MethodGet, path: "/api/finance/vendor-price-history", query: q, auth: true})
	if err != nil {
		return nil, err
	}
	return normalizePriceHistory(data)
}

func (c *RESTClient) Timeseries(ctx context.Context, start, end string) ([]models.TimePoint, error) {
	data, err := c.do(ctx, request{op: "timeseries", method: http.MethodGet, path: "/api/finance/timeseries", query: rangeQuery(start, end), auth: true})
	if err != nil {
		return nil, err
	}
	return normalizeTimeseries(data)
}

func (c *RESTClient) TopProducts(ctx context.Context, start, end string, limit int, sort string) ([]models.TopProduct, error) {
	q := rangeQuery(start, end)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("sort", sort)
	data, err := c.do(ctx, request{op: "top products", method: http.MethodGet, path: "/api/finance/top-products", query: q, auth: true})
	if err != nil {
		return nil, err
	}
	return normalizeTopProducts(data)
}

func (c *RESTClient) ExpenseCategories(ctx context.Context, start, end string) ([]models.ExpenseCategory, error) {
	data, err := c.do(ctx, request{op: "expense categories", method: http.MethodGet, path: "/api/finance/expense-categories", query: rangeQuery(start, end), auth: true})
	if err != nil {
		return nil, err
	}
	return normalizeExpenseCategories(data)
}

func (c *RESTClient) PriceSuggestions(ctx context.Context, targetMargin float64, months int) ([]models.PriceSuggestion, error) {
	q := url.Values{
		"target_margin": {strconv.FormatFloat(targetMargin, 'f', -1, 64)},
		"months":        {strconv.Itoa(months)},
	}
	data, err := c.do(ctx, request{op: "price suggestions", method: http.MethodGet, path: "/api/finance/price-suggestions", query: q, auth: true})
	if err != nil {
		return nil, err
	}
	return normalizePriceSuggestions(data)
}

func (c *RESTClient) UpcomingPayments(ctx context.Context, days int) (*models.UpcomingPayments, error) {
	q := url.Values{"days": {strconv.Itoa(days)}}
	data, err := c.do(ctx, request{op: "upcoming payments", method: http.MethodGet, path: "/api/finance/upcoming-payments", query: q, auth: true})
	if err != nil {
		return nil, err
	}
	return normalizeUpcoming(data)
}

func (c *RESTClient) Insights(ctx context.Context, start, end string) (*models.Insights, error) {
	data, err := c.do(ctx, request{op: "insights", method: http.MethodGet, path: "/api/finance/insights", query: rangeQuery(start, end), auth: true})
	if err != nil {
		return nil, err
	}
	return normalizeInsights(data)
}

func (c *RESTClient) AutoCategorize(ctx context.Context) (*models.CategorizeResult, error) {
	var out models.CategorizeResult
	if err := c.doJSON(ctx, request{op: "auto categorize", method: http.MethodPost, path: "/api/finance/expenses/auto-categorize", auth: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RESTClient) AddVendorRule(ctx context.Context, vendor, category string) error {
	q := url.Values{"vendor": {vendor}, "category": {category}}
	_, err := c.do(ctx, request{op: "add vendor rule", method: http.MethodPost, path: "/api/finance/vendor-rules", query: q, auth: true})
	return err
}

func (c *RESTClient) ScanDuplicates(ctx context.Context) (*models.DuplicateScanResult, error) {
	var out models.DuplicateScanResult
	if err := c.doJSON(ctx, request{op: "scan duplicates", method: http.MethodPost, path: "/api/finance/invoices/scan-duplicates", auth: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RESTClient) Ask(ctx context.Context, question string) (string, error) {
	data, err := c.do(ctx, request{op: "ask", method: http.MethodPost, path: "/api/finance/ask", body: map[string]string{"q": question}, auth: true})
	if err != nil {
		return "", err
	}
	return normalizeAnswer(data)
}

func (c *RESTClient) CompetitorSearch(ctx context.Context, query, sku string) ([]models.CompetitorResult, error) {
	body := map[string]any{"query": query, "sku": nil}
	if sku != "" {
		body["sku"] = sku
	}
	data, err := c.do(ctx, request{op: "competitor search", method: http.MethodPost, path: "/api/finance/competitor-search", body: body, auth: true})
	if err != nil {
		return nil, err
	}
	return normalizeCompetitors(data)
}
