// Package backend is the client of the delivery/finance backend. Backend has
// two interchangeable implementations: RESTClient talks to the HTTP API and
// DBClient queries the relational database directly. Callers cannot tell them
// apart except through ErrUnsupported.
package backend

import (
	"context"

	"gitlab.ozon.dev/qwestard/dispatch/internal/models"
)

type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

type Lookups interface {
	ListTrucks(ctx context.Context) ([]models.Truck, error)
	ListClients(ctx context.Context) ([]models.Client, error)
	CreateClient(ctx context.Context, c models.Client) (*models.Client, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
}

type Orders interface {
	FetchSchedule(ctx context.Context, day string, truckID *int64) ([]models.ScheduleRow, error)
	FetchWeek(ctx context.Context, start string, truckID *int64) ([]models.WeekRow, error)
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	CreateOrder(ctx context.Context, o models.NewOrder) (*models.Order, error)
	UpdateOrder(ctx context.Context, id int64, p models.OrderPatch) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status models.Status) (*models.Order, error)
	// ReplaceOrderItems swaps the whole item set of an order for items.
	ReplaceOrderItems(ctx context.Context, id int64, items []models.LineItem) ([]models.LineItem, error)
}

type Documents interface {
	ScheduleExportURL(format ExportFormat, day string, truckID *int64) (string, error)
	QuotePDFURL(orderID int64) (string, error)
	SendQuoteEmail(ctx context.Context, orderID int64, msg models.QuoteEmail) error
}

type Finance interface {
	FinanceSummary(ctx context.Context, start, end string) (*models.Summary, error)
	FinanceOrders(ctx context.Context, start, end string) ([]models.OrderProfit, error)
	ListExpenses(ctx context.Context, start, end string) ([]models.Expense, error)
	CreateExpense(ctx context.Context, e models.NewExpense) (*models.Expense, error)
	ListInvoices(ctx context.Context, start, end string) ([]models.Invoice, error)
	UploadInvoice(ctx context.Context, up models.InvoiceUpload) (*models.Invoice, error)
	DeleteInvoice(ctx context.Context, id int64) error
	InvoiceFile(ctx context.Context, fileURL string) (*models.InvoiceFile, error)
	ExtractInvoice(ctx context.Context, id int64) error
	RefreshCosts(ctx context.Context, months int) (*models.CostRefreshResult, error)
	VendorPriceHistory(ctx context.Context, sku string, months int) ([]models.VendorPricePoint, error)
	Timeseries(ctx context.Context, start, end string) ([]models.TimePoint, error)
	TopProducts(ctx context.Context, start, end string, limit int, sort string) ([]models.TopProduct, error)
	ExpenseCategories(ctx context.Context, start, end string) ([]models.ExpenseCategory, error)
	PriceSuggestions(ctx context.Context, targetMargin float64, months int) ([]models.PriceSuggestion, error)
	UpcomingPayments(ctx context.Context, days int) (*models.UpcomingPayments, error)
	Insights(ctx context.Context, start, end string) (*models.Insights, error)
	AutoCategorize(ctx context.Context) (*models.CategorizeResult, error)
	AddVendorRule(ctx context.Context, vendor, category string) error
	ScanDuplicates(ctx context.Context) (*models.DuplicateScanResult, error)
	Ask(ctx context.Context, question string) (string, error)
	CompetitorSearch(ctx context.Context, query, sku string) ([]models.CompetitorResult, error)
}

type Backend interface {
	Lookups
	Orders
	Documents
	Finance
}
