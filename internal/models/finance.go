package models

import "io"

type Summary struct {
	Revenue     float64 `json:"revenue"`
	COGS        float64 `json:"cogs"`
	GrossProfit float64 `json:"gross_profit"`
	GrossMargin float64 `json:"gross_margin"`
	Expenses    float64 `json:"expenses"`
	NetProfit   float64 `json:"net_profit"`
}

// OrderProfit is one row of the per-order profitability table.
type OrderProfit struct {
	OrderID int64   `json:"order_id" db:"order_id"`
	Date    string  `json:"date" db:"date"`
	Client  string  `json:"client" db:"client"`
	Status  string  `json:"status" db:"status"`
	Revenue float64 `json:"revenue" db:"revenue"`
	COGS    float64 `json:"cogs" db:"cogs"`
	Profit  float64 `json:"profit" db:"profit"`
	Margin  float64 `json:"margin" db:"margin"`
}

type Expense struct {
	ID          int64   `json:"id" db:"id"`
	Date        string  `json:"date" db:"date"`
	Category    string  `json:"category" db:"category"`
	Vendor      string  `json:"vendor" db:"vendor"`
	Description string  `json:"description" db:"description"`
	Amount      float64 `json:"amount" db:"amount"`
}

type NewExpense struct {
	Date        string  `json:"date"`
	Category    string  `json:"category"`
	Vendor      string  `json:"vendor"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

type InvoiceKind string

const (
	InvoiceSupplier InvoiceKind = "supplier"
	InvoiceCustomer InvoiceKind = "customer"
)

type Invoice struct {
	ID            int64       `json:"id" db:"id"`
	Date          string      `json:"date" db:"date"`
	Vendor        string      `json:"vendor" db:"vendor"`
	Amount        float64     `json:"amount" db:"amount"`
	Kind          InvoiceKind `json:"kind" db:"kind"`
	FileURL       string      `json:"file_url" db:"file_url"`
	OrderID       *int64      `json:"order_id" db:"order_id"`
	DueDate       *string     `json:"due_date" db:"due_date"`
	DuplicateOfID *int64      `json:"duplicate_of_id" db:"duplicate_of_id"`
}

func (i Invoice) IsDuplicate() bool {
	return i.DuplicateOfID != nil
}

// InvoiceUpload is the multipart payload of an invoice upload.
type InvoiceUpload struct {
	FileName    string
	ContentType string
	Size        int64
	File        io.Reader
	Date        string
	Vendor      string
	Amount      float64
	Kind        InvoiceKind
	OrderID     *int64
}

type TimePoint struct {
	Date     string  `json:"date" db:"date"`
	Revenue  float64 `json:"revenue" db:"revenue"`
	Expenses float64 `json:"expenses" db:"expenses"`
	Profit   float64 `json:"profit" db:"profit"`
}

type TopProduct struct {
	SKU     string  `json:"sku" db:"sku"`
	Name    string  `json:"name,omitempty" db:"name"`
	Qty     float64 `json:"qty" db:"qty"`
	Revenue float64 `json:"revenue" db:"revenue"`
}

type ExpenseCategory struct {
	Category string  `json:"category" db:"category"`
	Amount   float64 `json:"amount" db:"amount"`
}

type PriceSuggestion struct {
	SKU             string   `json:"sku" db:"sku"`
	AvgCost         float64  `json:"avg_cost" db:"avg_cost"`
	CurrentPriceAvg *float64 `json:"current_price_avg" db:"current_price_avg"`
	SuggestedPrice  float64  `json:"suggested_price" db:"suggested_price"`
	DeltaVsCurrent  *float64 `json:"delta_vs_current" db:"delta_vs_current"`
}

type UpcomingPayment struct {
	ID       int64   `json:"id" db:"id"`
	DueDate  string  `json:"due_date" db:"due_date"`
	Vendor   string  `json:"vendor" db:"vendor"`
	Amount   float64 `json:"amount" db:"amount"`
	DaysLeft int     `json:"days_left" db:"days_left"`
}

type VendorAmount struct {
	Vendor string  `json:"vendor" db:"vendor"`
	Amount float64 `json:"amount" db:"amount"`
}

type UpcomingPayments struct {
	Items    []UpcomingPayment `json:"items"`
	ByVendor []VendorAmount    `json:"by_vendor"`
}

type PriceChange struct {
	SKU     string  `json:"sku"`
	PrevAvg float64 `json:"prev_avg"`
	CurrAvg float64 `json:"curr_avg"`
	Delta   float64 `json:"delta"`
	Pct     float64 `json:"pct"`
}

type InsightMetrics struct {
	TopVendors   []VendorAmount `json:"top_vendors"`
	PriceChanges []PriceChange  `json:"price_changes"`
}

type Insights struct {
	Brief   string         `json:"brief"`
	Metrics InsightMetrics `json:"metrics"`
}

type VendorPricePoint struct {
	Month    string  `json:"ym" db:"ym"`
	Vendor   string  `json:"vendor" db:"vendor"`
	AvgPrice float64 `json:"avg_price" db:"avg_price"`
}

type CostRefreshResult struct {
	Updated []string `json:"updated"`
}

type CategorizeResult struct {
	Updated int `json:"updated"`
}

type DuplicateScanResult struct {
	DuplicatesMarked int `json:"duplicates_marked"`
}

type CompetitorResult struct {
	Title   string   `json:"title"`
	URL     string   `json:"url"`
	Vendor  string   `json:"vendor"`
	Price   *float64 `json:"price"`
	Snippet string   `json:"snippet"`
}

// InvoiceFile is a downloaded invoice attachment.
type InvoiceFile struct {
	ContentType string
	Data        []byte
}
