package finance

import (
	"strconv"

	"gitlab.ozon.dev/qwestard/dispatch/internal/models"
)

type KPI struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// KPIView renders the six summary cards. A summary that has not loaded yet
// shows placeholders.
func KPIView(s *models.Summary) []KPI {
	if s == nil {
		return []KPI{
			{"Revenue", Missing}, {"COGS", Missing}, {"Gross profit", Missing},
			{"Gross margin", Missing}, {"Expenses", Missing}, {"Net profit", Missing},
		}
	}
	return []KPI{
		{"Revenue", Money(s.Revenue)},
		{"COGS", Money(s.COGS)},
		{"Gross profit", Money(s.GrossProfit)},
		{"Gross margin", Percent(s.GrossMargin)},
		{"Expenses", Money(s.Expenses)},
		{"Net profit", Money(s.NetProfit)},
	}
}

type Row struct {
	ID        int64    `json:"id,omitempty"`
	Cells     []string `json:"cells"`
	Link      string   `json:"link,omitempty"`
	Duplicate bool     `json:"duplicate,omitempty"`
}

// Placeholder is the single row of an empty table.
type Placeholder struct {
	Text    string `json:"text"`
	Colspan int    `json:"colspan"`
}

type Table struct {
	Columns     []string     `json:"columns"`
	Rows        []Row        `json:"rows"`
	Placeholder *Placeholder `json:"placeholder,omitempty"`
}

func newTable(columns []string, rows []Row, empty string) Table {
	t := Table{Columns: columns, Rows: rows}
	if len(rows) == 0 {
		t.Rows = []Row{}
		t.Placeholder = &Placeholder{Text: empty, Colspan: len(columns)}
	}
	return t
}

var (
	orderColumns       = []string{"Date", "Order", "Client", "Revenue", "COGS", "Profit", "Margin"}
	invoiceColumns     = []string{"Date", "Vendor", "Amount", "Kind", "File", ""}
	suggestionColumns  = []string{"Product", "Avg cost", "Current avg price", "Suggested", "Delta"}
	upcomingColumns    = []string{"Due", "Vendor", "Amount", "Days left"}
	priceChangeColumns = []string{"SKU", "Previous avg", "Current avg", "Delta", "%", ""}
)

func OrderTable(rows []models.OrderProfit) Table {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, Row{ID: r.OrderID, Cells: []string{
			r.Date, "#" + strconv.FormatInt(r.OrderID, 10), r.Client,
			Money(r.Revenue), Money(r.COGS), Money(r.Profit), Percent(r.Margin),
		}})
	}
	return newTable(orderColumns, out, "No orders in this range.")
}

func InvoiceTable(invoices []models.Invoice) Table {
	out := make([]Row, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, Row{
			ID:        inv.ID,
			Cells:     []string{inv.Date, inv.Vendor, Money(inv.Amount), string(inv.Kind), "Open", ""},
			Link:      inv.FileURL,
			Duplicate: inv.IsDuplicate(),
		})
	}
	return newTable(invoiceColumns, out, "No invoices in this range.")
}

// SuggestionTable names products through name, falling back to the sku.
func SuggestionTable(rows []models.PriceSuggestion, name func(sku string) string) Table {
	out := make([]Row, 0, len(rows))
	for _, s := range rows {
		out = append(out, Row{Cells: []string{
			name(s.SKU), UnitCost(s.AvgCost), UnitCostPtr(s.CurrentPriceAvg),
			UnitCost(s.SuggestedPrice), UnitCostPtr(s.DeltaVsCurrent),
		}})
	}
	return newTable(suggestionColumns, out, Missing)
}

func UpcomingTable(items []models.UpcomingPayment) Table {
	out := make([]Row, 0, len(items))
	for _, p := range items {
		out = append(out, Row{ID: p.ID, Cells: []string{
			p.DueDate, p.Vendor, Money(p.Amount), strconv.Itoa(p.DaysLeft),
		}})
	}
	return newTable(upcomingColumns, out, Missing)
}

func PriceChangeTable(changes []models.PriceChange) Table {
	out := make([]Row, 0, len(changes))
	for _, c := range changes {
		out = append(out, Row{Cells: []string{
			c.SKU, UnitCost(c.PrevAvg), UnitCost(c.CurrAvg), UnitCost(c.Delta), Pct(c.Pct), "History",
		}})
	}
	return newTable(priceChangeColumns, out, "No price changes found.")
}

type VendorLine struct {
	Vendor string `json:"vendor"`
	Amount string `json:"amount"`
}

func vendorLines(in []models.VendorAmount) []VendorLine {
	out := make([]VendorLine, 0, len(in))
	for _, v := range in {
		out = append(out, VendorLine{Vendor: v.Vendor, Amount: Money(v.Amount)})
	}
	return out
}

type InsightsView struct {
	Brief        string       `json:"brief"`
	TopVendors   []VendorLine `json:"top_vendors"`
	PriceChanges Table        `json:"price_changes"`
	Busy         bool         `json:"busy"`
}

type UpcomingView struct {
	Payments Table        `json:"payments"`
	ByVendor []VendorLine `json:"by_vendor"`
	Busy     bool         `json:"busy"`
}

type View struct {
	Range       Range             `json:"range"`
	Pricing     Pricing           `json:"pricing"`
	KPIs        []KPI             `json:"kpis"`
	Orders      Table             `json:"orders"`
	Invoices    Table             `json:"invoices"`
	Insights    InsightsView      `json:"insights"`
	Charts      Charts            `json:"charts"`
	Suggestions Table             `json:"suggestions"`
	Upcoming    UpcomingView      `json:"upcoming"`
	Errors      map[string]string `json:"errors,omitempty"`
}

// View renders the last stored state of every panel.
func (d *Dashboard) View() View {
	ov := d.Overview.Snapshot()
	ins := d.Insights.Snapshot()
	ch := d.Charts.Snapshot()
	sg := d.Suggestions.Snapshot()
	up := d.Upcoming.Snapshot()

	v := View{
		Range:       d.Range(),
		Pricing:     d.Pricing(),
		Orders:      OrderTable(ov.Data.Orders),
		Invoices:    InvoiceTable(ov.Data.Invoices),
		Charts:      ch.Data,
		Suggestions: SuggestionTable(sg.Data, d.ProductName),
		Insights: InsightsView{
			Brief:        ins.Data.Brief,
			TopVendors:   vendorLines(ins.Data.Metrics.TopVendors),
			PriceChanges: PriceChangeTable(ins.Data.Metrics.PriceChanges),
			Busy:         ins.Busy,
		},
		Upcoming: UpcomingView{
			Payments: UpcomingTable(up.Data.Items),
			ByVendor: vendorLines(up.Data.ByVendor),
			Busy:     up.Busy,
		},
		Errors: map[string]string{},
	}
	if v.Insights.Brief == "" {
		v.Insights.Brief = Missing
	}
	if v.Charts.Timeseries == nil {
		v.Charts = Charts{Timeseries: []models.TimePoint{}, TopProducts: []models.TopProduct{}, ExpenseCategories: []models.ExpenseCategory{}}
	}
	if ov.Generation > 0 && ov.Err == "" {
		v.KPIs = KPIView(&ov.Data.Summary)
	} else {
		v.KPIs = KPIView(nil)
	}
	for name, msg := range map[string]string{
		"overview": ov.Err, "insights": ins.Err, "charts": ch.Err,
		"suggestions": sg.Err, "upcoming": up.Err,
	} {
		if msg != "" {
			v.Errors[name] = msg
		}
	}
	return v
}
