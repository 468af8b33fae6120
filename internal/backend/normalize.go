package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"gitlab.ozon.dev/qwestard/dispatch/internal/models"
)

// Finance endpoints answer either with a bare array or with the array
// wrapped in an envelope. Every endpoint has its own normalizer below that
// accepts both and returns one fixed shape, so callers never guess at fields.

var listKeys = []string{"items", "data", "results"}

// number accepts a JSON number, a numeric string or null.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %q", s)
	}
	*n = number(f)
	return nil
}

// optNumber is a number that remembers whether it was present.
type optNumber struct {
	v   float64
	set bool
}

func (n *optNumber) UnmarshalJSON(b []byte) error {
	var v number
	if err := v.UnmarshalJSON(b); err != nil {
		return err
	}
	s := strings.TrimSpace(string(b))
	n.set = s != "null" && s != `""`
	n.v = float64(v)
	return nil
}

func (n optNumber) ptr() *float64 {
	if !n.set {
		return nil
	}
	v := n.v
	return &v
}

func isNull(data []byte) bool {
	t := bytes.TrimSpace(data)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// unwrapList returns the raw array inside data, looking under keys when data
// is an object.
func unwrapList(op string, data []byte, keys ...string) (json.RawMessage, error) {
	t := bytes.TrimSpace(data)
	if isNull(t) {
		return json.RawMessage("[]"), nil
	}
	switch t[0] {
	case '[':
		return t, nil
	case '{':
		var env map[string]json.RawMessage
		if err := json.Unmarshal(t, &env); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", op, ErrBadResponse, err)
		}
		for _, k := range keys {
			if raw, ok := env[k]; ok {
				if isNull(raw) {
					return json.RawMessage("[]"), nil
				}
				return raw, nil
			}
		}
		return nil, fmt.Errorf("%s: %w: object without %s", op, ErrBadResponse, strings.Join(keys, "/"))
	default:
		return nil, fmt.Errorf("%s: %w: unexpected %q", op, ErrBadResponse, t[0])
	}
}

func decodeList[W any, T any](op string, data []byte, keys []string, conv func(W) (T, error)) ([]T, error) {
	raw, err := unwrapList(op, data, keys...)
	if err != nil {
		return nil, err
	}
	var wire []W
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrBadResponse, err)
	}
	out := make([]T, 0, len(wire))
	for i, w := range wire {
		v, err := conv(w)
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: %w: %v", op, i, ErrBadResponse, err)
		}
		out = append(out, v)
	}
	return out, nil
}

var errMissingField = errors.New("missing field")

func required(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w %s", errMissingField, name)
	}
	return nil
}

func normalizeSummary(data []byte) (*models.Summary, error) {
	if isNull(data) {
		return &models.Summary{}, nil
	}
	var w struct {
		Revenue     number `json:"revenue"`
		COGS        number `json:"cogs"`
		GrossProfit number `json:"gross_profit"`
		GrossMargin number `json:"gross_margin"`
		Expenses    number `json:"expenses"`
		NetProfit   number `json:"net_profit"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("finance summary: %w: %v", ErrBadResponse, err)
	}
	return &models.Summary{
		Revenue:     float64(w.Revenue),
		COGS:        float64(w.COGS),
		GrossProfit: float64(w.GrossProfit),
		GrossMargin: float64(w.GrossMargin),
		Expenses:    float64(w.Expenses),
		NetProfit:   float64(w.NetProfit),
	}, nil
}

type orderProfitWire struct {
	OrderID int64  `json:"order_id"`
	ID      int64  `json:"id"`
	Date    string `json:"date"`
	Client  string `json:"client"`
	Status  string `json:"status"`
	Revenue number `json:"revenue"`
	COGS    number `json:"cogs"`
	Profit  number `json:"profit"`
	Margin  number `json:"margin"`
}

func normalizeOrderProfits(data []byte) ([]models.OrderProfit, error) {
	return decodeList("finance orders", data, listKeys, func(w orderProfitWire) (models.OrderProfit, error) {
		id := w.OrderID
		if id == 0 {
			id = w.ID
		}
		if id == 0 {
			return models.OrderProfit{}, fmt.Errorf("%w order_id", errMissingField)
		}
		return models.OrderProfit{
			OrderID: id,
			Date:    w.Date,
			Client:  w.Client,
			Status:  w.Status,
			Revenue: float64(w.Revenue),
			COGS:    float64(w.COGS),
			Profit:  float64(w.Profit),
			Margin:  float64(w.Margin),
		}, nil
	})
}

type expenseWire struct {
	ID          int64  `json:"id"`
	Date        string `json:"date"`
	Category    string `json:"category"`
	Vendor      string `json:"vendor"`
	Description string `json:"description"`
	Amount      number `json:"amount"`
}

func normalizeExpenses(data []byte) ([]models.Expense, error) {
	return decodeList("list expenses", data, listKeys, func(w expenseWire) (models.Expense, error) {
		return models.Expense{
			ID:          w.ID,
			Date:        w.Date,
			Category:    w.Category,
			Vendor:      w.Vendor,
			Description: w.Description,
			Amount:      float64(w.Amount),
		}, nil
	})
}

type invoiceWire struct {
	ID            int64   `json:"id"`
	Date          string  `json:"date"`
	Vendor        string  `json:"vendor"`
	Amount        number  `json:"amount"`
	Kind          string  `json:"kind"`
	FileURL       string  `json:"file_url"`
	OrderID       *int64  `json:"order_id"`
	DueDate       *string `json:"due_date"`
	DuplicateOfID *int64  `json:"duplicate_of_id"`
}

func normalizeInvoices(data []byte) ([]models.Invoice, error) {
	return decodeList("list invoices", data, listKeys, func(w invoiceWire) (models.Invoice, error) {
		if w.ID == 0 {
			return models.Invoice{}, fmt.Errorf("%w id", errMissingField)
		}
		kind := models.InvoiceKind(w.Kind)
		if kind == "" {
			kind = models.InvoiceSupplier
		}
		return models.Invoice{
			ID:            w.ID,
			Date:          w.Date,
			Vendor:        w.Vendor,
			Amount:        float64(w.Amount),
			Kind:          kind,
			FileURL:       w.FileURL,
			OrderID:       w.OrderID,
			DueDate:       w.DueDate,
			DuplicateOfID: w.DuplicateOfID,
		}, nil
	})
}

type timePointWire struct {
	Date     string `json:"date"`
	Revenue  number `json:"revenue"`
	Expenses number `json:"expenses"`
	Profit   number `json:"profit"`
}

func normalizeTimeseries(data []byte) ([]models.TimePoint, error) {
	return decodeList("timeseries", data, []string{"items", "data"}, func(w timePointWire) (models.TimePoint, error) {
		if err := required("date", w.Date); err != nil {
			return models.TimePoint{}, err
		}
		return models.TimePoint{
			Date:     w.Date,
			Revenue:  float64(w.Revenue),
			Expenses: float64(w.Expenses),
			Profit:   float64(w.Profit),
		}, nil
	})
}

type topProductWire struct {
	SKU     string `json:"sku"`
	Name    string `json:"name"`
	Qty     number `json:"qty"`
	Revenue number `json:"revenue"`
}

func normalizeTopProducts(data []byte) ([]models.TopProduct, error) {
	return decodeList("top products", data, listKeys, func(w topProductWire) (models.TopProduct, error) {
		if err := required("sku", w.SKU); err != nil {
			return models.TopProduct{}, err
		}
		return models.TopProduct{SKU: w.SKU, Name: w.Name, Qty: float64(w.Qty), Revenue: float64(w.Revenue)}, nil
	})
}

type expenseCategoryWire struct {
	Category string `json:"category"`
	Amount   number `json:"amount"`
}

func normalizeExpenseCategories(data []byte) ([]models.ExpenseCategory, error) {
	return decodeList("expense categories", data, []string{"items", "data"}, func(w expenseCategoryWire) (models.ExpenseCategory, error) {
		cat := w.Category
		if cat == "" {
			cat = "other"
		}
		return models.ExpenseCategory{Category: cat, Amount: float64(w.Amount)}, nil
	})
}

type suggestionWire struct {
	SKU             string    `json:"sku"`
	AvgCost         number    `json:"avg_cost"`
	CurrentPriceAvg optNumber `json:"current_price_avg"`
	SuggestedPrice  number    `json:"suggested_price"`
	DeltaVsCurrent  optNumber `json:"delta_vs_current"`
}

func normalizePriceSuggestions(data []byte) ([]models.PriceSuggestion, error) {
	return decodeList("price suggestions", data, listKeys, func(w suggestionWire) (models.PriceSuggestion, error) {
		if err := required("sku", w.SKU); err != nil {
			return models.PriceSuggestion{}, err
		}
		return models.PriceSuggestion{
			SKU:             w.SKU,
			AvgCost:         float64(w.AvgCost),
			CurrentPriceAvg: w.CurrentPriceAvg.ptr(),
			SuggestedPrice:  float64(w.SuggestedPrice),
			DeltaVsCurrent:  w.DeltaVsCurrent.ptr(),
		}, nil
	})
}

type vendorAmountWire struct {
	Vendor string `json:"vendor"`
	Amount number `json:"amount"`
}

func (w vendorAmountWire) model() models.VendorAmount {
	return models.VendorAmount{Vendor: w.Vendor, Amount: float64(w.Amount)}
}

func normalizeUpcoming(data []byte) (*models.UpcomingPayments, error) {
	out := &models.UpcomingPayments{Items: []models.UpcomingPayment{}, ByVendor: []models.VendorAmount{}}
	if isNull(data) {
		return out, nil
	}
	var w struct {
		Items []struct {
			ID       int64  `json:"id"`
			DueDate  string `json:"due_date"`
			Vendor   string `json:"vendor"`
			Amount   number `json:"amount"`
			DaysLeft number `json:"days_left"`
		} `json:"items"`
		ByVendor []vendorAmountWire `json:"by_vendor"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("upcoming payments: %w: %v", ErrBadResponse, err)
	}
	for _, it := range w.Items {
		out.Items = append(out.Items, models.UpcomingPayment{
			ID:       it.ID,
			DueDate:  it.DueDate,
			Vendor:   it.Vendor,
			Amount:   float64(it.Amount),
			DaysLeft: int(it.DaysLeft),
		})
	}
	for _, v := range w.ByVendor {
		out.ByVendor = append(out.ByVendor, v.model())
	}
	return out, nil
}

func normalizeInsights(data []byte) (*models.Insights, error) {
	out := &models.Insights{Metrics: models.InsightMetrics{
		TopVendors:   []models.VendorAmount{},
		PriceChanges: []models.PriceChange{},
	}}
	if isNull(data) {
		return out, nil
	}
	var w struct {
		Brief   string `json:"brief"`
		Metrics struct {
			TopVendors    []vendorAmountWire `json:"top_vendors"`
			SpendByVendor []vendorAmountWire `json:"spend_by_vendor"`
			PriceChanges  []struct {
				SKU     string `json:"sku"`
				PrevAvg number `json:"prev_avg"`
				CurrAvg number `json:"curr_avg"`
				Delta   number `json:"delta"`
				Pct     number `json:"pct"`
			} `json:"price_changes"`
		} `json:"metrics"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("insights: %w: %v", ErrBadResponse, err)
	}
	out.Brief = w.Brief
	vendors := w.Metrics.TopVendors
	if len(vendors) == 0 {
		vendors = w.Metrics.SpendByVendor
	}
	for _, v := range vendors {
		out.Metrics.TopVendors = append(out.Metrics.TopVendors, v.model())
	}
	for _, pc := range w.Metrics.PriceChanges {
		if pc.SKU == "" {
			continue
		}
		out.Metrics.PriceChanges = append(out.Metrics.PriceChanges, models.PriceChange{
			SKU:     pc.SKU,
			PrevAvg: float64(pc.PrevAvg),
			CurrAvg: float64(pc.CurrAvg),
			Delta:   float64(pc.Delta),
			Pct:     float64(pc.Pct),
		})
	}
	return out, nil
}

type pricePointWire struct {
	Month    string `json:"ym"`
	Vendor   string `json:"vendor"`
	AvgPrice number `json:"avg_price"`
}

func normalizePriceHistory(data []byte) ([]models.VendorPricePoint, error) {
	keys := append([]string{"series"}, listKeys...)
	return decodeList("vendor price history", data, keys, func(w pricePointWire) (models.VendorPricePoint, error) {
		if err := required("ym", w.Month); err != nil {
			return models.VendorPricePoint{}, err
		}
		return models.VendorPricePoint{Month: w.Month, Vendor: w.Vendor, AvgPrice: float64(w.AvgPrice)}, nil
	})
}

type competitorWire struct {
	Title   string    `json:"title"`
	URL     string    `json:"url"`
	Vendor  string    `json:"vendor"`
	Price   optNumber `json:"price"`
	Snippet string    `json:"snippet"`
}

func normalizeCompetitors(data []byte) ([]models.CompetitorResult, error) {
	return decodeList("competitor search", data, []string{"results", "items", "data"}, func(w competitorWire) (models.CompetitorResult, error) {
		return models.CompetitorResult{
			Title:   w.Title,
			URL:     w.URL,
			Vendor:  w.Vendor,
			Price:   w.Price.ptr(),
			Snippet: w.Snippet,
		}, nil
	})
}

// normalizeAnswer returns the answer text. A reply carrying only an error
// field is turned into an error.
func normalizeAnswer(data []byte) (string, error) {
	if isNull(data) {
		return "", nil
	}
	var w struct {
		Answer string `json:"answer"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return "", fmt.Errorf("ask: %w: %v", ErrBadResponse, err)
	}
	if w.Answer == "" && w.Error != "" {
		return "", fmt.Errorf("ask: %s", w.Error)
	}
	return w.Answer, nil
}

func normalizeItems(data []byte) ([]models.LineItem, error) {
	return decodeList("replace order items", data, []string{"items", "data"}, func(li models.LineItem) (models.LineItem, error) {
		return li, nil
	})
}

type partialReplaceWire struct {
	Deleted int64  `json:"deleted"`
	Error   string `json:"error"`
}

// partialReplace turns the backend's delete-succeeded/insert-failed answer
// into a PartialReplaceError. Any other error is returned unchanged.
func partialReplace(orderID int64, err error) error {
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusConflict {
		return err
	}
	var w partialReplaceWire
	if json.Unmarshal([]byte(se.Body), &w) != nil || w.Deleted <= 0 {
		return err
	}
	cause := &StatusError{Op: se.Op, Status: se.Status, Body: w.Error}
	return &PartialReplaceError{OrderID: orderID, Deleted: w.Deleted, Cause: cause}
}
