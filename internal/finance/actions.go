package finance

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"gitlab.ozon.dev/qwestard/dispatch/internal/editor"
	"gitlab.ozon.dev/qwestard/dispatch/internal/models"
)

// ActionError is the failure of a one-button dashboard action. It is shown
// as an alert rather than inline.
type ActionError struct {
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

func actionErr(action string, err error) error {
	return &ActionError{Action: action, Err: err}
}

// UploadInvoice submits the upload form. Its errors stay inline on the form.
func (d *Dashboard) UploadInvoice(ctx context.Context, form *editor.InvoiceUploadForm) (*models.Invoice, error) {
	inv, err := form.Submit(ctx)
	if err != nil {
		return nil, err
	}
	d.afterChange(ctx, "upload invoice", d.Overview.Reload, d.Insights.Reload, d.Charts.Reload, d.Suggestions.Reload)
	return inv, nil
}

func (d *Dashboard) CreateExpense(ctx context.Context, form *editor.ExpenseForm) (*models.Expense, error) {
	e, err := form.Submit(ctx)
	if err != nil {
		return nil, err
	}
	d.afterChange(ctx, "create expense", d.Overview.Reload)
	return e, nil
}

func (d *Dashboard) DeleteInvoice(ctx context.Context, id int64) error {
	if err := d.api.DeleteInvoice(ctx, id); err != nil {
		return actionErr("delete invoice", err)
	}
	d.afterChange(ctx, "delete invoice", d.Overview.Reload)
	return nil
}

// AnalyzeInvoice runs the extraction of invoice lines on an uploaded file.
func (d *Dashboard) AnalyzeInvoice(ctx context.Context, id int64) (string, error) {
	if err := d.api.ExtractInvoice(ctx, id); err != nil {
		return "", actionErr("analyze invoice", err)
	}
	d.afterChange(ctx, "analyze invoice", d.Overview.Reload, d.Insights.Reload, d.Charts.Reload, d.Suggestions.Reload)
	return "Analysis complete.", nil
}

// RefreshCosts recomputes product costs from the invoices of the last
// months.
func (d *Dashboard) RefreshCosts(ctx context.Context, months int) (string, error) {
	if months <= 0 {
		months = DefaultMonths
	}
	res, err := d.api.RefreshCosts(ctx, months)
	if err != nil {
		return "", actionErr("refresh costs", err)
	}
	d.afterChange(ctx, "refresh costs", d.Overview.Reload, d.Suggestions.Reload)
	if len(res.Updated) == 0 {
		return "No changes.", nil
	}
	return fmt.Sprintf("%d products updated.", len(res.Updated)), nil
}

func (d *Dashboard) PriceHistory(ctx context.Context, sku string) ([]models.VendorPricePoint, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, &editor.ValidationError{Field: "sku", Message: "pick a product"}
	}
	points, err := d.api.VendorPriceHistory(ctx, sku, HistoryMonths)
	if err != nil {
		return nil, actionErr("price history", err)
	}
	return points, nil
}

func (d *Dashboard) AutoCategorize(ctx context.Context) (string, error) {
	res, err := d.api.AutoCategorize(ctx)
	if err != nil {
		return "", actionErr("auto-categorize", err)
	}
	d.afterChange(ctx, "auto-categorize", d.Charts.Reload)
	return fmt.Sprintf("%d expenses updated.", res.Updated), nil
}

// NormalizeVendor folds compatibility forms and collapses whitespace so
// that "ACME  Ltd" and "ＡＣＭＥ Ltd" give the same rule.
func NormalizeVendor(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

func NormalizeCategory(s string) string {
	return cases.Lower(language.Und).String(strings.Join(strings.Fields(norm.NFKC.String(s)), " "))
}

func (d *Dashboard) AddVendorRule(ctx context.Context, vendor, category string) (string, error) {
	vendor, category = NormalizeVendor(vendor), NormalizeCategory(category)
	if vendor == "" || category == "" {
		return "", &editor.ValidationError{Field: "vendor", Message: "fill in vendor and category"}
	}
	if err := d.api.AddVendorRule(ctx, vendor, category); err != nil {
		return "", actionErr("add vendor rule", err)
	}
	return "Rule saved.", nil
}

func (d *Dashboard) ScanDuplicates(ctx context.Context) (string, error) {
	res, err := d.api.ScanDuplicates(ctx)
	if err != nil {
		return "", actionErr("scan duplicates", err)
	}
	d.afterChange(ctx, "scan duplicates", d.Overview.Reload)
	return fmt.Sprintf("%d duplicates marked.", res.DuplicatesMarked), nil
}

// Ask forwards a question in plain language. An empty question is not sent.
func (d *Dashboard) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", nil
	}
	answer, err := d.api.Ask(ctx, question)
	if err != nil {
		return "", actionErr("ask", err)
	}
	if strings.TrimSpace(answer) == "" {
		return Missing, nil
	}
	return answer, nil
}

// CompetitorSearch searches by the free-text query, or by the name of the
// chosen product when the query is empty.
func (d *Dashboard) CompetitorSearch(ctx context.Context, query, sku string) ([]models.CompetitorResult, error) {
	query, sku = strings.TrimSpace(query), strings.TrimSpace(sku)
	if query == "" && sku != "" {
		d.loadNames(ctx)
		query = d.ProductName(sku)
	}
	if query == "" {
		return nil, &editor.ValidationError{Field: "query", Message: "type a search term or pick a product"}
	}
	results, err := d.api.CompetitorSearch(ctx, query, sku)
	if err != nil {
		return nil, actionErr("competitor search", err)
	}
	if results == nil {
		results = []models.CompetitorResult{}
	}
	return results, nil
}

// afterChange reloads the panels a mutation touched. Their own errors show
// up in the panels, not in the action.
func (d *Dashboard) afterChange(ctx context.Context, action string, loads ...func(context.Context) error) {
	if err := d.reload(ctx, loads...); err != nil {
		d.log.WithError(err).WithField("action", action).Warn("finance: reload after action")
	}
}
