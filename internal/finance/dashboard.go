// Package finance is the finance dashboard: panels sharing one date range,
// the actions run from it and the formatting of what it shows.
package finance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"gitlab.ozon.dev/qwestard/dispatch/internal/backend"
	"gitlab.ozon.dev/qwestard/dispatch/internal/models"
	"gitlab.ozon.dev/qwestard/dispatch/internal/schedule"
)

// API is the part of the backend the dashboard uses.
type API interface {
	backend.Lookups
	backend.Finance
}

const (
	DefaultTargetMargin = 0.35
	DefaultMonths       = 6
	DefaultUpcomingDays = 14
	HistoryMonths       = 12
	TopProductsLimit    = 10
	TopProductsSort     = "revenue"
)

type Range struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DefaultRange runs from the first day of now's month to now.
func DefaultRange(now time.Time) Range {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Range{Start: schedule.FormatDay(first), End: schedule.FormatDay(now)}
}

func (r Range) Validate() error {
	start, err := schedule.ParseDay(r.Start)
	if err != nil {
		return err
	}
	end, err := schedule.ParseDay(r.End)
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("range end %s is before start %s", r.End, r.Start)
	}
	return nil
}

type Pricing struct {
	TargetMargin float64 `json:"target_margin"`
	Months       int     `json:"months"`
}

func (p Pricing) Validate() error {
	if p.TargetMargin <= 0 || p.TargetMargin >= 1 {
		return fmt.Errorf("target margin %.2f out of (0, 1)", p.TargetMargin)
	}
	return nil
}

type Overview struct {
	Summary  models.Summary       `json:"summary"`
	Orders   []models.OrderProfit `json:"orders"`
	Expenses []models.Expense     `json:"expenses"`
	Invoices []models.Invoice     `json:"invoices"`
}

type Charts struct {
	Timeseries        []models.TimePoint       `json:"timeseries"`
	TopProducts       []models.TopProduct      `json:"top_products"`
	ExpenseCategories []models.ExpenseCategory `json:"expense_categories"`
}

type Dashboard struct {
	api API
	log logrus.FieldLogger

	mu           sync.RWMutex
	rng          Range
	pricing      Pricing
	upcomingDays int

	// namesMu serializes loads; names is read under mu.
	namesMu     sync.Mutex
	namesLoaded bool
	names       map[string]string

	Overview    *Panel[Overview]
	Insights    *Panel[models.Insights]
	Charts      *Panel[Charts]
	Suggestions *Panel[[]models.PriceSuggestion]
	Upcoming    *Panel[models.UpcomingPayments]
}

func NewDashboard(api API, log logrus.FieldLogger, now time.Time) *Dashboard {
	d := &Dashboard{
		api:          api,
		log:          log,
		rng:          DefaultRange(now),
		pricing:      Pricing{TargetMargin: DefaultTargetMargin, Months: DefaultMonths},
		upcomingDays: DefaultUpcomingDays,
		names:        map[string]string{},
	}
	d.Overview = NewPanel(d.loadOverview)
	d.Insights = NewPanel(d.loadInsights)
	d.Charts = NewPanel(d.loadCharts)
	d.Suggestions = NewPanel(d.loadSuggestions)
	d.Upcoming = NewPanel(d.loadUpcoming)
	return d
}

func (d *Dashboard) Range() Range {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rng
}

func (d *Dashboard) Pricing() Pricing {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.pricing
}

// SetRange changes the shared range and reloads every panel.
func (d *Dashboard) SetRange(ctx context.Context, r Range) error {
	if err := r.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	d.rng = r
	d.mu.Unlock()
	return d.Refresh(ctx)
}

// SetPricing changes the price suggestion inputs and reloads that panel.
func (d *Dashboard) SetPricing(ctx context.Context, p Pricing) error {
	if p.Months <= 0 {
		p.Months = DefaultMonths
	}
	if err := p.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	d.pricing = p
	d.mu.Unlock()
	return ignoreStale(d.Suggestions.Reload(ctx))
}

// Refresh reloads all panels at once. A failing panel does not stop the
// others; their errors are joined.
func (d *Dashboard) Refresh(ctx context.Context) error {
	d.loadNames(ctx)
	return d.reload(ctx,
		d.Overview.Reload,
		d.Insights.Reload,
		d.Charts.Reload,
		d.Suggestions.Reload,
		d.Upcoming.Reload,
	)
}

// StartAutoRefresh reloads every panel on each tick until ctx is cancelled.
// A failed refresh is logged and the loop keeps going.
func (d *Dashboard) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := d.Refresh(ctx); err != nil && ctx.Err() == nil {
				d.log.WithError(err).Warn("dashboard auto refresh")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dashboard) reload(ctx context.Context, loads ...func(context.Context) error) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, load := range loads {
		g.Go(func() error {
			if err := ignoreStale(load(ctx)); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func ignoreStale(err error) error {
	if errors.Is(err, ErrStale) {
		return nil
	}
	return err
}

// loadNames builds the sku to product name map. A failed load is retried on
// the next refresh; until then charts show bare skus.
func (d *Dashboard) loadNames(ctx context.Context) {
	d.namesMu.Lock()
	defer d.namesMu.Unlock()
	if d.namesLoaded {
		return
	}
	products, err := d.api.ListProducts(ctx)
	if err != nil {
		d.log.WithError(err).Warn("finance: product names not loaded")
		return
	}
	names := make(map[string]string, len(products))
	for _, p := range products {
		if p.SKU == "" {
			continue
		}
		names[p.SKU] = p.Name
		if p.Name == "" {
			names[p.SKU] = p.SKU
		}
	}
	d.mu.Lock()
	d.names = names
	d.mu.Unlock()
	d.namesLoaded = true
}

// ProductName returns the display name of sku, or sku itself.
func (d *Dashboard) ProductName(sku string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if name, ok := d.names[sku]; ok {
		return name
	}
	return sku
}

func (d *Dashboard) loadOverview(ctx context.Context) (Overview, error) {
	r := d.Range()
	var ov Overview
	summary, err := d.api.FinanceSummary(ctx, r.Start, r.End)
	if err != nil {
		return ov, err
	}
	if ov.Orders, err = d.api.FinanceOrders(ctx, r.Start, r.End); err != nil {
		return ov, err
	}
	if ov.Expenses, err = d.api.ListExpenses(ctx, r.Start, r.End); err != nil {
		return ov, err
	}
	if ov.Invoices, err = d.api.ListInvoices(ctx, r.Start, r.End); err != nil {
		return ov, err
	}
	ov.Summary = *summary
	return ov, nil
}

// loadInsights never fails: the panel shows why the narrative is missing
// instead.
func (d *Dashboard) loadInsights(ctx context.Context) (models.Insights, error) {
	r := d.Range()
	ins, err := d.api.Insights(ctx, r.Start, r.End)
	if err != nil {
		if ctx.Err() != nil {
			return models.Insights{}, ctx.Err()
		}
		return models.Insights{
			Brief:   fmt.Sprintf("(insights unavailable: %s)", err),
			Metrics: models.InsightMetrics{TopVendors: []models.VendorAmount{}, PriceChanges: []models.PriceChange{}},
		}, nil
	}
	return *ins, nil
}

func (d *Dashboard) loadCharts(ctx context.Context) (Charts, error) {
	r := d.Range()
	var ch Charts
	var err error
	if ch.Timeseries, err = d.api.Timeseries(ctx, r.Start, r.End); err != nil {
		return ch, err
	}
	if ch.TopProducts, err = d.api.TopProducts(ctx, r.Start, r.End, TopProductsLimit, TopProductsSort); err != nil {
		return ch, err
	}
	if ch.ExpenseCategories, err = d.api.ExpenseCategories(ctx, r.Start, r.End); err != nil {
		return ch, err
	}
	for i := range ch.TopProducts {
		if ch.TopProducts[i].Name == "" {
			ch.TopProducts[i].Name = d.ProductName(ch.TopProducts[i].SKU)
		}
	}
	return ch, nil
}

func (d *Dashboard) loadSuggestions(ctx context.Context) ([]models.PriceSuggestion, error) {
	p := d.Pricing()
	return d.api.PriceSuggestions(ctx, p.TargetMargin, p.Months)
}

func (d *Dashboard) loadUpcoming(ctx context.Context) (models.UpcomingPayments, error) {
	d.mu.RLock()
	days := d.upcomingDays
	d.mu.RUnlock()
	up, err := d.api.UpcomingPayments(ctx, days)
	if err != nil {
		return models.UpcomingPayments{}, err
	}
	return *up, nil
}
