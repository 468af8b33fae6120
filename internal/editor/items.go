package editor

import (
	"context"
	"errors"

	"gitlab.ozon.dev/qwestard/dispatch/internal/backend"
	"gitlab.ozon.dev/qwestard/dispatch/internal/models"
)

// ItemsForm replaces the whole item set of an order.
type ItemsForm struct {
	State
	lineEditor

	api     API
	OrderID int64 `json:"order_id"`

	// Partial is set when the old items were removed but the new ones were
	// not stored. The draft is kept so the save can be retried.
	Partial bool `json:"partial"`
}

func EditItems(api API, orderID int64) *ItemsForm {
	return &ItemsForm{api: api, OrderID: orderID}
}

// Open loads the order and the product list. An order without items starts
// with one blank line.
func (f *ItemsForm) Open(ctx context.Context) error {
	order, err := f.api.GetOrder(ctx, f.OrderID)
	if err != nil {
		return f.opened(err)
	}
	products, err := f.api.ListProducts(ctx)
	if err != nil {
		return f.opened(err)
	}
	f.Products = products
	f.Lines = make([]Line, 0, len(order.Items))
	for _, it := range order.Items {
		f.Lines = append(f.Lines, Line{ProductID: it.ProductID, Qty: it.Qty, UnitPrice: it.UnitPrice})
	}
	if len(f.Lines) == 0 {
		f.Lines = []Line{blankLine()}
	}
	return f.opened(nil)
}

func (f *ItemsForm) Validate() error {
	return f.validateLines()
}

func (f *ItemsForm) Submit(ctx context.Context) ([]models.LineItem, error) {
	if err := f.begin(); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, f.fail(err)
	}
	items, err := f.api.ReplaceOrderItems(ctx, f.OrderID, f.items())
	if err != nil {
		var partial *backend.PartialReplaceError
		f.Partial = errors.As(err, &partial)
		return nil, f.fail(err)
	}
	f.Partial = false
	f.done()
	return items, nil
}
