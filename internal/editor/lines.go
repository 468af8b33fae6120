package editor

import (
	"github.com/shopspring/decimal"

	"gitlab.ozon.dev/qwestard/dispatch/internal/models"
)

// Line is one row of the line-item editor. ProductID 0 means no product has
// been picked yet.
type Line struct {
	ProductID int64           `json:"product_id"`
	Qty       decimal.Decimal `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func blankLine() Line {
	return Line{Qty: decimal.NewFromInt(1), UnitPrice: decimal.Zero}
}

type lineEditor struct {
	Products []models.Product `json:"products"`
	Lines    []Line           `json:"lines"`
}

func (e *lineEditor) AddLine() {
	e.Lines = append(e.Lines, blankLine())
}

func (e *lineEditor) RemoveLine(i int) error {
	if err := e.check(i); err != nil {
		return err
	}
	e.Lines = append(e.Lines[:i:i], e.Lines[i+1:]...)
	return nil
}

// SelectProduct puts a product on line i and copies its current price into
// the line. Later price changes of the product do not touch the line.
func (e *lineEditor) SelectProduct(i int, productID int64) error {
	if err := e.check(i); err != nil {
		return err
	}
	for _, p := range e.Products {
		if p.ID == productID {
			e.Lines[i].ProductID = p.ID
			e.Lines[i].UnitPrice = p.Price
			return nil
		}
	}
	return invalid("items", "unknown product %d", productID)
}

func (e *lineEditor) SetQty(i int, qty decimal.Decimal) error {
	if err := e.check(i); err != nil {
		return err
	}
	if !qty.IsPositive() {
		return invalid("items", "quantity must be positive")
	}
	e.Lines[i].Qty = qty
	return nil
}

func (e *lineEditor) SetUnitPrice(i int, price decimal.Decimal) error {
	if err := e.check(i); err != nil {
		return err
	}
	if price.IsNegative() {
		return invalid("items", "unit price cannot be negative")
	}
	e.Lines[i].UnitPrice = price
	return nil
}

func (e *lineEditor) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.Qty.Mul(l.UnitPrice))
	}
	return total
}

func (e *lineEditor) check(i int) error {
	if i < 0 || i >= len(e.Lines) {
		return invalid("items", "line %d does not exist", i+1)
	}
	return nil
}

func (e *lineEditor) validateLines() error {
	for _, l := range e.Lines {
		if l.ProductID == 0 {
			return invalid("items", "pick a product on every line")
		}
	}
	return nil
}

func (e *lineEditor) items() []models.LineItem {
	out := make([]models.LineItem, 0, len(e.Lines))
	for _, l := range e.Lines {
		out = append(out, models.LineItem{ProductID: l.ProductID, Qty: l.Qty, UnitPrice: l.UnitPrice})
	}
	return out
}
