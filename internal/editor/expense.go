package editor

import (
	"context"
	"strings"

	"gitlab.ozon.dev/qwestard/dispatch/internal/backend"
	"gitlab.ozon.dev/qwestard/dispatch/internal/models"
	"gitlab.ozon.dev/qwestard/dispatch/internal/schedule"
)

const DefaultExpenseCategory = "general"

type ExpenseForm struct {
	State

	api   backend.Finance
	Draft models.NewExpense `json:"draft"`
}

// NewExpense starts an expense dated day. It needs nothing from the
// backend, so it is ready at once.
func NewExpense(api backend.Finance, day string) *ExpenseForm {
	f := &ExpenseForm{
		api:   api,
		Draft: models.NewExpense{Date: day, Category: DefaultExpenseCategory},
	}
	f.opened(nil)
	return f
}

func (f *ExpenseForm) Validate() error {
	if _, err := schedule.ParseDay(f.Draft.Date); err != nil {
		return invalid("date", "invalid expense date %q", f.Draft.Date)
	}
	if strings.TrimSpace(f.Draft.Category) == "" {
		return invalid("category", "category is required")
	}
	if f.Draft.Amount <= 0 {
		return invalid("amount", "amount must be positive")
	}
	return nil
}

func (f *ExpenseForm) Submit(ctx context.Context) (*models.Expense, error) {
	if err := f.begin(); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, f.fail(err)
	}
	f.Draft.Category = strings.TrimSpace(f.Draft.Category)
	e, err := f.api.CreateExpense(ctx, f.Draft)
	if err != nil {
		return nil, f.fail(err)
	}
	f.done()
	return e, nil
}
