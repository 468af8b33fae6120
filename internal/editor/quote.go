package editor

import (
	"context"
	"strings"

	"gitlab.ozon.dev/qwestard/dispatch/internal/models"
)

type QuoteEmailForm struct {
	State

	api     API
	OrderID int64 `json:"order_id"`

	Recipients string `json:"recipients"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}

func QuoteEmail(api API, orderID int64) *QuoteEmailForm {
	f := &QuoteEmailForm{api: api, OrderID: orderID}
	f.opened(nil)
	return f
}

// SplitRecipients splits a comma-separated address list, dropping blanks.
func SplitRecipients(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (f *QuoteEmailForm) Validate() error {
	for _, to := range SplitRecipients(f.Recipients) {
		if !strings.Contains(to, "@") {
			return invalid("to", "%q is not an email address", to)
		}
	}
	if len(SplitRecipients(f.Recipients)) == 0 {
		return invalid("to", "add at least one recipient")
	}
	return nil
}

func (f *QuoteEmailForm) Submit(ctx context.Context) error {
	if err := f.begin(); err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return f.fail(err)
	}
	err := f.api.SendQuoteEmail(ctx, f.OrderID, models.QuoteEmail{
		To:      SplitRecipients(f.Recipients),
		Subject: f.Subject,
		Body:    f.Body,
	})
	if err != nil {
		return f.fail(err)
	}
	f.done()
	return nil
}
