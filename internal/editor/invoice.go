package editor

import (
	"context"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"gitlab.ozon.dev/qwestard/dispatch/internal/backend"
	"gitlab.ozon.dev/qwestard/dispatch/internal/models"
	"gitlab.ozon.dev/qwestard/dispatch/internal/schedule"
)

var (
	allowedTypes = []string{"application/pdf", "image/jpeg", "image/png"}
	allowedExts  = []string{".pdf", ".jpg", ".jpeg", ".png"}
)

const allowedFilesMessage = "allowed file types: PDF / JPG / PNG"

// AllowedFile reports whether an attachment may be uploaded. Either the
// content type or the file name extension has to match.
func AllowedFile(name, contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if slices.Contains(allowedTypes, ct) {
		return true
	}
	return slices.Contains(allowedExts, strings.ToLower(filepath.Ext(name)))
}

type InvoiceUploadForm struct {
	State

	api backend.Finance

	Date    string             `json:"date"`
	Vendor  string             `json:"vendor"`
	Amount  float64            `json:"amount"`
	Kind    models.InvoiceKind `json:"kind"`
	OrderID *int64             `json:"order_id"`

	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	file        io.Reader
}

func UploadInvoice(api backend.Finance, day string) *InvoiceUploadForm {
	f := &InvoiceUploadForm{api: api, Date: day, Kind: models.InvoiceSupplier}
	f.opened(nil)
	return f
}

// SetFile attaches a file. A disallowed file is refused here and clears any
// earlier attachment.
func (f *InvoiceUploadForm) SetFile(name, contentType string, size int64, r io.Reader) error {
	if !AllowedFile(name, contentType) {
		f.ClearFile()
		return f.fail(invalid("file", allowedFilesMessage))
	}
	f.FileName, f.ContentType, f.Size, f.file = name, contentType, size, r
	f.Err = ""
	return nil
}

func (f *InvoiceUploadForm) ClearFile() {
	f.FileName, f.ContentType, f.Size, f.file = "", "", 0, nil
	f.Err = ""
}

func (f *InvoiceUploadForm) Validate() error {
	if f.file == nil {
		return invalid("file", "choose a file (PDF/JPG/PNG)")
	}
	if !AllowedFile(f.FileName, f.ContentType) {
		return invalid("file", allowedFilesMessage)
	}
	if _, err := schedule.ParseDay(f.Date); err != nil {
		return invalid("date", "invalid invoice date %q", f.Date)
	}
	if f.Kind != models.InvoiceSupplier && f.Kind != models.InvoiceCustomer {
		return invalid("kind", "invoice kind must be %s or %s", models.InvoiceSupplier, models.InvoiceCustomer)
	}
	return nil
}

func (f *InvoiceUploadForm) Submit(ctx context.Context) (*models.Invoice, error) {
	if err := f.begin(); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, f.fail(err)
	}
	inv, err := f.api.UploadInvoice(ctx, models.InvoiceUpload{
		FileName:    f.FileName,
		ContentType: f.ContentType,
		Size:        f.Size,
		File:        f.file,
		Date:        f.Date,
		Vendor:      strings.TrimSpace(f.Vendor),
		Amount:      f.Amount,
		Kind:        f.Kind,
		OrderID:     f.OrderID,
	})
	if err != nil {
		return nil, f.fail(err)
	}
	f.done()
	return inv, nil
}
