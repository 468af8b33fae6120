package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"gitlab.ozon.dev/qwestard/dispatch/internal/editor"
	"gitlab.ozon.dev/qwestard/dispatch/internal/finance"
	"gitlab.ozon.dev/qwestard/dispatch/internal/models"
	"gitlab.ozon.dev/qwestard/dispatch/internal/schedule"
)

const maxUploadSize = 32 << 20

type messageBody struct {
	Message string `json:"message"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dash.View())
}

// handleSetRange answers with the dashboard even when some panels failed;
// their errors are part of the view.
func (s *Server) handleSetRange(w http.ResponseWriter, r *http.Request) {
	var rng finance.Range
	if err := decode(r, &rng); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := rng.Validate(); err != nil {
		s.writeError(w, r, &editor.ValidationError{Field: "range", Message: err.Error()})
		return
	}
	if err := s.dash.SetRange(r.Context(), rng); err != nil {
		s.log.WithError(err).Warn("finance: panels failed after range change")
	}
	writeJSON(w, http.StatusOK, s.dash.View())
}

func (s *Server) handleSetPricing(w http.ResponseWriter, r *http.Request) {
	var p finance.Pricing
	if err := decode(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := p.Validate(); err != nil {
		s.writeError(w, r, &editor.ValidationError{Field: "target_margin", Message: err.Error()})
		return
	}
	if err := s.dash.SetPricing(r.Context(), p); err != nil {
		s.log.WithError(err).Warn("finance: price suggestions failed")
	}
	writeJSON(w, http.StatusOK, s.dash.View())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.dash.Refresh(r.Context()); err != nil {
		s.log.WithError(err).Warn("finance: refresh")
	}
	writeJSON(w, http.StatusOK, s.dash.View())
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var in models.NewExpense
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	f := editor.NewExpense(s.api, schedule.FormatDay(s.now()))
	if in.Date != "" {
		f.Draft.Date = in.Date
	}
	if in.Category != "" {
		f.Draft.Category = in.Category
	}
	f.Draft.Vendor, f.Draft.Description, f.Draft.Amount = in.Vendor, in.Description, in.Amount
	e, err := s.dash.CreateExpense(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleUploadInvoice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		s.writeError(w, r, &editor.ValidationError{Field: "file", Message: "expected a multipart form"})
		return
	}
	f := editor.UploadInvoice(s.api, schedule.FormatDay(s.now()))
	if v := r.FormValue("date"); v != "" {
		f.Date = v
	}
	f.Vendor = r.FormValue("vendor")
	if v := strings.TrimSpace(r.FormValue("amount")); v != "" {
		amount, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.writeError(w, r, &editor.ValidationError{Field: "amount", Message: "invalid amount"})
			return
		}
		f.Amount = amount
	}
	if v := r.FormValue("kind"); v != "" {
		f.Kind = models.InvoiceKind(v)
	}
	if v := strings.TrimSpace(r.FormValue("order_id")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, r, &editor.ValidationError{Field: "order_id", Message: "invalid order_id"})
			return
		}
		f.OrderID = &id
	}

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		s.writeError(w, r, &editor.ValidationError{Field: "file", Message: err.Error()})
		return
	default:
		defer file.Close()
		if err := f.SetFile(header.Filename, header.Header.Get("Content-Type"), header.Size, file); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	inv, err := s.dash.UploadInvoice(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (s *Server) handleInvoiceFile(w http.ResponseWriter, r *http.Request) {
	fileURL := r.URL.Query().Get("url")
	if fileURL == "" {
		s.writeError(w, r, &editor.ValidationError{Field: "url", Message: "url is required"})
		return
	}
	file, err := s.api.InvoiceFile(r.Context(), fileURL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", file.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}

func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.dash.DeleteInvoice(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAnalyzeInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	msg, err := s.dash.AnalyzeInvoice(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: msg})
}

func (s *Server) handleRefreshCosts(w http.ResponseWriter, r *http.Request) {
	months, _ := strconv.Atoi(r.URL.Query().Get("months"))
	msg, err := s.dash.RefreshCosts(r.Context(), months)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: msg})
}

func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	sku := r.URL.Query().Get("sku")
	series, err := s.dash.PriceHistory(r.Context(), sku)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sku": sku, "series": series})
}

func (s *Server) handleAutoCategorize(w http.ResponseWriter, r *http.Request) {
	msg, err := s.dash.AutoCategorize(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: msg})
}

func (s *Server) handleVendorRule(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Vendor   string `json:"vendor"`
		Category string `json:"category"`
	}
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	msg, err := s.dash.AddVendorRule(r.Context(), in.Vendor, in.Category)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: msg})
}

func (s *Server) handleScanDuplicates(w http.ResponseWriter, r *http.Request) {
	msg, err := s.dash.ScanDuplicates(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: msg})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Q string `json:"q"`
	}
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	answer, err := s.dash.Ask(r.Context(), in.Q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) handleCompetitors(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Query string `json:"query"`
		SKU   string `json:"sku"`
	}
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	results, err := s.dash.CompetitorSearch(r.Context(), in.Query, in.SKU)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
