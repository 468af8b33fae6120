package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"gitlab.ozon.dev/qwestard/dispatch/internal/audit"
	"gitlab.ozon.dev/qwestard/dispatch/internal/backend"
	"gitlab.ozon.dev/qwestard/dispatch/internal/config"
	"gitlab.ozon.dev/qwestard/dispatch/internal/editor"
	"gitlab.ozon.dev/qwestard/dispatch/internal/events"
	"gitlab.ozon.dev/qwestard/dispatch/internal/finance"
	"gitlab.ozon.dev/qwestard/dispatch/internal/middleware"
	"gitlab.ozon.dev/qwestard/dispatch/internal/schedule"
)

// Prefs stores the client preferences.
type Prefs interface {
	DarkMode(ctx context.Context, fallback bool) (bool, error)
	SetDarkMode(ctx context.Context, on bool) error
}

type Server struct {
	api      backend.Backend
	prefs    Prefs
	notifier events.Notifier
	audit    audit.Logger
	log      logrus.FieldLogger
	dash     *finance.Dashboard
	board    schedule.Options
	now      func() time.Time

	user     string
	password string
	addr     string
}

func NewServer(api backend.Backend, prefs Prefs, notifier events.Notifier, auditLog audit.Logger, log logrus.FieldLogger, cfg config.Config) *Server {
	return &Server{
		api:      api,
		prefs:    prefs,
		notifier: notifier,
		audit:    auditLog,
		log:      log,
		dash:     finance.NewDashboard(api, log, time.Now()),
		board:    schedule.Options{ShowUnassigned: true},
		now:      time.Now,
		user:     cfg.Username,
		password: cfg.Password,
		addr:     cfg.Addr(),
	}
}

// Dashboard is the finance dashboard shared by every client of the server.
func (s *Server) Dashboard() *finance.Dashboard { return s.dash }

var mutating = []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Use(middleware.RequestIDMiddleware)

	s.handleWith(r, http.MethodGet, "/board/day", s.handleDay, mutating, mutating)
	s.handleWith(r, http.MethodGet, "/board/day/export", s.handleDayExport, mutating, mutating)
	s.handleWith(r, http.MethodGet, "/board/week", s.handleWeek, mutating, mutating)
	s.handleWith(r, http.MethodPost, "/board/week/move", s.handleMove, mutating, mutating)

	s.handleWith(r, http.MethodGet, "/lookups/trucks", s.handleTrucks, mutating, mutating)
	s.handleWith(r, http.MethodGet, "/lookups/clients", s.handleClients, mutating, mutating)
	s.handleWith(r, http.MethodPost, "/lookups/clients", s.handleCreateClient, mutating, mutating)
	s.handleWith(r, http.MethodGet, "/lookups/products", s.handleProducts, mutating, mutating)

	s.handleWith(r, http.MethodPost, "/orders", s.handleCreateOrder, mutating, mutating)
	s.handleWith(r, http.MethodGet, "/orders/{id}", s.handleGetOrder, mutating, mutating)
	s.handleWith(r, http.MethodPatch, "/orders/{id}", s.handleUpdateOrder, mutating, mutating)
	s.handleWith(r, http.MethodPost, "/orders/{id}/status", s.handleOrderStatus, mutating, mutating)
	s.handleWith(r, http.MethodPut, "/orders/{id}/items", s.handleReplaceItems, mutating, mutating)
	s.handleWith(r, http.MethodGet, "/orders/{id}/quote", s.handleQuotePDF, mutating, mutating)
	s.handleWith(r, http.MethodPost, "/orders/{id}/quote/email", s.handleQuoteEmail, mutating, mutating)

	s.handleWith(r, http.MethodGet, "/finance/dashboard", s.handleDashboard, mutating, mutating)
	s.handleWith(r, http.MethodPost, "/finance/range", s.handleSetRange, mutating, mutating)
	s.handleWith(r, http.MethodPost, "/finance/pricing", s.handleSetPricing, mutating, mutating)
	s.handleWith(r, http.MethodPost, "/finance/refresh", s.handleRefresh, mutating, mutating)
	s.handleWith(r, http.MethodPost, "/finance/expenses", s.handleCreateExpense, mutating, mutating)
	s.handleWith(r, http.MethodPost, "/finance/invoices", s.handleUploadInvoice, mutating, mutating)
	s.handleWith(r, http.MethodGet, "/finance/invoices/file", s.handleInvoiceFile, mutating, []string{http.MethodGet})
	s.handleWith(r, http.MethodDelete, "/finance/invoices/{id}", s.handleDeleteInvoice, mutating, mutating)
	s.handleWith(r, http.MethodPost, "/finance/invoices/{id}/analyze", s.handleAnalyzeInvoice, mutating, mutating)
	s.handleWith(r, http.MethodPost, "/finance/refresh-costs", s.handleRefreshCosts, mutating, mutating)
	s.handleWith(r, http.MethodGet, "/finance/price-history", s.handlePriceHistory, mutating, mutating)
	s.handleWith(r, http.MethodPost, "/finance/auto-categorize", s.handleAutoCategorize, mutating, mutating)
	s.handleWith(r, http.MethodPost, "/finance/vendor-rules", s.handleVendorRule, mutating, mutating)
	s.handleWith(r, http.MethodPost, "/finance/scan-duplicates", s.handleScanDuplicates, mutating, mutating)
	s.handleWith(r, http.MethodPost, "/finance/ask", s.handleAsk, mutating, mutating)
	s.handleWith(r, http.MethodPost, "/finance/competitors", s.handleCompetitors, mutating, mutating)

	s.handleWith(r, http.MethodGet, "/prefs/dark-mode", s.handleGetDarkMode, mutating, mutating)
	s.handleWith(r, http.MethodPut, "/prefs/dark-mode", s.handleSetDarkMode, mutating, mutating)
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.RegisterRoutes(r)
	return r
}

// Run serves until ctx is done, then shuts the listener down.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.addr).Info("http server listening")
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleWith(r chi.Router, method, pattern string,
	handlerFunc http.HandlerFunc,
	logMethods []string, authMethods []string,
) {
	finalHandler := middleware.LogMiddleware(s.log, s.audit, logMethods...)(
		middleware.BasicAuthMiddleware(s.user, s.password, authMethods...)(
			handlerFunc,
		),
	)
	r.Method(method, pattern, finalHandler)
}

func (s *Server) notify(ctx context.Context, action string, orderID int64, date string) {
	err := s.notifier.Notify(ctx, events.Change{Action: action, OrderID: orderID, Date: date, At: s.now().UTC()})
	if err != nil {
		s.log.WithError(err).WithField("action", action).Warn("board change not announced")
	}
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &editor.ValidationError{Field: "id", Message: "invalid id " + strconv.Quote(chi.URLParam(r, "id"))}
	}
	return id, nil
}

// optionalTruck reads the truck filter; empty or "all" means no filter.
func optionalTruck(r *http.Request) (*int64, error) {
	v := r.URL.Query().Get("truck")
	if v == "" || v == "all" {
		return nil, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return nil, &editor.ValidationError{Field: "truck", Message: "invalid truck " + strconv.Quote(v)}
	}
	return &id, nil
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadJSON
	}
	return nil
}

var errBadJSON = errors.New("bad JSON")

type errorBody struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Action  string `json:"action,omitempty"`
	Partial bool   `json:"partial,omitempty"`
}

// statusOf maps an error to the HTTP status the client sees.
func statusOf(err error) int {
	var (
		verr    *editor.ValidationError
		serr    *backend.StatusError
		terr    *backend.TransportError
		partial *backend.PartialReplaceError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errBadJSON), errors.Is(err, schedule.ErrBadCellKey):
		return http.StatusBadRequest
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, backend.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &partial):
		return http.StatusConflict
	case errors.As(err, &serr), errors.As(err, &terr), errors.Is(err, backend.ErrBadResponse):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorPayload(err error) errorBody {
	body := errorBody{Error: err.Error()}
	var (
		verr    *editor.ValidationError
		aerr    *finance.ActionError
		partial *backend.PartialReplaceError
	)
	if errors.As(err, &verr) {
		body.Field = verr.Field
	}
	if errors.As(err, &aerr) {
		body.Action = aerr.Action
	}
	body.Partial = errors.As(err, &partial)
	return body
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		s.log.WithError(err).WithFields(logrus.Fields{
			"path":       r.URL.Path,
			"request_id": middleware.RequestID(r.Context()),
		}).Warn("request failed")
	}
	writeJSON(w, code, errorPayload(err))
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}
