package server

import (
	"net/http"
	"time"

	"gitlab.ozon.dev/qwestard/dispatch/internal/backend"
	"gitlab.ozon.dev/qwestard/dispatch/internal/board"
	"gitlab.ozon.dev/qwestard/dispatch/internal/editor"
	"gitlab.ozon.dev/qwestard/dispatch/internal/schedule"
)

// dayParam reads a date query parameter, today when absent.
func (s *Server) dayParam(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return s.now(), nil
	}
	d, err := schedule.ParseDay(v)
	if err != nil {
		return time.Time{}, &editor.ValidationError{Field: name, Message: err.Error()}
	}
	return d, nil
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	day, err := s.dayParam(r, "day")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	truck, err := optionalTruck(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	b := board.NewDailyBoard(s.api, s.log)
	err = b.Load(r.Context(), schedule.FormatDay(day), truck)
	writeJSON(w, statusOf(err), b.View())
}

func (s *Server) handleDayExport(w http.ResponseWriter, r *http.Request) {
	day, err := s.dayParam(r, "day")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	truck, err := optionalTruck(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	format := backend.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = backend.ExportCSV
	}
	if format != backend.ExportCSV && format != backend.ExportPDF {
		s.writeError(w, r, &editor.ValidationError{Field: "format", Message: "format must be csv or pdf"})
		return
	}
	u, err := s.api.ScheduleExportURL(format, schedule.FormatDay(day), truck)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, u, http.StatusFound)
}

func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	ref, err := s.dayParam(r, "ref")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	truck, err := optionalTruck(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	b := board.NewWeeklyBoard(s.api, s.notifier, s.audit, s.log, s.board)
	err = b.Load(r.Context(), ref, truck)
	writeJSON(w, statusOf(err), b.View())
}

type moveRequest struct {
	OrderID int64  `json:"order_id"`
	Cell    string `json:"cell"`
}

type moveResponse struct {
	Error string         `json:"error,omitempty"`
	Week  board.WeekView `json:"week"`
}

// handleMove drops an order on a cell of the week given by ?ref and answers
// with the reloaded week, also when the move failed.
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.OrderID <= 0 {
		s.writeError(w, r, &editor.ValidationError{Field: "order_id", Message: "order_id is required"})
		return
	}
	dest, err := schedule.ParseCellKey(req.Cell)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ref, err := schedule.ParseDay(dest.Date)
	if r.URL.Query().Get("ref") != "" {
		ref, err = s.dayParam(r, "ref")
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	truck, err := optionalTruck(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	b := board.NewWeeklyBoard(s.api, s.notifier, s.audit, s.log, s.board)
	if err := b.Load(r.Context(), ref, truck); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := b.Drop(r.Context(), req.OrderID, req.Cell); err != nil {
		writeJSON(w, statusOf(err), moveResponse{Error: err.Error(), Week: b.View()})
		return
	}
	writeJSON(w, http.StatusOK, moveResponse{Week: b.View()})
}
