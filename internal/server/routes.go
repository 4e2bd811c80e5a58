package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/digitaldrywood/timesheet/internal/export"
	"github.com/digitaldrywood/timesheet/internal/metrics"
	"github.com/digitaldrywood/timesheet/internal/timesheet"
	"github.com/digitaldrywood/timesheet/internal/tracker"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler wires every route.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if s.metricsEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/record", s.handleRecord)
		r.Put("/days/{day}", s.handleCommitDay)
		r.Post("/save", s.handleSave)
		r.Post("/reload", s.handleReload)
		r.Post("/period", s.handlePeriod)
		r.Post("/signout", s.handleSignOut)
		r.Get("/export", s.handleExport)
		r.Get("/insight", s.handleInsight)
	})

	return r
}

type dayRequest struct {
	Hours string `json:"hours"`
}

// periodRequest switches period. A zero month or year keeps the current one.
type periodRequest struct {
	Month int `json:"month"`
	Year  int `json:"year"`
	// Pin writes only the period cells instead of reconciling the whole record.
	Pin bool `json:"pin"`
}

type insightResponse struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Kind     string `json:"kind"`
	Guidance string `json:"guidance,omitempty"`
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.Snapshot())
}

func (s *Server) handleCommitDay(w http.ResponseWriter, r *http.Request) {
	day, err := strconv.Atoi(chi.URLParam(r, "day"))
	if err != nil {
		s.writeError(w, r, timesheet.ErrDayOutOfRange)
		return
	}

	var req dayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.core.CommitDay(r.Context(), day-1, req.Hours); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.core.Snapshot())
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := s.core.Save(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.core.Snapshot())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.core.Reload(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.core.Snapshot())
}

func (s *Server) handlePeriod(w http.ResponseWriter, r *http.Request) {
	var req periodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cur := s.core.Snapshot().Record.Period
	p := timesheet.Period{Month: req.Month, Year: req.Year}
	if p.Month == 0 {
		p.Month = cur.Month
	}
	if p.Year == 0 {
		p.Year = cur.Year
	}

	var err error
	switch {
	case req.Pin:
		err = s.core.PinPeriod(r.Context(), p)
	case req.Year == 0 && req.Month != 0:
		err = s.core.ChangeMonth(r.Context(), req.Month)
	case req.Month == 0 && req.Year != 0:
		err = s.core.ChangeYear(r.Context(), req.Year)
	default:
		err = s.core.ChangePeriod(r.Context(), p)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.core.Snapshot())
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.core.SignOut(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.core.Snapshot())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	rec := s.core.Snapshot().Record

	f, err := export.Workbook(rec, s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(rec.Period)+`"`)
	if err := f.Write(w); err != nil {
		s.logger.Printf("RequestID=%s: failed to stream export: %v", middleware.GetReqID(r.Context()), err)
	}
}

func (s *Server) handleInsight(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		http.Error(w, "insight not available", http.StatusNotFound)
		return
	}
	text := s.analyzer.Analyze(r.Context(), s.core.Snapshot().Record)
	writeJSON(w, http.StatusOK, insightResponse{Text: text})
}

// statusFor maps a sync core error to an HTTP status. Auth problems the
// user can fix by signing in are 401, terminal ones 503, and any other
// remote failure 502.
func statusFor(err error) int {
	if errors.Is(err, timesheet.ErrDayOutOfRange) || errors.Is(err, tracker.ErrInvalidPeriod) {
		return http.StatusBadRequest
	}
	switch tracker.Classify(err) {
	case tracker.KindAuth:
		return http.StatusUnauthorized
	case tracker.KindConfiguration, tracker.KindAccessRestricted:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, tracker.ErrNotReady) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	s.logger.Printf("RequestID=%s: %s %s: %v", middleware.GetReqID(r.Context()), r.Method, r.URL.Path, err)

	resp := errorResponse{Error: err.Error(), Kind: tracker.Classify(err).String()}
	var initErr *tracker.InitError
	if errors.As(err, &initErr) {
		resp.Kind = initErr.Kind.String()
		resp.Guidance = initErr.Guidance()
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
