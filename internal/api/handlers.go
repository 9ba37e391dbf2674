package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"hittracker/internal/calendar"
	"hittracker/internal/domain"
	"hittracker/internal/models"
	"hittracker/internal/overview"
	"hittracker/internal/reconcile"
	"hittracker/internal/service"
)

type dayView struct {
	*models.DaySummary
	Settled bool `json:"settled"`
}

func newDayView(d *models.DaySummary) dayView {
	return dayView{DaySummary: d, Settled: reconcile.IsSettled(d)}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"syncing": s.deps.Sync != nil && s.deps.Sync.Running(),
	})
}

// handleDays lists day summaries; the default range is the sync window
// ending on the business date.
func (s *Server) handleDays(w http.ResponseWriter, r *http.Request) {
	to := dateParam(r.URL.Query().Get("to"))
	if to == "" {
		to = s.deps.Today.BusinessDate()
	}
	from := dateParam(r.URL.Query().Get("from"))
	if from == "" {
		var err error
		if from, err = calendar.AddDays(to, 1-models.SyncWindowDays); err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date; expected YYYYMMDD or YYYY-MM-DD")
			return
		}
	}
	if !calendar.Valid(from) || !calendar.Valid(to) {
		writeError(w, http.StatusBadRequest, "invalid date; expected YYYYMMDD or YYYY-MM-DD")
		return
	}
	if from > to {
		writeError(w, http.StatusBadRequest, "from must not be after to")
		return
	}

	ctx := r.Context()
	var days []*models.DaySummary
	err := s.deps.Store.View(ctx, func(tx domain.Tx) error {
		var err error
		days, err = tx.DaySummaries(ctx, from, to)
		return err
	})
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	views := make([]dayView, 0, len(days))
	for _, d := range days {
		views = append(views, newDayView(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"from": from, "to": to, "days": views})
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	date := dateParam(chi.URLParam(r, "date"))
	if !calendar.Valid(date) {
		writeError(w, http.StatusBadRequest, "invalid date; expected YYYYMMDD or YYYY-MM-DD")
		return
	}

	ctx := r.Context()
	var (
		day   *models.DaySummary
		items []*models.WorkItem
	)
	err := s.deps.Store.View(ctx, func(tx domain.Tx) error {
		var err error
		if day, err = tx.GetDaySummary(ctx, date); err != nil {
			return err
		}
		items, err = tx.WorkItemsByDate(ctx, date, date)
		return err
	})
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if day == nil {
		writeError(w, http.StatusNotFound, "day not found")
		return
	}
	if items == nil {
		items = []*models.WorkItem{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"day": newDayView(day), "items": items})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	o, err := s.deps.Overviews.Period(r.Context(), chi.URLParam(r, "period"))
	if errors.Is(err, overview.ErrUnknownPeriod) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Overviews.Totals(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Sync.Progress(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"running": s.deps.Sync.Running(), "progress": p})
}

func (s *Server) handleSyncToday(w http.ResponseWriter, r *http.Request) {
	s.startSync(w, r, models.SyncKindDay, "")
}

func (s *Server) handleSyncDay(w http.ResponseWriter, r *http.Request) {
	date := dateParam(chi.URLParam(r, "date"))
	if !calendar.Valid(date) {
		writeError(w, http.StatusBadRequest, "invalid date; expected YYYYMMDD or YYYY-MM-DD")
		return
	}
	s.startSync(w, r, models.SyncKindDay, date)
}

func (s *Server) handleSyncLast45(w http.ResponseWriter, r *http.Request) {
	s.startSync(w, r, models.SyncKindLast45, "")
}

func (s *Server) handleSyncResume(w http.ResponseWriter, r *http.Request) {
	s.startSync(w, r, models.SyncKindResume, "")
}

func (s *Server) startSync(w http.ResponseWriter, r *http.Request, kind, date string) {
	client := clientName(r, s.auth.clientKey(r))

	if s.deps.Triggers != nil && s.cfg.RateLimit.SyncPerMinute > 0 {
		allowed, err := s.deps.Triggers.CheckRateLimit(r.Context(), "sync:"+client, s.cfg.RateLimit.SyncPerMinute, time.Minute)
		if err != nil {
			s.log.Warn().Err(err).Msg("Sync trigger limit check failed")
		} else if !allowed {
			writeError(w, http.StatusTooManyRequests, "too many sync requests")
			return
		}
	}

	runID, err := s.deps.Sync.Start(kind, date)
	if errors.Is(err, service.ErrSyncInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	s.log.Info().Str("run_id", runID).Str("kind", kind).Str("date", date).Str("client", client).Msg("Sync requested")
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "kind": kind})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

// dateParam accepts YYYYMMDD or YYYY-MM-DD.
func dateParam(raw string) string {
	return strings.ReplaceAll(strings.TrimSpace(raw), "-", "")
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
