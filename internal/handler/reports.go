package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tableflow/api/internal/database"
	"github.com/tableflow/api/internal/enum"
)

// ReportsStore defines the database methods needed by report handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ReportsStore interface {
	ListTableSessions(ctx context.Context, arg database.ListTableSessionsParams) ([]database.TableSession, error)
	GetWaitTimeStats(ctx context.Context, arg database.GetWaitTimeStatsParams) (database.GetWaitTimeStatsRow, error)
}

// ReportsHandler serves table session history and wait-time analytics.
type ReportsHandler struct {
	store ReportsStore
	now   func() time.Time
}

func NewReportsHandler(store ReportsStore) *ReportsHandler {
	return &ReportsHandler{store: store, now: time.Now}
}

// RegisterSessionRoutes mounts under /tenants/{tid}/table-sessions.
func (h *ReportsHandler) RegisterSessionRoutes(r chi.Router) {
	r.Get("/", h.TableSessions)
}

// RegisterRoutes mounts under /tenants/{tid}/reports.
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/wait-times", h.WaitTimes)
}

type waitTimesResponse struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	database.GetWaitTimeStatsRow
}

// TableSessions handles GET /tenants/{tid}/table-sessions.
func (h *ReportsHandler) TableSessions(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}

	limit, offset := pagination(r)
	arg := database.ListTableSessionsParams{TenantID: tid, Limit: limit, Offset: offset}

	switch s := r.URL.Query().Get("status"); s {
	case "":
	case enum.TableSessionOpen, enum.TableSessionCompleted:
		arg.Status = pgtype.Text{String: s, Valid: true}
	default:
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if s := r.URL.Query().Get("table_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid table_id")
			return
		}
		arg.TableID = pgtype.UUID{Bytes: id, Valid: true}
	}

	sessions, err := h.store.ListTableSessions(r.Context(), arg)
	if err != nil {
		writeServiceError(w, "list table sessions", err)
		return
	}
	if sessions == nil {
		sessions = []database.TableSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// WaitTimes handles GET /tenants/{tid}/reports/wait-times.
func (h *ReportsHandler) WaitTimes(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}

	start, end, err := parseDateRange(r, h.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.store.GetWaitTimeStats(r.Context(), database.GetWaitTimeStatsParams{
		TenantID: tid,
		From:     start,
		To:       end,
	})
	if err != nil {
		writeServiceError(w, "wait time stats", err)
		return
	}

	writeJSON(w, http.StatusOK, waitTimesResponse{
		StartDate:           start.Format(dateLayout),
		EndDate:             end.AddDate(0, 0, -1).Format(dateLayout),
		GetWaitTimeStatsRow: stats,
	})
}

const dateLayout = "2006-01-02"

// parseDateRange reads start_date and end_date (inclusive, YYYY-MM-DD, UTC).
// The default is the last 7 days. The returned end is exclusive.
func parseDateRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := today.AddDate(0, 0, -6)
	end := today.AddDate(0, 0, 1)

	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.ParseInLocation(dateLayout, s, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date format")
		}
		start = t
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.ParseInLocation(dateLayout, s, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date format")
		}
		end = t.AddDate(0, 0, 1)
	}

	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date must not be after end_date")
	}
	if end.Sub(start) > 366*24*time.Hour {
		return time.Time{}, time.Time{}, fmt.Errorf("date range must not exceed one year")
	}
	return start, end, nil
}
