package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tableflow/api/internal/database"
	"github.com/tableflow/api/internal/enum"
)

// PrinterQueuer is satisfied by *printer.Queue.
type PrinterQueuer interface {
	List(ctx context.Context, tenantID uuid.UUID, status string, limit, offset int32) ([]database.PrinterQueueEntry, error)
	Retry(ctx context.Context, tenantID, entryID uuid.UUID) (database.PrinterQueueEntry, error)
}

// PrinterQueueHandler exposes the receipt queue to staff so failed prints
// can be seen and retried.
type PrinterQueueHandler struct {
	queue PrinterQueuer
}

func NewPrinterQueueHandler(queue PrinterQueuer) *PrinterQueueHandler {
	return &PrinterQueueHandler{queue: queue}
}

// RegisterRoutes mounts under /tenants/{tid}/printer-queue.
func (h *PrinterQueueHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/{id}/retry", h.Retry)
}

type printJobResponse struct {
	database.PrinterQueueEntry
	Payload json.RawMessage `json:"payload"`
}

func newPrintJobResponse(e database.PrinterQueueEntry) printJobResponse {
	return printJobResponse{PrinterQueueEntry: e, Payload: json.RawMessage(e.Payload)}
}

func validPrintStatus(s string) bool {
	switch s {
	case "", enum.PrintStatusQueued, enum.PrintStatusProcessing, enum.PrintStatusSuccess, enum.PrintStatusFailed:
		return true
	}
	return false
}

func (h *PrinterQueueHandler) List(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	status := r.URL.Query().Get("status")
	if !validPrintStatus(status) {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	limit, offset := pagination(r)
	entries, err := h.queue.List(r.Context(), tid, status, limit, offset)
	if err != nil {
		writeServiceError(w, "list printer queue", err)
		return
	}

	out := make([]printJobResponse, len(entries))
	for i, e := range entries {
		out[i] = newPrintJobResponse(e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *PrinterQueueHandler) Retry(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	entryID, ok := pathUUID(w, r, "id", "entry ID")
	if !ok {
		return
	}

	entry, err := h.queue.Retry(r.Context(), tid, entryID)
	if err != nil {
		writeServiceError(w, "retry print job", err)
		return
	}
	writeJSON(w, http.StatusOK, newPrintJobResponse(entry))
}
