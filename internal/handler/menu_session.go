package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tableflow/api/internal/auth"
	"github.com/tableflow/api/internal/database"
)

// MenuStore defines the database methods needed by the public menu.
// Satisfied by *database.Queries.
type MenuStore interface {
	GetTenantBySlug(ctx context.Context, slug string) (database.Tenant, error)
	GetTable(ctx context.Context, arg database.GetTableParams) (database.RestaurantTable, error)
	ListAvailableMenuItems(ctx context.Context, tenantID uuid.UUID) ([]database.MenuItem, error)
}

// MenuHandler serves the guest-facing menu. Scanning a table's QR code
// yields a customer token bound to that table. Browsing without a table is
// read-only.
type MenuHandler struct {
	store     MenuStore
	jwtSecret string
	tokenTTL  time.Duration
}

func NewMenuHandler(store MenuStore, jwtSecret string, tokenTTL time.Duration) *MenuHandler {
	return &MenuHandler{store: store, jwtSecret: jwtSecret, tokenTTL: tokenTTL}
}

// RegisterRoutes mounts under /public/tenants/{slug}.
func (h *MenuHandler) RegisterRoutes(r chi.Router) {
	r.Get("/menu", h.Preview)
	r.Get("/tables/{tableID}/menu", h.Scan)
}

type menuTenant struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Currency string    `json:"currency"`
}

type menuTable struct {
	ID    uuid.UUID `json:"id"`
	Label string    `json:"label"`
}

type menuResponse struct {
	Tenant    menuTenant          `json:"tenant"`
	Table     *menuTable          `json:"table,omitempty"`
	Items     []database.MenuItem `json:"items"`
	Mode      string              `json:"mode"`
	CanOrder  bool                `json:"can_order"`
	Token     string              `json:"token,omitempty"`
	ExpiresAt *time.Time          `json:"expires_at,omitempty"`
}

func (h *MenuHandler) tenant(w http.ResponseWriter, r *http.Request) (database.Tenant, bool) {
	t, err := h.store.GetTenantBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "restaurant not found")
			return database.Tenant{}, false
		}
		writeServiceError(w, "get tenant", err)
		return database.Tenant{}, false
	}
	if !t.IsActive {
		writeError(w, http.StatusNotFound, "restaurant not found")
		return database.Tenant{}, false
	}
	return t, true
}

func (h *MenuHandler) menu(w http.ResponseWriter, r *http.Request, t database.Tenant) ([]database.MenuItem, bool) {
	items, err := h.store.ListAvailableMenuItems(r.Context(), t.ID)
	if err != nil {
		writeServiceError(w, "list menu", err)
		return nil, false
	}
	if items == nil {
		items = []database.MenuItem{}
	}
	return items, true
}

// Preview handles GET /public/tenants/{slug}/menu.
func (h *MenuHandler) Preview(w http.ResponseWriter, r *http.Request) {
	t, ok := h.tenant(w, r)
	if !ok {
		return
	}
	items, ok := h.menu(w, r, t)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, menuResponse{
		Tenant: menuTenant{ID: t.ID, Name: t.Name, Currency: t.Currency},
		Items:  items,
		Mode:   "preview",
	})
}

// Scan handles GET /public/tenants/{slug}/tables/{tableID}/menu.
func (h *MenuHandler) Scan(w http.ResponseWriter, r *http.Request) {
	tableID, ok := pathUUID(w, r, "tableID", "table ID")
	if !ok {
		return
	}
	t, ok := h.tenant(w, r)
	if !ok {
		return
	}

	table, err := h.store.GetTable(r.Context(), database.GetTableParams{ID: tableID, TenantID: t.ID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "table not found")
			return
		}
		writeServiceError(w, "get table", err)
		return
	}
	if !table.IsActive {
		writeError(w, http.StatusNotFound, "table not found")
		return
	}

	items, ok := h.menu(w, r, t)
	if !ok {
		return
	}

	token, err := auth.GenerateCustomerToken(h.jwtSecret, t.ID, table.ID, h.tokenTTL)
	if err != nil {
		writeServiceError(w, "customer token", err)
		return
	}
	expires := time.Now().Add(h.tokenTTL).UTC()

	writeJSON(w, http.StatusOK, menuResponse{
		Tenant:    menuTenant{ID: t.ID, Name: t.Name, Currency: t.Currency},
		Table:     &menuTable{ID: table.ID, Label: table.Label},
		Items:     items,
		Mode:      "table",
		CanOrder:  true,
		Token:     token,
		ExpiresAt: &expires,
	})
}
