package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/tableflow/api/internal/auth"
	"github.com/tableflow/api/internal/billing"
	"github.com/tableflow/api/internal/lifecycle"
	"github.com/tableflow/api/internal/middleware"
	"github.com/tableflow/api/internal/printer"
	"github.com/tableflow/api/internal/service"
	"github.com/tableflow/api/internal/transport"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads the body into v and validates its struct tags. It writes
// a 400 and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request body"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return "invalid " + fe.Field()
	}
}

// writeServiceError maps domain errors onto HTTP statuses. Anything
// unrecognised is logged and reported as a 500.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	var (
		ve  *service.ValidationError
		ite *lifecycle.InvalidTransitionError
		fte *lifecycle.ForbiddenTransitionError
		sme *billing.SplitMismatchError
	)
	switch {
	case errors.As(err, &ve):
		// Wrapped validation errors carry the offending item's index.
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &fte), errors.Is(err, service.ErrNotYourTable):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrTenantNotFound),
		errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrInvoiceNotFound),
		errors.Is(err, service.ErrWaiterCallNotFound),
		errors.Is(err, printer.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &ite),
		errors.Is(err, service.ErrConcurrentUpdate),
		errors.Is(err, printer.ErrNotRetryable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &sme):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":    sme.Error(),
			"total":    sme.Total.StringFixed(2),
			"declared": sme.Declared.StringFixed(2),
		})
	case transport.IsTransient(err):
		writeError(w, http.StatusServiceUnavailable, "upstream temporarily unavailable, retry")
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// tenantID reads the {tid} path segment. RequireTenant has already matched
// it against the caller's token.
func tenantID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "tid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant ID")
		return uuid.Nil, false
	}
	return id, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, param, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+label)
		return uuid.Nil, false
	}
	return id, true
}

func claims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	c := middleware.ClaimsFromContext(r.Context())
	if c == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return nil, false
	}
	return c, true
}

func actorOf(c *auth.Claims) service.Actor {
	return service.Actor{UserID: c.UserID, Role: lifecycle.Role(c.Role), TableID: c.TableID}
}

// pagination reads limit and offset, defaulting to 50 and 0. Limit is capped
// at 100 and offset at MaxInt32.
func pagination(r *http.Request) (limit, offset int32) {
	limit, offset = 50, 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		if v > 100 {
			v = 100
		}
		limit = int32(v)
	}
	// Out of range values come back clamped to the int32 bounds.
	v, err := strconv.ParseInt(r.URL.Query().Get("offset"), 10, 32)
	if (err == nil || errors.Is(err, strconv.ErrRange)) && v >= 0 {
		offset = int32(v)
	}
	return limit, offset
}
