// Package httpapi holds the JSON plumbing shared by the HTTP handlers of every bounded
// context: response writing, error mapping, money formatting and the root router.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	inventory "github.com/dmehra2102/stock-reservation-engine/internal/inventory/domain"
	order "github.com/dmehra2102/stock-reservation-engine/internal/order/domain"
	"github.com/dmehra2102/stock-reservation-engine/pkg/identity"
	"github.com/dmehra2102/stock-reservation-engine/pkg/idempotency"
	"github.com/dmehra2102/stock-reservation-engine/pkg/keylock"
)

type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err onto a status code and error body. Unexpected errors and ledger
// invariant violations are logged; everything else is a caller problem.
func WriteError(w http.ResponseWriter, log *slog.Logger, err error) {
	var (
		validation *order.ValidationError
		unknown    *inventory.UnknownProductError
		short      *inventory.InsufficientStockError
		transition *order.InvalidTransitionError
		invariant  *inventory.InvariantViolationError
	)

	switch {
	case errors.As(err, &validation):
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: err.Error(),
			Details: map[string]any{"field": validation.Field}})
	case errors.Is(err, inventory.ErrInvalidQuantity), errors.Is(err, inventory.ErrQuantityTooLarge),
		errors.Is(err, inventory.ErrInvalidProduct), errors.Is(err, ErrBadRequest):
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: err.Error()})
	case errors.As(err, &unknown):
		WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown_product", Message: err.Error(),
			Details: map[string]any{"product_id": unknown.ProductID}})
	case errors.As(err, &short):
		WriteJSON(w, http.StatusConflict, ErrorResponse{Error: "insufficient_stock", Message: err.Error(),
			Details: map[string]any{"product_id": short.ProductID, "requested": short.Requested, "available": short.Available}})
	case errors.As(err, &transition):
		WriteJSON(w, http.StatusConflict, ErrorResponse{Error: "invalid_transition", Message: err.Error(),
			Details: map[string]any{"from": transition.From, "event": transition.Event}})
	case errors.Is(err, order.ErrStaleOrder):
		WriteJSON(w, http.StatusConflict, ErrorResponse{Error: "conflict", Message: err.Error()})
	case errors.Is(err, idempotency.ErrInFlight):
		WriteJSON(w, http.StatusConflict, ErrorResponse{Error: "request_in_flight", Message: err.Error()})
	case errors.Is(err, identity.ErrForbidden):
		WriteJSON(w, http.StatusForbidden, ErrorResponse{Error: "forbidden", Message: "operation not allowed for this actor"})
	case errors.Is(err, order.ErrOrderNotFound):
		WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()})
	case errors.Is(err, inventory.ErrBusy), errors.Is(err, keylock.ErrTimeout), errors.Is(err, inventory.ErrConcurrentUpdate):
		w.Header().Set("Retry-After", "1")
		WriteJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "busy", Message: "stock is busy, retry the request"})
	case errors.As(err, &invariant):
		log.Error("stock invariant violated", "err", err, "product_id", invariant.ProductID)
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "internal error"})
	default:
		log.Error("request failed", "err", err)
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "internal error"})
	}
}

// ErrBadRequest wraps malformed request bodies and parameters.
var ErrBadRequest = errors.New("bad request")
