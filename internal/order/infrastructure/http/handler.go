package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dmehra2102/stock-reservation-engine/internal/order/application"
	"github.com/dmehra2102/stock-reservation-engine/internal/order/domain"
	"github.com/dmehra2102/stock-reservation-engine/internal/platform/httpapi"
	"github.com/dmehra2102/stock-reservation-engine/pkg/identity"
	"github.com/go-chi/chi/v5"
)

const HeaderIdempotencyKey = "Idempotency-Key"

// Idempotency deduplicates cart submissions that carry an Idempotency-Key header.
type Idempotency interface {
	RequestKey(scope, caller, key string) string
	Claim(ctx context.Context, key string) (result string, claimed bool, err error)
	Complete(ctx context.Context, key, result string) error
	Forget(ctx context.Context, key string) error
}

type Handler struct {
	log     *slog.Logger
	service *application.Service
	gateway *application.Gateway
	idem    Idempotency
}

// NewHandler wires the order routes. idem may be nil, in which case Idempotency-Key
// headers are ignored.
func NewHandler(log *slog.Logger, service *application.Service, gateway *application.Gateway, idem Idempotency) *Handler {
	return &Handler{log: log, service: service, gateway: gateway, idem: idem}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/orders", h.placeOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/reserved", h.listReserved)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Post("/orders/{id}/reorder", h.reorder)
	r.Post("/orders/{id}/approve", h.moderate(h.gateway.Approve))
	r.Post("/orders/{id}/complete", h.moderate(h.gateway.Complete))
	r.Post("/orders/{id}/approve-and-complete", h.moderate(h.gateway.ApproveAndComplete))
	r.Post("/orders/{id}/reject", h.moderate(h.gateway.Reject))
	r.Post("/approve-purchase/{id}", h.moderate(h.gateway.ApproveAndComplete))
	r.Get("/reports/top-selling", h.topSelling)
}

type placeOrderReq struct {
	Lines []domain.CartLine `json:"lines"`
}

type orderItemResp struct {
	ProductID      int64  `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPrice      string `json:"unit_price"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Subtotal       string `json:"subtotal"`
}

type orderResp struct {
	ID            string          `json:"id"`
	CustomerID    string          `json:"customer_id"`
	Status        domain.Status   `json:"status"`
	TotalCents    int64           `json:"total_cents"`
	TotalPrice    string          `json:"total_price"`
	Items         []orderItemResp `json:"items"`
	ReorderedFrom string          `json:"reordered_from,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	ApprovedAt    *time.Time      `json:"approved_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
}

func toResp(o domain.Order) orderResp {
	items := make([]orderItemResp, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemResp{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Quantity:       item.Quantity,
			UnitPrice:      httpapi.Money(item.UnitPriceCents),
			UnitPriceCents: item.UnitPriceCents,
			Subtotal:       httpapi.Money(item.SubtotalCents()),
		})
	}
	return orderResp{
		ID:            o.ID,
		CustomerID:    o.CustomerID,
		Status:        o.Status,
		TotalCents:    o.TotalCents,
		TotalPrice:    httpapi.Money(o.TotalCents),
		Items:         items,
		ReorderedFrom: o.ReorderedFrom,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		ApprovedAt:    o.ApprovedAt,
		CompletedAt:   o.CompletedAt,
		CancelledAt:   o.CancelledAt,
	}
}

func toRespList(orders []domain.Order) []orderResp {
	out := make([]orderResp, 0, len(orders))
	for _, o := range orders {
		out = append(out, toResp(o))
	}
	return out
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := httpapi.Actor(r)

	var req placeOrderReq
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	cart := domain.Cart{CustomerID: actor.ID, Lines: req.Lines}

	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if key == "" || h.idem == nil {
		h.place(w, r, actor, cart, "")
		return
	}

	idemKey := h.idem.RequestKey("orders", actor.ID, key)
	orderID, claimed, err := h.idem.Claim(ctx, idemKey)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	if !claimed {
		o, err := h.service.Get(ctx, actor, orderID)
		if err != nil {
			httpapi.WriteError(w, h.log, err)
			return
		}
		h.log.Info("replayed order submission", "order_id", o.ID, "customer_id", actor.ID)
		httpapi.WriteJSON(w, http.StatusOK, toResp(o))
		return
	}
	h.place(w, r, actor, cart, idemKey)
}

func (h *Handler) place(w http.ResponseWriter, r *http.Request, actor identity.Actor, cart domain.Cart, idemKey string) {
	ctx := r.Context()
	o, err := h.service.PlaceOrder(ctx, actor, cart)
	if err != nil {
		if idemKey != "" {
			if ferr := h.idem.Forget(ctx, idemKey); ferr != nil {
				h.log.Warn("failed to release idempotency key", "err", ferr)
			}
		}
		httpapi.WriteError(w, h.log, err)
		return
	}
	if idemKey != "" {
		if err := h.idem.Complete(ctx, idemKey, o.ID); err != nil {
			h.log.Warn("failed to store idempotency result", "order_id", o.ID, "err", err)
		}
	}
	w.Header().Set("Location", "/orders/"+o.ID)
	httpapi.WriteJSON(w, http.StatusCreated, toResp(o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	var status domain.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s, ok := domain.ParseStatus(raw)
		if !ok {
			httpapi.WriteError(w, h.log, fmt.Errorf("%w: unknown status %q", httpapi.ErrBadRequest, raw))
			return
		}
		status = s
	}
	orders, err := h.service.List(r.Context(), httpapi.Actor(r), status)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toRespList(orders))
}

func (h *Handler) listReserved(w http.ResponseWriter, r *http.Request) {
	orders, err := h.gateway.ListReserved(r.Context(), httpapi.Actor(r))
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toRespList(orders))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.Get(r.Context(), httpapi.Actor(r), chi.URLParam(r, "id"))
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toResp(o))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.respond(w)(h.service.Cancel(r.Context(), httpapi.Actor(r), chi.URLParam(r, "id")))
}

func (h *Handler) reorder(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.Reorder(r.Context(), httpapi.Actor(r), chi.URLParam(r, "id"))
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	w.Header().Set("Location", "/orders/"+o.ID)
	httpapi.WriteJSON(w, http.StatusCreated, toResp(o))
}

type transitionFunc func(ctx context.Context, actor identity.Actor, id string) (domain.Order, error)

func (h *Handler) moderate(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.respond(w)(fn(r.Context(), httpapi.Actor(r), chi.URLParam(r, "id")))
	}
}

func (h *Handler) respond(w http.ResponseWriter) func(domain.Order, error) {
	return func(o domain.Order, err error) {
		if err != nil {
			httpapi.WriteError(w, h.log, err)
			return
		}
		httpapi.WriteJSON(w, http.StatusOK, toResp(o))
	}
}

type productSalesResp struct {
	domain.ProductSales
	Revenue string `json:"revenue"`
}

func (h *Handler) topSelling(w http.ResponseWriter, r *http.Request) {
	limit, err := httpapi.IntQuery(r, "limit", 10)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	sales, err := h.service.TopSelling(r.Context(), httpapi.Actor(r), limit)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	out := make([]productSalesResp, 0, len(sales))
	for _, s := range sales {
		out = append(out, productSalesResp{ProductSales: s, Revenue: httpapi.Money(s.RevenueCents)})
	}
	httpapi.WriteJSON(w, http.StatusOK, out)
}
