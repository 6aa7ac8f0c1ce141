package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dmehra2102/stock-reservation-engine/internal/inventory/application"
	"github.com/dmehra2102/stock-reservation-engine/internal/inventory/domain"
	"github.com/dmehra2102/stock-reservation-engine/internal/platform/httpapi"
	"github.com/go-chi/chi/v5"
)

type Handler struct {
	log    *slog.Logger
	ledger *application.Ledger
}

func NewHandler(log *slog.Logger, ledger *application.Ledger) *Handler {
	return &Handler{log: log, ledger: ledger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/products", h.list)
	r.Get("/products/low-stock", h.lowStock)
	r.Get("/products/{id}", h.get)
	r.Get("/products/{id}/movements", h.movements)
	r.Put("/products/{id}", h.upsert)
	r.Post("/products/{id}/receipts", h.receive)
}

type productResp struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Category         string    `json:"category,omitempty"`
	StockLevel       int       `json:"stock_level"`
	ReservedStock    int       `json:"reserved_stock"`
	Price            string    `json:"price"`
	CostPrice        string    `json:"cost_price"`
	ReorderThreshold int       `json:"reorder_threshold"`
	SupplierID       int64     `json:"supplier_id,omitempty"`
	LowStock         bool      `json:"low_stock"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toResp(p domain.Product) productResp {
	return productResp{
		ID:               p.ID,
		Name:             p.Name,
		Category:         p.Category,
		StockLevel:       p.StockLevel,
		ReservedStock:    p.ReservedStock,
		Price:            httpapi.Money(p.PriceCents),
		CostPrice:        httpapi.Money(p.CostPriceCents),
		ReorderThreshold: p.ReorderThreshold,
		SupplierID:       p.SupplierID,
		LowStock:         p.IsLowStock(),
		UpdatedAt:        p.UpdatedAt,
	}
}

func toRespList(products []domain.Product) []productResp {
	out := make([]productResp, 0, len(products))
	for _, p := range products {
		out = append(out, toResp(p))
	}
	return out
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	products, err := h.ledger.List(r.Context())
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toRespList(products))
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.ledger.LowStock(r.Context())
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toRespList(products))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	p, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toResp(p))
}

type movementResp struct {
	ID            int64               `json:"id"`
	Kind          domain.MovementKind `json:"kind"`
	Quantity      int                 `json:"quantity"`
	StockLevel    int                 `json:"stock_level"`
	ReservedStock int                 `json:"reserved_stock"`
	Reference     string              `json:"reference,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	if err := httpapi.Actor(r).RequireManager(); err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	limit, err := httpapi.IntQuery(r, "limit", 50)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	movements, err := h.ledger.Movements(r.Context(), id, limit)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	out := make([]movementResp, 0, len(movements))
	for _, m := range movements {
		out = append(out, movementResp{ID: m.ID, Kind: m.Kind, Quantity: m.Quantity, StockLevel: m.StockLevel,
			ReservedStock: m.ReservedStock, Reference: m.Reference, CreatedAt: m.CreatedAt})
	}
	httpapi.WriteJSON(w, http.StatusOK, out)
}

type upsertReq struct {
	Name             string `json:"name"`
	Category         string `json:"category"`
	Price            string `json:"price"`
	CostPrice        string `json:"cost_price"`
	StockLevel       int    `json:"stock_level"`
	ReorderThreshold int    `json:"reorder_threshold"`
	SupplierID       int64  `json:"supplier_id"`
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	if err := httpapi.Actor(r).RequireManager(); err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	id, err := productID(r)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	var req upsertReq
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	price, err := httpapi.ParseMoney(req.Price)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	var cost int64
	if req.CostPrice != "" {
		if cost, err = httpapi.ParseMoney(req.CostPrice); err != nil {
			httpapi.WriteError(w, h.log, err)
			return
		}
	}

	p, err := h.ledger.RegisterProduct(r.Context(), domain.Product{
		ID:               id,
		Name:             req.Name,
		Category:         req.Category,
		StockLevel:       req.StockLevel,
		PriceCents:       price,
		CostPriceCents:   cost,
		ReorderThreshold: req.ReorderThreshold,
		SupplierID:       req.SupplierID,
	})
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toResp(p))
}

type receiptReq struct {
	Quantity    int    `json:"quantity"`
	BatchNumber string `json:"batch_number"`
	SupplierID  int64  `json:"supplier_id"`
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	if err := httpapi.Actor(r).RequireManager(); err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	id, err := productID(r)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	var req receiptReq
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	p, err := h.ledger.Receive(r.Context(), domain.Receipt{
		ProductID:  id,
		Quantity:   req.Quantity,
		BatchRef:   req.BatchNumber,
		SupplierID: req.SupplierID,
	})
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toResp(p))
}

func productID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid product id %q", httpapi.ErrBadRequest, raw)
	}
	return id, nil
}
