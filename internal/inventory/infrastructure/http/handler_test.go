package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmehra2102/stock-reservation-engine/internal/inventory/application"
	"github.com/dmehra2102/stock-reservation-engine/internal/inventory/domain"
	inventoryhttp "github.com/dmehra2102/stock-reservation-engine/internal/inventory/infrastructure/http"
	"github.com/dmehra2102/stock-reservation-engine/internal/platform/httpapi"
	"github.com/dmehra2102/stock-reservation-engine/internal/platform/memory"
	"github.com/dmehra2102/stock-reservation-engine/pkg/identity"
	"github.com/dmehra2102/stock-reservation-engine/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type productBody struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	StockLevel    int    `json:"stock_level"`
	ReservedStock int    `json:"reserved_stock"`
	Price         string `json:"price"`
	LowStock      bool   `json:"low_stock"`
}

func setup(t *testing.T) http.Handler {
	t.Helper()
	log := logging.Discard()
	store := memory.NewStore()
	store.Seed(
		domain.Product{ID: 1, Name: "Pen", StockLevel: 10, PriceCents: 150, ReorderThreshold: 2},
		domain.Product{ID: 2, Name: "Ink", StockLevel: 1, PriceCents: 499, ReorderThreshold: 5},
	)
	h := inventoryhttp.NewHandler(log, application.NewLedger(log, store, time.Second))
	return httpapi.NewRouter(log, h.Register)
}

func call(t *testing.T, h http.Handler, role identity.Role, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(identity.HeaderActorID, "u-1")
	req.Header.Set(identity.HeaderActorRole, string(role))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestProductReads(t *testing.T) {
	h := setup(t)

	rec := call(t, h, identity.RoleCustomer, http.MethodGet, "/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []productBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&all))
	require.Len(t, all, 2)
	assert.Equal(t, "1.50", all[0].Price)

	rec = call(t, h, identity.RoleCustomer, http.MethodGet, "/products/low-stock", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var low []productBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&low))
	require.Len(t, low, 1)
	assert.Equal(t, int64(2), low[0].ID)
	assert.True(t, low[0].LowStock)

	assert.Equal(t, http.StatusNotFound, call(t, h, identity.RoleCustomer, http.MethodGet, "/products/99", "").Code)
	assert.Equal(t, http.StatusBadRequest, call(t, h, identity.RoleCustomer, http.MethodGet, "/products/abc", "").Code)
}

func TestUpsertAndReceive(t *testing.T) {
	h := setup(t)

	body := `{"name":"Stapler","price":"12.50","cost_price":"7","stock_level":4,"reorder_threshold":1}`
	assert.Equal(t, http.StatusForbidden, call(t, h, identity.RoleCustomer, http.MethodPut, "/products/3", body).Code)

	rec := call(t, h, identity.RoleManager, http.MethodPut, "/products/3", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var p productBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	assert.Equal(t, "12.50", p.Price)
	assert.Equal(t, 4, p.StockLevel)

	rec = call(t, h, identity.RoleManager, http.MethodPut, "/products/3", `{"name":"Stapler","price":"1.001"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h, identity.RoleManager, http.MethodPost, "/products/3/receipts", `{"quantity":6,"batch_number":"B-7"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	assert.Equal(t, 10, p.StockLevel)

	rec = call(t, h, identity.RoleManager, http.MethodPost, "/products/3/receipts", `{"quantity":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h, identity.RoleManager, http.MethodGet, "/products/3/movements", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reference":"B-7"`)
}
