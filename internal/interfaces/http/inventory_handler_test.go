package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memory"
	apphttp "github.com/jhoicas/stock-ledger/internal/interfaces/http"
	pkgjwt "github.com/jhoicas/stock-ledger/pkg/jwt"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

type fakePDF struct{}

func (fakePDF) GenerateLotTracePDF(_ context.Context, trace *inventory.LotTrace) ([]byte, error) {
	return []byte("%PDF-1.3 " + trace.Lot.ID), nil
}

func buildInventoryApp(t *testing.T) *fiber.App {
	t.Helper()
	store := memory.NewStore()
	lots, movs := store.Lots(), store.Movements()

	app := fiber.New()
	apphttp.Router(app, apphttp.RouterDeps{
		Engine:    inventory.NewAllocationEngine(store, nil, inventory.DefaultEngineConfig()),
		Balances:  inventory.NewBalanceQuery(lots, movs),
		Ledger:    inventory.NewLedgerQueryUseCase(movs, lots),
		LedgerAdm: inventory.NewLedgerAdminUseCase(store, nil),
		Trace:     inventory.NewTraceabilityUseCase(lots, movs, fakePDF{}),
		JWTSecret: testJWTSecret,
	})
	return app
}

func call(t *testing.T, app *fiber.App, method, path, auth string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", auth)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func postEntry(t *testing.T, app *fiber.App, variation, qty, expires string) dto.MovementResponse {
	t.Helper()
	body := map[string]any{"variation_id": variation, "quantity": qty, "reason": "PURCHASE"}
	if expires != "" {
		body["expires_at"] = expires
	}
	resp := call(t, app, http.MethodPost, "/api/inventory/entries", tokenForRole(t, pkgjwt.RoleBodeguero), body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[dto.MovementResponse](t, resp)
}

// ──────────────────────────────────────────────────────────────────────────────
// Salidas y entradas
// ──────────────────────────────────────────────────────────────────────────────

func TestInventoryHandler_SalidaFEFO(t *testing.T) {
	app := buildInventoryApp(t)
	june := postEntry(t, app, "v1", "10", "2026-06-01T00:00:00Z")
	march := postEntry(t, app, "v1", "5", "2026-03-01T00:00:00Z")

	resp := call(t, app, http.MethodPost, "/api/inventory/exits", tokenForRole(t, pkgjwt.RoleBodeguero),
		map[string]any{"variation_id": "v1", "quantity": "8", "reason": "SALE", "channel": "WHATSAPP"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	out := decode[dto.MovementsResponse](t, resp)
	require.Equal(t, 2, out.Total)
	assert.Equal(t, march.LotID, out.Movements[0].LotID)
	assert.True(t, out.Movements[0].Quantity.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, june.LotID, out.Movements[1].LotID)
	assert.True(t, out.Movements[1].Quantity.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, testUserID, out.Movements[0].ActorID)
}

func TestInventoryHandler_StockInsuficiente409(t *testing.T) {
	app := buildInventoryApp(t)
	postEntry(t, app, "v1", "2", "")

	resp := call(t, app, http.MethodPost, "/api/inventory/exits", tokenForRole(t, pkgjwt.RoleAdmin),
		map[string]any{"variation_id": "v1", "quantity": "20", "reason": "SALE"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_STOCK", decode[dto.ErrorResponse](t, resp).Code)
}

func TestInventoryHandler_CantidadInvalida400(t *testing.T) {
	app := buildInventoryApp(t)
	resp := call(t, app, http.MethodPost, "/api/inventory/exits", tokenForRole(t, pkgjwt.RoleAdmin),
		map[string]any{"variation_id": "v1", "quantity": "0", "reason": "SALE"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION", decode[dto.ErrorResponse](t, resp).Code)
}

func TestInventoryHandler_EntradaLoteInexistente404(t *testing.T) {
	app := buildInventoryApp(t)
	resp := call(t, app, http.MethodPost, "/api/inventory/entries", tokenForRole(t, pkgjwt.RoleAdmin),
		map[string]any{"variation_id": "v1", "quantity": "1", "reason": "RETURN", "lot_id": "no-existe"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInventoryHandler_VendedorSoloVende(t *testing.T) {
	app := buildInventoryApp(t)
	postEntry(t, app, "v1", "3", "")
	postEntry(t, app, "v2", "3", "")

	resp := call(t, app, http.MethodPost, "/api/inventory/exits", tokenForRole(t, pkgjwt.RoleVendedor),
		map[string]any{"variation_id": "v1", "quantity": "1", "reason": "SALE"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = call(t, app, http.MethodPost, "/api/inventory/sales", tokenForRole(t, pkgjwt.RoleVendedor),
		map[string]any{"channel": "INSTAGRAM", "lines": []map[string]any{
			{"variation_id": "v1", "quantity": "2", "unit_price": "1500"},
			{"variation_id": "v2", "quantity": "1"},
		}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decode[dto.MovementsResponse](t, resp)
	assert.Equal(t, 2, out.Total)
	assert.Equal(t, out.Movements[0].RequestID, out.Movements[1].RequestID)
}

// ──────────────────────────────────────────────────────────────────────────────
// Consultas
// ──────────────────────────────────────────────────────────────────────────────

func TestInventoryHandler_SaldosPorTenant(t *testing.T) {
	app := buildInventoryApp(t)
	postEntry(t, app, "v1", "4.5", "")

	resp := call(t, app, http.MethodPost, "/api/inventory/balances", tokenForRole(t, pkgjwt.RoleVendedor),
		map[string]any{"variation_ids": []string{"v1", "v404"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[dto.BalancesResponse](t, resp)
	assert.True(t, out.Balances["v1"].Equal(decimal.RequireFromString("4.5")))
	assert.True(t, out.Balances["v404"].IsZero())

	other, err := pkgjwt.Generate(testJWTSecret, testUserID, "otro-tenant", pkgjwt.RoleAdmin, testIssuer, testExpMin)
	require.NoError(t, err)
	resp = call(t, app, http.MethodPost, "/api/inventory/balances", "Bearer "+other,
		map[string]any{"variation_ids": []string{"v1"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[dto.BalancesResponse](t, resp).Balances["v1"].IsZero())
}

func TestInventoryHandler_TrazabilidadYPDF(t *testing.T) {
	app := buildInventoryApp(t)
	rec := postEntry(t, app, "v1", "10", "")
	call(t, app, http.MethodPost, "/api/inventory/exits", tokenForRole(t, pkgjwt.RoleAdmin),
		map[string]any{"variation_id": "v1", "quantity": "4", "reason": "SALE"}).Body.Close()

	resp := call(t, app, http.MethodGet, "/api/inventory/lots/"+rec.LotID+"/trace", tokenForRole(t, pkgjwt.RoleVendedor), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	trace := decode[dto.LotTraceResponse](t, resp)
	assert.Len(t, trace.Movements, 2)
	assert.True(t, trace.TotalExited.Equal(decimal.NewFromInt(4)))
	assert.True(t, trace.Lot.Remaining.Equal(decimal.NewFromInt(6)))

	resp = call(t, app, http.MethodGet, "/api/inventory/lots/"+rec.LotID+"/trace.pdf", tokenForRole(t, pkgjwt.RoleVendedor), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, bytes.HasPrefix(raw, []byte("%PDF")))

	resp = call(t, app, http.MethodGet, "/api/inventory/lots/no-existe/trace", tokenForRole(t, pkgjwt.RoleAdmin), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestInventoryHandler_ListadosYFiltros(t *testing.T) {
	app := buildInventoryApp(t)
	postEntry(t, app, "v1", "1", "")
	postEntry(t, app, "v2", "1", "")

	resp := call(t, app, http.MethodGet, "/api/inventory/movements?variation_id=v1", tokenForRole(t, pkgjwt.RoleBodeguero), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decode[dto.MovementsResponse](t, resp).Total)

	resp = call(t, app, http.MethodGet, "/api/inventory/movements?from=ayer", tokenForRole(t, pkgjwt.RoleBodeguero), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = call(t, app, http.MethodGet, "/api/inventory/movements?direction=SIDEWAYS", tokenForRole(t, pkgjwt.RoleBodeguero), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = call(t, app, http.MethodGet, "/api/inventory/lots", tokenForRole(t, pkgjwt.RoleVendedor), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	lots := decode[struct {
		Total int               `json:"total"`
		Lots  []dto.LotResponse `json:"lots"`
	}](t, resp)
	assert.Equal(t, 2, lots.Total)
}

// ──────────────────────────────────────────────────────────────────────────────
// Vía administrativa
// ──────────────────────────────────────────────────────────────────────────────

func TestLedgerAdmin_SoloAdminYRompeConciliacion(t *testing.T) {
	app := buildInventoryApp(t)
	rec := postEntry(t, app, "v1", "10", "")
	patch := map[string]any{"justification": "recuento físico", "quantity": "7"}

	resp := call(t, app, http.MethodPut, "/api/admin/inventory/movements/"+rec.ID, tokenForRole(t, pkgjwt.RoleBodeguero), patch)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = call(t, app, http.MethodPut, "/api/admin/inventory/movements/"+rec.ID, tokenForRole(t, pkgjwt.RoleAdmin), patch)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("X-Ledger-Override"))
	assert.True(t, decode[dto.MovementResponse](t, resp).Quantity.Equal(decimal.NewFromInt(7)))

	resp = call(t, app, http.MethodGet, "/api/inventory/balances/v1/reconciliation", tokenForRole(t, pkgjwt.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decode[inventory.ReconciliationReport](t, resp)
	assert.False(t, report.Consistent)
	require.Len(t, report.Drifts, 1)
}

func TestLedgerAdmin_BorrarRequiereJustificacion(t *testing.T) {
	app := buildInventoryApp(t)
	rec := postEntry(t, app, "v1", "1", "")

	resp := call(t, app, http.MethodDelete, "/api/admin/inventory/movements/"+rec.ID, tokenForRole(t, pkgjwt.RoleAdmin), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = call(t, app, http.MethodDelete, "/api/admin/inventory/movements/"+rec.ID+"?justification=duplicado", tokenForRole(t, pkgjwt.RoleAdmin), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = call(t, app, http.MethodDelete, "/api/admin/inventory/movements/"+rec.ID+"?justification=duplicado", tokenForRole(t, pkgjwt.RoleAdmin), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
