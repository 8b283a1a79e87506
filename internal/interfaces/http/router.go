package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/pkg/jwt"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Engine    *inventory.AllocationEngine
	Balances  *inventory.BalanceQuery
	Ledger    *inventory.LedgerQueryUseCase
	LedgerAdm *inventory.LedgerAdminUseCase
	Trace     *inventory.TraceabilityUseCase
	JWTSecret string
	Log       *logger.Logger
}

// Router registra las rutas de la API. Todas requieren Bearer Token; el tenant sale del token.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))

	anyRole := RequireRole(jwt.RoleAdmin, jwt.RoleBodeguero, jwt.RoleVendedor)
	warehouse := RequireRole(jwt.RoleAdmin, jwt.RoleBodeguero)

	inv := api.Group("/inventory")
	h := NewInventoryHandler(deps.Engine, deps.Balances, deps.Ledger, deps.Trace, deps.Log)
	inv.Post("/exits", warehouse, h.RegisterExit)
	inv.Post("/entries", warehouse, h.RegisterEntry)
	inv.Post("/sales", anyRole, h.RegisterSale)
	inv.Post("/balances", anyRole, h.Balances)
	inv.Get("/balances/:variationId/reconciliation", warehouse, h.Reconcile)
	inv.Get("/lots", anyRole, h.ListLots)
	inv.Get("/lots/:id/trace", anyRole, h.LotTrace)
	inv.Get("/lots/:id/trace.pdf", anyRole, h.LotTracePDF)
	inv.Get("/movements", warehouse, h.ListMovements)

	// Vía administrativa: fuera del contrato del motor.
	admin := api.Group("/admin", RequireRole(jwt.RoleAdmin))
	ah := NewLedgerAdminHandler(deps.LedgerAdm, deps.Log)
	admin.Put("/inventory/movements/:id", ah.CorrectMovement)
	admin.Delete("/inventory/movements/:id", ah.DeleteMovement)
}
