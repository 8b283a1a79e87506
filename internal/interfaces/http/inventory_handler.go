package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// InventoryHandler maneja las peticiones HTTP de stock por lote (protegido).
type InventoryHandler struct {
	engine   *inventory.AllocationEngine
	balances *inventory.BalanceQuery
	ledger   *inventory.LedgerQueryUseCase
	trace    *inventory.TraceabilityUseCase
	log      *logger.Logger
}

// NewInventoryHandler construye el handler.
func NewInventoryHandler(
	engine *inventory.AllocationEngine,
	balances *inventory.BalanceQuery,
	ledger *inventory.LedgerQueryUseCase,
	trace *inventory.TraceabilityUseCase,
	log *logger.Logger,
) *InventoryHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &InventoryHandler{engine: engine, balances: balances, ledger: ledger, trace: trace, log: log}
}

// RegisterExit godoc
// @Summary      Registrar salida de stock (FEFO)
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.ExitRequest  true  "variation_id, quantity, reason"
// @Success      201   {object}  dto.MovementsResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/inventory/exits [post]
func (h *InventoryHandler) RegisterExit(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	var in dto.ExitRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	records, err := h.engine.HandleExit(c.UserContext(), inventory.ExitInput{
		TenantID:    tenantID,
		VariationID: in.VariationID,
		Quantity:    in.Quantity,
		Meta: inventory.ExitMetadata{
			Reason:    in.Reason,
			UnitPrice: in.UnitPrice,
			Channel:   in.Channel,
			ActorID:   GetUserID(c),
			Note:      in.Note,
		},
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromMovements(records))
}

// RegisterEntry godoc
// @Summary      Registrar entrada de stock
// @Description  Con lot_id acredita ese lote; sin lot_id crea un lote nuevo.
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.EntryRequest  true  "variation_id, quantity, reason, lot_id opcional"
// @Success      201   {object}  dto.MovementResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/inventory/entries [post]
func (h *InventoryHandler) RegisterEntry(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	var in dto.EntryRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	record, err := h.engine.HandleEntry(c.UserContext(), inventory.EntryInput{
		TenantID:    tenantID,
		VariationID: in.VariationID,
		Quantity:    in.Quantity,
		LotID:       in.LotID,
		Meta: inventory.EntryMetadata{
			Reason:    in.Reason,
			UnitPrice: in.UnitPrice,
			ActorID:   GetUserID(c),
			Note:      in.Note,
			ExpiresAt: in.ExpiresAt,
			LotCode:   in.LotCode,
		},
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromMovement(record))
}

// RegisterSale godoc
// @Summary      Registrar venta (carrito completo, todo o nada)
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.SaleRequest  true  "channel, lines"
// @Success      201   {object}  dto.MovementsResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/inventory/sales [post]
func (h *InventoryHandler) RegisterSale(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	var in dto.SaleRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	lines := make([]inventory.SaleLine, 0, len(in.Lines))
	for _, l := range in.Lines {
		lines = append(lines, inventory.SaleLine{VariationID: l.VariationID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	records, err := h.engine.HandleSale(c.UserContext(), inventory.SaleInput{
		TenantID: tenantID,
		Channel:  in.Channel,
		ActorID:  GetUserID(c),
		Note:     in.Note,
		Lines:    lines,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromMovements(records))
}

// Balances godoc
// @Summary      Saldo por variación
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.BalancesRequest  true  "variation_ids"
// @Success      200   {object}  dto.BalancesResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Router       /api/inventory/balances [post]
func (h *InventoryHandler) Balances(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	var in dto.BalancesRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	balances, err := h.balances.ComputeBalances(c.UserContext(), tenantID, in.VariationIDs)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.BalancesResponse{Balances: balances})
}

// Reconcile godoc
// @Summary      Conciliación libro vs. lotes de una variación
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        variationId  path  string  true  "ID de la variación"
// @Success      200  {object}  inventory.ReconciliationReport
// @Router       /api/inventory/balances/{variationId}/reconciliation [get]
func (h *InventoryHandler) Reconcile(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	report, err := h.balances.Reconcile(c.UserContext(), tenantID, c.Params("variationId"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(report)
}

// ListLots godoc
// @Summary      Listar lotes
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        variation_id      query  string  false  "Filtrar por variación"
// @Param        include_depleted  query  bool    false  "Incluir lotes agotados"
// @Param        limit             query  int     false  "Límite (por defecto 50)"
// @Param        offset            query  int     false  "Desplazamiento"
// @Success      200  {array}  dto.LotResponse
// @Router       /api/inventory/lots [get]
func (h *InventoryHandler) ListLots(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	page := dto.PageRequest{Limit: c.QueryInt("limit"), Offset: c.QueryInt("offset")}
	page.DefaultPage()
	lots, err := h.ledger.ListLots(c.UserContext(), tenantID, repository.LotFilter{
		VariationID:     c.Query("variation_id"),
		IncludeDepleted: c.QueryBool("include_depleted"),
		Limit:           page.Limit,
		Offset:          page.Offset,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	out := make([]dto.LotResponse, 0, len(lots))
	for _, l := range lots {
		out = append(out, dto.FromLot(l))
	}
	return c.JSON(fiber.Map{"total": len(out), "lots": out})
}

// LotTrace godoc
// @Summary      Trazabilidad de un lote
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "ID del lote"
// @Success      200  {object}  dto.LotTraceResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventory/lots/{id}/trace [get]
func (h *InventoryHandler) LotTrace(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	trace, err := h.trace.LotTrace(c.UserContext(), tenantID, c.Params("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.FromLotTrace(trace))
}

// LotTracePDF godoc
// @Summary      Trazabilidad de un lote en PDF
// @Tags         inventory
// @Security     Bearer
// @Produce      application/pdf
// @Param        id  path  string  true  "ID del lote"
// @Success      200  {file}  binary
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventory/lots/{id}/trace.pdf [get]
func (h *InventoryHandler) LotTracePDF(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	lotID := c.Params("id")
	out, err := h.trace.LotTracePDF(c.UserContext(), tenantID, lotID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `inline; filename="lote-`+lotID+`.pdf"`)
	return c.Send(out)
}

// ListMovements godoc
// @Summary      Consultar el libro de movimientos
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        from          query  string  false  "Desde (RFC3339)"
// @Param        to            query  string  false  "Hasta (RFC3339)"
// @Param        variation_id  query  string  false  "Variación"
// @Param        lot_id        query  string  false  "Lote"
// @Param        direction     query  string  false  "ENTRY | EXIT"
// @Param        reason        query  string  false  "Motivo"
// @Param        limit         query  int     false  "Límite (por defecto 50)"
// @Param        offset        query  int     false  "Desplazamiento"
// @Success      200  {object}  dto.MovementsResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/inventory/movements [get]
func (h *InventoryHandler) ListMovements(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	from, err := queryTime(c, "from")
	if err != nil {
		return badRequest(c, "VALIDATION", "from debe ser RFC3339")
	}
	to, err := queryTime(c, "to")
	if err != nil {
		return badRequest(c, "VALIDATION", "to debe ser RFC3339")
	}
	movements, err := h.ledger.ListMovements(c.UserContext(), tenantID, repository.MovementFilter{
		From:        from,
		To:          to,
		VariationID: c.Query("variation_id"),
		LotID:       c.Query("lot_id"),
		Direction:   c.Query("direction"),
		Reason:      c.Query("reason"),
		Limit:       c.QueryInt("limit"),
		Offset:      c.QueryInt("offset"),
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.FromMovements(movements))
}

func queryTime(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
