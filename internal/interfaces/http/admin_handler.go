package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// LedgerAdminHandler correcciones administrativas del libro (solo rol admin).
// Las respuestas llevan el header X-Ledger-Override: la corrección no ajusta lotes.
type LedgerAdminHandler struct {
	uc  *inventory.LedgerAdminUseCase
	log *logger.Logger
}

// NewLedgerAdminHandler construye el handler.
func NewLedgerAdminHandler(uc *inventory.LedgerAdminUseCase, log *logger.Logger) *LedgerAdminHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &LedgerAdminHandler{uc: uc, log: log}
}

// CorrectMovement godoc
// @Summary      Corregir un registro del libro (override)
// @Tags         admin
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                    true  "ID del movimiento"
// @Param        body  body  dto.MovementPatchRequest  true  "justification y campos a corregir"
// @Success      200   {object}  dto.MovementResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      403   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/admin/inventory/movements/{id} [put]
func (h *LedgerAdminHandler) CorrectMovement(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	var in dto.MovementPatchRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	updated, err := h.uc.CorrectMovement(c.UserContext(), inventory.OverrideInput{
		TenantID:      tenantID,
		MovementID:    c.Params("id"),
		ActorID:       GetUserID(c),
		Justification: in.Justification,
	}, inventory.MovementPatch{
		Reason:    in.Reason,
		Quantity:  in.Quantity,
		UnitPrice: in.UnitPrice,
		Channel:   in.Channel,
		Note:      in.Note,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	c.Set("X-Ledger-Override", "true")
	return c.JSON(dto.FromMovement(updated))
}

// DeleteMovement godoc
// @Summary      Borrar un registro del libro (override)
// @Tags         admin
// @Security     Bearer
// @Accept       json
// @Param        id    path  string                     true  "ID del movimiento"
// @Param        body  body  dto.MovementDeleteRequest  true  "justification"
// @Success      204
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/admin/inventory/movements/{id} [delete]
func (h *LedgerAdminHandler) DeleteMovement(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	var in dto.MovementDeleteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "INVALID_BODY", "cuerpo inválido")
		}
	}
	if in.Justification == "" {
		in.Justification = c.Query("justification")
	}
	err := h.uc.DeleteMovement(c.UserContext(), inventory.OverrideInput{
		TenantID:      tenantID,
		MovementID:    c.Params("id"),
		ActorID:       GetUserID(c),
		Justification: in.Justification,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	c.Set("X-Ledger-Override", "true")
	return c.SendStatus(fiber.StatusNoContent)
}
