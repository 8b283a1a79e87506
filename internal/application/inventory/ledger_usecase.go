package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	fefo "github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

const maxPageSize = 500

// LedgerQueryUseCase lectura del libro de movimientos para reportes.
type LedgerQueryUseCase struct {
	movRepo repository.MovementRepository
	lotRepo repository.LotRepository
}

// NewLedgerQueryUseCase construye el caso de uso de consulta.
func NewLedgerQueryUseCase(movRepo repository.MovementRepository, lotRepo repository.LotRepository) *LedgerQueryUseCase {
	return &LedgerQueryUseCase{movRepo: movRepo, lotRepo: lotRepo}
}

// ListMovements consulta el libro del tenant. Limit se acota a [1, 500] (por defecto 50).
func (uc *LedgerQueryUseCase) ListMovements(ctx context.Context, tenantID string, filter repository.MovementFilter) ([]*entity.StockMovement, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant obligatorio", domain.ErrInvalidInput)
	}
	if filter.Direction != "" && !entity.ValidDirection(filter.Direction) {
		return nil, fmt.Errorf("%w: dirección %q", domain.ErrInvalidInput, filter.Direction)
	}
	if filter.Reason != "" && !entity.ValidReason(filter.Reason) {
		return nil, fmt.Errorf("%w: motivo %q", domain.ErrInvalidInput, filter.Reason)
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, fmt.Errorf("%w: rango de fechas invertido", domain.ErrInvalidInput)
	}
	filter.Limit = clampLimit(filter.Limit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return uc.movRepo.Query(ctx, tenantID, filter)
}

// ListLots lista los lotes del tenant (opcionalmente de una variación, con o sin agotados).
func (uc *LedgerQueryUseCase) ListLots(ctx context.Context, tenantID string, filter repository.LotFilter) ([]*entity.StockLot, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant obligatorio", domain.ErrInvalidInput)
	}
	filter.Limit = clampLimit(filter.Limit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return uc.lotRepo.List(ctx, tenantID, filter)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > maxPageSize:
		return maxPageSize
	}
	return limit
}

// MovementPatch campos corregibles de un registro. nil = sin cambio.
type MovementPatch struct {
	Reason    *string
	Quantity  *decimal.Decimal
	UnitPrice *decimal.Decimal
	Channel   *string
	Note      *string
}

// OverrideInput datos comunes de una corrección administrativa.
type OverrideInput struct {
	TenantID      string
	MovementID    string
	ActorID       string
	Justification string
}

// LedgerAdminUseCase vía administrativa para editar o borrar registros del libro.
//
// Queda explícitamente FUERA del contrato del motor: no ajusta lotes, por lo que rompe la
// igualdad entre el libro reproducido y el saldo de los lotes (ver BalanceQuery.Reconcile).
// Cada corrección deja una fila de auditoría en la misma transacción y se registra en el log
// con override=true.
type LedgerAdminUseCase struct {
	txRunner AdminTxRunner
	log      *logger.Logger
	now      func() time.Time
}

// NewLedgerAdminUseCase construye el caso de uso administrativo.
func NewLedgerAdminUseCase(txRunner AdminTxRunner, log *logger.Logger) *LedgerAdminUseCase {
	if log == nil {
		log = logger.Nop()
	}
	return &LedgerAdminUseCase{txRunner: txRunner, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// CorrectMovement aplica patch al registro y guarda el antes/después en la auditoría.
func (uc *LedgerAdminUseCase) CorrectMovement(ctx context.Context, in OverrideInput, patch MovementPatch) (*entity.StockMovement, error) {
	if err := validateOverride(in); err != nil {
		return nil, err
	}
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	var updated *entity.StockMovement
	err := uc.txRunner.RunAdmin(ctx, func(movRepo repository.MovementRepository, overrideRepo repository.MovementOverrideRepository) error {
		current, err := movRepo.GetByID(ctx, in.TenantID, in.MovementID)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("%w: movimiento %s", domain.ErrNotFound, in.MovementID)
		}
		before, err := json.Marshal(toSnapshot(current))
		if err != nil {
			return fmt.Errorf("snapshot movimiento: %w", err)
		}

		next := current.Clone()
		if err := applyPatch(next, patch); err != nil {
			return err
		}
		after, err := json.Marshal(toSnapshot(next))
		if err != nil {
			return fmt.Errorf("snapshot movimiento: %w", err)
		}

		if err := overrideRepo.Update(ctx, next); err != nil {
			return err
		}
		if err := overrideRepo.RecordOverride(ctx, uc.newOverride(in, entity.OverrideActionUpdate, before, after)); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.log.Warn().
		Bool("override", true).
		Str("balance_invariant", "broken").
		Str("action", entity.OverrideActionUpdate).
		Str("tenant_id", in.TenantID).
		Str("movement_id", in.MovementID).
		Str("actor_id", in.ActorID).
		Str("justification", in.Justification).
		Msg("corrección administrativa de movimiento")
	return updated, nil
}

// DeleteMovement borra el registro y guarda su última versión en la auditoría.
func (uc *LedgerAdminUseCase) DeleteMovement(ctx context.Context, in OverrideInput) error {
	if err := validateOverride(in); err != nil {
		return err
	}

	err := uc.txRunner.RunAdmin(ctx, func(movRepo repository.MovementRepository, overrideRepo repository.MovementOverrideRepository) error {
		current, err := movRepo.GetByID(ctx, in.TenantID, in.MovementID)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("%w: movimiento %s", domain.ErrNotFound, in.MovementID)
		}
		before, err := json.Marshal(toSnapshot(current))
		if err != nil {
			return fmt.Errorf("snapshot movimiento: %w", err)
		}
		if err := overrideRepo.Delete(ctx, in.TenantID, in.MovementID); err != nil {
			return err
		}
		return overrideRepo.RecordOverride(ctx, uc.newOverride(in, entity.OverrideActionDelete, before, nil))
	})
	if err != nil {
		return err
	}

	uc.log.Warn().
		Bool("override", true).
		Str("balance_invariant", "broken").
		Str("action", entity.OverrideActionDelete).
		Str("tenant_id", in.TenantID).
		Str("movement_id", in.MovementID).
		Str("actor_id", in.ActorID).
		Str("justification", in.Justification).
		Msg("borrado administrativo de movimiento")
	return nil
}

func (uc *LedgerAdminUseCase) newOverride(in OverrideInput, action string, before, after []byte) *entity.MovementOverride {
	return &entity.MovementOverride{
		ID:            uuid.New().String(),
		TenantID:      in.TenantID,
		MovementID:    in.MovementID,
		Action:        action,
		ActorID:       in.ActorID,
		Justification: in.Justification,
		Before:        before,
		After:         after,
		CreatedAt:     uc.now(),
	}
}

func validateOverride(in OverrideInput) error {
	if in.TenantID == "" || in.MovementID == "" || in.ActorID == "" {
		return fmt.Errorf("%w: tenant, movimiento y actor son obligatorios", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Justification) == "" {
		return fmt.Errorf("%w: la corrección requiere justificación", domain.ErrInvalidInput)
	}
	return nil
}

func validatePatch(p MovementPatch) error {
	if p.Reason == nil && p.Quantity == nil && p.UnitPrice == nil && p.Channel == nil && p.Note == nil {
		return fmt.Errorf("%w: no hay cambios", domain.ErrInvalidInput)
	}
	if p.Reason != nil && !entity.ValidReason(*p.Reason) {
		return fmt.Errorf("%w: motivo %q", domain.ErrInvalidInput, *p.Reason)
	}
	if p.Channel != nil && !entity.ValidChannel(*p.Channel) {
		return fmt.Errorf("%w: canal %q", domain.ErrInvalidInput, *p.Channel)
	}
	if p.Quantity != nil {
		if err := fefo.ValidateQuantity(*p.Quantity); err != nil {
			return err
		}
	}
	if p.UnitPrice != nil {
		if err := fefo.ValidatePrice(*p.UnitPrice); err != nil {
			return err
		}
	}
	return nil
}

func applyPatch(m *entity.StockMovement, p MovementPatch) error {
	if p.Reason != nil {
		m.Reason = *p.Reason
	}
	if p.Quantity != nil {
		m.Quantity = *p.Quantity
	}
	if p.UnitPrice != nil {
		price := *p.UnitPrice
		m.UnitPrice = &price
	}
	if p.Channel != nil {
		m.Channel = *p.Channel
	}
	if p.Note != nil {
		m.Note = *p.Note
	}
	total, err := lineTotal(m.UnitPrice, m.Quantity)
	if err != nil {
		return err
	}
	m.Total = total
	return nil
}

// movementSnapshot forma JSON del registro guardada en la auditoría.
type movementSnapshot struct {
	ID          string           `json:"id"`
	VariationID string           `json:"variation_id"`
	LotID       string           `json:"lot_id"`
	RequestID   string           `json:"request_id"`
	Direction   string           `json:"direction"`
	Reason      string           `json:"reason"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	Total       *decimal.Decimal `json:"total,omitempty"`
	Channel     string           `json:"channel,omitempty"`
	ActorID     string           `json:"actor_id,omitempty"`
	Note        string           `json:"note,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

func toSnapshot(m *entity.StockMovement) movementSnapshot {
	return movementSnapshot{
		ID:          m.ID,
		VariationID: m.VariationID,
		LotID:       m.LotID,
		RequestID:   m.RequestID,
		Direction:   m.Direction,
		Reason:      m.Reason,
		Quantity:    m.Quantity,
		UnitPrice:   m.UnitPrice,
		Total:       m.Total,
		Channel:     m.Channel,
		ActorID:     m.ActorID,
		Note:        m.Note,
		CreatedAt:   m.CreatedAt,
	}
}
