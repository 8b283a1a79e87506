package repository

import (
	"context"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// MovementFilter filtros de consulta del libro de movimientos.
type MovementFilter struct {
	From        *time.Time
	To          *time.Time
	VariationID string
	LotID       string
	Direction   string
	Reason      string
	Limit       int // 0 = sin límite (reproducción completa del libro)
	Offset      int
}

// MovementRepository define el puerto del libro de movimientos (MovementLedger).
// Es de solo inserción: no expone actualización ni borrado.
type MovementRepository interface {
	Append(ctx context.Context, movement *entity.StockMovement) error
	// GetByID devuelve nil, nil si no existe en el tenant.
	GetByID(ctx context.Context, tenantID, id string) (*entity.StockMovement, error)
	// Query devuelve los registros del tenant ordenados por fecha de creación descendente.
	Query(ctx context.Context, tenantID string, filter MovementFilter) ([]*entity.StockMovement, error)
}

// MovementOverrideRepository es la vía administrativa, separada y auditada, para corregir registros.
// Fuera del contrato del motor: no toca lotes y rompe la derivabilidad del saldo.
type MovementOverrideRepository interface {
	Update(ctx context.Context, movement *entity.StockMovement) error
	Delete(ctx context.Context, tenantID, id string) error
	RecordOverride(ctx context.Context, override *entity.MovementOverride) error
	ListOverrides(ctx context.Context, tenantID, movementID string) ([]*entity.MovementOverride, error)
}
