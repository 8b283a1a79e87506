package inventory

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción de BD, pasando repositorios atados a esa tx.
// Garantiza atomicidad para el motor de asignación: si fn devuelve error no persiste ningún cambio.
// Un conflicto de concurrencia detectado (bloqueo, deadlock, versión) se devuelve como
// domain.ErrConcurrencyConflict para que el motor reintente.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		lotRepo repository.LotRepository,
		movRepo repository.MovementRepository,
	) error) error
}

// AdminTxRunner transacción para la vía administrativa de corrección del libro.
type AdminTxRunner interface {
	RunAdmin(ctx context.Context, fn func(
		movRepo repository.MovementRepository,
		overrideRepo repository.MovementOverrideRepository,
	) error) error
}

// VariationLocker bloqueo distribuido opcional por clave (tenant + variación) previo a la transacción.
// Si no puede adquirirse debe devolver un error que envuelva domain.ErrConcurrencyConflict.
type VariationLocker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// LotTraceReportGenerator genera la representación PDF de la trazabilidad de un lote.
type LotTraceReportGenerator interface {
	GenerateLotTracePDF(ctx context.Context, trace *LotTrace) ([]byte, error)
}
