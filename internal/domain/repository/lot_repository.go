package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// LotFilter filtros para listar lotes de un tenant.
type LotFilter struct {
	VariationID     string
	IncludeDepleted bool // incluir lotes con saldo cero (histórico)
	Limit           int  // 0 = sin límite
	Offset          int
}

// LotRepository define el puerto de persistencia de lotes (LotStore).
// El tenant es parámetro obligatorio de toda consulta: no existe acceso a un lote sin su tenant.
type LotRepository interface {
	// ListAvailable devuelve los lotes con saldo > 0 en orden FEFO: vencimiento ascendente,
	// lotes sin vencimiento al final, desempate por fecha de creación y luego por ID.
	// Dentro de una transacción bloquea las filas devueltas.
	ListAvailable(ctx context.Context, tenantID, variationID string) ([]*entity.StockLot, error)
	// GetByID devuelve nil, nil si el lote no existe en el tenant.
	GetByID(ctx context.Context, tenantID, lotID string) (*entity.StockLot, error)
	Create(ctx context.Context, lot *entity.StockLot) error
	// Adjust suma delta al saldo del lote. ErrInvalidState si el resultado fuera negativo,
	// ErrNotFound si el lote no existe en el tenant.
	Adjust(ctx context.Context, tenantID, lotID string, delta decimal.Decimal) (*entity.StockLot, error)
	List(ctx context.Context, tenantID string, filter LotFilter) ([]*entity.StockLot, error)
	// SumRemaining agrega el saldo por variación. Las variaciones sin lotes no aparecen en el mapa.
	SumRemaining(ctx context.Context, tenantID string, variationIDs []string) (map[string]decimal.Decimal, error)
}
