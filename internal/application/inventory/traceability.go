package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// LotTrace historial completo de un lote (caso de uso de retiro / recall).
type LotTrace struct {
	Lot          *entity.StockLot
	Movements    []*entity.StockMovement // orden cronológico ascendente
	TotalEntered decimal.Decimal
	TotalExited  decimal.Decimal
}

// TraceabilityUseCase consulta la trazabilidad de lotes.
type TraceabilityUseCase struct {
	lotRepo   repository.LotRepository
	movRepo   repository.MovementRepository
	generator LotTraceReportGenerator
}

// NewTraceabilityUseCase construye el caso de uso. generator puede ser nil si no se exporta PDF.
func NewTraceabilityUseCase(lotRepo repository.LotRepository, movRepo repository.MovementRepository, generator LotTraceReportGenerator) *TraceabilityUseCase {
	return &TraceabilityUseCase{lotRepo: lotRepo, movRepo: movRepo, generator: generator}
}

// LotTrace devuelve el lote y todos sus registros en orden cronológico.
func (uc *TraceabilityUseCase) LotTrace(ctx context.Context, tenantID, lotID string) (*LotTrace, error) {
	if tenantID == "" || lotID == "" {
		return nil, fmt.Errorf("%w: tenant y lote son obligatorios", domain.ErrInvalidInput)
	}
	lot, err := uc.lotRepo.GetByID(ctx, tenantID, lotID)
	if err != nil {
		return nil, err
	}
	if lot == nil {
		return nil, fmt.Errorf("%w: lote %s", domain.ErrNotFound, lotID)
	}
	movements, err := uc.movRepo.Query(ctx, tenantID, repository.MovementFilter{LotID: lotID})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(movements, func(i, j int) bool { return movements[i].CreatedAt.Before(movements[j].CreatedAt) })

	trace := &LotTrace{Lot: lot, Movements: movements, TotalEntered: decimal.Zero, TotalExited: decimal.Zero}
	for _, m := range movements {
		if m.Direction == entity.DirectionEntry {
			trace.TotalEntered = trace.TotalEntered.Add(m.Quantity)
		} else {
			trace.TotalExited = trace.TotalExited.Add(m.Quantity)
		}
	}
	return trace, nil
}

// LotTracePDF genera el PDF de trazabilidad del lote.
func (uc *TraceabilityUseCase) LotTracePDF(ctx context.Context, tenantID, lotID string) ([]byte, error) {
	if uc.generator == nil {
		return nil, fmt.Errorf("generador de PDF no configurado")
	}
	trace, err := uc.LotTrace(ctx, tenantID, lotID)
	if err != nil {
		return nil, err
	}
	return uc.generator.GenerateLotTracePDF(ctx, trace)
}
