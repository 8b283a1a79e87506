package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// BalanceQuery agrega saldos de solo lectura sobre los lotes. Es consultivo: HandleExit vuelve
// a validar dentro de su transacción y es la única fuente de verdad.
type BalanceQuery struct {
	lotRepo repository.LotRepository
	movRepo repository.MovementRepository
}

// NewBalanceQuery construye la consulta de saldos.
func NewBalanceQuery(lotRepo repository.LotRepository, movRepo repository.MovementRepository) *BalanceQuery {
	return &BalanceQuery{lotRepo: lotRepo, movRepo: movRepo}
}

// ComputeBalances devuelve el saldo agregado por variación. Las variaciones sin lotes aparecen con cero.
func (q *BalanceQuery) ComputeBalances(ctx context.Context, tenantID string, variationIDs []string) (map[string]decimal.Decimal, error) {
	if tenantID == "" || len(variationIDs) == 0 {
		return nil, fmt.Errorf("%w: tenant y variaciones son obligatorios", domain.ErrInvalidInput)
	}
	unique := make([]string, 0, len(variationIDs))
	seen := make(map[string]struct{}, len(variationIDs))
	for _, id := range variationIDs {
		if id == "" {
			return nil, fmt.Errorf("%w: id de variación vacío", domain.ErrInvalidInput)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	sums, err := q.lotRepo.SumRemaining(ctx, tenantID, unique)
	if err != nil {
		return nil, err
	}
	balances := make(map[string]decimal.Decimal, len(unique))
	for _, id := range unique {
		if s, ok := sums[id]; ok {
			balances[id] = s
		} else {
			balances[id] = decimal.Zero
		}
	}
	return balances, nil
}

// LotDrift diferencia entre el saldo reconstruido desde el libro y el saldo actual de un lote.
type LotDrift struct {
	LotID         string          `json:"lot_id"`
	LedgerBalance decimal.Decimal `json:"ledger_balance"`
	LotRemaining  decimal.Decimal `json:"lot_remaining"`
}

// ReconciliationReport resultado de reproducir el libro de una variación.
type ReconciliationReport struct {
	VariationID   string          `json:"variation_id"`
	LedgerBalance decimal.Decimal `json:"ledger_balance"`
	LotBalance    decimal.Decimal `json:"lot_balance"`
	Records       int             `json:"records"`
	Drifts        []LotDrift      `json:"drifts"`
	Consistent    bool            `json:"consistent"`
}

// Reconcile reproduce todos los registros de la variación (ENTRY suma, EXIT resta) por lote y los
// compara con el saldo actual. Con solo operaciones del motor el reporte es consistente; las
// correcciones administrativas aparecen como desviaciones.
func (q *BalanceQuery) Reconcile(ctx context.Context, tenantID, variationID string) (*ReconciliationReport, error) {
	if tenantID == "" || variationID == "" {
		return nil, fmt.Errorf("%w: tenant y variación son obligatorios", domain.ErrInvalidInput)
	}
	movements, err := q.movRepo.Query(ctx, tenantID, repository.MovementFilter{VariationID: variationID})
	if err != nil {
		return nil, err
	}
	lots, err := q.lotRepo.List(ctx, tenantID, repository.LotFilter{VariationID: variationID, IncludeDepleted: true})
	if err != nil {
		return nil, err
	}

	ledger := make(map[string]decimal.Decimal)
	ledgerTotal := decimal.Zero
	for _, m := range movements {
		ledger[m.LotID] = ledger[m.LotID].Add(m.SignedQuantity())
		ledgerTotal = ledgerTotal.Add(m.SignedQuantity())
	}

	report := &ReconciliationReport{
		VariationID:   variationID,
		LedgerBalance: ledgerTotal,
		LotBalance:    decimal.Zero,
		Records:       len(movements),
		Drifts:        []LotDrift{},
	}
	known := make(map[string]struct{}, len(lots))
	for _, l := range lots {
		known[l.ID] = struct{}{}
		report.LotBalance = report.LotBalance.Add(l.Remaining)
		if fromLedger := ledger[l.ID]; !fromLedger.Equal(l.Remaining) {
			report.Drifts = append(report.Drifts, LotDrift{LotID: l.ID, LedgerBalance: fromLedger, LotRemaining: l.Remaining})
		}
	}
	// Registros que apuntan a lotes inexistentes en el tenant también son desviaciones.
	for lotID, fromLedger := range ledger {
		if _, ok := known[lotID]; !ok {
			report.Drifts = append(report.Drifts, LotDrift{LotID: lotID, LedgerBalance: fromLedger, LotRemaining: decimal.Zero})
		}
	}
	sort.Slice(report.Drifts, func(i, j int) bool { return report.Drifts[i].LotID < report.Drifts[j].LotID })
	report.Consistent = len(report.Drifts) == 0 && report.LedgerBalance.Equal(report.LotBalance)
	return report, nil
}
