package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	fefo "github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.LotRepository = (*LotRepo)(nil)

// LotRepo implementa repository.LotRepository. Con tx nil lee el estado confirmado y
// cada escritura se confirma sola.
type LotRepo struct {
	s  *Store
	tx *tx
}

func (r *LotRepo) read(fn func(t *tx)) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	fn(r.tx)
}

func (r *LotRepo) write(fn func(t *tx) error) error {
	if r.tx != nil {
		r.s.mu.Lock()
		defer r.s.mu.Unlock()
		return fn(r.tx)
	}
	return r.s.autocommit(func(t *tx) error {
		r.s.mu.Lock()
		defer r.s.mu.Unlock()
		return fn(t)
	})
}

// ListAvailable lotes con saldo en orden FEFO. Dentro de una transacción los lotes devueltos
// quedan registrados con su versión (equivalente a FOR UPDATE): si otro commit los modifica
// antes, el commit propio falla con ErrConcurrencyConflict.
func (r *LotRepo) ListAvailable(ctx context.Context, tenantID, variationID string) ([]*entity.StockLot, error) {
	var out []*entity.StockLot
	var err error
	r.read(func(t *tx) {
		for _, l := range r.s.visibleLots(t, tenantID) {
			if l.VariationID != variationID || !l.Available() {
				continue
			}
			if t != nil {
				staged, stageErr := t.stage(tenantID, l.ID)
				if stageErr != nil {
					err = stageErr
					return
				}
				l = staged.Clone()
			}
			out = append(out, l)
		}
	})
	if err != nil {
		return nil, err
	}
	fefo.SortFEFO(out)
	return out, nil
}

func (r *LotRepo) GetByID(ctx context.Context, tenantID, lotID string) (*entity.StockLot, error) {
	var found *entity.StockLot
	r.read(func(t *tx) {
		if t != nil {
			if l, ok := t.staged[lotID]; ok {
				if l.TenantID == tenantID {
					found = l.Clone()
				}
				return
			}
		}
		if l, ok := r.s.lots[lotID]; ok && l.TenantID == tenantID {
			found = l.Clone()
		}
	})
	return found, nil
}

func (r *LotRepo) Create(ctx context.Context, lot *entity.StockLot) error {
	if lot == nil || lot.ID == "" || lot.TenantID == "" || lot.VariationID == "" {
		return fmt.Errorf("%w: lote incompleto", domain.ErrInvalidInput)
	}
	if lot.Remaining.IsNegative() {
		return fmt.Errorf("%w: saldo inicial negativo", domain.ErrInvalidState)
	}
	return r.write(func(t *tx) error {
		if _, ok := r.s.lots[lot.ID]; ok {
			return fmt.Errorf("%w: el lote %s ya existe", domain.ErrInvalidInput, lot.ID)
		}
		if _, ok := t.staged[lot.ID]; ok {
			return fmt.Errorf("%w: el lote %s ya existe", domain.ErrInvalidInput, lot.ID)
		}
		t.staged[lot.ID] = lot.Clone()
		t.created[lot.ID] = true
		return nil
	})
}

func (r *LotRepo) Adjust(ctx context.Context, tenantID, lotID string, delta decimal.Decimal) (*entity.StockLot, error) {
	var result *entity.StockLot
	err := r.write(func(t *tx) error {
		l, err := t.stage(tenantID, lotID)
		if err != nil {
			return err
		}
		next := l.Remaining.Add(delta)
		if next.IsNegative() {
			return fmt.Errorf("%w: el lote %s quedaría con saldo %s", domain.ErrInvalidState, lotID, next.String())
		}
		if next.GreaterThanOrEqual(fefo.MaxAmount) {
			return fmt.Errorf("%w: el saldo del lote %s excede el máximo admitido", domain.ErrInvalidInput, lotID)
		}
		l.Remaining = next
		l.UpdatedAt = r.s.now()
		result = l.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// List lotes del tenant, más recientes primero.
func (r *LotRepo) List(ctx context.Context, tenantID string, filter repository.LotFilter) ([]*entity.StockLot, error) {
	var out []*entity.StockLot
	r.read(func(t *tx) {
		for _, l := range r.s.visibleLots(t, tenantID) {
			if filter.VariationID != "" && l.VariationID != filter.VariationID {
				continue
			}
			if !filter.IncludeDepleted && !l.Available() {
				continue
			}
			out = append(out, l)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (r *LotRepo) SumRemaining(ctx context.Context, tenantID string, variationIDs []string) (map[string]decimal.Decimal, error) {
	wanted := make(map[string]struct{}, len(variationIDs))
	for _, id := range variationIDs {
		wanted[id] = struct{}{}
	}
	sums := make(map[string]decimal.Decimal)
	r.read(func(t *tx) {
		for _, l := range r.s.visibleLots(t, tenantID) {
			if _, ok := wanted[l.VariationID]; !ok {
				continue
			}
			sums[l.VariationID] = sums[l.VariationID].Add(l.Remaining)
		}
	})
	return sums, nil
}
