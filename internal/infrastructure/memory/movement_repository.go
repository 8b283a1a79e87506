package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var (
	_ repository.MovementRepository         = (*MovementRepo)(nil)
	_ repository.MovementOverrideRepository = (*MovementRepo)(nil)
)

// MovementRepo implementa el libro y, dentro de RunAdmin, la vía de corrección.
type MovementRepo struct {
	s  *Store
	tx *tx
}

func (r *MovementRepo) read(fn func(t *tx)) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	fn(r.tx)
}

func (r *MovementRepo) write(fn func(t *tx) error) error {
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

func (r *MovementRepo) Append(ctx context.Context, movement *entity.StockMovement) error {
	if movement == nil || movement.ID == "" || movement.TenantID == "" || movement.LotID == "" {
		return fmt.Errorf("%w: movimiento incompleto", domain.ErrInvalidInput)
	}
	return r.write(func(t *tx) error {
		t.appended = append(t.appended, movement.Clone())
		return nil
	})
}

func (r *MovementRepo) GetByID(ctx context.Context, tenantID, id string) (*entity.StockMovement, error) {
	var found *entity.StockMovement
	r.read(func(t *tx) {
		found = r.find(t, tenantID, id)
	})
	return found, nil
}

// find requiere s.mu tomado.
func (r *MovementRepo) find(t *tx, tenantID, id string) *entity.StockMovement {
	for _, m := range r.s.visibleMovements(t, tenantID) {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Query registros del tenant filtrados, más recientes primero.
func (r *MovementRepo) Query(ctx context.Context, tenantID string, filter repository.MovementFilter) ([]*entity.StockMovement, error) {
	var out []*entity.StockMovement
	r.read(func(t *tx) {
		for _, m := range r.s.visibleMovements(t, tenantID) {
			if matches(m, filter) {
				out = append(out, m)
			}
		}
	})
	sortMovementsDesc(out)
	return paginate(out, filter.Limit, filter.Offset), nil
}

func matches(m *entity.StockMovement, f repository.MovementFilter) bool {
	switch {
	case f.VariationID != "" && m.VariationID != f.VariationID:
		return false
	case f.LotID != "" && m.LotID != f.LotID:
		return false
	case f.Direction != "" && m.Direction != f.Direction:
		return false
	case f.Reason != "" && m.Reason != f.Reason:
		return false
	case f.From != nil && m.CreatedAt.Before(*f.From):
		return false
	case f.To != nil && m.CreatedAt.After(*f.To):
		return false
	}
	return true
}

// ── Vía administrativa ────────────────────────────────────────────────────────

// Update reemplaza los campos corregibles; identidad, lote, dirección y fecha se conservan.
func (r *MovementRepo) Update(ctx context.Context, movement *entity.StockMovement) error {
	return r.write(func(t *tx) error {
		current := r.find(t, movement.TenantID, movement.ID)
		if current == nil {
			return fmt.Errorf("%w: movimiento %s", domain.ErrNotFound, movement.ID)
		}
		current.Reason = movement.Reason
		current.Quantity = movement.Quantity
		current.UnitPrice = movement.UnitPrice
		current.Total = movement.Total
		current.Channel = movement.Channel
		current.Note = movement.Note
		t.updated[current.ID] = current.Clone()
		return nil
	})
}

func (r *MovementRepo) Delete(ctx context.Context, tenantID, id string) error {
	return r.write(func(t *tx) error {
		if r.find(t, tenantID, id) == nil {
			return fmt.Errorf("%w: movimiento %s", domain.ErrNotFound, id)
		}
		delete(t.updated, id)
		t.deleted[id] = true
		return nil
	})
}

func (r *MovementRepo) RecordOverride(ctx context.Context, override *entity.MovementOverride) error {
	if override == nil || override.ID == "" || override.TenantID == "" {
		return fmt.Errorf("%w: auditoría incompleta", domain.ErrInvalidInput)
	}
	return r.write(func(t *tx) error {
		t.overrides = append(t.overrides, cloneOverride(override))
		return nil
	})
}

// ListOverrides auditoría de un registro en orden cronológico.
func (r *MovementRepo) ListOverrides(ctx context.Context, tenantID, movementID string) ([]*entity.MovementOverride, error) {
	out := make([]*entity.MovementOverride, 0)
	r.read(func(t *tx) {
		all := r.s.overrides
		if t != nil {
			all = append(append([]*entity.MovementOverride{}, all...), t.overrides...)
		}
		for _, o := range all {
			if o.TenantID == tenantID && o.MovementID == movementID {
				out = append(out, cloneOverride(o))
			}
		}
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func cloneOverride(o *entity.MovementOverride) *entity.MovementOverride {
	c := *o
	c.Before = append([]byte(nil), o.Before...)
	if o.After != nil {
		c.After = append([]byte(nil), o.After...)
	}
	return &c
}
