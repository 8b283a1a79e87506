package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.MovementOverrideRepository = (*OverrideRepo)(nil)

// OverrideRepo vía administrativa: modifica stock_movements y escribe movement_overrides.
// Solo la construye TxRunner.RunAdmin.
type OverrideRepo struct {
	q Querier
}

// NewOverrideRepository construye el adaptador.
func NewOverrideRepository(q Querier) *OverrideRepo {
	return &OverrideRepo{q: q}
}

// Update reescribe los campos corregibles del registro.
func (r *OverrideRepo) Update(ctx context.Context, m *entity.StockMovement) error {
	query := `
		UPDATE stock_movements
		SET reason = $3, quantity = $4, unit_price = $5, total = $6, channel = $7, note = $8
		WHERE tenant_id = $1 AND id = $2`
	tag, err := r.q.Exec(ctx, query, m.TenantID, m.ID, m.Reason, m.Quantity, m.UnitPrice, m.Total, m.Channel, m.Note)
	if err != nil {
		return fmt.Errorf("override update: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: movimiento %s", domain.ErrNotFound, m.ID)
	}
	return nil
}

func (r *OverrideRepo) Delete(ctx context.Context, tenantID, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM stock_movements WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("override delete: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: movimiento %s", domain.ErrNotFound, id)
	}
	return nil
}

// RecordOverride guarda la fila de auditoría (before/after como jsonb).
func (r *OverrideRepo) RecordOverride(ctx context.Context, o *entity.MovementOverride) error {
	query := `
		INSERT INTO movement_overrides (id, tenant_id, movement_id, action, actor_id, justification, before_data, after_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	var after any
	if o.After != nil {
		after = string(o.After)
	}
	_, err := r.q.Exec(ctx, query,
		o.ID, o.TenantID, o.MovementID, o.Action, o.ActorID, o.Justification, string(o.Before), after, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record override: %w", err)
	}
	return nil
}

// ListOverrides auditoría de un registro en orden cronológico.
func (r *OverrideRepo) ListOverrides(ctx context.Context, tenantID, movementID string) ([]*entity.MovementOverride, error) {
	query := `
		SELECT id, tenant_id, movement_id, action, actor_id, justification, before_data::text, after_data::text, created_at
		FROM movement_overrides
		WHERE tenant_id = $1 AND movement_id = $2
		ORDER BY created_at ASC, id ASC`
	rows, err := r.q.Query(ctx, query, tenantID, movementID)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	defer rows.Close()

	list := make([]*entity.MovementOverride, 0)
	for rows.Next() {
		var o entity.MovementOverride
		var before string
		var after *string
		if err := rows.Scan(&o.ID, &o.TenantID, &o.MovementID, &o.Action, &o.ActorID, &o.Justification, &before, &after, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		o.Before = []byte(before)
		if after != nil {
			o.After = []byte(*after)
		}
		list = append(list, &o)
	}
	return list, rows.Err()
}
