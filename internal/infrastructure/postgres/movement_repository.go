package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.MovementRepository = (*MovementRepo)(nil)

const movementColumns = `id, tenant_id, variation_id, lot_id, request_id, direction, reason, quantity,
	unit_price, total, channel, actor_id, note, created_at`

// MovementRepo libro de movimientos sobre PostgreSQL: solo INSERT y SELECT.
type MovementRepo struct {
	q Querier
}

// NewMovementRepository construye el adaptador. Pasar pool o tx (Querier).
func NewMovementRepository(q Querier) *MovementRepo {
	return &MovementRepo{q: q}
}

// Append inserta un registro.
func (r *MovementRepo) Append(ctx context.Context, m *entity.StockMovement) error {
	query := `
		INSERT INTO stock_movements (` + movementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.q.Exec(ctx, query,
		m.ID, m.TenantID, m.VariationID, m.LotID, m.RequestID, m.Direction, m.Reason, m.Quantity,
		m.UnitPrice, m.Total, m.Channel, m.ActorID, m.Note, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append movement: %w", classify(err))
	}
	return nil
}

// GetByID obtiene un registro del tenant; nil si no existe.
func (r *MovementRepo) GetByID(ctx context.Context, tenantID, id string) (*entity.StockMovement, error) {
	query := `SELECT ` + movementColumns + ` FROM stock_movements WHERE tenant_id = $1 AND id = $2`
	m, err := scanMovement(r.q.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get movement: %w", err)
	}
	return m, nil
}

// Query registros filtrados, más recientes primero. Limit 0 devuelve todo.
func (r *MovementRepo) Query(ctx context.Context, tenantID string, f repository.MovementFilter) ([]*entity.StockMovement, error) {
	query := `SELECT ` + movementColumns + ` FROM stock_movements WHERE tenant_id = $1`
	args := []any{tenantID}
	pos := 2
	add := func(cond string, v any) {
		query += fmt.Sprintf(" AND "+cond, pos)
		args = append(args, v)
		pos++
	}
	if f.VariationID != "" {
		add("variation_id = $%d", f.VariationID)
	}
	if f.LotID != "" {
		add("lot_id = $%d", f.LotID)
	}
	if f.Direction != "" {
		add("direction = $%d", f.Direction)
	}
	if f.Reason != "" {
		add("reason = $%d", f.Reason)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", pos)
		args = append(args, f.Limit)
		pos++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", pos)
		args = append(args, f.Offset)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	list := make([]*entity.StockMovement, 0)
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func scanMovement(row pgx.Row) (*entity.StockMovement, error) {
	var m entity.StockMovement
	err := row.Scan(
		&m.ID, &m.TenantID, &m.VariationID, &m.LotID, &m.RequestID, &m.Direction, &m.Reason, &m.Quantity,
		&m.UnitPrice, &m.Total, &m.Channel, &m.ActorID, &m.Note, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
