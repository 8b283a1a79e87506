package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.LotRepository = (*LotRepo)(nil)

const lotColumns = `id, tenant_id, variation_id, code, remaining, expires_at, created_at, updated_at, version`

// LotRepo implementación de LotRepository sobre PostgreSQL (usable con pool o tx).
type LotRepo struct {
	q Querier
}

// NewLotRepository construye el adaptador de lotes. Pasar pool o tx (Querier).
func NewLotRepository(q Querier) *LotRepo {
	return &LotRepo{q: q}
}

// ListAvailable lotes con saldo en orden FEFO, bloqueados con FOR UPDATE.
// Fuera de una transacción el bloqueo dura solo la sentencia.
func (r *LotRepo) ListAvailable(ctx context.Context, tenantID, variationID string) ([]*entity.StockLot, error) {
	query := `
		SELECT ` + lotColumns + `
		FROM stock_lots
		WHERE tenant_id = $1 AND variation_id = $2 AND remaining > 0
		ORDER BY expires_at ASC NULLS LAST, created_at ASC, id ASC
		FOR UPDATE`
	rows, err := r.q.Query(ctx, query, tenantID, variationID)
	if err != nil {
		return nil, fmt.Errorf("list available lots: %w", classify(err))
	}
	defer rows.Close()
	lots, err := scanLots(rows)
	if err != nil {
		return nil, fmt.Errorf("list available lots: %w", classify(err))
	}
	return lots, nil
}

// GetByID obtiene un lote del tenant; nil si no existe.
func (r *LotRepo) GetByID(ctx context.Context, tenantID, lotID string) (*entity.StockLot, error) {
	query := `SELECT ` + lotColumns + ` FROM stock_lots WHERE tenant_id = $1 AND id = $2`
	lot, err := scanLot(r.q.QueryRow(ctx, query, tenantID, lotID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lot: %w", err)
	}
	return lot, nil
}

// Create persiste un lote nuevo con versión 1.
func (r *LotRepo) Create(ctx context.Context, lot *entity.StockLot) error {
	query := `
		INSERT INTO stock_lots (id, tenant_id, variation_id, code, remaining, expires_at, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)`
	_, err := r.q.Exec(ctx, query,
		lot.ID, lot.TenantID, lot.VariationID, lot.Code, lot.Remaining, lot.ExpiresAt, lot.CreatedAt, lot.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: el lote %s ya existe", domain.ErrInvalidInput, lot.ID)
		}
		return fmt.Errorf("create lot: %w", classify(err))
	}
	lot.Version = 1
	return nil
}

// Adjust suma delta al saldo en una sola sentencia; la condición del WHERE impide el saldo negativo.
func (r *LotRepo) Adjust(ctx context.Context, tenantID, lotID string, delta decimal.Decimal) (*entity.StockLot, error) {
	query := `
		UPDATE stock_lots
		SET remaining = remaining + $3, version = version + 1, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND remaining + $3 >= 0
		RETURNING ` + lotColumns
	lot, err := scanLot(r.q.QueryRow(ctx, query, tenantID, lotID, delta))
	if err == nil {
		return lot, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("adjust lot: %w", classify(err))
	}

	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stock_lots WHERE tenant_id = $1 AND id = $2)`, tenantID, lotID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("adjust lot: %w", classify(err))
	}
	if !exists {
		return nil, fmt.Errorf("%w: lote %s", domain.ErrNotFound, lotID)
	}
	return nil, fmt.Errorf("%w: el lote %s no admite un ajuste de %s", domain.ErrInvalidState, lotID, delta.String())
}

// List lotes del tenant, más recientes primero.
func (r *LotRepo) List(ctx context.Context, tenantID string, filter repository.LotFilter) ([]*entity.StockLot, error) {
	query := `SELECT ` + lotColumns + ` FROM stock_lots WHERE tenant_id = $1`
	args := []any{tenantID}
	pos := 2
	if filter.VariationID != "" {
		query += fmt.Sprintf(" AND variation_id = $%d", pos)
		args = append(args, filter.VariationID)
		pos++
	}
	if !filter.IncludeDepleted {
		query += " AND remaining > 0"
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", pos)
		args = append(args, filter.Limit)
		pos++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", pos)
		args = append(args, filter.Offset)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	defer rows.Close()
	return scanLots(rows)
}

// SumRemaining saldo agregado por variación (GROUP BY); las variaciones sin lotes no aparecen.
func (r *LotRepo) SumRemaining(ctx context.Context, tenantID string, variationIDs []string) (map[string]decimal.Decimal, error) {
	query := `
		SELECT variation_id, COALESCE(SUM(remaining), 0)
		FROM stock_lots
		WHERE tenant_id = $1 AND variation_id = ANY($2)
		GROUP BY variation_id`
	rows, err := r.q.Query(ctx, query, tenantID, variationIDs)
	if err != nil {
		return nil, fmt.Errorf("sum remaining: %w", err)
	}
	defer rows.Close()

	sums := make(map[string]decimal.Decimal, len(variationIDs))
	for rows.Next() {
		var id string
		var total decimal.Decimal
		if err := rows.Scan(&id, &total); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		sums[id] = total
	}
	return sums, rows.Err()
}

func scanLot(row pgx.Row) (*entity.StockLot, error) {
	var l entity.StockLot
	if err := row.Scan(&l.ID, &l.TenantID, &l.VariationID, &l.Code, &l.Remaining, &l.ExpiresAt, &l.CreatedAt, &l.UpdatedAt, &l.Version); err != nil {
		return nil, err
	}
	return &l, nil
}

func scanLots(rows pgx.Rows) ([]*entity.StockLot, error) {
	lots := make([]*entity.StockLot, 0)
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		lots = append(lots, l)
	}
	return lots, rows.Err()
}
