package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jhoicas/stock-ledger/internal/domain"
)

// Querier es lo común entre *pgxpool.Pool y pgx.Tx: los repos funcionan con ambos.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Códigos SQLSTATE relevantes.
const (
	codeNumericOutOfRange    = "22003"
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isUniqueViolation verifica si un error es una violación de constraint único (23505).
func isUniqueViolation(err error) bool {
	return pgCode(err) == codeUniqueViolation
}

// isConflict indica bloqueo no disponible, deadlock o fallo de serialización: el motor reintenta.
func isConflict(err error) bool {
	switch pgCode(err) {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	}
	return false
}

// classify traduce errores de PostgreSQL a sentinelas de dominio; el resto pasa sin cambios.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case isConflict(err):
		return fmt.Errorf("%w: %v", domain.ErrConcurrencyConflict, err)
	case pgCode(err) == codeCheckViolation:
		return fmt.Errorf("%w: %v", domain.ErrInvalidState, err)
	case pgCode(err) == codeForeignKeyViolation:
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	case pgCode(err) == codeNumericOutOfRange:
		return fmt.Errorf("%w: valor fuera del rango de NUMERIC(18,4): %v", domain.ErrInvalidInput, err)
	}
	return err
}
