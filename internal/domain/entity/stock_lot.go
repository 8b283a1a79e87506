package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockLot representa un lote físico de una variación. Pertenece a un único par tenant/variación.
// Un lote con Remaining en cero se conserva como histórico (trazabilidad) y no vuelve a asignarse.
type StockLot struct {
	ID          string
	TenantID    string
	VariationID string
	Code        string // código de lote impreso en el empaque (opcional)
	Remaining   decimal.Decimal
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int64
}

// Available indica si el lote todavía puede participar en una asignación.
func (l *StockLot) Available() bool {
	return l.Remaining.GreaterThan(decimal.Zero)
}

// Clone devuelve una copia independiente (incluido ExpiresAt).
func (l *StockLot) Clone() *StockLot {
	c := *l
	if l.ExpiresAt != nil {
		exp := *l.ExpiresAt
		c.ExpiresAt = &exp
	}
	return &c
}
