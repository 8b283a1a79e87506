// Package inventory contiene la política de asignación de lotes (FEFO) como servicio de dominio puro,
// sin dependencias de persistencia.
package inventory

import (
	"fmt"
	"sort"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// QuantityScale es el número máximo de decimales aceptado en cantidades, precios y totales (NUMERIC(18,4)).
const QuantityScale = 4

// MaxAmount cota exclusiva de cantidades, precios, totales y saldos: NUMERIC(18,4) guarda 14 dígitos enteros.
var MaxAmount = decimal.New(1, 18-QuantityScale)

// Allocation porción de una salida asignada a un lote concreto.
type Allocation struct {
	Lot      *entity.StockLot
	Quantity decimal.Decimal
}

// LessFEFO define el orden First-Expire-First-Out:
// vencimiento ascendente, lotes sin vencimiento después de todos los que tienen,
// desempate por fecha de creación ascendente y finalmente por ID para que el orden sea determinista.
func LessFEFO(a, b *entity.StockLot) bool {
	switch {
	case a.ExpiresAt != nil && b.ExpiresAt == nil:
		return true
	case a.ExpiresAt == nil && b.ExpiresAt != nil:
		return false
	case a.ExpiresAt != nil && b.ExpiresAt != nil && !a.ExpiresAt.Equal(*b.ExpiresAt):
		return a.ExpiresAt.Before(*b.ExpiresAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SortFEFO ordena los lotes in place según LessFEFO.
func SortFEFO(lots []*entity.StockLot) {
	sort.SliceStable(lots, func(i, j int) bool { return LessFEFO(lots[i], lots[j]) })
}

// TotalRemaining suma el saldo de los lotes.
func TotalRemaining(lots []*entity.StockLot) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lots {
		total = total.Add(l.Remaining)
	}
	return total
}

// PlanExit reparte quantity entre los lotes (ya ordenados FEFO) consumiendo min(saldo, pendiente)
// de cada uno hasta cubrir la cantidad. Si el saldo agregado no alcanza devuelve ErrInsufficientStock
// sin plan parcial. No modifica los lotes.
func PlanExit(lots []*entity.StockLot, quantity decimal.Decimal) ([]Allocation, error) {
	if !quantity.GreaterThan(decimal.Zero) {
		return nil, domain.ErrInvalidInput
	}
	available := TotalRemaining(lots)
	if available.LessThan(quantity) {
		return nil, fmt.Errorf("%w: solicitado %s, disponible %s", domain.ErrInsufficientStock, quantity, available)
	}

	plan := make([]Allocation, 0, len(lots))
	pending := quantity
	for _, lot := range lots {
		if pending.IsZero() {
			break
		}
		if !lot.Available() {
			continue
		}
		take := decimal.Min(lot.Remaining, pending)
		plan = append(plan, Allocation{Lot: lot, Quantity: take})
		pending = pending.Sub(take)
	}
	return plan, nil
}

// ValidateQuantity exige una cantidad estrictamente positiva con a lo sumo QuantityScale decimales.
func ValidateQuantity(q decimal.Decimal) error {
	if !q.GreaterThan(decimal.Zero) {
		return fmt.Errorf("%w: la cantidad debe ser positiva", domain.ErrInvalidInput)
	}
	if !q.Equal(q.Truncate(QuantityScale)) {
		return fmt.Errorf("%w: la cantidad admite máximo %d decimales", domain.ErrInvalidInput, QuantityScale)
	}
	if q.GreaterThanOrEqual(MaxAmount) {
		return fmt.Errorf("%w: la cantidad debe ser menor que %s", domain.ErrInvalidInput, MaxAmount)
	}
	return nil
}

// ValidatePrice exige un precio no negativo con a lo sumo QuantityScale decimales.
func ValidatePrice(p decimal.Decimal) error {
	if p.LessThan(decimal.Zero) {
		return fmt.Errorf("%w: el precio no puede ser negativo", domain.ErrInvalidInput)
	}
	if !p.Equal(p.Truncate(QuantityScale)) {
		return fmt.Errorf("%w: el precio admite máximo %d decimales", domain.ErrInvalidInput, QuantityScale)
	}
	if p.GreaterThanOrEqual(MaxAmount) {
		return fmt.Errorf("%w: el precio debe ser menor que %s", domain.ErrInvalidInput, MaxAmount)
	}
	return nil
}

// LineTotal devuelve precio × cantidad redondeado a QuantityScale decimales, mitad lejos de cero
// (0.11108889 → 0.1111, 0.00005 → 0.0001). Es el valor que se guarda y el que recibe el caller.
// ErrInvalidInput si el total no cabe en MaxAmount.
func LineTotal(price, quantity decimal.Decimal) (decimal.Decimal, error) {
	t := price.Mul(quantity).Round(QuantityScale)
	if t.Abs().GreaterThanOrEqual(MaxAmount) {
		return decimal.Zero, fmt.Errorf("%w: el total %s excede el máximo admitido", domain.ErrInvalidInput, t)
	}
	return t, nil
}
