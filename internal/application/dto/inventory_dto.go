package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// ExitRequest body para POST /api/inventory/exits.
type ExitRequest struct {
	VariationID string           `json:"variation_id"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Reason      string           `json:"reason"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	Channel     string           `json:"channel,omitempty"`
	Note        string           `json:"note,omitempty"`
}

// EntryRequest body para POST /api/inventory/entries. Sin lot_id se crea un lote nuevo.
type EntryRequest struct {
	VariationID string           `json:"variation_id"`
	Quantity    decimal.Decimal  `json:"quantity"`
	LotID       string           `json:"lot_id,omitempty"`
	Reason      string           `json:"reason"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	Note        string           `json:"note,omitempty"`
	ExpiresAt   *time.Time       `json:"expires_at,omitempty"`
	LotCode     string           `json:"lot_code,omitempty"`
}

// SaleLineRequest línea del carrito.
type SaleLineRequest struct {
	VariationID string           `json:"variation_id"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
}

// SaleRequest body para POST /api/inventory/sales.
type SaleRequest struct {
	Channel string            `json:"channel,omitempty"`
	Note    string            `json:"note,omitempty"`
	Lines   []SaleLineRequest `json:"lines"`
}

// BalancesRequest body para POST /api/inventory/balances.
type BalancesRequest struct {
	VariationIDs []string `json:"variation_ids"`
}

// BalancesResponse saldo por variación (cero para las desconocidas).
type BalancesResponse struct {
	Balances map[string]decimal.Decimal `json:"balances"`
}

// MovementPatchRequest body para PUT /api/admin/inventory/movements/:id. Campos ausentes no cambian.
type MovementPatchRequest struct {
	Justification string           `json:"justification"`
	Reason        *string          `json:"reason,omitempty"`
	Quantity      *decimal.Decimal `json:"quantity,omitempty"`
	UnitPrice     *decimal.Decimal `json:"unit_price,omitempty"`
	Channel       *string          `json:"channel,omitempty"`
	Note          *string          `json:"note,omitempty"`
}

// MovementDeleteRequest body para DELETE /api/admin/inventory/movements/:id.
type MovementDeleteRequest struct {
	Justification string `json:"justification"`
}

// MovementResponse registro del libro.
type MovementResponse struct {
	ID          string           `json:"id"`
	VariationID string           `json:"variation_id"`
	LotID       string           `json:"lot_id"`
	RequestID   string           `json:"request_id"`
	Direction   string           `json:"direction"`
	Reason      string           `json:"reason"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	Total       *decimal.Decimal `json:"total,omitempty"`
	Channel     string           `json:"channel,omitempty"`
	ActorID     string           `json:"actor_id,omitempty"`
	Note        string           `json:"note,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// MovementsResponse respuesta de operaciones que emiten varios registros o de listados.
type MovementsResponse struct {
	Total     int                `json:"total"`
	Movements []MovementResponse `json:"movements"`
}

// LotResponse lote físico.
type LotResponse struct {
	ID          string          `json:"id"`
	VariationID string          `json:"variation_id"`
	Code        string          `json:"code,omitempty"`
	Remaining   decimal.Decimal `json:"remaining"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// LotTraceResponse historial de un lote.
type LotTraceResponse struct {
	Lot          LotResponse        `json:"lot"`
	Movements    []MovementResponse `json:"movements"`
	TotalEntered decimal.Decimal    `json:"total_entered"`
	TotalExited  decimal.Decimal    `json:"total_exited"`
}

// FromMovement convierte la entidad en respuesta.
func FromMovement(m *entity.StockMovement) MovementResponse {
	return MovementResponse{
		ID:          m.ID,
		VariationID: m.VariationID,
		LotID:       m.LotID,
		RequestID:   m.RequestID,
		Direction:   m.Direction,
		Reason:      m.Reason,
		Quantity:    m.Quantity,
		UnitPrice:   m.UnitPrice,
		Total:       m.Total,
		Channel:     m.Channel,
		ActorID:     m.ActorID,
		Note:        m.Note,
		CreatedAt:   m.CreatedAt,
	}
}

// FromMovements convierte una lista de registros.
func FromMovements(list []*entity.StockMovement) MovementsResponse {
	out := make([]MovementResponse, 0, len(list))
	for _, m := range list {
		out = append(out, FromMovement(m))
	}
	return MovementsResponse{Total: len(out), Movements: out}
}

// FromLot convierte la entidad en respuesta.
func FromLot(l *entity.StockLot) LotResponse {
	return LotResponse{
		ID:          l.ID,
		VariationID: l.VariationID,
		Code:        l.Code,
		Remaining:   l.Remaining,
		ExpiresAt:   l.ExpiresAt,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}

// FromLotTrace convierte la trazabilidad en respuesta.
func FromLotTrace(t *inventory.LotTrace) LotTraceResponse {
	return LotTraceResponse{
		Lot:          FromLot(t.Lot),
		Movements:    FromMovements(t.Movements).Movements,
		TotalEntered: t.TotalEntered,
		TotalExited:  t.TotalExited,
	}
}
