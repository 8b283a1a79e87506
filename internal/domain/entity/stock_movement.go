package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Dirección del movimiento.
const (
	DirectionEntry = "ENTRY" // entrada
	DirectionExit  = "EXIT"  // salida
)

// Motivos de movimiento.
const (
	ReasonPurchase   = "PURCHASE"
	ReasonSale       = "SALE"
	ReasonAdjustment = "ADJUSTMENT"
	ReasonReturn     = "RETURN"
	ReasonTransfer   = "TRANSFER"
	ReasonLoss       = "LOSS"
)

// Canales de venta.
const (
	ChannelCounter     = "COUNTER" // mostrador
	ChannelWhatsApp    = "WHATSAPP"
	ChannelInstagram   = "INSTAGRAM"
	ChannelMarketplace = "MARKETPLACE"
	ChannelOther       = "OTHER"
)

// ValidDirection indica si d es una dirección conocida.
func ValidDirection(d string) bool {
	return d == DirectionEntry || d == DirectionExit
}

// ValidReason indica si r es un motivo conocido.
func ValidReason(r string) bool {
	switch r {
	case ReasonPurchase, ReasonSale, ReasonAdjustment, ReasonReturn, ReasonTransfer, ReasonLoss:
		return true
	}
	return false
}

// ValidChannel indica si c es un canal conocido. El canal es opcional: vacío es válido.
func ValidChannel(c string) bool {
	switch c {
	case "", ChannelCounter, ChannelWhatsApp, ChannelInstagram, ChannelMarketplace, ChannelOther:
		return true
	}
	return false
}

// StockMovement es un registro inmutable del libro de movimientos: un cambio de cantidad contra un lote.
// Una salida lógica puede producir varios registros (uno por lote consumido) que comparten RequestID.
type StockMovement struct {
	ID          string
	TenantID    string
	VariationID string
	LotID       string
	RequestID   string
	Direction   string
	Reason      string
	Quantity    decimal.Decimal // siempre positivo; el signo lo da Direction
	UnitPrice   *decimal.Decimal
	Total       *decimal.Decimal
	Channel     string
	ActorID     string
	Note        string
	CreatedAt   time.Time
}

// SignedQuantity devuelve +Quantity para entradas y -Quantity para salidas.
func (m *StockMovement) SignedQuantity() decimal.Decimal {
	if m.Direction == DirectionExit {
		return m.Quantity.Neg()
	}
	return m.Quantity
}

// Clone devuelve una copia independiente del registro.
func (m *StockMovement) Clone() *StockMovement {
	c := *m
	if m.UnitPrice != nil {
		p := *m.UnitPrice
		c.UnitPrice = &p
	}
	if m.Total != nil {
		t := *m.Total
		c.Total = &t
	}
	return &c
}
