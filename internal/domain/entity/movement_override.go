package entity

import "time"

// Acciones de corrección administrativa.
const (
	OverrideActionUpdate = "UPDATE"
	OverrideActionDelete = "DELETE"
)

// MovementOverride registra una corrección administrativa sobre el libro de movimientos.
// Estas correcciones quedan fuera del contrato del motor: rompen la derivabilidad del saldo.
type MovementOverride struct {
	ID            string
	TenantID      string
	MovementID    string
	Action        string
	ActorID       string
	Justification string
	Before        []byte // JSON del registro antes de la corrección
	After         []byte // JSON del registro después (nil en DELETE)
	CreatedAt     time.Time
}
