// Package memory implementa LotStore y MovementLedger en memoria con concurrencia optimista:
// cada transacción trabaja sobre copias de los lotes que toca y, al confirmar, verifica que la
// versión de cada lote no haya cambiado. Si cambió devuelve domain.ErrConcurrencyConflict y no
// aplica nada. Se usa en modo STORE_DRIVER=memory y en los tests del motor.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var (
	_ inventory.TxRunner      = (*Store)(nil)
	_ inventory.AdminTxRunner = (*Store)(nil)
)

// Store estado confirmado en memoria.
type Store struct {
	mu        sync.Mutex
	lots      map[string]*entity.StockLot
	movements []*entity.StockMovement
	overrides []*entity.MovementOverride
	now       func() time.Time
}

// Option configura el store.
type Option func(*Store)

// WithClock reemplaza el reloj usado en UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore construye un store vacío.
func NewStore(opts ...Option) *Store {
	s := &Store{
		lots: make(map[string]*entity.StockLot),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ejecuta fn en una transacción optimista y confirma si fn no devuelve error.
func (s *Store) Run(ctx context.Context, fn func(
	lotRepo repository.LotRepository,
	movRepo repository.MovementRepository,
) error) error {
	tx := s.begin()
	if err := fn(&LotRepo{s: s, tx: tx}, &MovementRepo{s: s, tx: tx}); err != nil {
		return err
	}
	return tx.commit()
}

// RunAdmin transacción para la vía administrativa.
func (s *Store) RunAdmin(ctx context.Context, fn func(
	movRepo repository.MovementRepository,
	overrideRepo repository.MovementOverrideRepository,
) error) error {
	tx := s.begin()
	repo := &MovementRepo{s: s, tx: tx}
	if err := fn(repo, repo); err != nil {
		return err
	}
	return tx.commit()
}

// Lots repositorio de lotes fuera de transacción (lecturas confirmadas; escrituras con autocommit).
func (s *Store) Lots() *LotRepo { return &LotRepo{s: s} }

// Movements repositorio del libro fuera de transacción.
func (s *Store) Movements() *MovementRepo { return &MovementRepo{s: s} }

// ── Transacción ───────────────────────────────────────────────────────────────

type tx struct {
	s           *Store
	staged      map[string]*entity.StockLot // copias de lotes tocados o creados
	readVersion map[string]int64            // versión confirmada al momento de tocar el lote
	created     map[string]bool
	appended    []*entity.StockMovement
	updated     map[string]*entity.StockMovement
	deleted     map[string]bool
	overrides   []*entity.MovementOverride
}

func (s *Store) begin() *tx {
	return &tx{
		s:           s,
		staged:      make(map[string]*entity.StockLot),
		readVersion: make(map[string]int64),
		created:     make(map[string]bool),
		updated:     make(map[string]*entity.StockMovement),
		deleted:     make(map[string]bool),
	}
}

// stage devuelve la copia de trabajo del lote, registrando la versión leída. Requiere s.mu tomado.
func (t *tx) stage(tenantID, lotID string) (*entity.StockLot, error) {
	if l, ok := t.staged[lotID]; ok {
		if l.TenantID != tenantID {
			return nil, fmt.Errorf("%w: lote %s", domain.ErrNotFound, lotID)
		}
		return l, nil
	}
	committed, ok := t.s.lots[lotID]
	if !ok || committed.TenantID != tenantID {
		return nil, fmt.Errorf("%w: lote %s", domain.ErrNotFound, lotID)
	}
	c := committed.Clone()
	t.staged[lotID] = c
	t.readVersion[lotID] = committed.Version
	return c, nil
}

// visibleLots lotes del tenant vistos por t (confirmados más cambios propios; t puede ser nil). Requiere s.mu.
func (s *Store) visibleLots(t *tx, tenantID string) []*entity.StockLot {
	out := make([]*entity.StockLot, 0)
	for id, l := range s.lots {
		if l.TenantID != tenantID {
			continue
		}
		if t != nil {
			if st, ok := t.staged[id]; ok {
				out = append(out, st.Clone())
				continue
			}
		}
		out = append(out, l.Clone())
	}
	if t != nil {
		for id := range t.created {
			if st := t.staged[id]; st.TenantID == tenantID {
				out = append(out, st.Clone())
			}
		}
	}
	return out
}

// visibleMovements registros del tenant en orden de inserción, con los cambios de t. Requiere s.mu.
func (s *Store) visibleMovements(t *tx, tenantID string) []*entity.StockMovement {
	out := make([]*entity.StockMovement, 0)
	for _, m := range s.movements {
		if m.TenantID != tenantID {
			continue
		}
		if t != nil {
			if t.deleted[m.ID] {
				continue
			}
			if u, ok := t.updated[m.ID]; ok {
				out = append(out, u.Clone())
				continue
			}
		}
		out = append(out, m.Clone())
	}
	if t != nil {
		for _, m := range t.appended {
			if m.TenantID == tenantID && !t.deleted[m.ID] {
				if u, ok := t.updated[m.ID]; ok {
					out = append(out, u.Clone())
					continue
				}
				out = append(out, m.Clone())
			}
		}
	}
	return out
}

func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, v := range t.readVersion {
		cur, ok := s.lots[id]
		if !ok || cur.Version != v {
			return fmt.Errorf("%w: el lote %s cambió durante la transacción", domain.ErrConcurrencyConflict, id)
		}
	}
	for id := range t.created {
		if _, exists := s.lots[id]; exists {
			return fmt.Errorf("%w: lote duplicado %s", domain.ErrConcurrencyConflict, id)
		}
	}
	exists := make(map[string]int, len(s.movements))
	for i, m := range s.movements {
		exists[m.ID] = i
	}
	for id := range t.updated {
		if _, ok := exists[id]; !ok && !t.appendedHas(id) {
			return fmt.Errorf("%w: movimiento %s", domain.ErrNotFound, id)
		}
	}

	for id, l := range t.staged {
		if t.created[id] {
			l.Version = 1
		} else {
			l.Version = t.readVersion[id] + 1
		}
		s.lots[id] = l
	}
	s.movements = append(s.movements, t.appended...)
	if len(t.updated) > 0 || len(t.deleted) > 0 {
		kept := s.movements[:0]
		for _, m := range s.movements {
			if t.deleted[m.ID] {
				continue
			}
			if u, ok := t.updated[m.ID]; ok {
				kept = append(kept, u)
				continue
			}
			kept = append(kept, m)
		}
		s.movements = kept
	}
	s.overrides = append(s.overrides, t.overrides...)
	return nil
}

func (t *tx) appendedHas(id string) bool {
	for _, m := range t.appended {
		if m.ID == id {
			return true
		}
	}
	return false
}

// autocommit ejecuta una operación suelta como transacción propia.
func (s *Store) autocommit(fn func(t *tx) error) error {
	t := s.begin()
	if err := fn(t); err != nil {
		return err
	}
	return t.commit()
}

func sortMovementsDesc(list []*entity.StockMovement) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
}

func paginate[T any](list []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(list) {
			return []T{}
		}
		list = list[offset:]
	}
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}
