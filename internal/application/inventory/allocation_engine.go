package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	fefo "github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/backoff"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// Estados de una solicitud de salida. No existe un estado parcial visible para el caller.
const (
	StateValidating = "VALIDATING"
	StateAllocating = "ALLOCATING"
	StateCommitted  = "COMMITTED"
	StateFailed     = "FAILED"
)

// EngineConfig parámetros de reintento ante conflictos de concurrencia.
type EngineConfig struct {
	MaxAttempts    int           // intentos totales (>= 1)
	RetryBaseDelay time.Duration // espera base del backoff exponencial
	RetryMaxDelay  time.Duration // tope de cada espera
}

// DefaultEngineConfig valores por defecto del motor.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxAttempts:    5,
		RetryBaseDelay: 20 * time.Millisecond,
		RetryMaxDelay:  500 * time.Millisecond,
	}
}

// ExitMetadata datos descriptivos de una salida.
type ExitMetadata struct {
	Reason    string
	UnitPrice *decimal.Decimal
	Channel   string
	ActorID   string
	Note      string
}

// ExitInput solicitud de salida lógica (puede repartirse entre varios lotes).
type ExitInput struct {
	TenantID    string
	VariationID string
	Quantity    decimal.Decimal
	Meta        ExitMetadata
}

// EntryMetadata datos descriptivos de una entrada. ExpiresAt y LotCode solo aplican al crear un lote nuevo.
type EntryMetadata struct {
	Reason    string
	UnitPrice *decimal.Decimal
	ActorID   string
	Note      string
	ExpiresAt *time.Time
	LotCode   string
}

// EntryInput solicitud de entrada. Con LotID acredita ese lote; sin LotID crea uno nuevo.
type EntryInput struct {
	TenantID    string
	VariationID string
	Quantity    decimal.Decimal
	LotID       string
	Meta        EntryMetadata
}

// SaleLine línea de un carrito de venta.
type SaleLine struct {
	VariationID string
	Quantity    decimal.Decimal
	UnitPrice   *decimal.Decimal
}

// SaleInput carrito completo: todas las líneas se asignan en una sola transacción.
type SaleInput struct {
	TenantID string
	Channel  string
	ActorID  string
	Note     string
	Lines    []SaleLine
}

// EngineOption configura dependencias opcionales del motor.
type EngineOption func(*AllocationEngine)

// WithLocker activa el bloqueo distribuido por tenant/variación antes de cada transacción.
func WithLocker(l VariationLocker) EngineOption {
	return func(e *AllocationEngine) { e.locker = l }
}

// WithClock reemplaza el reloj (tests).
func WithClock(now func() time.Time) EngineOption {
	return func(e *AllocationEngine) { e.now = now }
}

// AllocationEngine orquesta entradas y salidas de stock por lote: política FEFO, atomicidad
// y generación de registros del libro. Cada operación corre en una única transacción (TxRunner)
// y se reintenta completa ante domain.ErrConcurrencyConflict hasta MaxAttempts.
type AllocationEngine struct {
	txRunner TxRunner
	locker   VariationLocker
	log      *logger.Logger
	cfg      EngineConfig
	now      func() time.Time
}

// NewAllocationEngine construye el motor.
func NewAllocationEngine(txRunner TxRunner, log *logger.Logger, cfg EngineConfig, opts ...EngineOption) *AllocationEngine {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	e := &AllocationEngine{
		txRunner: txRunner,
		log:      log,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleExit descuenta quantity de la variación recorriendo los lotes en orden FEFO.
// Devuelve un registro EXIT por lote consumido, en orden de consumo; la suma de sus cantidades
// es exactamente quantity. Si el saldo agregado no alcanza devuelve ErrInsufficientStock sin efectos.
func (e *AllocationEngine) HandleExit(ctx context.Context, in ExitInput) ([]*entity.StockMovement, error) {
	requestID := uuid.New().String()
	log := e.requestLogger("exit", requestID, in.TenantID)
	log.Debug().Str("state", StateValidating).Str("variation_id", in.VariationID).Str("quantity", in.Quantity.String()).Msg("salida recibida")

	if err := validateExit(in); err != nil {
		log.Debug().Str("state", StateFailed).Err(err).Msg("salida rechazada")
		return nil, err
	}

	var records []*entity.StockMovement
	err := e.execute(ctx, in.TenantID, []string{in.VariationID}, func(lotRepo repository.LotRepository, movRepo repository.MovementRepository) error {
		log.Debug().Str("state", StateAllocating).Msg("asignando lotes")
		recs, err := e.allocateExit(ctx, lotRepo, movRepo, requestID, in.TenantID, in.VariationID, in.Quantity, in.Meta)
		if err != nil {
			return err
		}
		records = recs
		return nil
	})
	if err != nil {
		e.logFailure(log, err)
		return nil, err
	}

	log.Info().Str("state", StateCommitted).Str("variation_id", in.VariationID).Int("lots", len(records)).Msg("salida registrada")
	return records, nil
}

// HandleEntry acredita stock: sobre el lote indicado o sobre un lote nuevo. Emite exactamente un registro ENTRY.
func (e *AllocationEngine) HandleEntry(ctx context.Context, in EntryInput) (*entity.StockMovement, error) {
	requestID := uuid.New().String()
	log := e.requestLogger("entry", requestID, in.TenantID)

	if err := validateEntry(in); err != nil {
		log.Debug().Err(err).Msg("entrada rechazada")
		return nil, err
	}

	var record *entity.StockMovement
	err := e.execute(ctx, in.TenantID, []string{in.VariationID}, func(lotRepo repository.LotRepository, movRepo repository.MovementRepository) error {
		now := e.now()

		var lot *entity.StockLot
		if in.LotID != "" {
			existing, err := lotRepo.GetByID(ctx, in.TenantID, in.LotID)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("%w: lote %s", domain.ErrNotFound, in.LotID)
			}
			if existing.VariationID != in.VariationID {
				return fmt.Errorf("%w: el lote %s no pertenece a la variación %s", domain.ErrInvalidInput, in.LotID, in.VariationID)
			}
			lot, err = lotRepo.Adjust(ctx, in.TenantID, in.LotID, in.Quantity)
			if err != nil {
				return err
			}
		} else {
			lot = &entity.StockLot{
				ID:          uuid.New().String(),
				TenantID:    in.TenantID,
				VariationID: in.VariationID,
				Code:        in.Meta.LotCode,
				Remaining:   in.Quantity,
				ExpiresAt:   in.Meta.ExpiresAt,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := lotRepo.Create(ctx, lot); err != nil {
				return err
			}
		}

		total, err := lineTotal(in.Meta.UnitPrice, in.Quantity)
		if err != nil {
			return err
		}
		mov := &entity.StockMovement{
			ID:          uuid.New().String(),
			TenantID:    in.TenantID,
			VariationID: in.VariationID,
			LotID:       lot.ID,
			RequestID:   requestID,
			Direction:   entity.DirectionEntry,
			Reason:      in.Meta.Reason,
			Quantity:    in.Quantity,
			UnitPrice:   in.Meta.UnitPrice,
			Total:       total,
			ActorID:     in.Meta.ActorID,
			Note:        in.Meta.Note,
			CreatedAt:   now,
		}
		if err := movRepo.Append(ctx, mov); err != nil {
			return err
		}
		record = mov
		return nil
	})
	if err != nil {
		e.logFailure(log, err)
		return nil, err
	}

	log.Info().Str("variation_id", in.VariationID).Str("lot_id", record.LotID).Msg("entrada registrada")
	return record, nil
}

// HandleSale asigna todas las líneas de un carrito con motivo SALE en una única transacción.
// Si una línea falla (p. ej. stock insuficiente) no persiste ninguna. Las líneas se procesan
// ordenadas por variación para tomar los bloqueos de fila siempre en el mismo orden.
func (e *AllocationEngine) HandleSale(ctx context.Context, in SaleInput) ([]*entity.StockMovement, error) {
	requestID := uuid.New().String()
	log := e.requestLogger("sale", requestID, in.TenantID)
	log.Debug().Str("state", StateValidating).Int("lines", len(in.Lines)).Msg("venta recibida")

	if err := validateSale(in); err != nil {
		log.Debug().Str("state", StateFailed).Err(err).Msg("venta rechazada")
		return nil, err
	}

	lines := make([]SaleLine, len(in.Lines))
	copy(lines, in.Lines)
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].VariationID < lines[j].VariationID })

	variationIDs := make([]string, 0, len(lines))
	for _, l := range lines {
		variationIDs = append(variationIDs, l.VariationID)
	}

	var records []*entity.StockMovement
	err := e.execute(ctx, in.TenantID, variationIDs, func(lotRepo repository.LotRepository, movRepo repository.MovementRepository) error {
		log.Debug().Str("state", StateAllocating).Msg("asignando lotes")
		all := make([]*entity.StockMovement, 0, len(lines))
		for _, line := range lines {
			meta := ExitMetadata{
				Reason:    entity.ReasonSale,
				UnitPrice: line.UnitPrice,
				Channel:   in.Channel,
				ActorID:   in.ActorID,
				Note:      in.Note,
			}
			recs, err := e.allocateExit(ctx, lotRepo, movRepo, requestID, in.TenantID, line.VariationID, line.Quantity, meta)
			if err != nil {
				return fmt.Errorf("variación %s: %w", line.VariationID, err)
			}
			all = append(all, recs...)
		}
		records = all
		return nil
	})
	if err != nil {
		e.logFailure(log, err)
		return nil, err
	}

	log.Info().Str("state", StateCommitted).Int("records", len(records)).Msg("venta registrada")
	return records, nil
}

// allocateExit es el núcleo de la salida: lista FEFO (bloqueando filas), verifica saldo,
// debita cada lote y agrega un registro por lote. Debe ejecutarse dentro de la transacción.
func (e *AllocationEngine) allocateExit(
	ctx context.Context,
	lotRepo repository.LotRepository,
	movRepo repository.MovementRepository,
	requestID, tenantID, variationID string,
	quantity decimal.Decimal,
	meta ExitMetadata,
) ([]*entity.StockMovement, error) {
	lots, err := lotRepo.ListAvailable(ctx, tenantID, variationID)
	if err != nil {
		return nil, err
	}
	plan, err := fefo.PlanExit(lots, quantity)
	if err != nil {
		return nil, err
	}

	now := e.now()
	records := make([]*entity.StockMovement, 0, len(plan))
	for _, alloc := range plan {
		total, err := lineTotal(meta.UnitPrice, alloc.Quantity)
		if err != nil {
			return nil, err
		}
		if _, err := lotRepo.Adjust(ctx, tenantID, alloc.Lot.ID, alloc.Quantity.Neg()); err != nil {
			return nil, err
		}
		mov := &entity.StockMovement{
			ID:          uuid.New().String(),
			TenantID:    tenantID,
			VariationID: variationID,
			LotID:       alloc.Lot.ID,
			RequestID:   requestID,
			Direction:   entity.DirectionExit,
			Reason:      meta.Reason,
			Quantity:    alloc.Quantity,
			UnitPrice:   meta.UnitPrice,
			Total:       total,
			Channel:     meta.Channel,
			ActorID:     meta.ActorID,
			Note:        meta.Note,
			CreatedAt:   now,
		}
		if err := movRepo.Append(ctx, mov); err != nil {
			return nil, err
		}
		records = append(records, mov)
	}
	return records, nil
}

// execute corre fn en una transacción (precedida del bloqueo distribuido si está configurado)
// y la repite completa ante ErrConcurrencyConflict con backoff exponencial y jitter.
// La espera ocurre entre intentos, nunca dentro de la transacción.
func (e *AllocationEngine) execute(
	ctx context.Context,
	tenantID string,
	variationIDs []string,
	fn func(lotRepo repository.LotRepository, movRepo repository.MovementRepository) error,
) error {
	keys := lockKeys(tenantID, variationIDs)

	var err error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		err = e.withLocks(ctx, keys, func(ctx context.Context) error {
			return e.txRunner.Run(ctx, fn)
		})
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			return err
		}
		if attempt == e.cfg.MaxAttempts {
			break
		}
		delay := backoff.ExponentialWithJitter(e.cfg.RetryBaseDelay, e.cfg.RetryMaxDelay, attempt-1)
		e.log.Warn().Str("tenant_id", tenantID).Int("attempt", attempt).Dur("delay", delay).Err(err).Msg("conflicto de concurrencia, reintentando")
		if sleepErr := backoff.Sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("reintento cancelado: %w", sleepErr)
		}
	}
	return fmt.Errorf("agotados %d intentos: %w", e.cfg.MaxAttempts, err)
}

func (e *AllocationEngine) withLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	if e.locker == nil || len(keys) == 0 {
		return fn(ctx)
	}
	return e.locker.WithLock(ctx, keys[0], func(ctx context.Context) error {
		return e.withLocks(ctx, keys[1:], fn)
	})
}

func (e *AllocationEngine) requestLogger(op, requestID, tenantID string) zerolog.Logger {
	return e.log.With().Str("op", op).Str("request_id", requestID).Str("tenant_id", tenantID).Logger()
}

func (e *AllocationEngine) logFailure(log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrNotFound):
		log.Debug().Str("state", StateFailed).Err(err).Msg("solicitud rechazada")
	case errors.Is(err, domain.ErrInsufficientStock):
		log.Info().Str("state", StateFailed).Err(err).Msg("stock insuficiente")
	case errors.Is(err, domain.ErrConcurrencyConflict):
		log.Warn().Str("state", StateFailed).Err(err).Msg("conflicto de concurrencia persistente")
	default:
		log.Error().Str("state", StateFailed).Err(err).Msg("error registrando movimiento")
	}
}

// lockKeys claves de bloqueo ordenadas y sin duplicados: stock:<tenant>:<variación>.
func lockKeys(tenantID string, variationIDs []string) []string {
	seen := make(map[string]struct{}, len(variationIDs))
	keys := make([]string, 0, len(variationIDs))
	for _, v := range variationIDs {
		k := "stock:" + tenantID + ":" + v
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// lineTotal total del registro según fefo.LineTotal; nil sin precio.
func lineTotal(unitPrice *decimal.Decimal, quantity decimal.Decimal) (*decimal.Decimal, error) {
	if unitPrice == nil {
		return nil, nil
	}
	t, err := fefo.LineTotal(*unitPrice, quantity)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// validatePriced valida precio y total de una línea con precio opcional.
func validatePriced(unitPrice *decimal.Decimal, quantity decimal.Decimal) error {
	if unitPrice == nil {
		return nil
	}
	if err := fefo.ValidatePrice(*unitPrice); err != nil {
		return err
	}
	_, err := fefo.LineTotal(*unitPrice, quantity)
	return err
}

func validateExit(in ExitInput) error {
	if in.TenantID == "" || in.VariationID == "" {
		return fmt.Errorf("%w: tenant y variación son obligatorios", domain.ErrInvalidInput)
	}
	if err := fefo.ValidateQuantity(in.Quantity); err != nil {
		return err
	}
	if !entity.ValidReason(in.Meta.Reason) {
		return fmt.Errorf("%w: motivo %q", domain.ErrInvalidInput, in.Meta.Reason)
	}
	if !entity.ValidChannel(in.Meta.Channel) {
		return fmt.Errorf("%w: canal %q", domain.ErrInvalidInput, in.Meta.Channel)
	}
	return validatePriced(in.Meta.UnitPrice, in.Quantity)
}

func validateEntry(in EntryInput) error {
	if in.TenantID == "" || in.VariationID == "" {
		return fmt.Errorf("%w: tenant y variación son obligatorios", domain.ErrInvalidInput)
	}
	if err := fefo.ValidateQuantity(in.Quantity); err != nil {
		return err
	}
	if !entity.ValidReason(in.Meta.Reason) {
		return fmt.Errorf("%w: motivo %q", domain.ErrInvalidInput, in.Meta.Reason)
	}
	return validatePriced(in.Meta.UnitPrice, in.Quantity)
}

func validateSale(in SaleInput) error {
	if in.TenantID == "" {
		return fmt.Errorf("%w: tenant obligatorio", domain.ErrInvalidInput)
	}
	if len(in.Lines) == 0 {
		return fmt.Errorf("%w: la venta no tiene líneas", domain.ErrInvalidInput)
	}
	if !entity.ValidChannel(in.Channel) {
		return fmt.Errorf("%w: canal %q", domain.ErrInvalidInput, in.Channel)
	}
	for i, l := range in.Lines {
		if l.VariationID == "" {
			return fmt.Errorf("%w: línea %d sin variación", domain.ErrInvalidInput, i+1)
		}
		if err := fefo.ValidateQuantity(l.Quantity); err != nil {
			return fmt.Errorf("línea %d: %w", i+1, err)
		}
		if err := validatePriced(l.UnitPrice, l.Quantity); err != nil {
			return fmt.Errorf("línea %d: %w", i+1, err)
		}
	}
	return nil
}
