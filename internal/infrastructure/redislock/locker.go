// Package redislock implementa inventory.VariationLocker con RedLock (redsync sobre go-redis).
package redislock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

var _ inventory.VariationLocker = (*Locker)(nil)

// Options parámetros de cada mutex.
type Options struct {
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

// DefaultOptions valores por defecto: lock corto, pocos intentos; el motor reintenta por su cuenta.
func DefaultOptions() Options {
	return Options{
		Expiry:     5 * time.Second,
		Tries:      8,
		RetryDelay: 25 * time.Millisecond,
	}
}

// Locker bloqueo distribuido por clave.
type Locker struct {
	rs   *redsync.Redsync
	opts Options
	log  *logger.Logger
}

// New construye el locker sobre un cliente go-redis ya conectado.
func New(client goredislib.UniversalClient, opts Options, log *logger.Logger) (*Locker, error) {
	if client == nil {
		return nil, errors.New("redislock: cliente redis nil")
	}
	if opts.Expiry <= 0 {
		return nil, errors.New("redislock: expiry debe ser > 0")
	}
	if opts.Tries < 1 {
		opts.Tries = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Locker{rs: redsync.New(goredis.NewPool(client)), opts: opts, log: log}, nil
}

// NewClient abre el cliente go-redis y verifica la conexión.
func NewClient(ctx context.Context, addr, password string, db int) (*goredislib.Client, error) {
	client := goredislib.NewClient(&goredislib.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// WithLock ejecuta fn con el lock de key tomado. Si no se obtiene devuelve ErrConcurrencyConflict;
// el error de fn se devuelve sin cambios.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: clave de lock vacía", domain.ErrInvalidInput)
	}
	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, redsync.ErrFailed) {
			return fmt.Errorf("%w: lock %s ocupado", domain.ErrConcurrencyConflict, key)
		}
		// ErrTaken/ErrNodeTaken y fallos de red: el motor reintenta igual.
		return fmt.Errorf("%w: adquirir lock %s: %v", domain.ErrConcurrencyConflict, key, err)
	}
	l.log.Debug().Str("lock_key", key).Msg("lock adquirido")

	defer func() {
		// El lock puede haber expirado si fn tardó más que Expiry.
		if ok, err := mutex.UnlockContext(context.WithoutCancel(ctx)); !ok || err != nil {
			l.log.Warn().Str("lock_key", key).Bool("unlock_ok", ok).Err(err).Msg("no se pudo liberar el lock")
		}
	}()

	return fn(ctx)
}
