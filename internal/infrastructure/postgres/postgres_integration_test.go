//go:build integration

package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/postgres"
)

const tenant = "tenant-it"

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("stock"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, postgres.Migrate(dsn, nil))

	pool, err := postgres.Connect(ctx, dsn, false)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func newEngine(pool *pgxpool.Pool) *inventory.AllocationEngine {
	return inventory.NewAllocationEngine(
		postgres.NewTxRunner(pool, 5*time.Second),
		nil,
		inventory.EngineConfig{MaxAttempts: 5, RetryBaseDelay: 5 * time.Millisecond, RetryMaxDelay: 50 * time.Millisecond},
	)
}

func entry(t *testing.T, e *inventory.AllocationEngine, variation, qty string, expires *time.Time) string {
	t.Helper()
	rec, err := e.HandleEntry(context.Background(), inventory.EntryInput{
		TenantID: tenant, VariationID: variation, Quantity: dec(qty),
		Meta: inventory.EntryMetadata{Reason: entity.ReasonPurchase, ExpiresAt: expires},
	})
	require.NoError(t, err)
	return rec.LotID
}

func TestIntegration_FEFOYSaldo(t *testing.T) {
	pool := setupPostgres(t)
	e := newEngine(pool)
	ctx := context.Background()

	march := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	june := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	lotB := entry(t, e, "v1", "10", &june)
	lotA := entry(t, e, "v1", "5", &march)

	records, err := e.HandleExit(ctx, inventory.ExitInput{
		TenantID: tenant, VariationID: "v1", Quantity: dec("8"),
		Meta: inventory.ExitMetadata{Reason: entity.ReasonSale},
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, lotA, records[0].LotID)
	assert.Equal(t, lotB, records[1].LotID)

	_, err = e.HandleExit(ctx, inventory.ExitInput{
		TenantID: tenant, VariationID: "v1", Quantity: dec("20"),
		Meta: inventory.ExitMetadata{Reason: entity.ReasonSale},
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	q := inventory.NewBalanceQuery(postgres.NewLotRepository(pool), postgres.NewMovementRepository(pool))
	balances, err := q.ComputeBalances(ctx, tenant, []string{"v1", "v404"})
	require.NoError(t, err)
	assert.True(t, balances["v1"].Equal(dec("7")))
	assert.True(t, balances["v404"].IsZero())

	report, err := q.Reconcile(ctx, tenant, "v1")
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, 4, report.Records)
}

func TestIntegration_SalidasConcurrentesNoSobrevenden(t *testing.T) {
	pool := setupPostgres(t)
	e := newEngine(pool)
	entry(t, e, "v1", "6", nil)
	entry(t, e, "v1", "4", nil)

	var ok, insufficient atomic.Int64
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			_, err := e.HandleExit(ctx, inventory.ExitInput{
				TenantID: tenant, VariationID: "v1", Quantity: dec("1"),
				Meta: inventory.ExitMetadata{Reason: entity.ReasonSale},
			})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				insufficient.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int64(10), ok.Load())
	assert.Equal(t, int64(6), insufficient.Load())

	lots, err := postgres.NewLotRepository(pool).List(context.Background(), tenant, repository.LotFilter{VariationID: "v1", IncludeDepleted: true})
	require.NoError(t, err)
	for _, l := range lots {
		assert.True(t, l.Remaining.IsZero())
	}
}

func TestIntegration_AjusteNegativoYLoteAjeno(t *testing.T) {
	pool := setupPostgres(t)
	e := newEngine(pool)
	lotID := entry(t, e, "v1", "2", nil)
	repo := postgres.NewLotRepository(pool)

	_, err := repo.Adjust(context.Background(), tenant, lotID, dec("-3"))
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = repo.Adjust(context.Background(), "otro", lotID, dec("1"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	lot, err := repo.GetByID(context.Background(), tenant, lotID)
	require.NoError(t, err)
	assert.True(t, lot.Remaining.Equal(dec("2")))
	assert.Equal(t, int64(1), lot.Version)
}

func TestIntegration_TotalDevueltoIgualAlGuardado(t *testing.T) {
	pool := setupPostgres(t)
	e := newEngine(pool)
	entry(t, e, "v1", "1", nil)

	price := dec("0.3333")
	records, err := e.HandleExit(context.Background(), inventory.ExitInput{
		TenantID: tenant, VariationID: "v1", Quantity: dec("0.3333"),
		Meta: inventory.ExitMetadata{Reason: entity.ReasonSale, UnitPrice: &price},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)

	stored, err := postgres.NewMovementRepository(pool).GetByID(context.Background(), tenant, records[0].ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Total)
	assert.Equal(t, "0.1111", records[0].Total.String())
	assert.True(t, stored.Total.Equal(*records[0].Total))
}

func TestIntegration_SaldoFueraDeRangoEsInvalidInput(t *testing.T) {
	pool := setupPostgres(t)
	e := newEngine(pool)
	lotID := entry(t, e, "v1", "99999999999999", nil)

	_, err := postgres.NewLotRepository(pool).Adjust(context.Background(), tenant, lotID, dec("1"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIntegration_CorreccionAdministrativa(t *testing.T) {
	pool := setupPostgres(t)
	e := newEngine(pool)
	ctx := context.Background()
	lotID := entry(t, e, "v1", "10", nil)

	movs, err := postgres.NewMovementRepository(pool).Query(ctx, tenant, repository.MovementFilter{LotID: lotID})
	require.NoError(t, err)
	require.Len(t, movs, 1)

	admin := inventory.NewLedgerAdminUseCase(postgres.NewTxRunner(pool, time.Second), nil)
	qty := dec("9")
	_, err = admin.CorrectMovement(ctx, inventory.OverrideInput{
		TenantID: tenant, MovementID: movs[0].ID, ActorID: "admin", Justification: "recuento",
	}, inventory.MovementPatch{Quantity: &qty})
	require.NoError(t, err)

	overrides, err := postgres.NewOverrideRepository(pool).ListOverrides(ctx, tenant, movs[0].ID)
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, "10", decimalField(t, overrides[0].Before))

	q := inventory.NewBalanceQuery(postgres.NewLotRepository(pool), postgres.NewMovementRepository(pool))
	report, err := q.Reconcile(ctx, tenant, "v1")
	require.NoError(t, err)
	assert.False(t, report.Consistent)
}

func decimalField(t *testing.T, raw []byte) string {
	t.Helper()
	var snap struct {
		Quantity decimal.Decimal `json:"quantity"`
	}
	require.NoError(t, json.Unmarshal(raw, &snap))
	return snap.Quantity.String()
}
