package inventory_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memory"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// ── BalanceQuery ─────────────────────────────────────────────────────────────

func TestComputeBalances_VariacionesSinLotesEnCero(t *testing.T) {
	store := memory.NewStore()
	e := newEngine(store, 3)
	entry(t, e, "v1", "4", nil)
	entry(t, e, "v1", "1.5", nil)

	q := inventory.NewBalanceQuery(store.Lots(), store.Movements())
	balances, err := q.ComputeBalances(context.Background(), tenant, []string{"v1", "v9", "v1"})
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.True(t, balances["v1"].Equal(dec("5.5")))
	assert.True(t, balances["v9"].IsZero())
}

func TestComputeBalances_EntradaInvalida(t *testing.T) {
	q := inventory.NewBalanceQuery(memory.NewStore().Lots(), memory.NewStore().Movements())

	_, err := q.ComputeBalances(context.Background(), tenant, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = q.ComputeBalances(context.Background(), "", []string{"v1"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = q.ComputeBalances(context.Background(), tenant, []string{"v1", ""})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestComputeBalances_AisladoPorTenant(t *testing.T) {
	store := memory.NewStore()
	e := newEngine(store, 3)
	entry(t, e, "v1", "4", nil)

	q := inventory.NewBalanceQuery(store.Lots(), store.Movements())
	balances, err := q.ComputeBalances(context.Background(), "otro-tenant", []string{"v1"})
	require.NoError(t, err)
	assert.True(t, balances["v1"].IsZero())
}

// ── LedgerAdminUseCase ───────────────────────────────────────────────────────

func TestCorrectMovement_AuditaYRompeReconciliacion(t *testing.T) {
	store := memory.NewStore()
	e := newEngine(store, 3)
	rec := entry(t, e, "v1", "10", nil)

	var buf bytes.Buffer
	admin := inventory.NewLedgerAdminUseCase(store, logger.New(logger.Config{Env: "production", Level: "warn", Output: &buf}))

	qty := dec("7")
	note := "conteo físico"
	updated, err := admin.CorrectMovement(context.Background(), inventory.OverrideInput{
		TenantID: tenant, MovementID: rec.ID, ActorID: "admin-1", Justification: "error de digitación",
	}, inventory.MovementPatch{Quantity: &qty, Note: &note})
	require.NoError(t, err)
	assert.True(t, updated.Quantity.Equal(dec("7")))
	assert.Equal(t, "conteo físico", updated.Note)

	// El lote no se toca: la reproducción del libro ya no coincide.
	q := inventory.NewBalanceQuery(store.Lots(), store.Movements())
	report, err := q.Reconcile(context.Background(), tenant, "v1")
	require.NoError(t, err)
	assert.False(t, report.Consistent)
	require.Len(t, report.Drifts, 1)
	assert.Equal(t, rec.LotID, report.Drifts[0].LotID)
	assert.True(t, report.Drifts[0].LedgerBalance.Equal(dec("7")))
	assert.True(t, report.Drifts[0].LotRemaining.Equal(dec("10")))

	overrides, err := store.Movements().ListOverrides(context.Background(), tenant, rec.ID)
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, entity.OverrideActionUpdate, overrides[0].Action)
	assert.Equal(t, "admin-1", overrides[0].ActorID)

	var before, after map[string]any
	require.NoError(t, json.Unmarshal(overrides[0].Before, &before))
	require.NoError(t, json.Unmarshal(overrides[0].After, &after))
	assert.Equal(t, "10", before["quantity"])
	assert.Equal(t, "7", after["quantity"])

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, true, line["override"])
	assert.Equal(t, "broken", line["balance_invariant"])
}

func TestDeleteMovement_BorraYAudita(t *testing.T) {
	store := memory.NewStore()
	e := newEngine(store, 3)
	rec := entry(t, e, "v1", "3", nil)
	admin := inventory.NewLedgerAdminUseCase(store, nil)

	err := admin.DeleteMovement(context.Background(), inventory.OverrideInput{
		TenantID: tenant, MovementID: rec.ID, ActorID: "admin-1", Justification: "duplicado",
	})
	require.NoError(t, err)

	m, err := store.Movements().GetByID(context.Background(), tenant, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, m)

	overrides, err := store.Movements().ListOverrides(context.Background(), tenant, rec.ID)
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, entity.OverrideActionDelete, overrides[0].Action)
	assert.Nil(t, overrides[0].After)

	// El lote conserva el saldo: la vía administrativa no ajusta inventario.
	assert.True(t, balance(t, store, "v1").Equal(dec("3")))
}

func TestOverride_Validaciones(t *testing.T) {
	store := memory.NewStore()
	admin := inventory.NewLedgerAdminUseCase(store, nil)
	qty := dec("1")
	badReason := "REGALO"

	_, err := admin.CorrectMovement(context.Background(), inventory.OverrideInput{
		TenantID: tenant, MovementID: "m1", ActorID: "a", Justification: "  ",
	}, inventory.MovementPatch{Quantity: &qty})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = admin.CorrectMovement(context.Background(), inventory.OverrideInput{
		TenantID: tenant, MovementID: "m1", ActorID: "a", Justification: "x",
	}, inventory.MovementPatch{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = admin.CorrectMovement(context.Background(), inventory.OverrideInput{
		TenantID: tenant, MovementID: "m1", ActorID: "a", Justification: "x",
	}, inventory.MovementPatch{Reason: &badReason})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = admin.CorrectMovement(context.Background(), inventory.OverrideInput{
		TenantID: tenant, MovementID: "no-existe", ActorID: "a", Justification: "x",
	}, inventory.MovementPatch{Quantity: &qty})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = admin.DeleteMovement(context.Background(), inventory.OverrideInput{
		TenantID: tenant, MovementID: "no-existe", ActorID: "a", Justification: "x",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCorrectMovement_RecalculaTotalRedondeado(t *testing.T) {
	store := memory.NewStore()
	e := newEngine(store, 3)
	rec := entry(t, e, "v1", "100000", nil)
	admin := inventory.NewLedgerAdminUseCase(store, nil)
	in := inventory.OverrideInput{TenantID: tenant, MovementID: rec.ID, ActorID: "a", Justification: "precio de factura"}

	price, qty := dec("0.3333"), dec("0.3333")
	updated, err := admin.CorrectMovement(context.Background(), in, inventory.MovementPatch{Quantity: &qty, UnitPrice: &price})
	require.NoError(t, err)
	require.NotNil(t, updated.Total)
	assert.Equal(t, "0.1111", updated.Total.String())

	stored, err := store.Movements().GetByID(context.Background(), tenant, rec.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(*updated.Total))

	// 10^10 × 10^5 no cabe en NUMERIC(18,4).
	big, bigQty := dec("10000000000"), dec("100000")
	_, err = admin.CorrectMovement(context.Background(), in, inventory.MovementPatch{Quantity: &bigQty, UnitPrice: &big})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	stored, err = store.Movements().GetByID(context.Background(), tenant, rec.ID)
	require.NoError(t, err)
	assert.True(t, stored.Quantity.Equal(dec("0.3333")))
}

// ── LedgerQueryUseCase ───────────────────────────────────────────────────────

func TestListMovements_FiltrosYValidacion(t *testing.T) {
	store := memory.NewStore()
	e := newEngine(store, 3)
	entry(t, e, "v1", "5", nil)
	entry(t, e, "v2", "5", nil)
	_, err := e.HandleExit(context.Background(), exitInput("v1", "2"))
	require.NoError(t, err)

	uc := inventory.NewLedgerQueryUseCase(store.Movements(), store.Lots())

	all, err := uc.ListMovements(context.Background(), tenant, repository.MovementFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, entity.DirectionExit, all[0].Direction, "más reciente primero")

	v1, err := uc.ListMovements(context.Background(), tenant, repository.MovementFilter{VariationID: "v1", Direction: entity.DirectionEntry})
	require.NoError(t, err)
	assert.Len(t, v1, 1)

	_, err = uc.ListMovements(context.Background(), tenant, repository.MovementFilter{Direction: "SIDEWAYS"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = uc.ListMovements(context.Background(), "", repository.MovementFilter{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestListLots_ExcluyeAgotadosPorDefecto(t *testing.T) {
	store := memory.NewStore()
	e := newEngine(store, 3)
	entry(t, e, "v1", "2", day("2026-02-01"))
	entry(t, e, "v1", "2", day("2026-03-01"))
	_, err := e.HandleExit(context.Background(), exitInput("v1", "2"))
	require.NoError(t, err)

	uc := inventory.NewLedgerQueryUseCase(store.Movements(), store.Lots())
	active, err := uc.ListLots(context.Background(), tenant, repository.LotFilter{VariationID: "v1"})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	all, err := uc.ListLots(context.Background(), tenant, repository.LotFilter{VariationID: "v1", IncludeDepleted: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// ── TraceabilityUseCase ──────────────────────────────────────────────────────

type fakeTraceGenerator struct {
	got *inventory.LotTrace
}

func (f *fakeTraceGenerator) GenerateLotTracePDF(_ context.Context, trace *inventory.LotTrace) ([]byte, error) {
	f.got = trace
	return []byte("%PDF-fake"), nil
}

func TestLotTrace_HistorialCronologicoYTotales(t *testing.T) {
	store := memory.NewStore()
	e := newEngine(store, 3)
	lotID := entry(t, e, "v1", "10", nil).LotID
	for _, q := range []string{"3", "2.5"} {
		_, err := e.HandleExit(context.Background(), exitInput("v1", q))
		require.NoError(t, err)
	}

	gen := &fakeTraceGenerator{}
	uc := inventory.NewTraceabilityUseCase(store.Lots(), store.Movements(), gen)
	trace, err := uc.LotTrace(context.Background(), tenant, lotID)
	require.NoError(t, err)
	require.Len(t, trace.Movements, 3)
	assert.Equal(t, entity.DirectionEntry, trace.Movements[0].Direction)
	assert.True(t, trace.Movements[1].Quantity.Equal(dec("3")))
	assert.True(t, trace.TotalEntered.Equal(dec("10")))
	assert.True(t, trace.TotalExited.Equal(dec("5.5")))
	assert.True(t, trace.Lot.Remaining.Equal(dec("4.5")))

	pdf, err := uc.LotTracePDF(context.Background(), tenant, lotID)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-fake"), pdf)
	require.NotNil(t, gen.got)
	assert.Equal(t, lotID, gen.got.Lot.ID)

	_, err = uc.LotTrace(context.Background(), tenant, "no-existe")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = uc.LotTrace(context.Background(), "otro-tenant", lotID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
