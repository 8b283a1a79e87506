package pdf_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/pdf"
)

func TestGenerateLotTracePDF_DevuelvePDF(t *testing.T) {
	created := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	expires := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	trace := &inventory.LotTrace{
		Lot: &entity.StockLot{
			ID: "5f1c2a9e-0000-4000-8000-000000000001", TenantID: "t1", VariationID: "v1", Code: "L-0110",
			Remaining: decimal.NewFromInt(4), ExpiresAt: &expires, CreatedAt: created,
		},
		Movements: []*entity.StockMovement{
			{ID: "m1", LotID: "l1", Direction: entity.DirectionEntry, Reason: entity.ReasonPurchase, Quantity: decimal.NewFromInt(10), RequestID: "r1", CreatedAt: created},
			{ID: "m2", LotID: "l1", Direction: entity.DirectionExit, Reason: entity.ReasonSale, Channel: entity.ChannelInstagram, Quantity: decimal.NewFromInt(6), RequestID: "r2", CreatedAt: created.Add(time.Hour)},
		},
		TotalEntered: decimal.NewFromInt(10),
		TotalExited:  decimal.NewFromInt(6),
	}

	out, err := pdf.NewLotTracePDFGenerator().GenerateLotTracePDF(context.Background(), trace)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestGenerateLotTracePDF_SinMovimientos(t *testing.T) {
	trace := &inventory.LotTrace{
		Lot:          &entity.StockLot{ID: "l1", VariationID: "v1", Remaining: decimal.Zero},
		TotalEntered: decimal.Zero,
		TotalExited:  decimal.Zero,
	}
	out, err := pdf.NewLotTracePDFGenerator().GenerateLotTracePDF(context.Background(), trace)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestGenerateLotTracePDF_TrazaNil(t *testing.T) {
	_, err := pdf.NewLotTracePDFGenerator().GenerateLotTracePDF(context.Background(), nil)
	assert.Error(t, err)
}
