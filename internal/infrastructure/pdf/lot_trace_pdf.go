// Package pdf genera el reporte de trazabilidad de un lote (retiro de mercado / recall).
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Lote + variación   │  Fecha de emisión             │
//	│  ─────────────────────────────────────────────────────────  │
//	│  RESUMEN: Vence | Creado | Entradas | Salidas | Saldo        │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLA: Fecha | Tipo | Motivo | Canal | Cantidad | Solicitud │
//	│  ─────────────────────────────────────────────────────────  │
//	│  FOOTER: QR con el ID del lote                              │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"
	"time"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorExit    = &props.Color{Red: 170, Green: 40, Blue: 40}
)

// ── Generator ─────────────────────────────────────────────────────────────────

var _ inventory.LotTraceReportGenerator = (*LotTracePDFGenerator)(nil)

// LotTracePDFGenerator implementa inventory.LotTraceReportGenerator usando Maroto v2.
type LotTracePDFGenerator struct {
	now func() time.Time
}

// NewLotTracePDFGenerator construye el generador.
func NewLotTracePDFGenerator() *LotTracePDFGenerator {
	return &LotTracePDFGenerator{now: time.Now}
}

// GenerateLotTracePDF genera el PDF y devuelve sus bytes.
func (g *LotTracePDFGenerator) GenerateLotTracePDF(_ context.Context, trace *inventory.LotTrace) ([]byte, error) {
	if trace == nil || trace.Lot == nil {
		return nil, fmt.Errorf("pdf: trazabilidad vacía")
	}

	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("Trazabilidad de lote "+lotLabel(trace.Lot), true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(trace.Lot, g.now()))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(summaryRow(trace))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(tableHeaderRow())
	m.AddRows(movementRows(trace.Movements)...)

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(footerRow(trace.Lot))

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

func headerRow(lot *entity.StockLot, issued time.Time) core.Row {
	return row.New(16).Add(
		col.New(8).Add(
			text.New("TRAZABILIDAD DE LOTE", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(lotLabel(lot), props.Text{
				Style: fontstyle.Bold, Size: 13, Top: 5,
			}),
			text.New("Variación: "+lot.VariationID, props.Text{
				Size: 8, Top: 12, Color: colorGray,
			}),
		),
		col.New(4).Add(
			text.New("Emitido: "+issued.Format("02/01/2006 15:04"), props.Text{
				Size: 8, Align: align.Right, Top: 1, Color: colorGray,
			}),
		),
	)
}

func summaryRow(trace *inventory.LotTrace) core.Row {
	cell := func(label, value string) core.Col {
		return col.New(2).Add(
			text.New(label, props.Text{Style: fontstyle.Bold, Size: 7, Color: colorPrimary, Top: 1}),
			text.New(value, props.Text{Size: 9, Top: 6}),
		)
	}
	expires := "Sin vencimiento"
	if trace.Lot.ExpiresAt != nil {
		expires = trace.Lot.ExpiresAt.Format("02/01/2006")
	}
	return row.New(13).Add(
		cell("VENCE", expires),
		cell("CREADO", trace.Lot.CreatedAt.Format("02/01/2006")),
		cell("ENTRADAS", trace.TotalEntered.String()),
		cell("SALIDAS", trace.TotalExited.String()),
		cell("SALDO", trace.Lot.Remaining.String()),
		cell("REGISTROS", fmt.Sprintf("%d", len(trace.Movements))),
	)
}

func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a, Color: colorPrimary, Top: 2,
		}))
	}
	return row.New(8).Add(
		h("Fecha", 3, align.Left),
		h("Tipo", 1, align.Center),
		h("Motivo", 2, align.Left),
		h("Canal", 2, align.Left),
		h("Cantidad", 2, align.Right),
		h("Solicitud", 2, align.Left),
	)
}

// movementRows una fila por registro; las salidas en rojo.
func movementRows(movements []*entity.StockMovement) []core.Row {
	rows := make([]core.Row, 0, len(movements))
	for _, m := range movements {
		qty := "+" + m.Quantity.String()
		color := colorGray
		if m.Direction == entity.DirectionExit {
			qty = "-" + m.Quantity.String()
			color = colorExit
		}
		rows = append(rows, row.New(6).Add(
			col.New(3).Add(text.New(m.CreatedAt.Format("02/01/2006 15:04:05"), props.Text{Size: 8, Top: 1})),
			col.New(1).Add(text.New(m.Direction, props.Text{Size: 7, Align: align.Center, Top: 1})),
			col.New(2).Add(text.New(m.Reason, props.Text{Size: 8, Top: 1})),
			col.New(2).Add(text.New(nonEmpty(m.Channel, "-"), props.Text{Size: 8, Top: 1})),
			col.New(2).Add(text.New(qty, props.Text{Size: 8, Align: align.Right, Top: 1, Color: color})),
			col.New(2).Add(text.New(shortID(m.RequestID), props.Text{Size: 7, Top: 1, Color: colorGray})),
		))
	}
	if len(rows) == 0 {
		rows = append(rows, row.New(8).Add(col.New(12).Add(
			text.New("Sin movimientos registrados", props.Text{Size: 8, Align: align.Center, Top: 2, Color: colorGray}),
		)))
	}
	return rows
}

func footerRow(lot *entity.StockLot) core.Row {
	return row.New(40).Add(
		col.New(3).Add(code.NewQr(lot.ID, props.Rect{Percent: 95, Center: true})),
		col.New(9).Add(
			text.New("ID del lote: "+lot.ID, props.Text{Size: 8, Top: 4, Left: 3, Color: colorGray}),
			text.New("Documento de soporte para retiro de mercado. Las cantidades provienen del libro de movimientos.",
				props.Text{Size: 7, Top: 12, Left: 3, Color: colorGray}),
		),
	)
}

// ── helpers ───────────────────────────────────────────────────────────────────

func lotLabel(lot *entity.StockLot) string {
	return nonEmpty(lot.Code, shortID(lot.ID))
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
