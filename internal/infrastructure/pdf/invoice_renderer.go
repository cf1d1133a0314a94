// Package pdf implementa la representación gráfica del comprobante
// electrónico ARCA (RG 5616, facturas A, B y C).
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Razón Social + CUIT  │ [Letra] │ N° + Fecha        │
//	│  ─────────────────────────────────────────────────────────  │
//	│  RECEPTOR: Nombre + CUIT/DNI + condición IVA                │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLA: Cant | Descripción | P.Unit | Importe               │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TOTALES: A discrimina Neto/IVA; B y C solo Total           │
//	│  ─────────────────────────────────────────────────────────  │
//	│  FOOTER: CAE + vencimiento + leyenda legal                  │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"

	maroto "github.com/johnfercher/maroto/v2"
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
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/RodrigoSola/corrafer-fiscal/internal/application/billing"
	"github.com/RodrigoSola/corrafer-fiscal/internal/domain/fiscal"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 30, Green: 30, Blue: 30}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

// Formato monetario es-AR: punto de miles, coma decimal.
var moneyPrinter = message.NewPrinter(language.MustParse("es-AR"))

// Issuer son los datos del emisor que van en el encabezado.
type Issuer struct {
	Name    string
	CUIT    int64
	Address string
	IVACond string // condición frente al IVA, ej. "Responsable Inscripto"
}

var _ billing.InvoiceRenderer = (*InvoiceRenderer)(nil)

// InvoiceRenderer implementa billing.InvoiceRenderer usando Maroto v2.
type InvoiceRenderer struct {
	issuer Issuer
}

// NewInvoiceRenderer construye el renderer con los datos del emisor.
func NewInvoiceRenderer(issuer Issuer) *InvoiceRenderer {
	return &InvoiceRenderer{issuer: issuer}
}

// Render genera el PDF del comprobante y devuelve sus bytes.
func (r *InvoiceRenderer) Render(_ context.Context, inv *billing.IssuedInvoice, lines []fiscal.LineItem) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle(fmt.Sprintf("Factura %s %04d-%08d", inv.DocumentType, inv.PointOfSale, inv.Number), true).
		WithAuthor(r.issuer.Name, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(r.headerRow(inv))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(buyerRow(inv))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	discriminated := inv.DocumentType.TaxDiscriminated()
	m.AddRows(tableHeaderRow(discriminated))
	for _, lr := range tableLineRows(lines, discriminated) {
		m.AddRows(lr)
	}

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(totalsRow(inv))

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	for _, fr := range caeFooterRows(inv) {
		m.AddRows(fr)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

// headerRow: emisor (izq), letra del comprobante (centro), número y fecha (der).
func (r *InvoiceRenderer) headerRow(inv *billing.IssuedInvoice) core.Row {
	numero := fmt.Sprintf("%04d-%08d", inv.PointOfSale, inv.Number)
	fecha := inv.IssueDate.Format("02/01/2006")

	return row.New(20).Add(
		col.New(5).Add(
			text.New(r.issuer.Name, props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New(fmt.Sprintf("CUIT: %d", r.issuer.CUIT), props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
			text.New(r.issuer.IVACond, props.Text{
				Size: 8, Top: 14, Color: colorGray,
			}),
		),
		col.New(2).Add(
			text.New(string(inv.DocumentType), props.Text{
				Style: fontstyle.Bold, Size: 28, Align: align.Center, Top: 2,
			}),
			text.New(fmt.Sprintf("Cód. %02d", inv.DocumentType.Code()), props.Text{
				Size: 7, Align: align.Center, Top: 15, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New("FACTURA ELECTRÓNICA", props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right,
				Color: colorPrimary, Top: 1,
			}),
			text.New(numero, props.Text{
				Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 7,
			}),
			text.New("Fecha: "+fecha, props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

// buyerRow: datos del receptor.
func buyerRow(inv *billing.IssuedInvoice) core.Row {
	doc := "Consumidor Final"
	if inv.BuyerTaxID != "" {
		doc = "CUIT/DNI: " + inv.BuyerTaxID
	}
	cond := inv.BuyerCategory
	if cond == "" {
		cond = "CF"
	}
	return row.New(14).Add(
		col.New(12).Add(
			text.New("RECEPTOR", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(nonEmpty(inv.BuyerName, "Consumidor Final"), props.Text{
				Style: fontstyle.Bold, Size: 10, Top: 6,
			}),
			text.New(fmt.Sprintf("%s   |   Condición IVA: %s", doc, cond), props.Text{
				Size: 8, Top: 12, Color: colorGray,
			}),
		),
	)
}

// tableHeaderRow: cabecera de la tabla de líneas. En comprobantes A el
// precio unitario es neto; en B y C ya incluye IVA.
func tableHeaderRow(discriminated bool) core.Row {
	unit := "P.Unit (IVA incl.)"
	if discriminated {
		unit = "P.Unit (neto)"
	}
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a,
			Color: colorPrimary, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("Cant.", 1, align.Center),
		h("Descripción", 6, align.Left),
		h(unit, 2, align.Right),
		h("Importe", 3, align.Right),
	)
}

// tableLineRows: una fila por línea del comprobante.
func tableLineRows(lines []fiscal.LineItem, discriminated bool) []core.Row {
	result := make([]core.Row, 0, len(lines))
	for _, l := range lines {
		unit := l.UnitPriceGross
		if discriminated {
			unit = l.UnitPriceNet
		}
		amount := l.Quantity.Mul(unit)
		result = append(result, row.New(7).Add(
			col.New(1).Add(text.New(
				l.Quantity.StringFixed(0),
				props.Text{Size: 8, Align: align.Center, Top: 1},
			)),
			col.New(6).Add(text.New(
				l.Description,
				props.Text{Size: 8, Align: align.Left, Top: 1, Left: 1},
			)),
			col.New(2).Add(text.New(
				"$ "+formatMoney(unit),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
			col.New(3).Add(text.New(
				"$ "+formatMoney(amount),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
		))
	}
	return result
}

// totalsRow: en A se discrimina neto e IVA; en B y C solo se muestra el
// total con impuestos incluidos.
func totalsRow(inv *billing.IssuedInvoice) core.Row {
	label := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2,
		})
	}
	value := func(s string) core.Component {
		return text.New(s, props.Text{Size: 9, Align: align.Right, Right: 1})
	}
	grandLabel := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 10, Align: align.Right,
			Color: colorPrimary, Right: 2,
		})
	}
	grandValue := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 10, Align: align.Right,
			Color: colorPrimary, Right: 1,
		})
	}

	if !inv.DocumentType.TaxDiscriminated() {
		return row.New(12).Add(
			col.New(6),
			col.New(3).Add(grandLabel("TOTAL:")),
			col.New(3).Add(grandValue("$ "+formatMoney(inv.Gross))),
		)
	}

	return row.New(26).Add(
		col.New(3),
		col.New(3).Add(
			label("Importe neto:"),
			label("IVA 21%:"),
			grandLabel("TOTAL:"),
		),
		col.New(3).Add(
			value("$ "+formatMoney(inv.Net)),
			value("$ "+formatMoney(inv.TaxAmount)),
			grandValue("$ "+formatMoney(inv.Gross)),
		),
		col.New(3),
	)
}

// caeFooterRows: CAE, vencimiento y leyenda legal.
func caeFooterRows(inv *billing.IssuedInvoice) []core.Row {
	rows := []core.Row{
		row.New(6).Add(col.New(12).Add(
			text.New("AUTORIZACIÓN ELECTRÓNICA ARCA", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
		)),
	}

	if inv.CAE != "" {
		rows = append(rows, row.New(8).Add(
			col.New(6).Add(
				text.New("CAE: "+inv.CAE, props.Text{
					Style: fontstyle.Bold, Size: 9, Top: 2,
				}),
			),
			col.New(6).Add(
				text.New("Vto. CAE: "+inv.CAEExpiry.Format("02/01/2006"), props.Text{
					Size: 9, Align: align.Right, Top: 2, Color: colorGray,
				}),
			),
		))
	}

	rows = append(rows, row.New(8).Add(col.New(12).Add(
		text.New(
			"Comprobante autorizado por ARCA. Esta representación gráfica no "+
				"reemplaza al comprobante electrónico original. Conserve este "+
				"documento como soporte fiscal.",
			props.Text{Size: 6.5, Color: colorGray, Top: 2},
		),
	)))

	return rows
}

// ── helpers ───────────────────────────────────────────────────────────────────

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// formatMoney formatea un decimal con separadores es-AR y dos decimales.
// Ej: 1234567.5 → "1.234.567,50". Solo para presentación, los cálculos
// siguen en decimal.
func formatMoney(d decimal.Decimal) string {
	f, _ := d.Round(2).Float64()
	return moneyPrinter.Sprintf("%v", number.Decimal(f,
		number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}
