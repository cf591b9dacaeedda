// Package render produce los artefactos de salida de una emisión: la
// representación gráfica en PDF y el documento JSON para impresoras térmicas.
package render

import (
	"fmt"

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
	"github.com/shopspring/decimal"

	"github.com/barralutz/libredte-api/internal/domain/dte"
	"github.com/barralutz/libredte-api/pkg/sii"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 120, Green: 0, Blue: 0}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

// GeneradorPDF es el puerto de la representación gráfica. La generación es
// best-effort: un fallo aquí nunca deshace una emisión ya aceptada.
type GeneradorPDF interface {
	Generar(doc *dte.DocumentoFirmado) ([]byte, error)
}

// MarotoPDF implementa GeneradorPDF usando Maroto v2.
type MarotoPDF struct{}

var _ GeneradorPDF = (*MarotoPDF)(nil)

func NewMarotoPDF() *MarotoPDF { return &MarotoPDF{} }

// Generar genera el PDF de la representación gráfica y devuelve sus bytes.
func (g *MarotoPDF) Generar(firmado *dte.DocumentoFirmado) ([]byte, error) {
	if firmado == nil || firmado.Datos == nil {
		return nil, fmt.Errorf("pdf: documento vacío")
	}
	doc := firmado.Datos

	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle(sii.NombreTipo(doc.Tipo()), true).
		WithAuthor(doc.Encabezado.Emisor.RazonSocial(), true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(filaCabecera(doc))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(filaEmisor(doc.Encabezado.Emisor))
	m.AddRows(filaReceptor(doc.Encabezado.Receptor))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(filaCabeceraTabla())
	for _, r := range filasDetalle(doc.Detalle) {
		m.AddRows(r)
	}

	if len(doc.Referencia) > 0 {
		m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
		for _, r := range filasReferencias(doc.Referencia) {
			m.AddRows(r)
		}
	}

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(filaTotales(doc.Encabezado.Totales))

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	for _, r := range filasTimbre(firmado.TED) {
		m.AddRows(r)
	}

	salida, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return salida.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

func filaCabecera(doc *dte.Documento) core.Row {
	emisor := doc.Encabezado.Emisor
	return row.New(18).Add(
		col.New(7).Add(
			text.New(emisor.RazonSocial(), props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New("RUT: "+emisor.RUTEmisor, props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New(sii.NombreTipo(doc.Tipo()), props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right,
				Color: colorPrimary, Top: 1,
			}),
			text.New(fmt.Sprintf("N° %d", doc.Folio()), props.Text{
				Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 7,
			}),
			text.New("Fecha: "+doc.Encabezado.IdDoc.FchEmis, props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

func filaEmisor(e dte.EmisorDoc) core.Row {
	return row.New(12).Add(
		col.New(12).Add(
			text.New("DATOS DEL EMISOR", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(fmt.Sprintf("Giro: %s   |   Dirección: %s, %s",
				oGuion(e.Giro()),
				oGuion(e.DirOrigen),
				oGuion(e.CmnaOrigen),
			), props.Text{Size: 8, Top: 7, Color: colorGray}),
		),
	)
}

func filaReceptor(r dte.Receptor) core.Row {
	return row.New(14).Add(
		col.New(12).Add(
			text.New("RECEPTOR", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(r.RznSocRecep, props.Text{
				Style: fontstyle.Bold, Size: 10, Top: 6,
			}),
			text.New(fmt.Sprintf("RUT: %s   |   Giro: %s   |   Dirección: %s",
				r.RUTRecep,
				oGuion(r.GiroRecep),
				oGuion(r.DirRecep),
			), props.Text{Size: 8, Top: 12, Color: colorGray}),
		),
	)
}

func filaCabeceraTabla() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a,
			Color: colorPrimary, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("Cant.", 1, align.Center),
		h("Descripción", 6, align.Left),
		h("P. Unitario", 2, align.Right),
		h("Monto", 3, align.Right),
	)
}

func filasDetalle(detalle []dte.Detalle) []core.Row {
	filas := make([]core.Row, 0, len(detalle))
	for _, d := range detalle {
		nombre := d.NmbItem
		if d.Exento() {
			nombre += " (exento)"
		}
		filas = append(filas, row.New(7).Add(
			col.New(1).Add(text.New(
				cantidad(d.QtyItem),
				props.Text{Size: 8, Align: align.Center, Top: 1},
			)),
			col.New(6).Add(text.New(
				nombre,
				props.Text{Size: 8, Align: align.Left, Top: 1, Left: 1},
			)),
			col.New(2).Add(text.New(
				"$"+formatearMonto(d.PrcItem),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
			col.New(3).Add(text.New(
				"$"+separarMiles(d.Monto().Round(0).String()),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
		))
	}
	return filas
}

func filasReferencias(refs []dte.Referencia) []core.Row {
	filas := []core.Row{
		row.New(6).Add(col.New(12).Add(
			text.New("REFERENCIAS", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
		)),
	}
	for _, r := range refs {
		linea := fmt.Sprintf("Doc. tipo %s folio %s (%s)", r.TpoDocRef, r.FolioRef, r.FchRef)
		if r.RazonRef != "" {
			linea += ": " + r.RazonRef
		}
		filas = append(filas, row.New(5).Add(col.New(12).Add(
			text.New(linea, props.Text{Size: 8, Color: colorGray, Top: 1, Left: 2}),
		)))
	}
	return filas
}

func filaTotales(t dte.Totales) core.Row {
	etiqueta := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2,
		})
	}
	valor := func(s string) core.Component {
		return text.New(s, props.Text{Size: 9, Align: align.Right, Right: 1})
	}
	totalEtiqueta := text.New("TOTAL:", props.Text{
		Style: fontstyle.Bold, Size: 10, Align: align.Right,
		Color: colorPrimary, Right: 2,
	})
	totalValor := text.New("$"+separarMiles(t.MntTotal.Round(0).String()), props.Text{
		Style: fontstyle.Bold, Size: 10, Align: align.Right,
		Color: colorPrimary, Right: 1,
	})

	izq := []core.Component{}
	der := []core.Component{}
	if t.MntNeto.IsPositive() {
		izq = append(izq, etiqueta("Neto:"), etiqueta("IVA ("+t.TasaIVA.String()+"%):"))
		der = append(der,
			valor("$"+separarMiles(t.MntNeto.Round(0).String())),
			valor("$"+separarMiles(t.IVA.Round(0).String())))
	}
	if t.MntExe.IsPositive() {
		izq = append(izq, etiqueta("Exento:"))
		der = append(der, valor("$"+separarMiles(t.MntExe.Round(0).String())))
	}
	izq = append(izq, totalEtiqueta)
	der = append(der, totalValor)

	return row.New(26).Add(
		col.New(3),
		col.New(3).Add(izq...),
		col.New(3).Add(der...),
		col.New(3),
	)
}

// filasTimbre: timbre electrónico como QR + leyenda de verificación.
func filasTimbre(ted string) []core.Row {
	filas := []core.Row{
		row.New(6).Add(col.New(12).Add(
			text.New("TIMBRE ELECTRÓNICO SII", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
		)),
	}
	if ted != "" {
		filas = append(filas, row.New(40).Add(
			col.New(4).Add(code.NewQr(ted, props.Rect{Percent: 95, Center: true})),
			col.New(8).Add(
				text.New("Timbre electrónico del documento.", props.Text{
					Size: 8, Top: 4, Left: 3, Color: colorGray,
				}),
				text.New("Verifique el documento en www.sii.cl", props.Text{
					Style: fontstyle.Bold, Size: 9, Top: 18, Left: 3, Color: colorPrimary,
				}),
			),
		))
	}
	return filas
}

// ── helpers ───────────────────────────────────────────────────────────────────

func oGuion(s string) string {
	if s != "" {
		return s
	}
	return "—"
}

func cantidad(d *decimal.Decimal) string {
	if d == nil {
		return "1"
	}
	return d.String()
}

func formatearMonto(d *decimal.Decimal) string {
	if d == nil {
		return "—"
	}
	return separarMiles(d.Round(0).String())
}

// separarMiles inserta puntos de miles en un string numérico sin decimales.
func separarMiles(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	buf := make([]byte, 0, n+n/3)
	for i, c := range []byte(s) {
		if i > 0 && (n-i)%3 == 0 {
			buf = append(buf, '.')
		}
		buf = append(buf, c)
	}
	return string(buf)
}
