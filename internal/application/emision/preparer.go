// Package emision implementa el pipeline de emisión de DTE: preparación por
// tipo de documento, timbraje y firma, armado del sobre de envío y
// comunicación con el SII.
package emision

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/barralutz/libredte-api/internal/domain/dte"
	"github.com/barralutz/libredte-api/pkg/sii"
)

// TipoDocumento clase de documento soportada por el pipeline. El conjunto es
// cerrado: el dispatch por switch permite chequeo exhaustivo.
type TipoDocumento int

const (
	Boleta TipoDocumento = iota
	Factura
	NotaCredito
	NotaDebito
)

// String nombre corto del tipo (para rutas de artefactos y logs).
func (t TipoDocumento) String() string {
	switch t {
	case Boleta:
		return "boleta"
	case Factura:
		return "factura"
	case NotaCredito:
		return "nota_credito"
	case NotaDebito:
		return "nota_debito"
	default:
		return "documento"
	}
}

// Entrada datos crudos del llamador para preparar un documento.
type Entrada struct {
	Emisor             dte.Emisor
	Receptor           dte.Receptor
	Detalle            []dte.Detalle
	DescuentosRecargos []dte.DscRcgGlobal
	ImpuestosAdic      []dte.ImpuestoAdicional
	Referencias        []dte.Referencia
	Folio              int
	FchEmis            string // opcional; vacío = hoy
	IndServicio        int    // opcional; solo boletas, por defecto 3

	// Condiciones de pago; solo facturas.
	FmaPago      string
	MedioPago    string
	TermPagoDias int
	FchVenc      string
}

// Preparador construye el documento canónico por tipo: una rutina de
// normalización compartida más un validador/formateador por variante. Todos
// los tipos comparten el 90% del modelado y divergen solo en qué campos del
// receptor/emisor son obligatorios y qué metadatos exigen las referencias.
type Preparador struct {
	ahora func() time.Time
}

// NewPreparador crea el preparador.
func NewPreparador() *Preparador {
	return &Preparador{ahora: time.Now}
}

// Preparar construye y valida el documento canónico del tipo indicado.
// El código de tipo de DTE resultante se deriva de las reglas de negocio
// (ej: boleta con todos los ítems exentos => 41), nunca del llamador.
func (p *Preparador) Preparar(tipo TipoDocumento, in Entrada) (*dte.Documento, error) {
	detalle, err := normalizarDetalle(in.Detalle)
	if err != nil {
		return nil, err
	}
	globales, err := normalizarDescuentosRecargos(in.DescuentosRecargos)
	if err != nil {
		return nil, err
	}
	in.DescuentosRecargos = globales

	switch tipo {
	case Boleta:
		return p.prepararBoleta(in, detalle)
	case Factura:
		return p.prepararFactura(in, detalle)
	case NotaCredito:
		return p.prepararNotaCredito(in, detalle)
	case NotaDebito:
		return p.prepararNotaDebito(in, detalle)
	default:
		return nil, fmt.Errorf("%w: tipo de documento desconocido", dte.ErrValidacion)
	}
}

// ── Variantes ─────────────────────────────────────────────────────────────────

func (p *Preparador) prepararBoleta(in Entrada, detalle []dte.Detalle) (*dte.Documento, error) {
	tipoDTE := sii.TipoBoleta
	if todosExentos(detalle) {
		tipoDTE = sii.TipoBoletaExenta
	}

	indServicio := in.IndServicio
	if indServicio == 0 {
		indServicio = 3
	}

	receptor := in.Receptor
	if receptor.RUTRecep == "" {
		receptor.RUTRecep = sii.RutReceptorGenerico
	}
	if receptor.RznSocRecep == "" {
		receptor.RznSocRecep = sii.RazonSocialGenerica
	}

	doc := &dte.Documento{
		Encabezado: dte.Encabezado{
			IdDoc: dte.IdDoc{
				TipoDTE:     tipoDTE,
				Folio:       in.Folio,
				FchEmis:     p.fechaEmision(in),
				IndServicio: indServicio,
			},
			Emisor:   formatearEmisorBoleta(in.Emisor),
			Receptor: receptor,
			Totales:  calcularTotales(detalle, in.DescuentosRecargos, in.ImpuestosAdic),
		},
		Detalle:      detalle,
		DscRcgGlobal: in.DescuentosRecargos,
	}

	if len(in.Referencias) > 0 {
		doc.Referencia = formatearReferencias(in.Referencias)
	}
	return doc, nil
}

func (p *Preparador) prepararFactura(in Entrada, detalle []dte.Detalle) (*dte.Documento, error) {
	if err := validarReceptor(in.Receptor, true, "facturas"); err != nil {
		return nil, err
	}

	doc := &dte.Documento{
		Encabezado: dte.Encabezado{
			IdDoc: dte.IdDoc{
				TipoDTE:      sii.TipoFactura,
				Folio:        in.Folio,
				FchEmis:      p.fechaEmision(in),
				FmaPago:      in.FmaPago,
				MedioPago:    in.MedioPago,
				TermPagoDias: in.TermPagoDias,
				FchVenc:      in.FchVenc,
			},
			Emisor:   formatearEmisor(in.Emisor),
			Receptor: in.Receptor,
			Totales:  calcularTotales(detalle, in.DescuentosRecargos, in.ImpuestosAdic),
		},
		Detalle:      detalle,
		DscRcgGlobal: in.DescuentosRecargos,
	}

	if len(in.Referencias) > 0 {
		refs, err := validarReferencias(in.Referencias, false)
		if err != nil {
			return nil, err
		}
		doc.Referencia = refs
	}
	return doc, nil
}

func (p *Preparador) prepararNotaCredito(in Entrada, detalle []dte.Detalle) (*dte.Documento, error) {
	if len(in.Referencias) == 0 {
		return nil, fmt.Errorf("%w: las notas de crédito deben referenciar al menos un documento", dte.ErrValidacion)
	}
	if err := validarReceptor(in.Receptor, false, "notas de crédito"); err != nil {
		return nil, err
	}
	refs, err := validarReferencias(in.Referencias, true)
	if err != nil {
		return nil, err
	}

	return &dte.Documento{
		Encabezado: dte.Encabezado{
			IdDoc: dte.IdDoc{
				TipoDTE: sii.TipoNotaCredito,
				Folio:   in.Folio,
				FchEmis: p.fechaEmision(in),
			},
			Emisor:   formatearEmisor(in.Emisor),
			Receptor: in.Receptor,
			Totales:  calcularTotales(detalle, in.DescuentosRecargos, in.ImpuestosAdic),
		},
		Detalle:      detalle,
		DscRcgGlobal: in.DescuentosRecargos,
		Referencia:   refs,
	}, nil
}

func (p *Preparador) prepararNotaDebito(in Entrada, detalle []dte.Detalle) (*dte.Documento, error) {
	if len(in.Referencias) == 0 {
		return nil, fmt.Errorf("%w: las notas de débito deben referenciar al menos un documento", dte.ErrValidacion)
	}
	if err := validarReceptor(in.Receptor, false, "notas de débito"); err != nil {
		return nil, err
	}
	refs, err := validarReferencias(in.Referencias, true)
	if err != nil {
		return nil, err
	}

	return &dte.Documento{
		Encabezado: dte.Encabezado{
			IdDoc: dte.IdDoc{
				TipoDTE: sii.TipoNotaDebito,
				Folio:   in.Folio,
				FchEmis: p.fechaEmision(in),
			},
			Emisor:   formatearEmisor(in.Emisor),
			Receptor: in.Receptor,
			Totales:  calcularTotales(detalle, in.DescuentosRecargos, in.ImpuestosAdic),
		},
		Detalle:      detalle,
		DscRcgGlobal: in.DescuentosRecargos,
		Referencia:   refs,
	}, nil
}

func (p *Preparador) fechaEmision(in Entrada) string {
	if in.FchEmis != "" {
		return in.FchEmis
	}
	return p.ahora().Format("2006-01-02")
}

// ── Normalización compartida ──────────────────────────────────────────────────

// normalizarDetalle valida y numera el detalle. Cada ítem debe tener nombre y
// (cantidad y precio unitario) o un monto total; las líneas sin NroLinDet
// reciben numeración secuencial desde 1.
func normalizarDetalle(detalle []dte.Detalle) ([]dte.Detalle, error) {
	if len(detalle) == 0 {
		return nil, fmt.Errorf("%w: el documento debe tener al menos una línea de detalle", dte.ErrValidacion)
	}

	out := make([]dte.Detalle, len(detalle))
	for i, item := range detalle {
		linea := i + 1
		if item.NmbItem == "" {
			return nil, fmt.Errorf("%w: falta 'NmbItem' en detalle línea %d", dte.ErrValidacion, linea)
		}
		if item.QtyItem == nil && item.PrcItem != nil {
			uno := decimal.NewFromInt(1)
			item.QtyItem = &uno
		}
		if item.PrcItem == nil && item.MontoItem == nil {
			return nil, fmt.Errorf("%w: falta 'PrcItem' o 'MontoItem' en detalle línea %d", dte.ErrValidacion, linea)
		}
		if item.NroLinDet == 0 {
			item.NroLinDet = linea
		}
		out[i] = item
	}
	return out, nil
}

// normalizarDescuentosRecargos numera y valida los descuentos/recargos
// globales: el movimiento debe ser 'D' o 'R', el tipo de valor '%' o '$', y
// los porcentajes quedan en [0, 100].
func normalizarDescuentosRecargos(globales []dte.DscRcgGlobal) ([]dte.DscRcgGlobal, error) {
	if len(globales) == 0 {
		return nil, nil
	}
	cien := decimal.NewFromInt(100)
	out := make([]dte.DscRcgGlobal, len(globales))
	for i, dr := range globales {
		if dr.NroLinDR == 0 {
			dr.NroLinDR = i + 1
		}
		if dr.TpoMov != "D" && dr.TpoMov != "R" {
			return nil, fmt.Errorf("%w: 'TpoMov' del descuento/recargo global línea %d debe ser 'D' o 'R'", dte.ErrValidacion, dr.NroLinDR)
		}
		if dr.TpoValor != "%" && dr.TpoValor != "$" {
			return nil, fmt.Errorf("%w: 'TpoValor' del descuento/recargo global línea %d debe ser '%%' o '$'", dte.ErrValidacion, dr.NroLinDR)
		}
		if dr.ValorDR.IsNegative() {
			return nil, fmt.Errorf("%w: 'ValorDR' del descuento/recargo global línea %d no puede ser negativo", dte.ErrValidacion, dr.NroLinDR)
		}
		if dr.EsPorcentaje() && dr.ValorDR.GreaterThan(cien) {
			return nil, fmt.Errorf("%w: 'ValorDR' del descuento/recargo global línea %d excede el 100%%", dte.ErrValidacion, dr.NroLinDR)
		}
		out[i] = dr
	}
	return out, nil
}

// todosExentos indica si cada línea está marcada con IndExe=1.
func todosExentos(detalle []dte.Detalle) bool {
	for _, item := range detalle {
		if !item.Exento() {
			return false
		}
	}
	return true
}

// formatearReferencias asigna numeración secuencial a las referencias sin
// validación adicional (boletas).
func formatearReferencias(refs []dte.Referencia) []dte.Referencia {
	out := make([]dte.Referencia, len(refs))
	for i, ref := range refs {
		if ref.NroLinRef == 0 {
			ref.NroLinRef = i + 1
		}
		out[i] = ref
	}
	return out
}

// validarReferencias numera y valida las referencias. Todas exigen tipo,
// folio y fecha del documento referenciado; las notas (conNota=true) exigen
// además un código de razón dentro de {1,2,3} y la glosa de justificación.
func validarReferencias(refs []dte.Referencia, conNota bool) ([]dte.Referencia, error) {
	out := make([]dte.Referencia, len(refs))
	for i, ref := range refs {
		if ref.NroLinRef == 0 {
			ref.NroLinRef = i + 1
		}
		if ref.TpoDocRef == "" {
			return nil, fmt.Errorf("%w: falta 'TpoDocRef' en referencia línea %d", dte.ErrValidacion, ref.NroLinRef)
		}
		if ref.FolioRef == "" {
			return nil, fmt.Errorf("%w: falta 'FolioRef' en referencia línea %d", dte.ErrValidacion, ref.NroLinRef)
		}
		if ref.FchRef == "" {
			return nil, fmt.Errorf("%w: falta 'FchRef' en referencia línea %d", dte.ErrValidacion, ref.NroLinRef)
		}
		if conNota {
			if ref.CodRef == 0 {
				return nil, fmt.Errorf("%w: falta 'CodRef' en referencia línea %d", dte.ErrValidacion, ref.NroLinRef)
			}
			if !sii.CodRefValido(ref.CodRef) {
				return nil, fmt.Errorf("%w: el valor de 'CodRef' en referencia línea %d debe ser 1, 2 o 3", dte.ErrValidacion, ref.NroLinRef)
			}
			if ref.RazonRef == "" {
				return nil, fmt.Errorf("%w: falta 'RazonRef' en referencia línea %d", dte.ErrValidacion, ref.NroLinRef)
			}
		}
		out[i] = ref
	}
	return out, nil
}

// validarReceptor exige los campos mínimos del receptor según la variante.
// conGiro=true exige además el giro (obligatorio en facturas; opcional en
// notas, que pueden anular documentos que nunca lo requirieron).
func validarReceptor(r dte.Receptor, conGiro bool, variante string) error {
	if r.RUTRecep == "" {
		return fmt.Errorf("%w: el campo 'receptor.RUTRecep' es obligatorio para %s", dte.ErrValidacion, variante)
	}
	if r.RznSocRecep == "" {
		return fmt.Errorf("%w: el campo 'receptor.RznSocRecep' es obligatorio para %s", dte.ErrValidacion, variante)
	}
	if conGiro && r.GiroRecep == "" {
		return fmt.Errorf("%w: el campo 'receptor.GiroRecep' es obligatorio para %s", dte.ErrValidacion, variante)
	}
	return nil
}

// ── Formateo del emisor ───────────────────────────────────────────────────────

// formatearEmisorBoleta usa las claves de boleta (RznSocEmisor/GiroEmisor).
// La divergencia de claves respecto de formatearEmisor es una particularidad
// del esquema del SII, no un error.
func formatearEmisorBoleta(e dte.Emisor) dte.EmisorDoc {
	return dte.EmisorDoc{
		RUTEmisor:    e.RUTEmisor,
		RznSocEmisor: e.RznSoc,
		GiroEmisor:   e.GiroEmis,
		Acteco:       e.Acteco,
		Telefono:     e.Telefono,
		CorreoEmisor: e.CorreoEmisor,
		DirOrigen:    e.DirOrigen,
		CmnaOrigen:   e.CmnaOrigen,
		CiudadOrigen: ciudadODefecto(e),
	}
}

// formatearEmisor usa las claves de factura/nota (RznSoc/GiroEmis).
func formatearEmisor(e dte.Emisor) dte.EmisorDoc {
	return dte.EmisorDoc{
		RUTEmisor:    e.RUTEmisor,
		RznSoc:       e.RznSoc,
		GiroEmis:     e.GiroEmis,
		Acteco:       e.Acteco,
		Telefono:     e.Telefono,
		CorreoEmisor: e.CorreoEmisor,
		DirOrigen:    e.DirOrigen,
		CmnaOrigen:   e.CmnaOrigen,
		CiudadOrigen: ciudadODefecto(e),
	}
}

func ciudadODefecto(e dte.Emisor) string {
	if e.CiudadOrigen != "" {
		return e.CiudadOrigen
	}
	return e.CmnaOrigen
}

// ── Totales ───────────────────────────────────────────────────────────────────

// calcularTotales suma el detalle normalizado: las líneas exentas van a
// MntExe, el resto a MntNeto con IVA a la tasa vigente. Los descuentos y
// recargos globales ajustan la base afecta o la exenta (según IndExeDR) antes
// de calcular el IVA; los impuestos adicionales se suman al total. Montos en
// pesos enteros, redondeo a 0 decimales.
func calcularTotales(detalle []dte.Detalle, globales []dte.DscRcgGlobal, adicionales []dte.ImpuestoAdicional) dte.Totales {
	var neto, exento decimal.Decimal
	for _, item := range detalle {
		if item.Exento() {
			exento = exento.Add(item.Monto())
		} else {
			neto = neto.Add(item.Monto())
		}
	}

	cien := decimal.NewFromInt(100)
	for _, dr := range globales {
		base := neto
		if dr.IndExeDR == 1 {
			base = exento
		}
		valor := dr.ValorDR
		if dr.EsPorcentaje() {
			valor = base.Mul(dr.ValorDR).Div(cien)
		}
		if dr.EsDescuento() {
			valor = valor.Neg()
		}
		if dr.IndExeDR == 1 {
			exento = exento.Add(valor)
		} else {
			neto = neto.Add(valor)
		}
	}
	neto = neto.Round(0)
	exento = exento.Round(0)

	t := dte.Totales{MntNeto: neto, MntExe: exento, ImptoReten: adicionales}
	if neto.IsPositive() {
		t.TasaIVA = decimal.NewFromInt(sii.TasaIVA)
		t.IVA = neto.Mul(decimal.NewFromInt(sii.TasaIVA)).Div(cien).Round(0)
	}
	t.MntTotal = neto.Add(t.IVA).Add(exento)
	for _, impto := range adicionales {
		t.MntTotal = t.MntTotal.Add(impto.MontoImp.Round(0))
	}
	return t
}
