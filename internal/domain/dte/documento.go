// Package dte define el modelo de dominio de los Documentos Tributarios
// Electrónicos (DTE) del SII: encabezado, detalle, referencias y el documento
// firmado. Los nombres de campo reproducen el esquema oficial del SII
// (RUTEmisor, NmbItem, NroLinDet, etc.); no son una elección de estilo.
package dte

import "github.com/shopspring/decimal"

// Emisor datos del emisor tal como llegan en la petición.
// NroResol y FchResol corresponden a la resolución que autoriza la emisión y
// solo son obligatorios para envíos reales al SII (no para previsualización).
type Emisor struct {
	RUTEmisor    string `json:"RUTEmisor"`
	RznSoc       string `json:"RznSoc"`
	GiroEmis     string `json:"GiroEmis"`
	Acteco       string `json:"Acteco,omitempty"`
	DirOrigen    string `json:"DirOrigen"`
	CmnaOrigen   string `json:"CmnaOrigen"`
	CiudadOrigen string `json:"CiudadOrigen,omitempty"`
	Telefono     string `json:"Telefono,omitempty"`
	CorreoEmisor string `json:"CorreoEmisor,omitempty"`

	NroResol *int   `json:"NroResol,omitempty"` // puntero: 0 es un valor válido
	FchResol string `json:"FchResol,omitempty"`
}

// EmisorDoc bloque del emisor ya formateado para un tipo de documento.
// El esquema del SII usa claves distintas para el mismo campo semántico según
// el tipo: boletas llevan RznSocEmisor/GiroEmisor, el resto RznSoc/GiroEmis.
// El preparador llena exactamente un par; el otro queda vacío y se omite.
type EmisorDoc struct {
	RUTEmisor    string `json:"RUTEmisor"`
	RznSoc       string `json:"RznSoc,omitempty"`
	RznSocEmisor string `json:"RznSocEmisor,omitempty"`
	GiroEmis     string `json:"GiroEmis,omitempty"`
	GiroEmisor   string `json:"GiroEmisor,omitempty"`
	Acteco       string `json:"Acteco,omitempty"`
	Telefono     string `json:"Telefono,omitempty"`
	CorreoEmisor string `json:"CorreoEmisor,omitempty"`
	DirOrigen    string `json:"DirOrigen"`
	CmnaOrigen   string `json:"CmnaOrigen"`
	CiudadOrigen string `json:"CiudadOrigen"`
}

// RazonSocial devuelve la razón social sin importar bajo qué clave viaja.
func (e EmisorDoc) RazonSocial() string {
	if e.RznSoc != "" {
		return e.RznSoc
	}
	return e.RznSocEmisor
}

// Giro devuelve el giro sin importar bajo qué clave viaja.
func (e EmisorDoc) Giro() string {
	if e.GiroEmis != "" {
		return e.GiroEmis
	}
	return e.GiroEmisor
}

// Receptor datos del receptor del documento.
type Receptor struct {
	RUTRecep    string `json:"RUTRecep"`
	RznSocRecep string `json:"RznSocRecep"`
	GiroRecep   string `json:"GiroRecep,omitempty"`
	DirRecep    string `json:"DirRecep,omitempty"`
	CmnaRecep   string `json:"CmnaRecep,omitempty"`
	CiudadRecep string `json:"CiudadRecep,omitempty"`
	Contacto    string `json:"Contacto,omitempty"`
	CorreoRecep string `json:"CorreoRecep,omitempty"`
}

// Detalle línea de detalle. Cantidad/precio o monto total: al menos una de las
// dos formas debe venir informada (lo exige la normalización). El descuento y
// el recargo de línea pueden venir como monto o como porcentaje; si vienen
// ambos, el monto manda.
type Detalle struct {
	NroLinDet      int              `json:"NroLinDet,omitempty"`
	NmbItem        string           `json:"NmbItem"`
	DscItem        string           `json:"DscItem,omitempty"`
	CdgItem        []CodigoItem     `json:"CdgItem,omitempty"`
	QtyItem        *decimal.Decimal `json:"QtyItem,omitempty"`
	UnmdItem       string           `json:"UnmdItem,omitempty"`
	PrcItem        *decimal.Decimal `json:"PrcItem,omitempty"`
	DescuentoPct   *decimal.Decimal `json:"DescuentoPct,omitempty"`
	DescuentoMonto *decimal.Decimal `json:"DescuentoMonto,omitempty"`
	RecargoPct     *decimal.Decimal `json:"RecargoPct,omitempty"`
	RecargoMonto   *decimal.Decimal `json:"RecargoMonto,omitempty"`
	MontoItem      *decimal.Decimal `json:"MontoItem,omitempty"`
	IndExe         int              `json:"IndExe,omitempty"` // 1 = ítem exento de IVA
}

// CodigoItem código identificador de un ítem del detalle (SKU, EAN, etc.).
type CodigoItem struct {
	TpoCodigo string `json:"TpoCodigo,omitempty"`
	VlrCodigo string `json:"VlrCodigo"`
}

// Exento indica si la línea está marcada como exenta de IVA.
func (d Detalle) Exento() bool { return d.IndExe == 1 }

// Monto devuelve el monto de la línea. MontoItem ya viene neto de descuentos
// y recargos; cuando se calcula desde Qty*Prc, el descuento y el recargo se
// aplican sobre esa base.
func (d Detalle) Monto() decimal.Decimal {
	if d.MontoItem != nil {
		return *d.MontoItem
	}
	if d.PrcItem == nil {
		return decimal.Zero
	}
	qty := decimal.NewFromInt(1)
	if d.QtyItem != nil {
		qty = *d.QtyItem
	}
	base := qty.Mul(*d.PrcItem)
	m := base
	switch {
	case d.DescuentoMonto != nil:
		m = m.Sub(*d.DescuentoMonto)
	case d.DescuentoPct != nil:
		m = m.Sub(base.Mul(*d.DescuentoPct).Div(decimal.NewFromInt(100)))
	}
	switch {
	case d.RecargoMonto != nil:
		m = m.Add(*d.RecargoMonto)
	case d.RecargoPct != nil:
		m = m.Add(base.Mul(*d.RecargoPct).Div(decimal.NewFromInt(100)))
	}
	return m
}

// Referencia referencia a otro documento tributario.
type Referencia struct {
	NroLinRef int    `json:"NroLinRef,omitempty"`
	TpoDocRef string `json:"TpoDocRef,omitempty"`
	FolioRef  string `json:"FolioRef,omitempty"`
	FchRef    string `json:"FchRef,omitempty"`
	CodRef    int    `json:"CodRef,omitempty"`
	RazonRef  string `json:"RazonRef,omitempty"`
}

// IdDoc identificación del documento.
type IdDoc struct {
	TipoDTE      int    `json:"TipoDTE"`
	Folio        int    `json:"Folio"`
	FchEmis      string `json:"FchEmis"`
	IndServicio  int    `json:"IndServicio,omitempty"` // solo boletas
	FchVenc      string `json:"FchVenc,omitempty"`
	MedioPago    string `json:"MedioPago,omitempty"`
	FmaPago      string `json:"FmaPago,omitempty"`
	TermPagoDias int    `json:"TermPagoDias,omitempty"`
}

// DscRcgGlobal descuento (TpoMov "D") o recargo ("R") global sobre los
// totales del documento. TpoValor "%" aplica ValorDR como porcentaje de la
// base; "$" como monto. IndExeDR=1 lo aplica sobre el monto exento en lugar
// del afecto.
type DscRcgGlobal struct {
	NroLinDR int             `json:"NroLinDR,omitempty"`
	TpoMov   string          `json:"TpoMov"`
	GlosaDR  string          `json:"GlosaDR,omitempty"`
	TpoValor string          `json:"TpoValor"`
	ValorDR  decimal.Decimal `json:"ValorDR"`
	IndExeDR int             `json:"IndExeDR,omitempty"`
}

// EsDescuento indica si el movimiento resta del total.
func (d DscRcgGlobal) EsDescuento() bool { return d.TpoMov == "D" }

// EsPorcentaje indica si ValorDR se interpreta como porcentaje.
func (d DscRcgGlobal) EsPorcentaje() bool { return d.TpoValor == "%" }

// ImpuestoAdicional impuesto adicional o retención del documento (ImptoReten).
type ImpuestoAdicional struct {
	TipoImp  int             `json:"TipoImp"`
	TasaImp  decimal.Decimal `json:"TasaImp"`
	MontoImp decimal.Decimal `json:"MontoImp"`
}

// Totales montos del documento, calculados por el preparador a partir del
// detalle normalizado y los descuentos/recargos globales.
type Totales struct {
	MntNeto    decimal.Decimal     `json:"MntNeto"`
	MntExe     decimal.Decimal     `json:"MntExe"`
	TasaIVA    decimal.Decimal     `json:"TasaIVA"`
	IVA        decimal.Decimal     `json:"IVA"`
	ImptoReten []ImpuestoAdicional `json:"ImptoReten,omitempty"`
	MntTotal   decimal.Decimal     `json:"MntTotal"`
}

// Encabezado encabezado del documento preparado.
type Encabezado struct {
	IdDoc    IdDoc     `json:"IdDoc"`
	Emisor   EmisorDoc `json:"Emisor"`
	Receptor Receptor  `json:"Receptor"`
	Totales  Totales   `json:"Totales"`
}

// Documento documento canónico listo para timbrar: el tipo ya fue derivado de
// las reglas de negocio (nunca lo fija el llamador) y el detalle y las
// referencias vienen normalizados con numeración 1..N.
type Documento struct {
	Encabezado   Encabezado     `json:"Encabezado"`
	Detalle      []Detalle      `json:"Detalle"`
	DscRcgGlobal []DscRcgGlobal `json:"DscRcgGlobal,omitempty"`
	Referencia   []Referencia   `json:"Referencia,omitempty"`
}

// Tipo devuelve el código de tipo de DTE.
func (d *Documento) Tipo() int { return d.Encabezado.IdDoc.TipoDTE }

// Folio devuelve el folio asignado.
func (d *Documento) Folio() int { return d.Encabezado.IdDoc.Folio }

// DocumentoFirmado documento timbrado y firmado. Inmutable una vez producido
// por el estampador: TED es el XML del timbre electrónico y XML la
// serialización firmada completa del DTE.
type DocumentoFirmado struct {
	Datos *Documento
	TED   string
	XML   []byte
}
