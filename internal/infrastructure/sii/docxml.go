// Package sii implementa los colaboradores externos del pipeline de emisión:
// la serialización XML del DTE, el motor de timbraje y firma, el armado del
// sobre de envío y el cliente HTTP del SII.
package sii

import (
	"fmt"
	"strconv"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/barralutz/libredte-api/internal/domain/dte"
)

// ConstruirXMLDocumento serializa el documento canónico como árbol
// <DTE><Documento ID="...">...</Documento></DTE>, sin TED ni firma (los
// agrega el firmador). El orden de los elementos sigue el esquema del SII.
func ConstruirXMLDocumento(doc *dte.Documento) (*etree.Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("documento nulo")
	}

	x := etree.NewDocument()
	x.CreateProcInst("xml", `version="1.0" encoding="ISO-8859-1"`)

	root := x.CreateElement("DTE")
	root.CreateAttr("version", "1.0")

	documento := root.CreateElement("Documento")
	documento.CreateAttr("ID", IDDocumento(doc))

	enc := documento.CreateElement("Encabezado")
	escribirIDDoc(enc, doc.Encabezado.IdDoc)
	escribirEmisor(enc, doc.Encabezado.Emisor)
	escribirReceptor(enc, doc.Encabezado.Receptor)
	escribirTotales(enc, doc.Encabezado.Totales)

	for _, item := range doc.Detalle {
		escribirDetalle(documento, item)
	}
	for _, dr := range doc.DscRcgGlobal {
		escribirDscRcgGlobal(documento, dr)
	}
	for _, ref := range doc.Referencia {
		escribirReferencia(documento, ref)
	}

	return x, nil
}

// IDDocumento identificador del nodo Documento (referencia de la firma).
func IDDocumento(doc *dte.Documento) string {
	return fmt.Sprintf("T%dF%d", doc.Tipo(), doc.Folio())
}

func escribirIDDoc(parent *etree.Element, id dte.IdDoc) {
	el := parent.CreateElement("IdDoc")
	texto(el, "TipoDTE", strconv.Itoa(id.TipoDTE))
	texto(el, "Folio", strconv.Itoa(id.Folio))
	texto(el, "FchEmis", id.FchEmis)
	if id.IndServicio != 0 {
		texto(el, "IndServicio", strconv.Itoa(id.IndServicio))
	}
	if id.FmaPago != "" {
		texto(el, "FmaPago", id.FmaPago)
	}
	if id.MedioPago != "" {
		texto(el, "MedioPago", id.MedioPago)
	}
	if id.TermPagoDias != 0 {
		texto(el, "TermPagoDias", strconv.Itoa(id.TermPagoDias))
	}
	if id.FchVenc != "" {
		texto(el, "FchVenc", id.FchVenc)
	}
}

func escribirEmisor(parent *etree.Element, e dte.EmisorDoc) {
	el := parent.CreateElement("Emisor")
	texto(el, "RUTEmisor", e.RUTEmisor)
	// Claves divergentes por tipo de documento: el preparador llenó un solo par.
	if e.RznSoc != "" {
		texto(el, "RznSoc", e.RznSoc)
	} else {
		texto(el, "RznSocEmisor", e.RznSocEmisor)
	}
	if e.GiroEmis != "" {
		texto(el, "GiroEmis", e.GiroEmis)
	} else {
		texto(el, "GiroEmisor", e.GiroEmisor)
	}
	if e.Acteco != "" {
		texto(el, "Acteco", e.Acteco)
	}
	if e.Telefono != "" {
		texto(el, "Telefono", e.Telefono)
	}
	if e.CorreoEmisor != "" {
		texto(el, "CorreoEmisor", e.CorreoEmisor)
	}
	texto(el, "DirOrigen", e.DirOrigen)
	texto(el, "CmnaOrigen", e.CmnaOrigen)
	texto(el, "CiudadOrigen", e.CiudadOrigen)
}

func escribirReceptor(parent *etree.Element, r dte.Receptor) {
	el := parent.CreateElement("Receptor")
	texto(el, "RUTRecep", r.RUTRecep)
	texto(el, "RznSocRecep", r.RznSocRecep)
	if r.GiroRecep != "" {
		texto(el, "GiroRecep", r.GiroRecep)
	}
	if r.Contacto != "" {
		texto(el, "Contacto", r.Contacto)
	}
	if r.CorreoRecep != "" {
		texto(el, "CorreoRecep", r.CorreoRecep)
	}
	if r.DirRecep != "" {
		texto(el, "DirRecep", r.DirRecep)
	}
	if r.CmnaRecep != "" {
		texto(el, "CmnaRecep", r.CmnaRecep)
	}
	if r.CiudadRecep != "" {
		texto(el, "CiudadRecep", r.CiudadRecep)
	}
}

func escribirTotales(parent *etree.Element, t dte.Totales) {
	el := parent.CreateElement("Totales")
	if t.MntNeto.IsPositive() {
		texto(el, "MntNeto", monto(t.MntNeto))
	}
	if t.MntExe.IsPositive() {
		texto(el, "MntExe", monto(t.MntExe))
	}
	if t.MntNeto.IsPositive() {
		texto(el, "TasaIVA", t.TasaIVA.String())
		texto(el, "IVA", monto(t.IVA))
	}
	for _, impto := range t.ImptoReten {
		reten := el.CreateElement("ImptoReten")
		texto(reten, "TipoImp", strconv.Itoa(impto.TipoImp))
		texto(reten, "TasaImp", impto.TasaImp.String())
		texto(reten, "MontoImp", monto(impto.MontoImp))
	}
	texto(el, "MntTotal", monto(t.MntTotal))
}

func escribirDetalle(parent *etree.Element, d dte.Detalle) {
	el := parent.CreateElement("Detalle")
	texto(el, "NroLinDet", strconv.Itoa(d.NroLinDet))
	for _, cdg := range d.CdgItem {
		if cdg.VlrCodigo == "" {
			continue
		}
		codigo := el.CreateElement("CdgItem")
		tpo := cdg.TpoCodigo
		if tpo == "" {
			tpo = "INT1"
		}
		texto(codigo, "TpoCodigo", tpo)
		texto(codigo, "VlrCodigo", cdg.VlrCodigo)
	}
	if d.IndExe == 1 {
		texto(el, "IndExe", "1")
	}
	texto(el, "NmbItem", d.NmbItem)
	if d.DscItem != "" {
		texto(el, "DscItem", d.DscItem)
	}
	if d.QtyItem != nil {
		texto(el, "QtyItem", d.QtyItem.String())
	}
	if d.UnmdItem != "" {
		texto(el, "UnmdItem", d.UnmdItem)
	}
	if d.PrcItem != nil {
		texto(el, "PrcItem", d.PrcItem.String())
	}
	if d.DescuentoPct != nil {
		texto(el, "DescuentoPct", d.DescuentoPct.String())
	}
	if d.DescuentoMonto != nil {
		texto(el, "DescuentoMonto", monto(*d.DescuentoMonto))
	}
	if d.RecargoPct != nil {
		texto(el, "RecargoPct", d.RecargoPct.String())
	}
	if d.RecargoMonto != nil {
		texto(el, "RecargoMonto", monto(*d.RecargoMonto))
	}
	texto(el, "MontoItem", monto(d.Monto().Round(0)))
}

func escribirDscRcgGlobal(parent *etree.Element, dr dte.DscRcgGlobal) {
	el := parent.CreateElement("DscRcgGlobal")
	texto(el, "NroLinDR", strconv.Itoa(dr.NroLinDR))
	texto(el, "TpoMov", dr.TpoMov)
	if dr.GlosaDR != "" {
		texto(el, "GlosaDR", dr.GlosaDR)
	}
	texto(el, "TpoValor", dr.TpoValor)
	texto(el, "ValorDR", dr.ValorDR.String())
	if dr.IndExeDR == 1 {
		texto(el, "IndExeDR", "1")
	}
}

func escribirReferencia(parent *etree.Element, r dte.Referencia) {
	el := parent.CreateElement("Referencia")
	texto(el, "NroLinRef", strconv.Itoa(r.NroLinRef))
	if r.TpoDocRef != "" {
		texto(el, "TpoDocRef", r.TpoDocRef)
	}
	if r.FolioRef != "" {
		texto(el, "FolioRef", r.FolioRef)
	}
	if r.FchRef != "" {
		texto(el, "FchRef", r.FchRef)
	}
	if r.CodRef != 0 {
		texto(el, "CodRef", strconv.Itoa(r.CodRef))
	}
	if r.RazonRef != "" {
		texto(el, "RazonRef", r.RazonRef)
	}
}

func texto(parent *etree.Element, tag, valor string) {
	parent.CreateElement(tag).SetText(valor)
}

func monto(d decimal.Decimal) string {
	return d.Round(0).String()
}

// CodificarLatin1 convierte la cadena UTF-8 al ISO-8859-1 que exige el SII en
// sus formatos de intercambio.
func CodificarLatin1(s string) ([]byte, error) {
	out, _, err := transform.Bytes(charmap.ISO8859_1.NewEncoder(), []byte(s))
	if err != nil {
		return nil, fmt.Errorf("sii: codificar ISO-8859-1: %w", err)
	}
	return out, nil
}

// DecodificarLatin1 es la operación inversa; todo byte ISO-8859-1 es válido,
// por lo que nunca falla.
func DecodificarLatin1(b []byte) string {
	out, _, _ := transform.Bytes(charmap.ISO8859_1.NewDecoder(), b)
	return string(out)
}
