// Package sii contiene catálogos y validaciones alineados al formato de
// Documentos Tributarios Electrónicos del SII (Chile).
package sii

import "strconv"

// =============================================================================
// Tipos de DTE soportados por el pipeline de emisión.
// Los códigos son los oficiales del SII y deben reproducirse exactamente.
// =============================================================================

const (
	TipoFactura       = 33 // Factura Electrónica
	TipoFacturaExenta = 34 // Factura Exenta Electrónica
	TipoBoleta        = 39 // Boleta Electrónica
	TipoBoletaExenta  = 41 // Boleta Exenta Electrónica
	TipoGuiaDespacho  = 52 // Guía de Despacho Electrónica
	TipoNotaDebito    = 56 // Nota de Débito Electrónica
	TipoNotaCredito   = 61 // Nota de Crédito Electrónica
)

// RutReceptorSII es el RUT del SII como receptor de los sobres de envío.
const RutReceptorSII = "60803000-K"

// RutReceptorGenerico es el receptor por defecto de boletas sin detalle de cliente.
const RutReceptorGenerico = "66666666-6"

// RazonSocialGenerica acompaña al receptor genérico de boletas.
const RazonSocialGenerica = "SIN DETALLE"

// TasaIVA tasa vigente del Impuesto al Valor Agregado (%).
const TasaIVA = 19

// Servidores del SII según ambiente.
const (
	ServidorCertificacion = "maullin" // ambiente de certificación/pruebas
	ServidorProduccion    = "palena"  // ambiente de producción
)

// Códigos de referencia válidos en notas de crédito.
const (
	CodRefAnulacion     = 1 // Anula documento de referencia
	CodRefCorrigeTexto  = 2 // Corrige texto del documento de referencia
	CodRefCorrigeMontos = 3 // Corrige montos del documento de referencia
)

// nombres legibles por tipo de DTE (para impresión y artefactos).
var nombresTipo = map[int]string{
	TipoFactura:       "FACTURA ELECTRÓNICA",
	TipoFacturaExenta: "FACTURA EXENTA ELECTRÓNICA",
	TipoBoleta:        "BOLETA ELECTRÓNICA",
	TipoBoletaExenta:  "BOLETA EXENTA ELECTRÓNICA",
	TipoGuiaDespacho:  "GUÍA DE DESPACHO ELECTRÓNICA",
	TipoNotaDebito:    "NOTA DE DÉBITO ELECTRÓNICA",
	TipoNotaCredito:   "NOTA DE CRÉDITO ELECTRÓNICA",
}

// NombreTipo devuelve el nombre legible de un tipo de DTE.
// Para tipos desconocidos devuelve "DOCUMENTO TIPO <n>".
func NombreTipo(tipo int) string {
	if n, ok := nombresTipo[tipo]; ok {
		return n
	}
	if tipo == 0 {
		return "DOCUMENTO DESCONOCIDO"
	}
	return "DOCUMENTO TIPO " + strconv.Itoa(tipo)
}

// NombreCorto devuelve el identificador corto usado en rutas de artefactos
// (solo minúsculas, dígitos y guión bajo).
func NombreCorto(tipo int) string {
	switch tipo {
	case TipoFactura, TipoFacturaExenta:
		return "factura"
	case TipoBoleta, TipoBoletaExenta:
		return "boleta"
	case TipoGuiaDespacho:
		return "guia_despacho"
	case TipoNotaDebito:
		return "nota_debito"
	case TipoNotaCredito:
		return "nota_credito"
	default:
		return "documento"
	}
}

// CodRefValido indica si el código de referencia es uno de los aceptados
// para notas de crédito (1, 2 o 3).
func CodRefValido(cod int) bool {
	return cod == CodRefAnulacion || cod == CodRefCorrigeTexto || cod == CodRefCorrigeMontos
}
