package render_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barralutz/libredte-api/internal/domain/dte"
	"github.com/barralutz/libredte-api/internal/infrastructure/render"
)

func dec(n int64) *decimal.Decimal {
	d := decimal.NewFromInt(n)
	return &d
}

func emisorResol() dte.Emisor {
	nroResol := 0
	return dte.Emisor{
		RUTEmisor: "76192083-9",
		NroResol:  &nroResol,
		FchResol:  "2026-01-15",
	}
}

func boletaFirmada() *dte.DocumentoFirmado {
	return &dte.DocumentoFirmado{
		Datos: &dte.Documento{
			Encabezado: dte.Encabezado{
				IdDoc: dte.IdDoc{TipoDTE: 39, Folio: 100, FchEmis: "2026-08-31", IndServicio: 3},
				Emisor: dte.EmisorDoc{
					RUTEmisor:    "76192083-9",
					RznSocEmisor: "EMPRESA DE PRUEBA SPA",
					GiroEmisor:   "VENTA AL POR MENOR",
					DirOrigen:    "SANTA CRUZ 211",
					CmnaOrigen:   "SANTA CRUZ",
					CiudadOrigen: "SANTA CRUZ",
				},
				Receptor: dte.Receptor{RUTRecep: "66666666-6", RznSocRecep: "SIN DETALLE"},
				Totales: dte.Totales{
					MntNeto:  decimal.NewFromInt(3000),
					TasaIVA:  decimal.NewFromInt(19),
					IVA:      decimal.NewFromInt(570),
					MntTotal: decimal.NewFromInt(3570),
				},
			},
			Detalle: []dte.Detalle{
				{NroLinDet: 1, NmbItem: "Pan amasado", QtyItem: dec(2), PrcItem: dec(1500)},
			},
		},
		TED: `<TED version="1.0"><DD><RE>76192083-9</RE><TD>39</TD></DD><FRMT algoritmo="SHA1withRSA">x</FRMT></TED>`,
	}
}

func facturaFirmada() *dte.DocumentoFirmado {
	firmado := boletaFirmada()
	firmado.Datos.Encabezado.IdDoc = dte.IdDoc{
		TipoDTE: 33, Folio: 45, FchEmis: "2026-08-31",
		FmaPago: "2", TermPagoDias: 30, FchVenc: "2026-09-30",
	}
	firmado.Datos.Encabezado.Emisor = dte.EmisorDoc{
		RUTEmisor: "76192083-9",
		RznSoc:    "EMPRESA DE PRUEBA SPA",
		GiroEmis:  "VENTA AL POR MENOR",
	}
	return firmado
}

func TestJSONImpresion_Estructura(t *testing.T) {
	generado := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	salida := render.JSONImpresion(boletaFirmada(), emisorResol(),
		render.OpcionesImpresion{PapelContinuo: 57}, generado)

	metadata := salida["metadata"].(map[string]any)
	assert.Equal(t, 57, metadata["ancho_papel"])
	assert.Equal(t, "1.0", metadata["version"])
	assert.Equal(t, "2026-08-31 12:00:00", metadata["fecha_generacion"])

	documento, ok := salida["documento"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 39, documento["tipo"])
	assert.Equal(t, "BOLETA ELECTRÓNICA", documento["tipo_nombre"])
	assert.Equal(t, 100, documento["folio"])
	assert.Equal(t, "2026-08-31", documento["fecha_emision"])

	emisor := salida["emisor"].(map[string]any)
	assert.Equal(t, "EMPRESA DE PRUEBA SPA", emisor["razon_social"])
	resolucion := emisor["resolucion"].(map[string]any)
	assert.Equal(t, 0, resolucion["numero"], "la resolución 0 se conserva")
	assert.Equal(t, "2026-01-15", resolucion["fecha"])

	detalle := salida["detalle"].([]any)
	require.Len(t, detalle, 1)
	linea := detalle[0].(map[string]any)
	assert.Equal(t, "Pan amasado", linea["nombre"])
	assert.Equal(t, int64(2), linea["cantidad"])
	assert.Equal(t, int64(1500), linea["precio_unitario"])
	assert.Equal(t, int64(3000), linea["monto"])
}

// El bloque ted lleva solo el nodo DD (lo que codifica el timbre impreso),
// más la resolución y la leyenda de verificación.
func TestJSONImpresion_BloqueTED(t *testing.T) {
	salida := render.JSONImpresion(boletaFirmada(), emisorResol(),
		render.OpcionesImpresion{}, time.Now())

	ted, ok := salida["ted"].(map[string]any)
	require.True(t, ok, "ted debe ser un bloque, no la cadena completa")
	assert.Equal(t, "<DD><RE>76192083-9</RE><TD>39</TD></DD>", ted["data_string"])
	assert.Equal(t, 0, ted["resolucion_numero"])
	assert.Equal(t, "2026-01-15", ted["resolucion_fecha"])
	assert.Equal(t, "Verifique documento: www.sii.cl", ted["texto_verificacion"])
}

func TestJSONImpresion_TEDDegradado(t *testing.T) {
	firmado := boletaFirmada()
	firmado.TED = "<TED><FRMT>x</FRMT></TED>"
	salida := render.JSONImpresion(firmado, emisorResol(), render.OpcionesImpresion{}, time.Now())
	ted := salida["ted"].(map[string]any)
	assert.Equal(t, "Nodo DD no encontrado", ted["data_string"])

	firmado.TED = ""
	salida = render.JSONImpresion(firmado, emisorResol(), render.OpcionesImpresion{}, time.Now())
	ted = salida["ted"].(map[string]any)
	assert.Equal(t, "TED no disponible", ted["data_string"])
}

// Las boletas llevan el título de impresión con la copia corta y nunca un
// bloque de pago.
func TestJSONImpresion_BloquesBoleta(t *testing.T) {
	salida := render.JSONImpresion(boletaFirmada(), emisorResol(),
		render.OpcionesImpresion{}, time.Now())

	impresion, ok := salida["impresion"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "BOLETA ELECTRÓNICA", impresion["titulo"])
	assert.Equal(t, "COPIA CLIENTE", impresion["copia"])
	assert.Equal(t, "b", impresion["tipo_letra_titulo"])
	assert.Equal(t, 12, impresion["tamaño_letra_titulo"])

	_, hayPago := salida["pago"]
	assert.False(t, hayPago, "las boletas no llevan condiciones de pago")
}

// Las facturas con condiciones de pago las llevan bajo las claves
// medio/forma/dias/vencimiento; sin condiciones, el bloque no aparece.
func TestJSONImpresion_PagoFactura(t *testing.T) {
	salida := render.JSONImpresion(facturaFirmada(), emisorResol(),
		render.OpcionesImpresion{}, time.Now())

	impresion := salida["impresion"].(map[string]any)
	assert.Equal(t, "FACTURA ELECTRÓNICA", impresion["titulo"])
	assert.Equal(t, "COPIA CLIENTE - NO VÁLIDA COMO DOCUMENTO TRIBUTARIO", impresion["copia"])

	pago, ok := salida["pago"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2", pago["forma"])
	assert.Equal(t, 30, pago["dias"])
	assert.Equal(t, "2026-09-30", pago["vencimiento"])
	_, hayMedio := pago["medio"]
	assert.False(t, hayMedio, "las condiciones ausentes no aparecen")

	documento := salida["documento"].(map[string]any)
	assert.Equal(t, "2026-09-30", documento["fecha_vencimiento"])

	sinPago := facturaFirmada()
	sinPago.Datos.Encabezado.IdDoc.FmaPago = ""
	sinPago.Datos.Encabezado.IdDoc.TermPagoDias = 0
	sinPago.Datos.Encabezado.IdDoc.FchVenc = ""
	salida = render.JSONImpresion(sinPago, emisorResol(), render.OpcionesImpresion{}, time.Now())
	_, hayPago := salida["pago"]
	assert.False(t, hayPago, "sin condiciones el bloque de pago desaparece")
}

func TestJSONImpresion_DescuentosRecargos(t *testing.T) {
	firmado := boletaFirmada()
	firmado.Datos.DscRcgGlobal = []dte.DscRcgGlobal{
		{NroLinDR: 1, TpoMov: "D", GlosaDR: "Descuento invierno", TpoValor: "%", ValorDR: decimal.NewFromInt(10)},
	}
	salida := render.JSONImpresion(firmado, emisorResol(), render.OpcionesImpresion{}, time.Now())

	drs, ok := salida["descuentos_recargos"].([]any)
	require.True(t, ok)
	require.Len(t, drs, 1)
	dr := drs[0].(map[string]any)
	assert.Equal(t, "descuento", dr["tipo"])
	assert.Equal(t, "Descuento invierno", dr["glosa"])
	assert.Equal(t, int64(10), dr["valor"])
	assert.Equal(t, true, dr["es_porcentaje"])
	_, hayExento := dr["afecta_exento"]
	assert.False(t, hayExento, "el false se poda")
}

func TestJSONImpresion_ImpuestosAdicionales(t *testing.T) {
	firmado := facturaFirmada()
	firmado.Datos.Encabezado.Totales.ImptoReten = []dte.ImpuestoAdicional{
		{TipoImp: 24, TasaImp: decimal.NewFromFloat(20.5), MontoImp: decimal.NewFromInt(615)},
	}
	salida := render.JSONImpresion(firmado, emisorResol(), render.OpcionesImpresion{}, time.Now())

	totales := salida["totales"].(map[string]any)
	adicionales, ok := totales["impuestos_adicionales"].([]any)
	require.True(t, ok)
	require.Len(t, adicionales, 1)
	impto := adicionales[0].(map[string]any)
	assert.Equal(t, 24, impto["tipo"])
	assert.Equal(t, 20.5, impto["tasa"])
	assert.Equal(t, int64(615), impto["monto"])
}

// La poda elimina nulos y false pero conserva el cero y la cadena vacía, y
// descarta los contenedores que quedan vacíos.
func TestJSONImpresion_Poda(t *testing.T) {
	salida := render.JSONImpresion(boletaFirmada(), emisorResol(),
		render.OpcionesImpresion{}, time.Now())

	metadata := salida["metadata"].(map[string]any)
	assert.Equal(t, 80, metadata["ancho_papel"], "sin papel continuo el ancho por defecto es 80")

	// La línea no es exenta: el booleano false desaparece.
	detalle := salida["detalle"].([]any)
	linea := detalle[0].(map[string]any)
	_, hayExento := linea["es_exento"]
	assert.False(t, hayExento, "un booleano false se poda")

	// Sin referencias ni descuentos globales las claves no aparecen.
	_, hayReferencias := salida["referencias"]
	assert.False(t, hayReferencias, "una lista vacía se poda")
	_, hayDescuentos := salida["descuentos_recargos"]
	assert.False(t, hayDescuentos)

	// El receptor genérico conserva solo sus campos informados.
	receptor := salida["receptor"].(map[string]any)
	assert.Equal(t, "SIN DETALLE", receptor["razon_social"])
	_, hayGiro := receptor["giro"]
	assert.False(t, hayGiro, "los campos ausentes del receptor no aparecen")
}

// Una línea exenta conserva su marca true y un documento totalmente exento
// omite neto/iva de los totales.
func TestJSONImpresion_ExentoVerdadero(t *testing.T) {
	firmado := boletaFirmada()
	firmado.Datos.Detalle[0].IndExe = 1
	firmado.Datos.Encabezado.Totales = dte.Totales{
		MntExe:   decimal.NewFromInt(3000),
		MntTotal: decimal.NewFromInt(3000),
	}
	salida := render.JSONImpresion(firmado, emisorResol(), render.OpcionesImpresion{}, time.Now())

	detalle := salida["detalle"].([]any)
	linea := detalle[0].(map[string]any)
	assert.Equal(t, true, linea["es_exento"], "un booleano true se conserva")

	totales := salida["totales"].(map[string]any)
	assert.Equal(t, int64(3000), totales["exento"])
	assert.Equal(t, int64(3000), totales["total"])
	_, hayNeto := totales["neto"]
	assert.False(t, hayNeto, "un documento exento no informa neto ni IVA")
	_, hayIVA := totales["iva"]
	assert.False(t, hayIVA)
}

func TestJSONImpresion_ReferenciaNombrada(t *testing.T) {
	firmado := boletaFirmada()
	firmado.Datos.Referencia = []dte.Referencia{
		{NroLinRef: 1, TpoDocRef: "33", FolioRef: "45", FchRef: "2026-08-01", CodRef: 1, RazonRef: "Anula factura"},
		{NroLinRef: 2, TpoDocRef: "SET", FolioRef: "1", FchRef: "2026-08-01"},
	}
	salida := render.JSONImpresion(firmado, emisorResol(), render.OpcionesImpresion{}, time.Now())

	refs := salida["referencias"].([]any)
	require.Len(t, refs, 2)
	primera := refs[0].(map[string]any)
	assert.Equal(t, 1, primera["numero_linea"])
	assert.Equal(t, "33", primera["tipo_documento"])
	assert.Equal(t, "FACTURA ELECTRÓNICA", primera["tipo_documento_nombre"])
	assert.Equal(t, 1, primera["codigo"])
	segunda := refs[1].(map[string]any)
	assert.Equal(t, "DOCUMENTO TIPO SET", segunda["tipo_documento_nombre"])
}
