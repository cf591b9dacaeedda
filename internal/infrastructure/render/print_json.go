package render

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/barralutz/libredte-api/internal/domain/dte"
	"github.com/barralutz/libredte-api/pkg/sii"
)

// OpcionesImpresion parámetros de la impresora de destino.
type OpcionesImpresion struct {
	// PapelContinuo ancho del rollo en milímetros (57, 75, 80). Cero = 80.
	PapelContinuo int
}

const textoVerificacion = "Verifique documento: www.sii.cl"

// copiaNoValida leyenda de la copia impresa; las boletas la reemplazan por la
// versión corta.
const copiaNoValida = "COPIA CLIENTE - NO VÁLIDA COMO DOCUMENTO TRIBUTARIO"

// JSONImpresion arma el documento de impresión para impresoras térmicas. Las
// claves y el anidamiento son un formato de intercambio fijado por los
// consumidores del JSON: no se renombran. El resultado se poda
// recursivamente: se eliminan los valores nulos y los booleanos falsos, se
// conservan el cero y la cadena vacía, y los contenedores que quedan vacíos
// también se eliminan.
func JSONImpresion(firmado *dte.DocumentoFirmado, emisor dte.Emisor, op OpcionesImpresion, generado time.Time) map[string]any {
	doc := firmado.Datos
	enc := doc.Encabezado
	tipo := doc.Tipo()

	ancho := op.PapelContinuo
	if ancho == 0 {
		ancho = 80
	}

	salida := map[string]any{
		"metadata": map[string]any{
			"ancho_papel":      ancho,
			"version":          "1.0",
			"fecha_generacion": generado.Format("2006-01-02 15:04:05"),
		},
		"documento": map[string]any{
			"tipo":              tipo,
			"folio":             doc.Folio(),
			"fecha_emision":     enc.IdDoc.FchEmis,
			"tipo_nombre":       sii.NombreTipo(tipo),
			"fecha_vencimiento": cadena(enc.IdDoc.FchVenc),
		},
		"emisor": map[string]any{
			"rut":          enc.Emisor.RUTEmisor,
			"razon_social": enc.Emisor.RazonSocial(),
			"giro":         enc.Emisor.Giro(),
			"direccion":    cadena(enc.Emisor.DirOrigen),
			"comuna":       cadena(enc.Emisor.CmnaOrigen),
			"ciudad":       cadena(enc.Emisor.CiudadOrigen),
			"telefono":     cadena(enc.Emisor.Telefono),
			"email":        cadena(enc.Emisor.CorreoEmisor),
			"resolucion": map[string]any{
				"numero": enteroResol(emisor.NroResol),
				"fecha":  cadena(emisor.FchResol),
			},
		},
		"receptor": receptorImpresion(enc.Receptor),
		"detalle":  detalleImpresion(doc.Detalle),
		"totales":  totalesImpresion(enc.Totales),
		"ted": map[string]any{
			"data_string":        datosTimbre(firmado.TED),
			"resolucion_numero":  enteroResol(emisor.NroResol),
			"resolucion_fecha":   cadena(emisor.FchResol),
			"texto_verificacion": textoVerificacion,
		},
	}

	if len(doc.Referencia) > 0 {
		salida["referencias"] = referenciasImpresion(doc.Referencia)
	}
	if len(doc.DscRcgGlobal) > 0 {
		salida["descuentos_recargos"] = descuentosRecargosImpresion(doc.DscRcgGlobal)
	}
	agregarBloquesPorTipo(salida, tipo, enc.IdDoc)

	return podarMapa(salida)
}

// agregarBloquesPorTipo agrega el bloque de título de impresión del tipo y,
// en facturas, las condiciones de pago cuando vienen informadas.
func agregarBloquesPorTipo(salida map[string]any, tipo int, id dte.IdDoc) {
	switch tipo {
	case sii.TipoBoleta, sii.TipoBoletaExenta:
		salida["impresion"] = bloqueImpresion(tipo, "COPIA CLIENTE")
	case sii.TipoFactura, sii.TipoFacturaExenta:
		salida["impresion"] = bloqueImpresion(tipo, copiaNoValida)
		// La poda descarta el mapa de pago si ninguna condición viene.
		salida["pago"] = map[string]any{
			"medio":       cadena(id.MedioPago),
			"forma":       cadena(id.FmaPago),
			"dias":        enteroOpcional(id.TermPagoDias),
			"vencimiento": cadena(id.FchVenc),
		}
	case sii.TipoNotaCredito, sii.TipoNotaDebito, sii.TipoGuiaDespacho:
		salida["impresion"] = bloqueImpresion(tipo, copiaNoValida)
	}
}

func bloqueImpresion(tipo int, copia string) map[string]any {
	return map[string]any{
		"titulo":              sii.NombreTipo(tipo),
		"copia":               copia,
		"tipo_letra_titulo":   "b",
		"tamaño_letra_titulo": 12,
	}
}

func receptorImpresion(r dte.Receptor) map[string]any {
	return map[string]any{
		"rut":          cadena(r.RUTRecep),
		"razon_social": cadena(r.RznSocRecep),
		"giro":         cadena(r.GiroRecep),
		"direccion":    cadena(r.DirRecep),
		"comuna":       cadena(r.CmnaRecep),
		"ciudad":       cadena(r.CiudadRecep),
		"contacto":     cadena(r.Contacto),
		"email":        cadena(r.CorreoRecep),
	}
}

func detalleImpresion(detalle []dte.Detalle) []any {
	lineas := make([]any, 0, len(detalle))
	for _, d := range detalle {
		linea := map[string]any{
			"nombre":               d.NmbItem,
			"cantidad":             cantidadImpresion(d.QtyItem),
			"precio_unitario":      numeroImpresion(d.PrcItem),
			"monto":                d.Monto().Round(0).IntPart(),
			"descuento":            numeroImpresion(d.DescuentoMonto),
			"descuento_porcentaje": numeroImpresion(d.DescuentoPct),
			"recargo":              numeroImpresion(d.RecargoMonto),
			"recargo_porcentaje":   numeroImpresion(d.RecargoPct),
			"unidad":               cadena(d.UnmdItem),
			"es_exento":            d.Exento(),
			"descripcion":          cadena(d.DscItem),
		}
		if codigos := codigosImpresion(d.CdgItem); len(codigos) > 0 {
			linea["codigos"] = codigos
		}
		lineas = append(lineas, linea)
	}
	return lineas
}

func codigosImpresion(codigos []dte.CodigoItem) []any {
	salida := make([]any, 0, len(codigos))
	for _, c := range codigos {
		if c.VlrCodigo == "" {
			continue
		}
		tipo := c.TpoCodigo
		if tipo == "" {
			tipo = "INTERNO"
		}
		salida = append(salida, map[string]any{"tipo": tipo, "valor": c.VlrCodigo})
	}
	return salida
}

func totalesImpresion(t dte.Totales) map[string]any {
	salida := map[string]any{
		"neto":     montoPositivo(t.MntNeto),
		"exento":   montoPositivo(t.MntExe),
		"iva":      nil,
		"tasa_iva": nil,
		"total":    t.MntTotal.Round(0).IntPart(),
	}
	if t.MntNeto.IsPositive() {
		salida["iva"] = t.IVA.Round(0).IntPart()
		salida["tasa_iva"] = numeroImpresion(&t.TasaIVA)
	}
	if len(t.ImptoReten) > 0 {
		adicionales := make([]any, 0, len(t.ImptoReten))
		for _, impto := range t.ImptoReten {
			adicionales = append(adicionales, map[string]any{
				"tipo":  impto.TipoImp,
				"tasa":  numeroImpresion(&impto.TasaImp),
				"monto": impto.MontoImp.Round(0).IntPart(),
			})
		}
		salida["impuestos_adicionales"] = adicionales
	}
	return salida
}

func referenciasImpresion(refs []dte.Referencia) []any {
	salida := make([]any, 0, len(refs))
	for _, r := range refs {
		salida = append(salida, map[string]any{
			"numero_linea":          r.NroLinRef,
			"tipo_documento":        cadena(r.TpoDocRef),
			"tipo_documento_nombre": nombreTipoReferencia(r.TpoDocRef),
			"folio":                 cadena(r.FolioRef),
			"fecha":                 cadena(r.FchRef),
			"codigo":                enteroOpcional(r.CodRef),
			"razon":                 cadena(r.RazonRef),
		})
	}
	return salida
}

func descuentosRecargosImpresion(globales []dte.DscRcgGlobal) []any {
	salida := make([]any, 0, len(globales))
	for _, dr := range globales {
		movimiento := "recargo"
		if dr.EsDescuento() {
			movimiento = "descuento"
		}
		salida = append(salida, map[string]any{
			"tipo":          movimiento,
			"glosa":         cadena(dr.GlosaDR),
			"valor":         numeroImpresion(&dr.ValorDR),
			"es_porcentaje": dr.EsPorcentaje(),
			"afecta_exento": dr.IndExeDR == 1,
		})
	}
	return salida
}

// nombreTipoReferencia resuelve el nombre legible del documento referenciado.
// TpoDocRef admite códigos no numéricos (ej: "SET" en documentos de
// certificación).
func nombreTipoReferencia(tpoDocRef string) string {
	if tpoDocRef == "" {
		return "REFERENCIA"
	}
	if n, err := strconv.Atoi(tpoDocRef); err == nil {
		return sii.NombreTipo(n)
	}
	return "DOCUMENTO TIPO " + tpoDocRef
}

// datosTimbre extrae el nodo <DD> del TED: es lo único que codifica el
// PDF417/QR impreso. Los textos de error reemplazan al dato para que la
// impresión degrade de forma visible en vez de abortar.
func datosTimbre(ted string) string {
	if strings.TrimSpace(ted) == "" {
		return "TED no disponible"
	}
	ini := strings.Index(ted, "<DD>")
	fin := strings.Index(ted, "</DD>")
	if ini < 0 || fin < 0 || fin < ini {
		return "Nodo DD no encontrado"
	}
	return ted[ini : fin+len("</DD>")]
}

func cantidadImpresion(qty *decimal.Decimal) any {
	if qty == nil {
		return 1
	}
	return numeroImpresion(qty)
}

func numeroImpresion(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	if d.IsInteger() {
		return d.IntPart()
	}
	valor, _ := d.Float64()
	return valor
}

// cadena convierte la cadena vacía en nulo para que la poda la descarte: una
// clave opcional sin valor no aparece en la salida.
func cadena(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func enteroOpcional(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

// enteroResol la resolución 0 (etapa de certificación) es un número válido;
// solo la ausencia se poda.
func enteroResol(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func montoPositivo(d decimal.Decimal) any {
	if !d.IsPositive() {
		return nil
	}
	return d.Round(0).IntPart()
}

// ── Poda ──────────────────────────────────────────────────────────────────────

// podarMapa elimina recursivamente los valores nulos y los false. El cero y
// la cadena vacía se conservan: son valores legítimos para la impresora.
func podarMapa(m map[string]any) map[string]any {
	for clave, valor := range m {
		limpio, conservar := podarValor(valor)
		if !conservar {
			delete(m, clave)
			continue
		}
		m[clave] = limpio
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func podarLista(lista []any) []any {
	salida := lista[:0]
	for _, valor := range lista {
		if limpio, conservar := podarValor(valor); conservar {
			salida = append(salida, limpio)
		}
	}
	if len(salida) == 0 {
		return nil
	}
	return salida
}

func podarValor(valor any) (any, bool) {
	switch v := valor.(type) {
	case nil:
		return nil, false
	case bool:
		return v, v
	case map[string]any:
		limpio := podarMapa(v)
		return limpio, limpio != nil
	case []any:
		limpio := podarLista(v)
		return limpio, limpio != nil
	default:
		return v, true
	}
}
