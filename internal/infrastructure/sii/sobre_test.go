package sii_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barralutz/libredte-api/internal/domain/caf"
	"github.com/barralutz/libredte-api/internal/domain/dte"
	infrasii "github.com/barralutz/libredte-api/internal/infrastructure/sii"
	siicat "github.com/barralutz/libredte-api/pkg/sii"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

// firmadorFijo firma con valores constantes: los tests del sobre verifican
// estructura y reetiquetado, no criptografía.
type firmadorFijo struct{}

type identidadFija struct{ rut string }

func (i identidadFija) ID() string { return i.rut }

func (firmadorFijo) Cargar([]byte, string) (infrasii.Identidad, error) {
	return identidadFija{rut: "11222333-9"}, nil
}

func (firmadorFijo) Timbrar(*dte.Documento, *caf.CAF) (string, error) {
	return `<TED version="1.0"><DD/><FRMT algoritmo="SHA1withRSA">x</FRMT></TED>`, nil
}

func (firmadorFijo) Firmar(doc *dte.Documento, _ string, _ infrasii.Identidad) ([]byte, error) {
	return []byte(`<?xml version="1.0" encoding="ISO-8859-1"?><DTE version="1.0"><Documento/></DTE>`), nil
}

func (firmadorFijo) FirmarSemilla(string, infrasii.Identidad) ([]byte, error) {
	return []byte("<getToken/>"), nil
}

func (firmadorFijo) FirmarSobre([]byte, string, infrasii.Identidad) (string, error) {
	return `<Signature xmlns="http://www.w3.org/2000/09/xmldsig#">firma</Signature>`, nil
}

func documentoFirmado(tipo, folio int) *dte.DocumentoFirmado {
	return &dte.DocumentoFirmado{
		Datos: &dte.Documento{
			Encabezado: dte.Encabezado{
				IdDoc: dte.IdDoc{TipoDTE: tipo, Folio: folio},
			},
		},
		TED: "<TED/>",
		XML: []byte(`<?xml version="1.0" encoding="ISO-8859-1"?><DTE version="1.0"><Documento ID="X"/></DTE>`),
	}
}

func caratulaPrueba() infrasii.Caratula {
	return infrasii.Caratula{
		RutEmisor:    "76192083-9",
		RutEnvia:     "11222333-9",
		RutReceptor:  siicat.RutReceptorSII,
		FchResol:     "2026-01-15",
		NroResol:     0,
		TmstFirmaEnv: "2026-08-31T12:00:00",
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Reetiquetado EnvioDTE → EnvioBOLETA
// ──────────────────────────────────────────────────────────────────────────────

// Marcadores exactos del formato de intercambio: si cambian, el SII rechaza
// el envío por esquema. Se fijan aquí byte a byte.
const (
	marcaEnvioDTE = `<EnvioDTE xmlns="http://www.sii.cl/SiiDte" ` +
		`xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" ` +
		`xsi:schemaLocation="http://www.sii.cl/SiiDte EnvioDTE_v10.xsd" version="1.0">`
	marcaEnvioBoleta = `<EnvioBOLETA xmlns="http://www.sii.cl/SiiDte" ` +
		`xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" ` +
		`xsi:schemaLocation="http://www.sii.cl/SiiDte EnvioBOLETA_v11.xsd" version="1.0">`
)

// TestConstruir_SoloBoletas: cuando todos los documentos son boletas el sobre
// queda etiquetado EnvioBOLETA con el esquema v11 y el contenido interno
// intacto.
func TestConstruir_SoloBoletas(t *testing.T) {
	builder := infrasii.NewConstructorSobre(firmadorFijo{})

	docs := []*dte.DocumentoFirmado{
		documentoFirmado(siicat.TipoBoleta, 100),
		documentoFirmado(siicat.TipoBoletaExenta, 101),
	}
	car := caratulaPrueba()
	car.SubTotales = infrasii.SubTotalesDe(docs)

	sobre, err := builder.Construir(docs, car, identidadFija{rut: "11222333-9"})
	require.NoError(t, err)
	texto := string(sobre)

	assert.True(t, strings.HasPrefix(texto, `<?xml version="1.0" encoding="ISO-8859-1"?>`))
	assert.Contains(t, texto, marcaEnvioBoleta)
	assert.True(t, strings.HasSuffix(texto, "</EnvioBOLETA>"))
	assert.NotContains(t, texto, "<EnvioDTE")
	assert.NotContains(t, texto, "</EnvioDTE>")

	// El contenido interno no se toca: SetDTE, carátula y documentos siguen
	// con sus nombres originales.
	assert.Contains(t, texto, `<SetDTE ID="SetDoc">`)
	assert.Contains(t, texto, `<Caratula version="1.0">`)
	assert.Contains(t, texto, `<RutReceptor>60803000-K</RutReceptor>`)
	assert.Contains(t, texto, `<NroResol>0</NroResol>`, "cero es un número de resolución válido")
	assert.Contains(t, texto, `<DTE version="1.0">`)
	assert.Equal(t, 2, strings.Count(texto, `<DTE version="1.0">`))
}

// TestConstruir_Facturas: con documentos que no son boletas el sobre conserva
// la etiqueta EnvioDTE v10.
func TestConstruir_Facturas(t *testing.T) {
	builder := infrasii.NewConstructorSobre(firmadorFijo{})

	docs := []*dte.DocumentoFirmado{documentoFirmado(siicat.TipoFactura, 7)}
	car := caratulaPrueba()
	car.SubTotales = infrasii.SubTotalesDe(docs)

	sobre, err := builder.Construir(docs, car, identidadFija{})
	require.NoError(t, err)
	texto := string(sobre)

	assert.Contains(t, texto, marcaEnvioDTE)
	assert.True(t, strings.HasSuffix(texto, "</EnvioDTE>"))
	assert.NotContains(t, texto, "EnvioBOLETA")
}

// Una mezcla de boletas y facturas no se reetiqueta: basta un documento que
// no sea boleta para que el sobre siga siendo EnvioDTE.
func TestConstruir_MezclaNoReetiqueta(t *testing.T) {
	builder := infrasii.NewConstructorSobre(firmadorFijo{})

	docs := []*dte.DocumentoFirmado{
		documentoFirmado(siicat.TipoBoleta, 100),
		documentoFirmado(siicat.TipoFactura, 7),
	}
	car := caratulaPrueba()
	car.SubTotales = infrasii.SubTotalesDe(docs)

	sobre, err := builder.Construir(docs, car, identidadFija{})
	require.NoError(t, err)
	assert.Contains(t, string(sobre), marcaEnvioDTE)
	assert.NotContains(t, string(sobre), "EnvioBOLETA")
}

func TestConstruir_SinDocumentos(t *testing.T) {
	builder := infrasii.NewConstructorSobre(firmadorFijo{})
	_, err := builder.Construir(nil, caratulaPrueba(), identidadFija{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no contiene documentos")
}

// Un documento con serialización vacía aborta el sobre: mejor fallar aquí
// que recibir un rechazo de esquema del SII.
func TestConstruir_DocumentoVacio(t *testing.T) {
	builder := infrasii.NewConstructorSobre(firmadorFijo{})

	doc := documentoFirmado(siicat.TipoBoleta, 100)
	doc.XML = []byte(`<?xml version="1.0" encoding="ISO-8859-1"?>   `)

	_, err := builder.Construir([]*dte.DocumentoFirmado{doc}, caratulaPrueba(), identidadFija{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serialización vacía")
}

// TestSubTotalesDe agrupa por tipo conservando el orden de aparición.
func TestSubTotalesDe(t *testing.T) {
	docs := []*dte.DocumentoFirmado{
		documentoFirmado(siicat.TipoBoleta, 1),
		documentoFirmado(siicat.TipoBoleta, 2),
		documentoFirmado(siicat.TipoBoletaExenta, 3),
		documentoFirmado(siicat.TipoBoleta, 4),
	}
	subtotales := infrasii.SubTotalesDe(docs)
	require.Len(t, subtotales, 2)
	assert.Equal(t, infrasii.SubTotalDTE{TpoDTE: 39, NroDTE: 3}, subtotales[0])
	assert.Equal(t, infrasii.SubTotalDTE{TpoDTE: 41, NroDTE: 1}, subtotales[1])
}
