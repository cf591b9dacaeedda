package sii

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/barralutz/libredte-api/internal/domain/dte"
	"github.com/barralutz/libredte-api/pkg/sii"
)

// Marcadores exactos del sobre: el reetiquetado a EnvioBOLETA se hace por
// reemplazo textual para no perturbar el contenido firmado.
const (
	aperturaEnvioDTE = `<EnvioDTE xmlns="http://www.sii.cl/SiiDte" ` +
		`xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" ` +
		`xsi:schemaLocation="http://www.sii.cl/SiiDte EnvioDTE_v10.xsd" version="1.0">`
	cierreEnvioDTE = `</EnvioDTE>`

	aperturaEnvioBoleta = `<EnvioBOLETA xmlns="http://www.sii.cl/SiiDte" ` +
		`xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" ` +
		`xsi:schemaLocation="http://www.sii.cl/SiiDte EnvioBOLETA_v11.xsd" version="1.0">`
	cierreEnvioBoleta = `</EnvioBOLETA>`

	idSetDTE = "SetDoc"
)

// Caratula son los datos de la carátula del sobre de envío.
type Caratula struct {
	RutEmisor    string
	RutEnvia     string
	RutReceptor  string
	FchResol     string
	NroResol     int
	TmstFirmaEnv string
	SubTotales   []SubTotalDTE
}

// SubTotalDTE cuenta los documentos del sobre por tipo.
type SubTotalDTE struct {
	TpoDTE int
	NroDTE int
}

// ConstructorSobre arma y firma el sobre EnvioDTE, reetiquetándolo como
// EnvioBOLETA cuando todos los documentos contenidos son boletas.
type ConstructorSobre struct {
	firmador Firmador
	ahora    func() time.Time
}

func NewConstructorSobre(firmador Firmador) *ConstructorSobre {
	return &ConstructorSobre{firmador: firmador, ahora: time.Now}
}

// Construir ensambla el sobre con los documentos firmados y la carátula.
// Los documentos deben venir con contenido serializado no vacío.
func (c *ConstructorSobre) Construir(docs []*dte.DocumentoFirmado, car Caratula, id Identidad) ([]byte, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("el sobre no contiene documentos")
	}

	var set strings.Builder
	set.WriteString(`<SetDTE ID="` + idSetDTE + `">`)
	set.WriteString(c.caratulaXML(car))
	for i, doc := range docs {
		contenido := sinDeclaracion(DecodificarLatin1(doc.XML))
		if strings.TrimSpace(contenido) == "" {
			return nil, fmt.Errorf("el documento %d del sobre tiene serialización vacía", i+1)
		}
		set.WriteString(contenido)
	}
	set.WriteString(`</SetDTE>`)

	firma, err := c.firmador.FirmarSobre([]byte(set.String()), idSetDTE, id)
	if err != nil {
		return nil, fmt.Errorf("no fue posible firmar el sobre: %w", err)
	}

	sobre := `<?xml version="1.0" encoding="ISO-8859-1"?>` + "\n" +
		aperturaEnvioDTE + set.String() + firma + cierreEnvioDTE

	if todosBoletas(docs) {
		sobre = reetiquetarEnvioBoleta(sobre)
	}
	return CodificarLatin1(sobre)
}

func (c *ConstructorSobre) caratulaXML(car Caratula) string {
	var b strings.Builder
	b.WriteString(`<Caratula version="1.0">`)
	b.WriteString(`<RutEmisor>` + car.RutEmisor + `</RutEmisor>`)
	b.WriteString(`<RutEnvia>` + car.RutEnvia + `</RutEnvia>`)
	b.WriteString(`<RutReceptor>` + car.RutReceptor + `</RutReceptor>`)
	b.WriteString(`<FchResol>` + car.FchResol + `</FchResol>`)
	b.WriteString(`<NroResol>` + strconv.Itoa(car.NroResol) + `</NroResol>`)
	marca := car.TmstFirmaEnv
	if marca == "" {
		marca = c.ahora().Format("2006-01-02T15:04:05")
	}
	b.WriteString(`<TmstFirmaEnv>` + marca + `</TmstFirmaEnv>`)
	for _, st := range car.SubTotales {
		b.WriteString(`<SubTotDTE><TpoDTE>` + strconv.Itoa(st.TpoDTE) + `</TpoDTE>` +
			`<NroDTE>` + strconv.Itoa(st.NroDTE) + `</NroDTE></SubTotDTE>`)
	}
	b.WriteString(`</Caratula>`)
	return b.String()
}

// SubTotalesDe agrupa los documentos del sobre por tipo conservando el orden
// de primera aparición.
func SubTotalesDe(docs []*dte.DocumentoFirmado) []SubTotalDTE {
	var orden []int
	conteo := make(map[int]int)
	for _, doc := range docs {
		tipo := doc.Datos.Tipo()
		if _, visto := conteo[tipo]; !visto {
			orden = append(orden, tipo)
		}
		conteo[tipo]++
	}
	subtotales := make([]SubTotalDTE, 0, len(orden))
	for _, tipo := range orden {
		subtotales = append(subtotales, SubTotalDTE{TpoDTE: tipo, NroDTE: conteo[tipo]})
	}
	return subtotales
}

func todosBoletas(docs []*dte.DocumentoFirmado) bool {
	for _, doc := range docs {
		tipo := doc.Datos.Tipo()
		if tipo != sii.TipoBoleta && tipo != sii.TipoBoletaExenta {
			return false
		}
	}
	return true
}

// reetiquetarEnvioBoleta reemplaza únicamente los marcadores de apertura y
// cierre del sobre; el contenido interno queda byte a byte intacto.
func reetiquetarEnvioBoleta(sobre string) string {
	s := strings.Replace(sobre, aperturaEnvioDTE, aperturaEnvioBoleta, 1)
	return strings.Replace(s, cierreEnvioDTE, cierreEnvioBoleta, 1)
}

func sinDeclaracion(xml string) string {
	s := strings.TrimSpace(xml)
	if strings.HasPrefix(s, "<?xml") {
		if fin := strings.Index(s, "?>"); fin >= 0 {
			s = strings.TrimSpace(s[fin+2:])
		}
	}
	return s
}
