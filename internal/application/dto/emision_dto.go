package dto

import (
	"encoding/base64"
	"fmt"

	"github.com/barralutz/libredte-api/internal/domain/dte"
)

// DocumentoRequest datos tributarios del documento a emitir. Las claves
// siguen el esquema del SII para que el cuerpo JSON sea el mismo que usa el
// formato oficial.
type DocumentoRequest struct {
	Emisor             dte.Emisor              `json:"Emisor"`
	Receptor           dte.Receptor            `json:"Receptor"`
	Detalle            []dte.Detalle           `json:"Detalle"`
	DescuentosRecargos []dte.DscRcgGlobal      `json:"DscRcgGlobal,omitempty"`
	ImpuestosAdic      []dte.ImpuestoAdicional `json:"ImptoReten,omitempty"`
	Referencias        []dte.Referencia        `json:"Referencia,omitempty"`
	Folio              int                     `json:"Folio,omitempty"`
	FchEmis            string                  `json:"FchEmis,omitempty"`
	IndServicio        int                     `json:"IndServicio,omitempty"`
	FmaPago            string                  `json:"FmaPago,omitempty"`
	MedioPago          string                  `json:"MedioPago,omitempty"`
	TermPagoDias       int                     `json:"TermPagoDias,omitempty"`
	FchVenc            string                  `json:"FchVenc,omitempty"`
}

// EmitirRequest cuerpo de las rutas de emisión individual.
// Certificado y CAF viajan en base64.
type EmitirRequest struct {
	Documento   DocumentoRequest `json:"documento"`
	CAF         string           `json:"caf"`
	Certificado string           `json:"certificado"`
	Password    string           `json:"password"`
	// VistaPrevia genera XML/PDF/JSON sin enviar al SII.
	VistaPrevia bool `json:"vista_previa,omitempty"`
	// PapelContinuo ancho del rollo térmico en mm (57, 75, 80). Cero = 80.
	PapelContinuo int `json:"papel_continuo,omitempty"`
}

// EnvioMultipleRequest cuerpo de la ruta de envío masivo de boletas.
type EnvioMultipleRequest struct {
	Boletas     []DocumentoRequest `json:"boletas"`
	CAF         string             `json:"caf"`
	Certificado string             `json:"certificado"`
	Password    string             `json:"password"`
}

// DecodificarBase64 decodifica un campo base64 del cuerpo con un error que
// nombra el campo problemático.
func DecodificarBase64(campo, valor string) ([]byte, error) {
	if valor == "" {
		return nil, fmt.Errorf("%w: falta el campo '%s'", dte.ErrValidacion, campo)
	}
	datos, err := base64.StdEncoding.DecodeString(valor)
	if err != nil {
		return nil, fmt.Errorf("%w: el campo '%s' no es base64 válido", dte.ErrValidacion, campo)
	}
	return datos, nil
}
