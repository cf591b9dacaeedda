package emision

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/barralutz/libredte-api/internal/domain/caf"
	"github.com/barralutz/libredte-api/internal/domain/dte"
	"github.com/barralutz/libredte-api/internal/infrastructure/almacen"
	"github.com/barralutz/libredte-api/internal/infrastructure/render"
	infrasii "github.com/barralutz/libredte-api/internal/infrastructure/sii"
	"github.com/barralutz/libredte-api/pkg/config"
	"github.com/barralutz/libredte-api/pkg/logger"
	"github.com/barralutz/libredte-api/pkg/sii"
)

// Solicitud es una petición de emisión de un documento individual.
// Certificado y CAF llegan ya decodificados desde la capa HTTP.
type Solicitud struct {
	Tipo        TipoDocumento
	Entrada     Entrada
	CAF         []byte
	Certificado []byte
	Password    string
	// VistaPrevia genera los artefactos sin autenticar ni enviar al SII.
	VistaPrevia bool
	Impresion   render.OpcionesImpresion
}

// Resultado de una emisión. PDF puede venir vacío con ErrorPDF explicando por
// qué: la representación gráfica es best-effort y nunca revierte un envío
// aceptado.
type Resultado struct {
	Tipo      int            `json:"tipo"`
	Folio     int            `json:"folio"`
	TrackID   string         `json:"track_id,omitempty"`
	XML       []byte         `json:"xml"`
	RutaXML   string         `json:"ruta_xml,omitempty"`
	PDF       []byte         `json:"pdf,omitempty"`
	RutaPDF   string         `json:"ruta_pdf,omitempty"`
	ErrorPDF  string         `json:"error_pdf,omitempty"`
	Impresion map[string]any `json:"impresion,omitempty"`
}

// Servicio orquesta el pipeline de emisión: autorización de folios,
// preparación, timbraje y firma, sobre, envío y artefactos.
type Servicio struct {
	preparador *Preparador
	firmador   infrasii.Firmador
	sobres     *infrasii.ConstructorSobre
	cliente    infrasii.ClienteSII
	pdf        render.GeneradorPDF
	docs       *almacen.Almacen
	cfg        config.SIIConfig
	log        *logger.Logger
	ahora      func() time.Time
}

// NewServicio construye el servicio de emisión con sus colaboradores.
func NewServicio(
	firmador infrasii.Firmador,
	sobres *infrasii.ConstructorSobre,
	cliente infrasii.ClienteSII,
	pdf render.GeneradorPDF,
	cfg config.SIIConfig,
	log *logger.Logger,
) *Servicio {
	return &Servicio{
		preparador: NewPreparador(),
		firmador:   firmador,
		sobres:     sobres,
		cliente:    cliente,
		pdf:        pdf,
		docs:       almacen.Nuevo(cfg.DatosDir, log),
		cfg:        cfg,
		log:        log,
		ahora:      time.Now,
	}
}

// Emitir ejecuta el pipeline completo para un documento. En modo vista previa
// se detiene antes de la autenticación: nada viaja al SII.
func (s *Servicio) Emitir(ctx context.Context, sol Solicitud) (*Resultado, error) {
	autorizacion, err := caf.Parse(sol.CAF)
	if err != nil {
		return nil, err
	}

	entrada := sol.Entrada
	if entrada.Folio == 0 {
		entrada.Folio = autorizacion.Desde
	}
	if err := autorizacion.Validar(entrada.Folio); err != nil {
		return nil, err
	}

	doc, err := s.preparador.Preparar(sol.Tipo, entrada)
	if err != nil {
		return nil, err
	}
	if doc.Tipo() != autorizacion.Tipo {
		return nil, fmt.Errorf("%w: el CAF autoriza documentos tipo %d y el documento resultó tipo %d",
			dte.ErrCAFInvalido, autorizacion.Tipo, doc.Tipo())
	}

	firmado, id, err := s.timbrarYFirmar(doc, autorizacion, sol.Certificado, sol.Password)
	if err != nil {
		return nil, err
	}

	resultado := &Resultado{
		Tipo:  doc.Tipo(),
		Folio: doc.Folio(),
		XML:   firmado.XML,
	}

	// Los artefactos quedan en el almacén permanente: las rutas del resultado
	// siguen siendo válidas después de responder.
	corto := sii.NombreCorto(doc.Tipo())
	nombre := fmt.Sprintf("%s_%d.xml", corto, doc.Folio())
	ruta, err := s.docs.Escribir(filepath.Join(corto+"s", "xml", nombre), firmado.XML)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dte.ErrRender, err)
	}
	resultado.RutaXML = ruta

	if !sol.VistaPrevia {
		trackID, err := s.enviar(ctx, []*dte.DocumentoFirmado{firmado}, sol.Entrada.Emisor, id)
		if err != nil {
			return nil, err
		}
		resultado.TrackID = trackID
	}

	s.representacionGrafica(firmado, corto, resultado)
	resultado.Impresion = render.JSONImpresion(firmado, sol.Entrada.Emisor, sol.Impresion, s.ahora())

	return resultado, nil
}

// timbrarYFirmar valida el folio contra la autorización, construye el TED y
// firma el documento con el certificado del emisor.
func (s *Servicio) timbrarYFirmar(doc *dte.Documento, autorizacion *caf.CAF, certificado []byte, password string) (*dte.DocumentoFirmado, infrasii.Identidad, error) {
	if err := autorizacion.Validar(doc.Folio()); err != nil {
		return nil, nil, err
	}

	id, err := s.firmador.Cargar(certificado, password)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", dte.ErrFirma, err)
	}

	ted, err := s.firmador.Timbrar(doc, autorizacion)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", dte.ErrTimbraje, err)
	}

	xmlFirmado, err := s.firmador.Firmar(doc, ted, id)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", dte.ErrFirma, err)
	}

	return &dte.DocumentoFirmado{Datos: doc, TED: ted, XML: xmlFirmado}, id, nil
}

// enviar arma el sobre, autentica y lo sube al SII. La autenticación va antes
// de armar cualquier transmisión: si falla, nada viaja.
func (s *Servicio) enviar(ctx context.Context, docs []*dte.DocumentoFirmado, emisor dte.Emisor, id infrasii.Identidad) (string, error) {
	if emisor.NroResol == nil || emisor.FchResol == "" {
		return "", fmt.Errorf("%w: el envío al SII requiere 'NroResol' y 'FchResol' del emisor", dte.ErrValidacion)
	}

	token, err := s.cliente.Autenticar(ctx, id)
	if err != nil {
		return "", fmt.Errorf("%w: %v", dte.ErrAutenticacion, err)
	}

	caratula := infrasii.Caratula{
		RutEmisor:    emisor.RUTEmisor,
		RutEnvia:     id.ID(),
		RutReceptor:  sii.RutReceptorSII,
		FchResol:     emisor.FchResol,
		NroResol:     *emisor.NroResol,
		TmstFirmaEnv: s.ahora().Format("2006-01-02T15:04:05"),
		SubTotales:   infrasii.SubTotalesDe(docs),
	}
	sobre, err := s.sobres.Construir(docs, caratula, id)
	if err != nil {
		if !errors.Is(err, dte.ErrSobre) {
			err = fmt.Errorf("%w: %v", dte.ErrSobre, err)
		}
		return "", err
	}

	trackID, err := s.cliente.Enviar(ctx, id.ID(), emisor.RUTEmisor, sobre, token)
	if err != nil {
		// Sin reintentos: el estado del envío queda en manos del SII y un
		// reenvío ciego duplicaría folios.
		return "", fmt.Errorf("%w: %v", dte.ErrEnvio, err)
	}

	s.log.Info().
		Str("track_id", trackID).
		Str("rut_emisor", emisor.RUTEmisor).
		Int("documentos", len(docs)).
		Msg("sobre aceptado por el SII")
	return trackID, nil
}

// representacionGrafica genera el PDF best-effort: si falla, el resultado
// lleva la anotación del error y sigue siendo un éxito.
func (s *Servicio) representacionGrafica(firmado *dte.DocumentoFirmado, corto string, resultado *Resultado) {
	pdfBytes, err := s.pdf.Generar(firmado)
	if err != nil {
		resultado.ErrorPDF = err.Error()
		s.log.Warn().Err(err).
			Int("tipo", resultado.Tipo).
			Int("folio", resultado.Folio).
			Msg("la representación gráfica falló; la emisión se conserva")
		return
	}
	resultado.PDF = pdfBytes

	nombre := fmt.Sprintf("%s_%d.pdf", corto, resultado.Folio)
	ruta, err := s.docs.Escribir(filepath.Join(corto+"s", "pdf", nombre), pdfBytes)
	if err != nil {
		resultado.ErrorPDF = err.Error()
		s.log.Warn().Err(err).Msg("no fue posible guardar el PDF en el almacén")
		return
	}
	resultado.RutaPDF = ruta
}
