package emision

import (
	"context"
	"fmt"

	"github.com/barralutz/libredte-api/internal/domain/caf"
	"github.com/barralutz/libredte-api/internal/domain/dte"
	"github.com/barralutz/libredte-api/pkg/sii"
)

// SolicitudLote es una petición de envío de varias boletas en un solo sobre.
// Todas las boletas comparten el CAF y el certificado; los folios que vengan
// en cero se asignan consecutivos desde el inicio del rango autorizado.
type SolicitudLote struct {
	Boletas     []Entrada
	CAF         []byte
	Certificado []byte
	Password    string
}

// ResultadoLote resultado del envío de un lote de boletas.
type ResultadoLote struct {
	TrackID    string `json:"track_id"`
	Folios     []int  `json:"folios"`
	Documentos int    `json:"documentos"`
}

// EmitirLote prepara, timbra y firma cada boleta, las agrupa en un solo sobre
// EnvioBOLETA y lo sube al SII. El lote es todo-o-nada: cualquier boleta
// inválida aborta el envío completo antes de tocar la red.
func (s *Servicio) EmitirLote(ctx context.Context, sol SolicitudLote) (*ResultadoLote, error) {
	if len(sol.Boletas) == 0 {
		return nil, fmt.Errorf("%w: el lote no contiene boletas", dte.ErrValidacion)
	}

	autorizacion, err := caf.Parse(sol.CAF)
	if err != nil {
		return nil, err
	}
	if autorizacion.Tipo != sii.TipoBoleta && autorizacion.Tipo != sii.TipoBoletaExenta {
		return nil, fmt.Errorf("%w: el CAF del lote debe autorizar boletas y autoriza tipo %d",
			dte.ErrCAFInvalido, autorizacion.Tipo)
	}

	id, err := s.firmador.Cargar(sol.Certificado, sol.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dte.ErrFirma, err)
	}

	siguiente := autorizacion.Desde
	docs := make([]*dte.DocumentoFirmado, 0, len(sol.Boletas))
	folios := make([]int, 0, len(sol.Boletas))
	for i, entrada := range sol.Boletas {
		if entrada.Folio == 0 {
			entrada.Folio = siguiente
			siguiente++
		}
		if err := autorizacion.Validar(entrada.Folio); err != nil {
			return nil, fmt.Errorf("boleta %d del lote: %w", i+1, err)
		}

		doc, err := s.preparador.Preparar(Boleta, entrada)
		if err != nil {
			return nil, fmt.Errorf("boleta %d del lote: %w", i+1, err)
		}
		if doc.Tipo() != autorizacion.Tipo {
			return nil, fmt.Errorf("%w: boleta %d del lote resultó tipo %d y el CAF autoriza tipo %d",
				dte.ErrCAFInvalido, i+1, doc.Tipo(), autorizacion.Tipo)
		}

		ted, err := s.firmador.Timbrar(doc, autorizacion)
		if err != nil {
			return nil, fmt.Errorf("boleta %d del lote: %w: %v", i+1, dte.ErrTimbraje, err)
		}
		xmlFirmado, err := s.firmador.Firmar(doc, ted, id)
		if err != nil {
			return nil, fmt.Errorf("boleta %d del lote: %w: %v", i+1, dte.ErrFirma, err)
		}

		docs = append(docs, &dte.DocumentoFirmado{Datos: doc, TED: ted, XML: xmlFirmado})
		folios = append(folios, doc.Folio())
	}

	// El emisor de la primera boleta manda: el lote es de un solo emisor.
	trackID, err := s.enviar(ctx, docs, sol.Boletas[0].Emisor, id)
	if err != nil {
		return nil, err
	}

	return &ResultadoLote{
		TrackID:    trackID,
		Folios:     folios,
		Documentos: len(docs),
	}, nil
}
