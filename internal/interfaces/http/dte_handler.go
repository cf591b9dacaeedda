package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/barralutz/libredte-api/internal/application/dto"
	"github.com/barralutz/libredte-api/internal/application/emision"
	"github.com/barralutz/libredte-api/internal/domain/dte"
	"github.com/barralutz/libredte-api/internal/infrastructure/render"
)

// DTEHandler maneja las rutas de emisión de documentos tributarios.
type DTEHandler struct {
	svc *emision.Servicio
}

// NewDTEHandler construye el handler.
func NewDTEHandler(svc *emision.Servicio) *DTEHandler {
	return &DTEHandler{svc: svc}
}

// EmitirBoleta emite una boleta electrónica (39 o 41 según sus ítems).
// POST /api/dte/boletas
func (h *DTEHandler) EmitirBoleta(c *fiber.Ctx) error {
	return h.emitir(c, emision.Boleta)
}

// EmitirFactura emite una factura electrónica (33).
// POST /api/dte/facturas
func (h *DTEHandler) EmitirFactura(c *fiber.Ctx) error {
	return h.emitir(c, emision.Factura)
}

// EmitirNotaCredito emite una nota de crédito (61).
// POST /api/dte/notas-credito
func (h *DTEHandler) EmitirNotaCredito(c *fiber.Ctx) error {
	return h.emitir(c, emision.NotaCredito)
}

// EmitirNotaDebito emite una nota de débito (56).
// POST /api/dte/notas-debito
func (h *DTEHandler) EmitirNotaDebito(c *fiber.Ctx) error {
	return h.emitir(c, emision.NotaDebito)
}

func (h *DTEHandler) emitir(c *fiber.Ctx, tipo emision.TipoDocumento) error {
	var in dto.EmitirRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}

	solicitud, err := armarSolicitud(tipo, in)
	if err != nil {
		return responderError(c, err)
	}

	resultado, err := h.svc.Emitir(c.Context(), *solicitud)
	if err != nil {
		return responderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resultado)
}

// EnvioMultiple emite y envía un lote de boletas en un solo sobre.
// POST /api/dte/boletas/envio-multiple
func (h *DTEHandler) EnvioMultiple(c *fiber.Ctx) error {
	var in dto.EnvioMultipleRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}

	cafBytes, err := dto.DecodificarBase64("caf", in.CAF)
	if err != nil {
		return responderError(c, err)
	}
	certBytes, err := dto.DecodificarBase64("certificado", in.Certificado)
	if err != nil {
		return responderError(c, err)
	}

	boletas := make([]emision.Entrada, 0, len(in.Boletas))
	for _, b := range in.Boletas {
		boletas = append(boletas, entradaDe(b))
	}

	resultado, err := h.svc.EmitirLote(c.Context(), emision.SolicitudLote{
		Boletas:     boletas,
		CAF:         cafBytes,
		Certificado: certBytes,
		Password:    in.Password,
	})
	if err != nil {
		return responderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resultado)
}

func armarSolicitud(tipo emision.TipoDocumento, in dto.EmitirRequest) (*emision.Solicitud, error) {
	cafBytes, err := dto.DecodificarBase64("caf", in.CAF)
	if err != nil {
		return nil, err
	}
	certBytes, err := dto.DecodificarBase64("certificado", in.Certificado)
	if err != nil {
		return nil, err
	}
	return &emision.Solicitud{
		Tipo:        tipo,
		Entrada:     entradaDe(in.Documento),
		CAF:         cafBytes,
		Certificado: certBytes,
		Password:    in.Password,
		VistaPrevia: in.VistaPrevia,
		Impresion: render.OpcionesImpresion{
			PapelContinuo: in.PapelContinuo,
		},
	}, nil
}

func entradaDe(d dto.DocumentoRequest) emision.Entrada {
	return emision.Entrada{
		Emisor:             d.Emisor,
		Receptor:           d.Receptor,
		Detalle:            d.Detalle,
		DescuentosRecargos: d.DescuentosRecargos,
		ImpuestosAdic:      d.ImpuestosAdic,
		Referencias:        d.Referencias,
		Folio:              d.Folio,
		FchEmis:            d.FchEmis,
		IndServicio:        d.IndServicio,
		FmaPago:            d.FmaPago,
		MedioPago:          d.MedioPago,
		TermPagoDias:       d.TermPagoDias,
		FchVenc:            d.FchVenc,
	}
}

// responderError traduce la taxonomía de errores de emisión a HTTP: los
// errores del llamador son 400, los del SII 502 y el resto 500.
func responderError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, dte.ErrValidacion):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDACION", Message: err.Error()})
	case errors.Is(err, dte.ErrCAFInvalido):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "CAF_INVALIDO", Message: err.Error()})
	case errors.Is(err, dte.ErrFolioFueraDeRango):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "FOLIO_FUERA_DE_RANGO", Message: err.Error()})
	case errors.Is(err, dte.ErrAutenticacion):
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "AUTENTICACION_SII", Message: err.Error()})
	case errors.Is(err, dte.ErrEnvio):
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "ENVIO_SII", Message: err.Error()})
	case errors.Is(err, dte.ErrTimbraje):
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "TIMBRAJE", Message: err.Error()})
	case errors.Is(err, dte.ErrFirma):
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "FIRMA", Message: err.Error()})
	case errors.Is(err, dte.ErrSobre):
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "SOBRE", Message: err.Error()})
	case errors.Is(err, dte.ErrRender):
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "RENDER", Message: err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}
