package dte

import "errors"

// Taxonomía de errores del pipeline de emisión. Los componentes envuelven
// estos centinelas con fmt.Errorf("%w: ...") conservando el diagnóstico del
// sistema externo; la capa HTTP los mapea a códigos de estado.
var (
	// ErrValidacion entrada del llamador malformada o incompleta (HTTP 400).
	ErrValidacion = errors.New("datos del documento inválidos")
	// ErrCAFInvalido el CAF no se pudo parsear o le faltan campos de rango.
	ErrCAFInvalido = errors.New("CAF inválido")
	// ErrFolioFueraDeRango el folio solicitado no cae en [Desde, Hasta] del CAF.
	ErrFolioFueraDeRango = errors.New("folio fuera del rango del CAF")
	// ErrTimbraje falla del timbraje (TED) en el motor de firma externo.
	ErrTimbraje = errors.New("error al timbrar el DTE")
	// ErrFirma falla de la firma digital en el motor de firma externo.
	ErrFirma = errors.New("error al firmar el DTE")
	// ErrSobre falla al armar o serializar el sobre de envío.
	ErrSobre = errors.New("error al generar el sobre de envío")
	// ErrAutenticacion el SII no entregó token de sesión.
	ErrAutenticacion = errors.New("error al obtener token del SII")
	// ErrEnvio el SII rechazó o no recibió el sobre. No se reintenta: reenviar
	// el mismo folio puede ser tratado como duplicado por el SII.
	ErrEnvio = errors.New("error al enviar al SII")
	// ErrRender falla al generar una representación (XML/PDF/JSON). Fatal solo
	// para el XML de previsualización; en el resto de rutas es best-effort.
	ErrRender = errors.New("error al generar representación del documento")
)
