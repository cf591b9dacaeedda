package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/barralutz/libredte-api/internal/application/emision"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Emision *emision.Servicio
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	dte := api.Group("/dte")
	handler := NewDTEHandler(deps.Emision)
	dte.Post("/boletas", handler.EmitirBoleta)
	dte.Post("/boletas/envio-multiple", handler.EnvioMultiple)
	dte.Post("/facturas", handler.EmitirFactura)
	dte.Post("/notas-credito", handler.EmitirNotaCredito)
	dte.Post("/notas-debito", handler.EmitirNotaDebito)
}
