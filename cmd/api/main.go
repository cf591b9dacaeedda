package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/barralutz/libredte-api/internal/application/emision"
	"github.com/barralutz/libredte-api/internal/infrastructure/render"
	infrasii "github.com/barralutz/libredte-api/internal/infrastructure/sii"
	httpRouter "github.com/barralutz/libredte-api/internal/interfaces/http"
	"github.com/barralutz/libredte-api/pkg/config"
	"github.com/barralutz/libredte-api/pkg/logger"
	siicat "github.com/barralutz/libredte-api/pkg/sii"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("ambiente_sii", cfg.SII.Ambiente).
		Msg("iniciando aplicación")

	servidor := siicat.ServidorCertificacion
	if cfg.SII.Ambiente == "produccion" {
		servidor = siicat.ServidorProduccion
	}

	firmador := infrasii.NewFirmadorXML()
	sobres := infrasii.NewConstructorSobre(firmador)
	cliente := infrasii.NewClienteHTTP(servidor, firmador,
		time.Duration(cfg.SII.TimeoutSegundos)*time.Second)
	pdf := render.NewMarotoPDF()

	emisionSvc := emision.NewServicio(firmador, sobres, cliente, pdf, cfg.SII, log)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 30,
		WriteTimeout: time.Second * 60,
		IdleTimeout:  time.Second * 60,
		// Los cuerpos llevan certificado, CAF y detalle en base64.
		BodyLimit: 10 * 1024 * 1024,
	})
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Emision: emisionSvc,
	})

	// Apagado ordenado
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("señal de apagado recibida")
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	log.Info().Str("addr", cfg.HTTP.Addr()).Msg("servidor HTTP escuchando")
	if err := app.Listen(cfg.HTTP.Addr()); err != nil {
		log.Fatal().Err(err).Msg("servidor HTTP")
	}
}
