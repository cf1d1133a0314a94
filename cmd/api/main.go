package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/RodrigoSola/corrafer-fiscal/internal/application/billing"
	"github.com/RodrigoSola/corrafer-fiscal/internal/infrastructure/arca"
	infrapdf "github.com/RodrigoSola/corrafer-fiscal/internal/infrastructure/pdf"
	"github.com/RodrigoSola/corrafer-fiscal/internal/infrastructure/postgres"
	httpRouter "github.com/RodrigoSola/corrafer-fiscal/internal/interfaces/http"
	"github.com/RodrigoSola/corrafer-fiscal/pkg/config"
	"github.com/RodrigoSola/corrafer-fiscal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   "info",
		Service: cfg.App.Name,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("arca_env", cfg.ARCA.Environment).
		Int64("cuit", cfg.ARCA.CUIT).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	invoiceRepo := postgres.NewInvoiceRepository(pool)

	// Credenciales ARCA: certificado X.509 emitido por la autoridad.
	var material *arca.Material
	if cfg.ARCA.CertP12Path != "" {
		material, err = arca.LoadFromP12(cfg.ARCA.CertP12Path, cfg.ARCA.CertPassword)
	} else {
		material, err = arca.LoadFromPEM(cfg.ARCA.CertPath, cfg.ARCA.CertKeyPath)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("cargar certificado ARCA")
	}
	log.Info().
		Time("not_after", material.NotAfter).
		Msg("certificado ARCA cargado")

	// Cadena WSAA: TRA firmado (CMS) → loginCms → ticket cacheado.
	signer := arca.NewTicketSigner(material, arca.ServiceWSFE)
	wsaa := arca.NewWSAAClient(cfg.ARCA.Environment, cfg.ARCA.RequestTimeout, cfg.ARCA.WSAAURL)
	tickets := arca.NewTicketCache(signer, wsaa, cfg.ARCA.TicketSafetyMargin, logger.Component(log, "wsaa"))

	wsfe := arca.NewWSFEClient(cfg.ARCA.Environment, cfg.ARCA.CUIT, tickets, cfg.ARCA.RequestTimeout, cfg.ARCA.WSFEURL)

	renderer := infrapdf.NewInvoiceRenderer(infrapdf.Issuer{
		Name:    cfg.ARCA.IssuerName,
		CUIT:    cfg.ARCA.CUIT,
		Address: cfg.ARCA.IssuerAddress,
		IVACond: cfg.ARCA.IssuerIVACond,
	})

	issueUC := billing.NewIssueInvoiceUseCase(wsfe, wsfe, invoiceRepo, renderer, logger.Component(log, "billing"))

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: cfg.ARCA.RequestTimeout + 10*time.Second,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	httpRouter.Router(app, httpRouter.RouterDeps{
		IssueInvoice:       issueUC,
		Status:             wsfe,
		Lister:             invoiceRepo,
		JWTSecret:          cfg.JWT.Secret,
		DefaultPointOfSale: cfg.ARCA.PointOfSale,
		Log:                logger.Component(log, "http"),
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
