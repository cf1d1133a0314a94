package http

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/RodrigoSola/corrafer-fiscal/internal/application/billing"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	IssueInvoice       *billing.IssueInvoiceUseCase
	Status             StatusProvider
	Lister             InvoiceLister
	JWTSecret          string
	DefaultPointOfSale int
	Log                zerolog.Logger
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	// Público: health y métricas Prometheus.
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token).
	arca := api.Group("/arca", AuthMiddleware(deps.JWTSecret), TransactionLog(deps.Log))
	handler := NewFiscalHandler(deps.IssueInvoice, deps.Status, deps.Lister, deps.DefaultPointOfSale)

	arca.Get("/status", handler.Status)
	arca.Get("/last-number", handler.LastNumber)
	arca.Get("/invoices", handler.List)
	// Emitir consume numeración: solo admin y facturador.
	arca.Post("/invoices", RequireRole("admin", "facturador"), handler.Issue)
}
