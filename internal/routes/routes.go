package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/legionbilling/internal/config"
	"github.com/example/legionbilling/internal/handlers"
	"github.com/example/legionbilling/internal/middleware"
	"github.com/example/legionbilling/internal/models"
	"github.com/example/legionbilling/internal/services"
)

// Deps are the long-lived objects routes need.
type Deps struct {
	DB       *gorm.DB
	Config   *config.Config
	Log      *zap.Logger
	Payments *services.PaymentService
	Gatherer prometheus.Gatherer
	Started  time.Time
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, d Deps) {
	customerService := services.NewCustomerService(d.DB)
	billService := services.NewBillService(d.DB)

	authHandler := handlers.NewAuthHandler(d.DB, d.Config.JWTSecret, d.Config.TokenExpires)
	customerHandler := handlers.NewCustomerHandler(customerService, d.Payments)
	billHandler := handlers.NewBillHandler(billService)
	paymentHandler := handlers.NewPaymentHandler(d.Payments, d.Log)
	planHandler := handlers.NewPlanHandler(services.NewPlanService(d.DB))
	reportHandler := handlers.NewReportHandler(services.NewReportService(d.DB))
	activityHandler := handlers.NewActivityHandler(services.NewActivityService(d.DB))
	adminHandler := handlers.NewAdminHandler(d.DB, customerService, billService, d.Payments)

	app.Get("/health", handlers.Health(d.Config.AppEnv, d.Started))
	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api")

	// Public routes
	api.Post("/auth/login", authHandler.Login)
	api.Post("/payments/mpesa/callback",
		middleware.CallbackGuard(d.Config.Daraja.CallbackSecret, d.Log),
		paymentHandler.MpesaCallback,
	)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(d.Config.JWTSecret))

	auth := protected.Group("/auth")
	auth.Post("/register", middleware.RequireRole(models.RoleAdmin), authHandler.Register)
	auth.Post("/logout", authHandler.Logout)
	auth.Get("/me", authHandler.Me)

	customers := protected.Group("/customers")
	customers.Get("/", customerHandler.List)
	customers.Post("/", customerHandler.Create)
	customers.Get("/stats", customerHandler.Stats)
	customers.Get("/:id", customerHandler.Get)
	customers.Get("/:id/payments", customerHandler.Payments)
	customers.Put("/:id", customerHandler.Update)
	customers.Patch("/:id", customerHandler.Update)
	customers.Delete("/:id", customerHandler.Delete)

	bills := protected.Group("/bills")
	bills.Get("/", billHandler.List)
	bills.Post("/", billHandler.Create)
	bills.Get("/stats", billHandler.Stats)
	bills.Post("/generate", billHandler.Generate)
	bills.Put("/update-overdue", billHandler.UpdateOverdue)
	bills.Get("/:id", billHandler.Get)
	bills.Put("/:id", billHandler.Update)
	bills.Patch("/:id", billHandler.Update)
	bills.Delete("/:id", billHandler.Delete)

	payments := protected.Group("/payments")
	payments.Post("/mpesa/initiate", paymentHandler.InitiateMpesa)
	payments.Get("/mpesa/status/:checkoutRequestID", paymentHandler.MpesaStatus)
	payments.Get("/", paymentHandler.List)
	payments.Post("/", paymentHandler.Create)
	payments.Get("/stats", paymentHandler.Stats)
	payments.Get("/:id", paymentHandler.Get)
	payments.Put("/:id", paymentHandler.Update)
	payments.Patch("/:id", paymentHandler.Update)

	plans := protected.Group("/plans")
	plans.Get("/", planHandler.List)
	plans.Get("/:id", planHandler.Get)
	plans.Post("/", middleware.RequireRole(models.RoleAdmin), planHandler.Create)
	plans.Put("/:id", middleware.RequireRole(models.RoleAdmin), planHandler.Update)
	plans.Delete("/:id", middleware.RequireRole(models.RoleAdmin), planHandler.Delete)

	reports := protected.Group("/reports")
	reports.Get("/revenue", reportHandler.Revenue)
	reports.Get("/customers", reportHandler.Customers)
	reports.Get("/payments", reportHandler.Payments)
	reports.Get("/usage", reportHandler.Usage)

	protected.Get("/activities", activityHandler.List)
	protected.Get("/dashboard", adminHandler.Dashboard)

	admin := protected.Group("/admin", middleware.RequireRole(models.RoleAdmin))
	admin.Get("/users", adminHandler.ListUsers)
	admin.Patch("/users/:id", adminHandler.UpdateUser)
}
