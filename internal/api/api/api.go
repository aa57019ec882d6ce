package api

import (
	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"trekreg/cmd/middleware"
	"trekreg/internal/auth"
	"trekreg/internal/service"
)

type Routers struct {
	Service service.Service
	Auth    *auth.Manager
	Mode    string
}

func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", middleware.APIKeyHeader)
	cfg.ExposeHeaders = []string{"Content-Disposition", "X-Export-Archive"}
	cfg.OptionsResponseStatusCode = 200
	return cfg
}

func NewRouters(r *Routers) *ginext.Engine {
	mode := r.Mode
	if mode == "" {
		mode = "release"
	}
	app := ginext.New(mode)

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.New(corsConfig()))

	s := r.Service
	apiGroup := app.Group("/api")

	apiGroup.OPTIONS("/registrations", s.Options)
	apiGroup.GET("/registrations", middleware.RequireAPIKey(r.Auth, false), s.ListRegistrations)
	apiGroup.POST("/registrations", s.CreateRegistration)
	apiGroup.PUT("/registrations", s.UpdateRegistration)
	apiGroup.GET("/registrations/:id", s.GetRegistration)

	apiGroup.OPTIONS("/send-email", s.Options)
	apiGroup.POST("/send-email", s.SendEmail)

	apiGroup.GET("/supabase-test", s.Probe)
	apiGroup.GET("/health", s.Probe)
	apiGroup.GET("/tickets/:ticketId/qr.png", s.TicketQR)

	legacy := apiGroup.Group("/legacy", middleware.RequireAPIKey(r.Auth, true))
	legacy.GET("/registrations", s.ListRegistrations)
	legacy.PUT("/registrations", s.UpdateRegistration)

	apiGroup.POST("/admin/login", s.Login)
	adminGroup := apiGroup.Group("/admin", middleware.RequireAdmin(r.Auth))
	adminGroup.POST("/logout", s.Logout)
	adminGroup.GET("/registrations", s.AdminList)
	adminGroup.POST("/registrations/bulk", s.AdminBulk)
	adminGroup.POST("/registrations/:id/:action", s.AdminSingle)
	adminGroup.POST("/email", s.AdminEmail)
	adminGroup.GET("/export.csv", s.AdminExport)
	adminGroup.GET("/history", s.AdminHistory)
	adminGroup.POST("/history/:id/undo", s.AdminUndo)

	return app
}
