package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/yourusername/billdesk/billing"
	"github.com/yourusername/billdesk/config"
	"github.com/yourusername/billdesk/handlers"
	"github.com/yourusername/billdesk/middleware"
	"github.com/yourusername/billdesk/money"
	"github.com/yourusername/billdesk/storage"
)

type Dependencies struct {
	Config     *config.Config
	Service    *billing.Service
	Clients    *storage.ClientDirectory
	Currencies money.Table
	Logger     zerolog.Logger
}

type Server struct {
	router *gin.Engine
	cfg    *config.Config
	log    zerolog.Logger
}

func NewServer(deps Dependencies) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Logger.With().Str("component", "http").Logger()))

	router.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			for _, allowed := range deps.Config.CORS.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.SetTrustedProxies(nil)
	router.MaxMultipartMemory = deps.Config.Billing.ProofMaxBytes + 1<<20

	registerRoutes(router, deps)

	return &Server{
		router: router,
		cfg:    deps.Config,
		log:    deps.Logger,
	}
}

func registerRoutes(router *gin.Engine, deps Dependencies) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "billdesk-api",
		})
	})

	invoices := handlers.NewInvoiceHandler(deps.Service, deps.Currencies, deps.Config.Billing.ProofMaxBytes, deps.Logger)
	clients := handlers.NewClientHandler(deps.Clients)

	api := router.Group("/api/v1")

	staff := middleware.RequireRole(middleware.RoleOwner, middleware.RoleAdmin)
	anyone := middleware.RequireRole(middleware.RoleOwner, middleware.RoleAdmin, middleware.RoleClient)

	secured := api.Group("")
	secured.Use(middleware.JwtAuthMiddleware(deps.Config.JWT.Secret))
	{
		secured.POST("/clients", staff, clients.CreateClient)
		secured.GET("/clients/:id", staff, clients.GetClient)

		secured.POST("/invoices", staff, invoices.CreateInvoice)
		secured.GET("/invoices", staff, invoices.ListInvoices)
		secured.GET("/invoices/:id", anyone, invoices.GetInvoice)
		secured.PUT("/invoices/:id", staff, invoices.UpdateDraft)
		secured.DELETE("/invoices/:id", staff, invoices.DeleteInvoice)
		secured.POST("/invoices/:id/send", staff, invoices.SendInvoice)
		secured.POST("/invoices/:id/cancel", staff, invoices.CancelInvoice)
		secured.POST("/invoices/:id/payments", staff, invoices.RecordPayment)
		secured.GET("/invoices/:id/payments", anyone, invoices.ListPayments)
		secured.GET("/invoices/:id/balance", anyone, invoices.GetBalance)
		secured.POST("/invoices/:id/proof", anyone, invoices.SubmitProof)
		secured.GET("/invoices/:id/proof", staff, invoices.GetProof)
		secured.POST("/invoices/:id/proof/confirm", staff, invoices.ConfirmPayment)
		secured.POST("/invoices/:id/proof/reject", staff, invoices.RejectProof)

		secured.POST("/recurrence/tick", middleware.RequireRole(middleware.RoleAdmin), invoices.RunRecurrenceTick)
	}
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("starting billdesk API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.log.Info().Msg("shutting down API server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
