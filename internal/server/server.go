package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	catalogdomain "github.com/smallbiznis/artline/internal/catalog/domain"
	"github.com/smallbiznis/artline/internal/config"
	identitydomain "github.com/smallbiznis/artline/internal/identity/domain"
	"github.com/smallbiznis/artline/internal/identity/session"
	jobdomain "github.com/smallbiznis/artline/internal/job/domain"
	ledgerdomain "github.com/smallbiznis/artline/internal/ledger/domain"
	"github.com/smallbiznis/artline/internal/observability"
	providerdomain "github.com/smallbiznis/artline/internal/provider/domain"
	"github.com/smallbiznis/artline/internal/webhook"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(httpMetrics *observability.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(observability.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(httpMetrics *observability.HTTPMetrics) *gin.Engine {
	return NewEngine(httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	db          *gorm.DB
	genID       *snowflake.Node
	sessions    *session.Manager
	identitySvc identitydomain.Service
	catalogSvc  catalogdomain.Service
	jobSvc      jobdomain.Service
	ledgerSvc   ledgerdomain.Service
	providerSvc providerdomain.Service
	ingest      *webhook.Ingest
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	DB          *gorm.DB
	GenID       *snowflake.Node
	Sessions    *session.Manager
	IdentitySvc identitydomain.Service
	CatalogSvc  catalogdomain.Service
	JobSvc      jobdomain.Service
	LedgerSvc   ledgerdomain.Service
	ProviderSvc providerdomain.Service
	Ingest      *webhook.Ingest
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		db:          p.DB,
		genID:       p.GenID,
		sessions:    p.Sessions,
		identitySvc: p.IdentitySvc,
		catalogSvc:  p.CatalogSvc,
		jobSvc:      p.JobSvc,
		ledgerSvc:   p.LedgerSvc,
		providerSvc: p.ProviderSvc,
		ingest:      p.Ingest,
	}

	s.registerAuthRoutes()
	s.registerAPIRoutes()
	s.registerAdminRoutes()
	s.registerWebhookRoutes()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth", s.ResolvePrincipal())

	auth.POST("/register", s.Register)
	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.POST("/guest/init", s.GuestInit)

	s.engine.GET("/me", s.ResolvePrincipal(), s.EnsurePrincipal(), s.Me)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/", s.ResolvePrincipal())

	api.GET("/models", s.ListModels)
	api.GET("/models/:id/ui-spec", s.GetModelUISpec)

	api.POST("/jobs", s.EnsurePrincipal(), s.CreateJob)
	api.GET("/jobs", s.ListJobs)
	api.GET("/jobs/:id", s.GetJob)
	api.DELETE("/jobs/:id", s.DeleteJob)
	api.POST("/jobs/:id/like", s.LikeJob)
	api.PATCH("/jobs/:id/privacy", s.SetJobPrivacy)
	api.GET("/jobs/:id/download", s.DownloadJob)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.ResolvePrincipal(), s.AdminRequired())

	admin.GET("/models", s.AdminListModels)
	admin.POST("/models", s.AdminCreateModel)
	admin.PATCH("/models/:id", s.AdminUpdateModel)
	admin.DELETE("/models/:id", s.AdminDeleteModel)
	admin.POST("/models/:id/refresh-schema", s.AdminRefreshModelSchema)

	admin.GET("/providers", s.AdminListProviders)
	admin.PUT("/providers/:provider", s.AdminConfigureProvider)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/replicate", s.HandleReplicateWebhook)
}
