package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/expensehub/expensehub/internal/auth"
	"github.com/expensehub/expensehub/internal/config"
	"github.com/expensehub/expensehub/internal/http/handlers"
	"github.com/expensehub/expensehub/internal/http/middlewares"
	"github.com/expensehub/expensehub/internal/notifications"
	"github.com/expensehub/expensehub/internal/observability"
	"github.com/expensehub/expensehub/internal/repo/postgres"
	"github.com/expensehub/expensehub/internal/tokens"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type RouterDeps struct {
	Log       *slog.Logger
	Pool      *pgxpool.Pool
	Revoker   tokens.Revoker
	PingRedis func() error
	Prom      *observability.Prom
	Metrics   *prometheus.Registry
	Cfg       config.Config
}

func NewRouter(d RouterDeps) *gin.Engine {
	if d.Cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(d.Log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(d.Cfg.AllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(d.Cfg.MaxBodyBytes))
	r.Use(middlewares.RequireJSON())
	r.Use(otelgin.Middleware("expensehub"))

	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}

	// health
	pingDB := func() error {
		if d.Pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return d.Pool.Ping(ctx)
	}

	h := handlers.NewHealthHandler(pingDB, d.PingRedis)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Metrics, promhttp.HandlerOpts{})))
	}

	r.GET("/docs", handlers.SwaggerUI)
	r.GET("/docs/openapi.yaml", handlers.OpenAPISpec)

	// wire up repositories and services
	usersRepo := postgres.NewUsersRepo(d.Pool, d.Prom)
	sessionsRepo := postgres.NewSessionsRepo(d.Pool)
	expensesRepo := postgres.NewExpensesRepo(d.Pool, d.Prom)

	jwtManager := auth.NewManager(d.Cfg.JWTSecret, d.Cfg.AccessTTL(), d.Cfg.RefreshTTL())
	notifier := notifications.NewLogNotifier(d.Log)

	authHandler := handlers.NewAuthHandler(usersRepo, sessionsRepo, jwtManager, d.Revoker, notifier, d.Prom, d.Cfg)
	expensesHandler := handlers.NewExpensesHandler(expensesRepo)

	window := time.Duration(d.Cfg.RateLimitWindowS) * time.Second
	publicLimiter := middlewares.NewRateLimiter(d.Cfg.RateLimitPublic, window)
	authedLimiter := middlewares.NewRateLimiter(d.Cfg.RateLimitAuthed, window)

	// public routes
	public := r.Group("/", publicLimiter.Middleware(middlewares.KeyByIP))
	public.POST("/register", authHandler.Register)
	public.POST("/login", authHandler.Login)
	public.POST("/refresh", authHandler.Refresh)

	// protected routes: identity is resolved before any handler logic runs
	authMw := middlewares.NewAuthMiddleware(jwtManager, d.Revoker)

	protected := r.Group("/", authMw.RequireAuth(), authedLimiter.Middleware(middlewares.KeyByUserOrIP))
	protected.POST("/logout", authHandler.Logout)

	protected.GET("/expenses", expensesHandler.ListExpenses)
	protected.POST("/expenses", expensesHandler.CreateExpense)
	protected.GET("/expenses/:id", expensesHandler.GetExpenseByID)
	protected.PUT("/expenses/:id", expensesHandler.UpdateExpense)
	protected.PATCH("/expenses/:id", expensesHandler.UpdateExpense)
	protected.DELETE("/expenses/:id", expensesHandler.DeleteExpense)

	return r
}
