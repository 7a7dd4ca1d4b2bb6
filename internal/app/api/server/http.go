package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/scentbox/docs"
	"github.com/fatflowers/scentbox/internal/app/api/handlers"
	mw "github.com/fatflowers/scentbox/internal/app/api/middleware"
	"github.com/fatflowers/scentbox/internal/app/service/catalog"
	"github.com/fatflowers/scentbox/internal/app/service/favorite"
	"github.com/fatflowers/scentbox/internal/app/service/fulfillment"
	"github.com/fatflowers/scentbox/internal/app/service/purchase"
	"github.com/fatflowers/scentbox/internal/app/service/review"
	"github.com/fatflowers/scentbox/internal/app/service/statistics"
	subsvc "github.com/fatflowers/scentbox/internal/app/service/subscription"
	cfgpkg "github.com/fatflowers/scentbox/pkg/config"
	"github.com/fatflowers/scentbox/pkg/metrics"
)

type routeParams struct {
	fx.In

	Log           *zap.SugaredLogger
	Cfg           *cfgpkg.Config
	Webhook       handlers.StripeWebhookHandler
	Subscriptions *subsvc.Service
	Fulfillment   *fulfillment.Engine
	Purchases     purchase.PurchaseManager
	Favorites     *favorite.Service
	Reviews       *review.Service
	Catalog       *catalog.Service
	Statistics    *statistics.Service
}

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

func registerRoutes(r *gin.Engine, p routeParams) {
	log, cfg := p.Log, p.Cfg
	// Prometheus metrics
	if cfg != nil && cfg.MetricsAddr != "" {
		prom := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			ReqCntURLLabelMappingFn: metrics.RouteTemplate,
			Logger:                  log,
		})
		prom.SetListenAddress(cfg.MetricsAddr)
		prom.Use(r)

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}
	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())

	// Billing webhooks authenticate by signature, not by token
	handlers.RegisterWebhookRoutes(apiV1.Group("/webhook"), p.Webhook, log)

	secret := cfg.Auth.JWTSecret
	handlers.RegisterInternalRoutes(apiV1.Group("/internal", mw.AuthMiddleware(secret, mw.RoleBot, mw.RoleAdmin)), p.Fulfillment, log)
	handlers.RegisterAdminRoutes(apiV1.Group("/admin", mw.AuthMiddleware(secret, mw.RoleAdmin)), &handlers.AdminDeps{
		Subscriptions: p.Subscriptions,
		Fulfillment:   p.Fulfillment,
		Purchases:     p.Purchases,
		Catalog:       p.Catalog,
		Statistics:    p.Statistics,
		Log:           log,
	})
	handlers.RegisterSubscriberRoutes(apiV1.Group("", mw.AuthMiddleware(secret, mw.RoleUser, mw.RoleAdmin)), &handlers.SubscriberDeps{
		Subscriptions: p.Subscriptions,
		Fulfillment:   p.Fulfillment,
		Favorites:     p.Favorites,
		Reviews:       p.Reviews,
		Purchases:     p.Purchases,
		Log:           log,
	})
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
