package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/pasarku/internal/authorization"
	"github.com/smallbiznis/pasarku/internal/config"
	dispatchdomain "github.com/smallbiznis/pasarku/internal/dispatch/domain"
	"github.com/smallbiznis/pasarku/internal/liveevents"
	"github.com/smallbiznis/pasarku/internal/observability"
	obsmiddleware "github.com/smallbiznis/pasarku/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/pasarku/internal/observability/metrics"
	obstracing "github.com/smallbiznis/pasarku/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/pasarku/internal/order/domain"
	quotadomain "github.com/smallbiznis/pasarku/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(classifyErrorForLog))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	authzSvc    authorization.Service
	orderSvc    orderdomain.Service
	quotaSvc    quotadomain.Service
	dispatchSvc dispatchdomain.Service
	liveEvents  *liveevents.Hub
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	AuthzSvc    authorization.Service
	OrderSvc    orderdomain.Service
	QuotaSvc    quotadomain.Service
	DispatchSvc dispatchdomain.Service
	LiveEvents  *liveevents.Hub `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		authzSvc:    p.AuthzSvc,
		orderSvc:    p.OrderSvc,
		quotaSvc:    p.QuotaSvc,
		dispatchSvc: p.DispatchSvc,
		liveEvents:  p.LiveEvents,
	}

	svc.registerAPIRoutes()
	svc.registerCallbackRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", ActorRequired(), SubjectScope())

	// -------- Orders --------
	api.POST("/orders", s.CreateOrder)
	api.GET("/orders", s.ListOrders)
	api.GET("/orders/:id", s.GetOrderByID)
	api.GET("/orders/:id/events", s.ListOrderEvents)
	api.POST("/orders/:id/transitions", s.TransitionOrder)
	api.POST("/orders/:id/dispatch", s.DispatchOrder)
	api.POST("/orders/:id/payment-proof", s.SubmitPaymentProof)
	api.POST("/orders/:id/verify-payment", s.VerifyPayment)

	// -------- Quota --------
	api.GET("/merchants/:id/availability", s.GetMerchantAvailability)
	api.GET("/merchants/:id/quota", s.authorizeAction(authorization.ObjectQuota, authorization.ActionQuotaView), s.GetQuotaInfo)
	api.GET("/merchants/:id/quota/entries", s.authorizeAction(authorization.ObjectQuota, authorization.ActionQuotaHistory), s.ListQuotaEntries)
	api.POST("/merchants/:id/quota/adjustments", s.authorizeAction(authorization.ObjectQuota, authorization.ActionQuotaAdjust), s.AdjustQuota)

	// -------- Couriers --------
	api.GET("/merchants/:id/couriers", s.authorizeAction(authorization.ObjectCourier, authorization.ActionCourierListCandidates), s.ListCourierCandidates)
	api.GET("/couriers/:id", s.authorizeAction(authorization.ObjectCourier, authorization.ActionCourierView), s.GetCourierByID)
	api.PUT("/couriers/:id/availability", s.authorizeAction(authorization.ObjectCourier, authorization.ActionCourierAvailability), s.SetCourierAvailability)

	// -------- Live streams --------
	api.GET("/streams/:kind/:id", s.authorizeAction(authorization.ObjectStream, authorization.ActionStreamSubscribe), s.StreamOrderEvents)
}

func (s *Server) registerCallbackRoutes() {
	callbacks := s.engine.Group("/callbacks")

	callbacks.POST("/gateway", s.GatewayCallbackRequired(), s.HandleGatewayCallback)
}
