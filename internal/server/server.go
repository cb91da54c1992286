package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/condolabs/condoledger/internal/config"
	feeservice "github.com/condolabs/condoledger/internal/fee/service"
	paymentdomain "github.com/condolabs/condoledger/internal/payment/domain"
	subscriptiondomain "github.com/condolabs/condoledger/internal/subscription/domain"
)

type Server struct {
	db  *gorm.DB
	log *zap.Logger

	engine *gin.Engine
	addr   string

	ledger    subscriptiondomain.Service
	generator *feeservice.Generator
	payments  paymentdomain.Service
}

type ServerParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Config    config.Config
	Ledger    subscriptiondomain.Service
	Generator *feeservice.Generator
	Payments  paymentdomain.Service
}

func New(p ServerParam) *Server {
	gin.SetMode(p.Config.Server.Mode)
	s := &Server{
		db:  p.DB,
		log: p.Log.Named("server"),

		engine: gin.New(),
		addr:   p.Config.Server.Addr,

		ledger:    p.Ledger,
		generator: p.Generator,
		payments:  p.Payments,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.Use(gin.Recovery())

	s.engine.GET("/healthz", s.Healthz)
	s.engine.GET("/readyz", s.Readyz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/subscriptions", s.StartTrial)
		v1.POST("/subscriptions/:id/tenants", s.AttachTenant)
		v1.DELETE("/subscriptions/:id/tenants/:tenant_id", s.DetachTenant)
		v1.POST("/subscriptions/:id/recalculate", s.Recalculate)
		v1.POST("/subscriptions/:id/expire", s.Expire)
		v1.POST("/subscriptions/:id/unlock", s.Unlock)

		v1.POST("/tenants/:id/fees/generate", s.GenerateFees)
		v1.POST("/tenants/:id/fees/extra", s.GenerateExtraFees)

		v1.POST("/units/:id/payments", s.ApplyPayment)
		v1.GET("/units/:id/balance", s.GetBalance)
	}
}

func (s *Server) Run() error {
	s.log.Info("http server listening", zap.String("addr", s.addr))
	return s.engine.Run(s.addr)
}

func (s *Server) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Readyz(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Register hooks the server into the fx lifecycle.
func Register(lc fx.Lifecycle, s *Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := s.Run(); err != nil {
					s.log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
	})
}
