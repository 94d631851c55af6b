package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/coursegen-backend/internal/http/handlers"
	httpMW "github.com/yungbote/coursegen-backend/internal/http/middleware"
	"github.com/yungbote/coursegen-backend/internal/observability"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	CORSOrigins []string
	ServiceName string

	GenerationHandler *httpH.GenerationHandler
	BudgetHandler     *httpH.BudgetHandler
	QualityHandler    *httpH.QualityHandler
	RealtimeHandler   *httpH.RealtimeHandler
	HealthHandler     *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		courses := api.Group("/courses/:courseId")
		if cfg.GenerationHandler != nil {
			courses.POST("/generation", cfg.GenerationHandler.Start)
			courses.GET("/generation", cfg.GenerationHandler.GetState)
			courses.POST("/jobs", cfg.GenerationHandler.Submit)
			courses.POST("/approve", cfg.GenerationHandler.Approve)
			courses.POST("/cancel", cfg.GenerationHandler.Cancel)
			courses.POST("/restart", cfg.GenerationHandler.Restart)
		}
		if cfg.BudgetHandler != nil {
			courses.POST("/budget", cfg.BudgetHandler.Calculate)
		}
		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			courses.GET("/events", cfg.RealtimeHandler.Stream)
		}

		if cfg.QualityHandler != nil {
			api.POST("/quality/validate", cfg.QualityHandler.Validate)
			api.POST("/quality/validate/batch", cfg.QualityHandler.ValidateBatch)
		}
	}

	return r
}
