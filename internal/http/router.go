package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/progression-engine/internal/http/handlers"
	httpMW "github.com/yungbote/progression-engine/internal/http/middleware"
	"github.com/yungbote/progression-engine/internal/observability"
	"github.com/yungbote/progression-engine/internal/platform/logger"
)

type RouterConfig struct {
	Log     *logger.Logger
	Metrics *observability.Metrics

	// ServiceName enables OpenTelemetry spans per request when set.
	ServiceName string
	CORSOrigins []string

	AuthMiddleware     *httpMW.AuthMiddleware
	ProgressionHandler *httpH.ProgressionHandler
	RealtimeHandler    *httpH.RealtimeHandler
	HealthHandler      *httpH.HealthHandler
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
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	protected := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}

	if h := cfg.ProgressionHandler; h != nil {
		protected.POST("/plans", h.CreatePlan)
		protected.GET("/plans", h.ListPlans)
		protected.GET("/plans/:plan_id", h.GetPlan)
		protected.GET("/plans/:plan_id/progress", h.GetProgress)
		protected.GET("/plans/:plan_id/quizzes", h.ListQuizzes)
		protected.GET("/plans/:plan_id/months/:month/days", h.ListMonthDays)

		day := protected.Group("/plans/:plan_id/months/:month/days/:day")
		day.GET("", h.GetDay)
		day.POST("/start", h.StartDay)
		day.GET("/quiz", h.GetQuiz)
		day.GET("/quiz/status", h.GetQuizStatus)
		day.POST("/quiz/submit", h.SubmitQuiz)
		day.POST("/quiz/regenerate", h.RegenerateQuiz)
		day.GET("/submissions", h.ListSubmissions)
		day.POST("/complete", h.CompleteDay)

		protected.GET("/me/cursor", h.GetCursor)
	}

	// Realtime (SSE)
	if cfg.RealtimeHandler != nil {
		protected.GET("/me/events", cfg.RealtimeHandler.Stream)
	}

	return r
}
