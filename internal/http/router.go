package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/styletag-backend/internal/http/handlers"
	httpMW "github.com/yungbote/styletag-backend/internal/http/middleware"
	"github.com/yungbote/styletag-backend/internal/observability"
	"github.com/yungbote/styletag-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string
	Metrics     *observability.Metrics

	HealthHandler   *httpH.HealthHandler
	ClassifyHandler *httpH.ClassifyHandler
	RunHandler      *httpH.RunHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "styletag"
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Healthz)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	v1 := r.Group("/v1")
	{
		if cfg.ClassifyHandler != nil {
			v1.POST("/documents/classify", cfg.ClassifyHandler.Classify)
		}
		if cfg.RunHandler != nil {
			v1.GET("/runs/:id", cfg.RunHandler.GetRun)
			v1.GET("/documents/:id/runs", cfg.RunHandler.ListDocumentRuns)
		}
	}

	return r
}
