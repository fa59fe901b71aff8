package handler

import (
	"llm-eval-go/internal/middleware"
	"llm-eval-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers 汇总了注册路由所需的全部控制器。
type Handlers struct {
	AppVersion string
	Catalog    *QACatalogHandler
	Generation *GenerationHandler
	Endpoint   *LLMEndpointHandler
	Metric     *MetricHandler
	Evaluation *EvaluationHandler
	Dashboard  *DashboardHandler
}

// RegisterRoutes 注册所有路由。/health、/metrics 与 websocket 不经过授权头认证。
func RegisterRoutes(r *gin.Engine, h Handlers, verifier token.Verifier) {
	r.GET("/health", Health(h.AppVersion))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// websocket 在查询参数中携带 token
	r.GET("/ws/qa-catalog/:id/generation", h.Generation.Progress)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(verifier))
	{
		catalogs := apiV1.Group("/qa-catalog")
		{
			catalogs.GET("", h.Catalog.List)
			catalogs.POST("/upload", h.Catalog.Upload)
			catalogs.POST("/download", h.Catalog.Download)

			generator := catalogs.Group("/generator")
			{
				generator.POST("/upload", h.Generation.UploadDataSource)
				generator.POST("/catalog", h.Generation.Generate)
				generator.GET("/types", h.Generation.Types)
			}

			catalogs.GET("/:id", h.Catalog.Get)
			catalogs.PATCH("/:id", h.Catalog.Rename)
			catalogs.DELETE("/:id", h.Catalog.Delete)
			catalogs.PUT("/:id/upload", h.Catalog.UploadRevision)
			catalogs.GET("/:id/preview", h.Catalog.Preview)
			catalogs.GET("/:id/qa-pairs", h.Catalog.Pairs)
			catalogs.GET("/:id/qa-pairs/search", h.Catalog.Search)
			catalogs.GET("/:id/history", h.Catalog.History)
		}

		endpoints := apiV1.Group("/llm-endpoints")
		{
			endpoints.GET("", h.Endpoint.List)
			endpoints.POST("", h.Endpoint.Create)
			endpoints.GET("/:id", h.Endpoint.Get)
			endpoints.PATCH("/:id", h.Endpoint.Update)
			endpoints.DELETE("/:id", h.Endpoint.Delete)
		}

		metrics := apiV1.Group("/metrics-config")
		{
			metrics.GET("", h.Metric.List)
			metrics.POST("", h.Metric.Create)
			metrics.GET("/:id", h.Metric.Get)
			metrics.PATCH("/:id", h.Metric.Update)
			metrics.DELETE("/:id", h.Metric.Delete)
		}

		evaluations := apiV1.Group("/evaluations")
		{
			evaluations.GET("", h.Evaluation.List)
			evaluations.POST("", h.Evaluation.Create)
			evaluations.GET("/:id", h.Evaluation.Get)
			evaluations.PATCH("/:id", h.Evaluation.Update)
			evaluations.DELETE("/:id", h.Evaluation.Delete)
		}

		apiV1.GET("/dashboard", h.Dashboard.Summary)
	}
}
