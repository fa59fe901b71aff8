package handler

import (
	"net/http"

	"llm-eval-go/internal/service"

	"github.com/gin-gonic/gin"
)

// DashboardHandler 返回首页统计。
type DashboardHandler struct {
	dashboardService service.DashboardService
}

func NewDashboardHandler(dashboardService service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardService: dashboardService}
}

func (h *DashboardHandler) Summary(c *gin.Context) {
	d, err := h.dashboardService.Summary(c.Request.Context())
	if err != nil {
		respondError(c, "Dashboard", err)
		return
	}
	respond(c, http.StatusOK, "获取统计成功", d)
}

// Health 返回服务版本号，不需要认证。
func Health(appVersion string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, appVersion)
	}
}
