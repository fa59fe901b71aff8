package handler

import (
	"net/http"

	"llm-eval-go/internal/service"

	"github.com/gin-gonic/gin"
)

// MetricHandler 负责评估指标配置的增删改查。
type MetricHandler struct {
	metricService service.MetricService
}

func NewMetricHandler(metricService service.MetricService) *MetricHandler {
	return &MetricHandler{metricService: metricService}
}

func (h *MetricHandler) List(c *gin.Context) {
	offset, limit, ok := pagination(c)
	if !ok {
		return
	}
	items, err := h.metricService.List(c.Request.Context(), offset, limit)
	if err != nil {
		respondError(c, "ListMetrics", err)
		return
	}
	respond(c, http.StatusOK, "获取指标列表成功", items)
}

func (h *MetricHandler) Get(c *gin.Context) {
	m, err := h.metricService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "GetMetric", err)
		return
	}
	respond(c, http.StatusOK, "获取指标成功", m)
}

func (h *MetricHandler) Create(c *gin.Context) {
	var req service.MetricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求体无效: "+err.Error())
		return
	}
	m, err := h.metricService.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, "CreateMetric", err)
		return
	}
	respond(c, http.StatusCreated, "指标创建成功", m)
}

func (h *MetricHandler) Update(c *gin.Context) {
	var patch service.MetricPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "请求体无效: "+err.Error())
		return
	}
	m, err := h.metricService.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondError(c, "UpdateMetric", err)
		return
	}
	respond(c, http.StatusOK, "指标更新成功", m)
}

func (h *MetricHandler) Delete(c *gin.Context) {
	if err := h.metricService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, "DeleteMetric", err)
		return
	}
	respond(c, http.StatusOK, "指标删除成功", nil)
}
