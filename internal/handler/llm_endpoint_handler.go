package handler

import (
	"net/http"

	"llm-eval-go/internal/service"

	"github.com/gin-gonic/gin"
)

// LLMEndpointHandler 负责 LLM endpoint 的增删改查，响应中不包含 apiKey。
type LLMEndpointHandler struct {
	endpointService service.LLMEndpointService
}

// NewLLMEndpointHandler 创建一个新的 LLMEndpointHandler 实例。
func NewLLMEndpointHandler(endpointService service.LLMEndpointService) *LLMEndpointHandler {
	return &LLMEndpointHandler{endpointService: endpointService}
}

func (h *LLMEndpointHandler) List(c *gin.Context) {
	offset, limit, ok := pagination(c)
	if !ok {
		return
	}
	items, err := h.endpointService.List(c.Request.Context(), offset, limit)
	if err != nil {
		respondError(c, "ListEndpoints", err)
		return
	}
	respond(c, http.StatusOK, "获取 LLM endpoint 列表成功", items)
}

func (h *LLMEndpointHandler) Get(c *gin.Context) {
	e, err := h.endpointService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "GetEndpoint", err)
		return
	}
	respond(c, http.StatusOK, "获取 LLM endpoint 成功", e)
}

func (h *LLMEndpointHandler) Create(c *gin.Context) {
	var req service.EndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求体无效: "+err.Error())
		return
	}
	e, err := h.endpointService.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, "CreateEndpoint", err)
		return
	}
	respond(c, http.StatusCreated, "LLM endpoint 创建成功", e)
}

// Update 部分更新 endpoint，version 与当前版本不一致时返回 409。
func (h *LLMEndpointHandler) Update(c *gin.Context) {
	var patch service.EndpointPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "请求体无效: "+err.Error())
		return
	}
	e, err := h.endpointService.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondError(c, "UpdateEndpoint", err)
		return
	}
	respond(c, http.StatusOK, "LLM endpoint 更新成功", e)
}

func (h *LLMEndpointHandler) Delete(c *gin.Context) {
	if err := h.endpointService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, "DeleteEndpoint", err)
		return
	}
	respond(c, http.StatusOK, "LLM endpoint 删除成功", nil)
}
