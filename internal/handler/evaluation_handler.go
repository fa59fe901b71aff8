package handler

import (
	"net/http"

	"llm-eval-go/internal/service"

	"github.com/gin-gonic/gin"
)

// EvaluationHandler 负责评估记录的增删改查。
type EvaluationHandler struct {
	evaluationService service.EvaluationService
}

func NewEvaluationHandler(evaluationService service.EvaluationService) *EvaluationHandler {
	return &EvaluationHandler{evaluationService: evaluationService}
}

func (h *EvaluationHandler) List(c *gin.Context) {
	offset, limit, ok := pagination(c)
	if !ok {
		return
	}
	items, err := h.evaluationService.List(c.Request.Context(), offset, limit)
	if err != nil {
		respondError(c, "ListEvaluations", err)
		return
	}
	respond(c, http.StatusOK, "获取评估列表成功", items)
}

func (h *EvaluationHandler) Get(c *gin.Context) {
	e, err := h.evaluationService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "GetEvaluation", err)
		return
	}
	respond(c, http.StatusOK, "获取评估成功", e)
}

func (h *EvaluationHandler) Create(c *gin.Context) {
	var req service.EvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求体无效: "+err.Error())
		return
	}
	e, err := h.evaluationService.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, "CreateEvaluation", err)
		return
	}
	respond(c, http.StatusCreated, "评估创建成功", e)
}

// Update 只允许修改名称。
func (h *EvaluationHandler) Update(c *gin.Context) {
	var patch service.EvaluationPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "请求体无效: "+err.Error())
		return
	}
	e, err := h.evaluationService.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondError(c, "UpdateEvaluation", err)
		return
	}
	respond(c, http.StatusOK, "评估更新成功", e)
}

func (h *EvaluationHandler) Delete(c *gin.Context) {
	if err := h.evaluationService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, "DeleteEvaluation", err)
		return
	}
	respond(c, http.StatusOK, "评估删除成功", nil)
}
