package handler

import (
	"net/http"
	"strings"

	"llm-eval-go/internal/service"
	"llm-eval-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// QACatalogHandler 负责问答目录的上传、查询、修订与导出。
type QACatalogHandler struct {
	catalogService service.QACatalogService
}

// NewQACatalogHandler 创建一个新的 QACatalogHandler 实例。
func NewQACatalogHandler(catalogService service.QACatalogService) *QACatalogHandler {
	return &QACatalogHandler{catalogService: catalogService}
}

// List 返回每个目录组的最新修订。
func (h *QACatalogHandler) List(c *gin.Context) {
	offset, limit, ok := pagination(c)
	if !ok {
		return
	}
	previews, err := h.catalogService.List(c.Request.Context(), c.Query("name"), offset, limit)
	if err != nil {
		respondError(c, "ListCatalogs", err)
		return
	}
	respond(c, http.StatusOK, "获取问答目录列表成功", previews)
}

// Upload 从 multipart 表单的 file 与 name 字段创建新目录。
func (h *QACatalogHandler) Upload(c *gin.Context) {
	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		badRequest(c, "缺少目录名称")
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "缺少上传文件")
		return
	}
	f, err := file.Open()
	if err != nil {
		respondError(c, "UploadCatalog", err)
		return
	}
	defer f.Close()

	catalog, err := h.catalogService.Upload(c.Request.Context(), name, file.Filename, f)
	if err != nil {
		respondError(c, "UploadCatalog", err)
		return
	}
	log.Infof("[QACatalog] 上传目录 '%s' 成功, id=%s", name, catalog.ID)
	respond(c, http.StatusCreated, "问答目录上传成功", catalog)
}

// UploadRevision 以上传文件创建目录的新修订。
func (h *QACatalogHandler) UploadRevision(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "缺少上传文件")
		return
	}
	f, err := file.Open()
	if err != nil {
		respondError(c, "UploadRevision", err)
		return
	}
	defer f.Close()

	catalog, err := h.catalogService.UploadRevision(c.Request.Context(), c.Param("id"), file.Filename, f)
	if err != nil {
		respondError(c, "UploadRevision", err)
		return
	}
	respond(c, http.StatusCreated, "问答目录修订上传成功", catalog)
}

// Get 返回单个目录。
func (h *QACatalogHandler) Get(c *gin.Context) {
	catalog, err := h.catalogService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "GetCatalog", err)
		return
	}
	respond(c, http.StatusOK, "获取问答目录成功", catalog)
}

// Rename 修改目录名称。
func (h *QACatalogHandler) Rename(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求体无效: "+err.Error())
		return
	}
	catalog, err := h.catalogService.Rename(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.Name))
	if err != nil {
		respondError(c, "RenameCatalog", err)
		return
	}
	respond(c, http.StatusOK, "问答目录重命名成功", catalog)
}

// Preview 返回目录、问答对数量与前几条问答对。
func (h *QACatalogHandler) Preview(c *gin.Context) {
	preview, err := h.catalogService.Preview(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "PreviewCatalog", err)
		return
	}
	respond(c, http.StatusOK, "获取问答目录预览成功", preview)
}

// Delete 删除一个修订，并返回组内剩余的最新修订 ID。
func (h *QACatalogHandler) Delete(c *gin.Context) {
	prev, err := h.catalogService.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "DeleteCatalog", err)
		return
	}
	respond(c, http.StatusOK, "问答目录删除成功", gin.H{"previous_revision_id": prev})
}

// Pairs 分页返回目录下的问答对。
func (h *QACatalogHandler) Pairs(c *gin.Context) {
	offset, limit, ok := pagination(c)
	if !ok {
		return
	}
	pairs, err := h.catalogService.Pairs(c.Request.Context(), c.Param("id"), offset, limit)
	if err != nil {
		respondError(c, "ListPairs", err)
		return
	}
	respond(c, http.StatusOK, "获取问答对成功", pairs)
}

// Search 在目录内全文检索问答对。
func (h *QACatalogHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		badRequest(c, "缺少查询参数 q")
		return
	}
	_, limit, ok := pagination(c)
	if !ok {
		return
	}
	pairs, err := h.catalogService.Search(c.Request.Context(), c.Param("id"), query, limit)
	if err != nil {
		respondError(c, "SearchPairs", err)
		return
	}
	respond(c, http.StatusOK, "检索问答对成功", pairs)
}

// History 返回目录组的全部修订，最新在前。
func (h *QACatalogHandler) History(c *gin.Context) {
	history, err := h.catalogService.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "CatalogHistory", err)
		return
	}
	respond(c, http.StatusOK, "获取修订历史成功", history)
}

// Download 导出目录并返回预签名下载链接。
func (h *QACatalogHandler) Download(c *gin.Context) {
	var req service.DownloadOptions
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求体无效: "+err.Error())
		return
	}
	result, err := h.catalogService.Download(c.Request.Context(), req)
	if err != nil {
		respondError(c, "DownloadCatalog", err)
		return
	}
	respond(c, http.StatusOK, "下载链接生成成功", result)
}
