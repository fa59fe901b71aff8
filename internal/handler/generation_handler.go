package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"llm-eval-go/internal/middleware"
	"llm-eval-go/internal/service"
	"llm-eval-go/pkg/log"
	"llm-eval-go/pkg/tasks"
	"llm-eval-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

const writeWait = 10 * time.Second

// GenerationHandler 负责合成问答目录的提交与进度推送。
type GenerationHandler struct {
	generationService service.GenerationService
	verifier          token.Verifier
}

// NewGenerationHandler 创建一个新的 GenerationHandler。
// verifier 用于校验 websocket 查询参数中的 token，浏览器无法为 websocket 设置授权头。
func NewGenerationHandler(generationService service.GenerationService, verifier token.Verifier) *GenerationHandler {
	return &GenerationHandler{generationService: generationService, verifier: verifier}
}

// UploadDataSource 保存生成器使用的源文件并返回数据源配置 ID。
func (h *GenerationHandler) UploadDataSource(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "请求必须是 multipart 表单")
		return
	}
	generatorType := c.PostForm("generator_type")
	if generatorType == "" {
		badRequest(c, "缺少 generator_type")
		return
	}
	id, err := h.generationService.UploadDataSource(c.Request.Context(), generatorType, form.File["files"])
	if err != nil {
		respondError(c, "UploadDataSource", err)
		return
	}
	respond(c, http.StatusOK, "数据源上传成功", gin.H{"id": id})
}

// Generate 校验生成请求，创建 GENERATING 状态的目录并提交任务。
func (h *GenerationHandler) Generate(c *gin.Context) {
	var req tasks.GenerationData
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求体无效: "+err.Error())
		return
	}
	userID := ""
	if p := middleware.CurrentPrincipal(c); p != nil {
		userID = p.ID
	}
	catalogID, err := h.generationService.Generate(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, "GenerateCatalog", err)
		return
	}
	respond(c, http.StatusCreated, "生成任务已提交", gin.H{"catalog_id": catalogID})
}

// Types 返回可用的生成器类型。
func (h *GenerationHandler) Types(c *gin.Context) {
	respond(c, http.StatusOK, "获取生成器类型成功", h.generationService.Types())
}

// Progress 通过 websocket 推送目录生成进度，任务结束后关闭连接。
func (h *GenerationHandler) Progress(c *gin.Context) {
	principal, err := h.verifier.Verify(c.Request.Context(), c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的 token"})
		return
	}
	catalogID := c.Param("id")

	// 连接断开时取消订阅
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, closeFn, err := h.generationService.WatchProgress(ctx, catalogID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "目录不存在"})
			return
		}
		respondError(c, "WatchProgress", err)
		return
	}
	defer closeFn()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("[Generation] 用户 %s 订阅目录 %s 的生成进度", principal.Name, catalogID)

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-events:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "generation finished"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(p); err != nil {
				log.Warnf("[Generation] 推送进度失败, catalog=%s, err=%v", catalogID, err)
				return
			}
		}
	}
}
