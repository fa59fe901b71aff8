// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"llm-eval-go/internal/repository"
	"llm-eval-go/internal/service"
	"llm-eval-go/pkg/log"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// respond 写出统一的成功响应体。
func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    data,
	})
}

// respondError 将服务层错误映射为 HTTP 状态码，未识别的错误记录日志后返回 500。
func respondError(c *gin.Context, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "资源不存在"})
		return
	case errors.Is(err, repository.ErrVersionConflict):
		status = http.StatusConflict
	case errors.Is(err, service.ErrSearchUnavailable):
		status = http.StatusServiceUnavailable
	default:
		log.Errorf("[Handler] %s 失败: %v", op, err)
		c.JSON(status, gin.H{"error": "服务器内部错误"})
		return
	}
	log.Warnf("[Handler] %s 被拒绝 (%d): %v", op, status, err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// pagination 解析 offset/limit 查询参数，缺省为 0/50。
func pagination(c *gin.Context) (offset, limit int, ok bool) {
	offset, limit = 0, defaultLimit
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(c, "offset 必须是非负整数")
			return 0, 0, false
		}
		offset = n
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLimit {
			badRequest(c, "limit 必须在 1 到 500 之间")
			return 0, 0, false
		}
		limit = n
	}
	return offset, limit, true
}
