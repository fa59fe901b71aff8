// Package service 包含了应用的业务逻辑层。
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument 表示请求内容不合法，handler 映射为 400。
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSearchUnavailable 表示未配置 Elasticsearch。
	ErrSearchUnavailable = errors.New("search is not available")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
