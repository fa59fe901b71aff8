// Package tokenizer 提供基于 tiktoken 的 token 计数。
package tokenizer

import (
	"sync"
	"unicode/utf8"

	"llm-eval-go/pkg/log"

	"github.com/pkoukk/tiktoken-go"
)

// Counter 返回文本的 token 数。
type Counter func(text string) int

// New 返回指定编码 (如 cl100k_base) 的计数器。编码表首次使用时加载；
// 加载失败时退化为按字符数估算 (约 4 字符 1 token)。
func New(encoding string) Counter {
	var (
		once sync.Once
		enc  *tiktoken.Tiktoken
	)
	return func(text string) int {
		once.Do(func() {
			var err error
			enc, err = tiktoken.GetEncoding(encoding)
			if err != nil {
				log.Warnf("[Tokenizer] 加载编码 %s 失败，使用字符估算: %v", encoding, err)
			}
		})
		if enc == nil {
			return Estimate(text)
		}
		return len(enc.Encode(text, nil, nil))
	}
}

// Estimate 按字符数粗略估算 token 数。
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
