package ragas

import (
	"fmt"
	"math"

	"llm-eval-go/pkg/log"
	"llm-eval-go/pkg/tokenizer"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

// MaxDocumentTokens 是送入转换流水线的单个文档的 token 上限。
const MaxDocumentTokens = 100000

// SplitDocuments 把超过 ceiling 个 token 的文档对半切分，重叠为块大小的一半，直到所有片段都不超过上限。
// 长度按 tokens 计数。ceiling <= 0 时使用 MaxDocumentTokens。
func SplitDocuments(docs []schema.Document, tokens tokenizer.Counter, ceiling int) ([]schema.Document, error) {
	if ceiling <= 0 {
		ceiling = MaxDocumentTokens
	}
	out := make([]schema.Document, 0, len(docs))
	for _, d := range docs {
		parts, err := splitDocument(d, tokens, ceiling)
		if err != nil {
			return nil, err
		}
		out = append(out, parts...)
	}
	return out, nil
}

func splitDocument(doc schema.Document, tokens tokenizer.Counter, ceiling int) ([]schema.Document, error) {
	n := tokens(doc.PageContent)
	if n <= ceiling {
		return []schema.Document{doc}, nil
	}

	chunk := int(math.Ceil(float64(n) / 2))
	overlap := int(math.Ceil(float64(chunk) * 0.5))
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunk),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithLenFunc(tokens),
	)
	parts, err := textsplitter.SplitDocuments(splitter, []schema.Document{doc})
	if err != nil {
		return nil, fmt.Errorf("split document: %w", err)
	}
	if len(parts) <= 1 {
		log.Warnf("[Splitter] 文档 (%d tokens) 无法继续切分，保持原样", n)
		return []schema.Document{doc}, nil
	}
	log.Infof("[Splitter] 文档 %d tokens 超过上限 %d，切分为 %d 段 (chunk=%d overlap=%d)", n, ceiling, len(parts), chunk, overlap)

	out := make([]schema.Document, 0, len(parts))
	for _, p := range parts {
		// 片段没有变小时不再递归
		if tokens(p.PageContent) >= n {
			log.Warnf("[Splitter] 片段未缩小，保持原样")
			out = append(out, p)
			continue
		}
		sub, err := splitDocument(p, tokens, ceiling)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}
