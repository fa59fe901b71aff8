// Package generator 定义问答目录生成器的公共类型与并发采样框架。
package generator

import (
	"context"
	"errors"

	"llm-eval-go/internal/config"
	"llm-eval-go/pkg/embedding"
	"llm-eval-go/pkg/llm"
	"llm-eval-go/pkg/tokenizer"

	"github.com/tmc/langchaingo/schema"
)

// Type 是生成器种类标签。
type Type string

// 已知的生成器种类
const (
	TypeRagas Type = "RAGAS"
)

var (
	ErrUnknownGeneratorType = errors.New("unknown generator type")
	ErrNoDocuments          = errors.New("no documents found")
)

// SyntheticQAPair 是一次单样本生成的结果。
type SyntheticQAPair struct {
	ID             string         `json:"id"`
	Question       string         `json:"question"`
	ExpectedOutput string         `json:"expectedOutput"`
	Contexts       []string       `json:"contexts"`
	MetaData       map[string]any `json:"metaData"`
}

// SampleConsumer 接收生成的样本，按到达顺序逐个调用。
type SampleConsumer func(ctx context.Context, pair SyntheticQAPair) error

// Generator 生成合成问答对并流式交给 consume。
type Generator interface {
	CreateSyntheticQA(ctx context.Context, consume SampleConsumer) (BatchStats, error)
}

// DataSource 描述生成器读取的文档目录。
type DataSource struct {
	Location string
	Glob     string
}

// DocumentLoader 从目录按 glob 加载文档。
type DocumentLoader interface {
	Load(ctx context.Context, dir, glob string) ([]schema.Document, error)
}

// Dependencies 是构造具体生成器所需的外部能力。
type Dependencies struct {
	LLM        llm.Client
	Embeddings embedding.Client
	Loader     DocumentLoader
	Tokens     tokenizer.Counter
	DataSource DataSource
	Settings   config.RagasConfig
	// WorkDir 是知识图谱缓存的默认目录
	WorkDir string
}
