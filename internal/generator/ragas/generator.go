package ragas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"llm-eval-go/internal/generator"
	"llm-eval-go/pkg/log"
	"llm-eval-go/pkg/metrics"
	"llm-eval-go/pkg/tokenizer"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/schema"
)

// DefaultGraphFile 是未配置缓存路径时在工作目录下使用的文件名。
const DefaultGraphFile = "knowledge_graph_ragas.json"

// Generator 是 RAGAS 风格的合成问答生成器。
type Generator struct {
	cfg   Config
	deps  generator.Dependencies
	cache *GraphCache
	seed  int64

	newTransforms func(docs []schema.Document) []Transform
}

var _ generator.Generator = (*Generator)(nil)

// New 校验配置并创建生成器。权重分布不合法时直接失败。
func New(cfg Config, deps generator.Dependencies) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.LLM == nil {
		return nil, errors.New("ragas generator requires an llm client")
	}
	if deps.Loader == nil {
		return nil, errors.New("ragas generator requires a document loader")
	}
	if deps.Tokens == nil {
		deps.Tokens = tokenizer.Estimate
	}

	location, err := graphLocation(cfg, deps)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		cfg:   cfg,
		deps:  deps,
		cache: NewGraphCache(location),
		seed:  time.Now().UnixNano(),
	}
	g.newTransforms = func(docs []schema.Document) []Transform {
		return DefaultTransforms(docs, deps.Embeddings, deps.Tokens, deps.Settings.ChunkTokens, deps.Settings.SimilarityThreshold)
	}
	return g, nil
}

// NewFromRaw 解析 JSON 配置后创建生成器。
func NewFromRaw(raw json.RawMessage, deps generator.Dependencies) (generator.Generator, error) {
	cfg, err := ParseConfig(raw)
	if err != nil {
		return nil, err
	}
	return New(cfg, deps)
}

// ValidateRaw 只校验配置。
func ValidateRaw(raw json.RawMessage) error {
	_, err := ParseConfig(raw)
	return err
}

// Config 返回生成器配置。
func (g *Generator) Config() Config { return g.cfg }

func (g *Generator) maxTokens() int {
	if g.deps.Settings.MaxDocumentTokens > 0 {
		return g.deps.Settings.MaxDocumentTokens
	}
	return MaxDocumentTokens
}

// graphLocation 决定缓存文件位置。请求中的相对路径落在工作目录下（未设置工作目录时用
// ragas.knowledge_graph_location 所在目录）；运维配置的 ragas.knowledge_graph_location 原样使用。
func graphLocation(cfg Config, deps generator.Dependencies) (string, error) {
	if cfg.KnowledgeGraphLocation != "" {
		base := deps.WorkDir
		if base == "" && deps.Settings.KnowledgeGraphLocation != "" {
			base = filepath.Dir(deps.Settings.KnowledgeGraphLocation)
		}
		if base == "" {
			return "", errors.New("knowledgeGraphLocation requires a work dir")
		}
		return filepath.Join(base, cfg.KnowledgeGraphLocation), nil
	}
	if deps.Settings.KnowledgeGraphLocation != "" {
		return deps.Settings.KnowledgeGraphLocation, nil
	}
	if deps.WorkDir != "" {
		return filepath.Join(deps.WorkDir, DefaultGraphFile), nil
	}
	return "", nil
}

// CreateKnowledgeGraph 加载文档并返回知识图谱。缓存中的文档哈希集合与当前文档一致时直接复用缓存，
// 否则重新构建、备份旧缓存并写入新图谱。
func (g *Generator) CreateKnowledgeGraph(ctx context.Context) (*KnowledgeGraph, error) {
	src := g.deps.DataSource
	docs, err := g.deps.Loader.Load(ctx, src.Location, src.Glob)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, generator.ErrNoDocuments
	}
	log.Infof("[KnowledgeGraph] 从 %s 加载了 %d 个文档", src.Location, len(docs))

	fresh := NewKnowledgeGraph(docs)
	if cached := g.cache.Load(); cached != nil {
		if SameNodes(cached.Nodes, fresh.Nodes) {
			metrics.KnowledgeGraphCache.WithLabelValues("hit").Inc()
			log.Infof("[KnowledgeGraph] 复用缓存 %s", g.cache.Location())
			return cached, nil
		}
		metrics.KnowledgeGraphCache.WithLabelValues("miss").Inc()
		log.Infof("[KnowledgeGraph] 缓存与当前文档不一致，重新构建")
	}

	tagged := make([]schema.Document, len(docs))
	for i, d := range docs {
		meta := make(map[string]any, len(d.Metadata)+1)
		for k, v := range d.Metadata {
			meta[k] = v
		}
		meta[metaDocumentNodeID] = fresh.Nodes[i].ID
		tagged[i] = schema.Document{PageContent: d.PageContent, Metadata: meta}
	}
	split, err := SplitDocuments(tagged, g.deps.Tokens, g.maxTokens())
	if err != nil {
		return nil, err
	}
	if err := ApplyTransforms(ctx, fresh, g.newTransforms(split)); err != nil {
		return nil, err
	}

	if err := g.cache.Store(fresh); err != nil {
		log.Errorf("[KnowledgeGraph] 写入缓存失败: %v", err)
	}
	return fresh, nil
}

// CreateSyntheticQA 构建知识图谱后并发生成 SampleCount 条样本，逐条交给 consume。
func (g *Generator) CreateSyntheticQA(ctx context.Context, consume generator.SampleConsumer) (generator.BatchStats, error) {
	kg, err := g.CreateKnowledgeGraph(ctx)
	if err != nil {
		return generator.BatchStats{}, err
	}

	engine := NewTestsetGenerator(g.deps.LLM, kg, g.cfg.Personas, g.seed)
	dist := g.cfg.Distribution()
	limit := g.deps.Settings.ParallelGenerationLimit

	return generator.RunSamples(ctx, g.cfg.SampleCount, limit, func(ctx context.Context) ([]generator.SyntheticQAPair, error) {
		samples, err := engine.Clone().Generate(ctx, 1, dist)
		if err != nil {
			return nil, err
		}
		pairs := make([]generator.SyntheticQAPair, 0, len(samples))
		for _, s := range samples {
			pairs = append(pairs, toPair(s))
		}
		return pairs, nil
	}, consume)
}

func toPair(s Sample) generator.SyntheticQAPair {
	meta := map[string]any{"synthesizer_name": string(s.SynthesizerName)}
	if s.PersonaName != "" {
		meta["persona_name"] = s.PersonaName
	}
	return generator.SyntheticQAPair{
		ID:             uuid.NewString(),
		Question:       s.UserInput,
		ExpectedOutput: s.Reference,
		Contexts:       s.ReferenceContexts,
		MetaData:       meta,
	}
}
