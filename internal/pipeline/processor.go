// Package pipeline 定义了问答目录生成任务的核心流程。
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"llm-eval-go/internal/config"
	"llm-eval-go/internal/generator"
	"llm-eval-go/internal/generator/registry"
	"llm-eval-go/internal/model"
	"llm-eval-go/internal/repository"
	"llm-eval-go/internal/service"
	"llm-eval-go/pkg/embedding"
	"llm-eval-go/pkg/llm"
	"llm-eval-go/pkg/log"
	"llm-eval-go/pkg/metrics"
	"llm-eval-go/pkg/storage"
	"llm-eval-go/pkg/tasks"
	"llm-eval-go/pkg/tokenizer"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ChatModels 按 LLM endpoint ID 构造聊天客户端。
type ChatModels interface {
	ChatModel(ctx context.Context, id string) (*service.ChatModel, error)
}

// Components 是 Processor 依赖的存储与模型组件。Index 为 nil 时不写检索索引。
type Components struct {
	Catalogs    repository.QACatalogRepository
	Pairs       repository.QAPairRepository
	DataSources repository.DataSourceRepository
	Progress    repository.ProgressRepository
	Index       service.PairIndex
	Store       storage.ObjectStore
	ChatModels  ChatModels
	DefaultLLM  llm.Client
	Embeddings  embedding.Client
	Loader      generator.DocumentLoader
}

type buildFunc func(t generator.Type, raw json.RawMessage, deps generator.Dependencies) (generator.Generator, error)

// Processor 封装了目录生成任务的所有依赖和逻辑。
type Processor struct {
	Components
	settings config.RagasConfig
	tempDir  string
	tokens   tokenizer.Counter
	build    buildFunc
}

// NewProcessor 创建一个新的 Processor 实例。数据源文件会被镜像到 tempDir/<数据源ID>/。
func NewProcessor(c Components, settings config.RagasConfig, tempDir string) *Processor {
	return &Processor{
		Components: c,
		settings:   settings,
		tempDir:    tempDir,
		tokens:     tokenizer.New(settings.Encoding),
		build:      registry.New,
	}
}

// Process 执行一次目录生成。任务可重复投递：每次都会清空目录已有的问答对后重新生成。
func (p *Processor) Process(ctx context.Context, task tasks.GenerateCatalogTask) error {
	log.Infof("[Processor] 开始生成目录, catalog=%s, user=%s", task.CatalogID, task.UserID)

	catalog, err := p.Catalogs.FindByID(ctx, task.CatalogID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 目录已被删除，任务无需重试
			log.Warnf("[Processor] 目录 %s 不存在，丢弃任务", task.CatalogID)
			return nil
		}
		return fmt.Errorf("查询目录失败: %w", err)
	}

	data, err := task.Decode()
	if err != nil {
		return p.fail(ctx, catalog.ID, 0, 0, err)
	}
	genType, err := registry.ParseType(data.Type)
	if err != nil {
		return p.fail(ctx, catalog.ID, 0, 0, err)
	}
	requested := sampleCount(data.Config)

	// 1. 重置目录状态与已有问答对
	if err := p.Catalogs.UpdateStatus(ctx, catalog.ID, model.CatalogStatusGenerating, ""); err != nil {
		return fmt.Errorf("更新目录状态失败: %w", err)
	}
	if err := p.Pairs.DeleteByCatalog(ctx, catalog.ID); err != nil {
		return p.fail(ctx, catalog.ID, requested, 0, fmt.Errorf("清空问答对失败: %w", err))
	}
	if p.Index != nil {
		if err := p.Index.DeleteByCatalog(ctx, catalog.ID); err != nil {
			log.Warnf("[Processor] 清理目录 %s 的检索索引失败: %v", catalog.ID, err)
		}
	}
	p.publish(ctx, repository.GenerationProgress{CatalogID: catalog.ID, Status: model.CatalogStatusGenerating, Requested: requested})

	// 2. 准备数据源
	deps, err := p.dependencies(ctx, data)
	if err != nil {
		return p.fail(ctx, catalog.ID, requested, 0, err)
	}

	// 3. 生成并逐条持久化
	gen, err := p.build(genType, data.Config, deps)
	if err != nil {
		return p.fail(ctx, catalog.ID, requested, 0, fmt.Errorf("创建生成器失败: %w", err))
	}

	// consume 只在收集样本的单个 goroutine 中调用
	delivered := 0
	consume := func(ctx context.Context, pair generator.SyntheticQAPair) error {
		if err := p.savePair(ctx, catalog.ID, pair); err != nil {
			return err
		}
		delivered++
		p.publish(ctx, repository.GenerationProgress{CatalogID: catalog.ID, Status: model.CatalogStatusGenerating, Requested: requested, Delivered: delivered})
		return nil
	}

	start := time.Now()
	stats, err := gen.CreateSyntheticQA(ctx, consume)
	if err != nil {
		return p.fail(ctx, catalog.ID, requested, delivered, fmt.Errorf("生成问答对失败: %w", err))
	}

	// 4. 完成
	if err := p.Catalogs.UpdateStatus(ctx, catalog.ID, model.CatalogStatusReady, ""); err != nil {
		return fmt.Errorf("更新目录状态失败: %w", err)
	}
	p.publish(ctx, repository.GenerationProgress{
		CatalogID: catalog.ID,
		Status:    model.CatalogStatusReady,
		Requested: stats.Requested,
		Delivered: stats.Delivered,
		Done:      true,
	})
	metrics.GenerationTasks.WithLabelValues(model.CatalogStatusReady).Inc()
	log.Infof("[Processor] 目录 %s 生成完成, 请求 %d, 成功 %d, 空结果 %d, 失败 %d, 耗时 %s",
		catalog.ID, stats.Requested, stats.Delivered, stats.Empty, stats.Failed, time.Since(start))
	return nil
}

// dependencies 镜像数据源文件并选择聊天模型。
func (p *Processor) dependencies(ctx context.Context, data tasks.GenerationData) (generator.Dependencies, error) {
	ds, err := p.DataSources.FindByID(ctx, data.DataSourceConfigID)
	if err != nil {
		return generator.Dependencies{}, fmt.Errorf("查询数据源 %s 失败: %w", data.DataSourceConfigID, err)
	}
	dir := filepath.Join(p.tempDir, ds.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return generator.Dependencies{}, fmt.Errorf("创建数据源目录失败: %w", err)
	}
	n, err := p.Store.Mirror(ctx, ds.ObjectPrefix, dir)
	if err != nil {
		return generator.Dependencies{}, fmt.Errorf("下载数据源失败: %w", err)
	}
	log.Infof("[Processor] 数据源 %s 已同步 %d 个文件到 %s", ds.ID, n, dir)

	settings := p.settings
	client := p.DefaultLLM
	if id := data.ModelConfig.LLMEndpoint; id != "" {
		chat, err := p.ChatModels.ChatModel(ctx, id)
		if err != nil {
			return generator.Dependencies{}, fmt.Errorf("加载 LLM endpoint %s 失败: %w", id, err)
		}
		client = chat.Client
		if chat.ParallelQueries > 0 && (settings.ParallelGenerationLimit <= 0 || chat.ParallelQueries < settings.ParallelGenerationLimit) {
			settings.ParallelGenerationLimit = chat.ParallelQueries
		}
	}
	if client == nil {
		return generator.Dependencies{}, errors.New("未配置可用的 LLM")
	}

	return generator.Dependencies{
		LLM:        client,
		Embeddings: p.Embeddings,
		Loader:     p.Loader,
		Tokens:     p.tokens,
		DataSource: generator.DataSource{Location: dir, Glob: ds.Glob},
		Settings:   settings,
		// 知识图谱缓存放在数据源目录之外，避免被当作文档加载
		WorkDir: filepath.Join(p.tempDir, "knowledge-graphs", ds.ID),
	}, nil
}

func (p *Processor) savePair(ctx context.Context, catalogID string, pair generator.SyntheticQAPair) error {
	id := pair.ID
	if id == "" {
		id = uuid.NewString()
	}
	contexts := pair.Contexts
	if contexts == nil {
		contexts = []string{}
	}
	meta := pair.MetaData
	if meta == nil {
		meta = map[string]any{}
	}
	row := &model.QAPair{
		ID:             id,
		QACatalogID:    catalogID,
		Question:       pair.Question,
		ExpectedOutput: pair.ExpectedOutput,
		Contexts:       datatypes.NewJSONSlice(contexts),
		MetaData:       datatypes.JSONMap(meta),
	}
	if err := p.Pairs.Create(ctx, row); err != nil {
		return fmt.Errorf("保存问答对失败: %w", err)
	}
	if p.Index != nil {
		if err := p.Index.Index(ctx, service.PairDocument(row)); err != nil {
			log.Warnf("[Processor] 问答对 %s 写入检索索引失败: %v", row.ID, err)
		}
	}
	return nil
}

// fail 将目录标记为 FAILURE 并返回原始错误，由消费者决定是否重试。
func (p *Processor) fail(ctx context.Context, catalogID string, requested, delivered int, cause error) error {
	log.Errorf("[Processor] 目录 %s 生成失败: %v", catalogID, cause)
	// 任务被取消时仍需写入最终状态
	ctx = context.WithoutCancel(ctx)
	if err := p.Catalogs.UpdateStatus(ctx, catalogID, model.CatalogStatusFailure, cause.Error()); err != nil {
		log.Errorf("[Processor] 更新目录 %s 为 FAILURE 失败: %v", catalogID, err)
	}
	p.publish(ctx, repository.GenerationProgress{
		CatalogID: catalogID,
		Status:    model.CatalogStatusFailure,
		Requested: requested,
		Delivered: delivered,
		Error:     cause.Error(),
		Done:      true,
	})
	metrics.GenerationTasks.WithLabelValues(model.CatalogStatusFailure).Inc()
	return cause
}

func (p *Processor) publish(ctx context.Context, progress repository.GenerationProgress) {
	if p.Progress == nil {
		return
	}
	progress.UpdatedAt = time.Now()
	if err := p.Progress.Publish(ctx, progress); err != nil {
		log.Warnf("[Processor] 发布目录 %s 的进度失败: %v", progress.CatalogID, err)
	}
}

// sampleCount 读取配置中的样本数，仅用于进度展示。
func sampleCount(raw json.RawMessage) int {
	var peek struct {
		SampleCount int `json:"sampleCount"`
	}
	_ = json.Unmarshal(raw, &peek)
	return peek.SampleCount
}
