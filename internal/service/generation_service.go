package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path"
	"path/filepath"

	"llm-eval-go/internal/generator"
	"llm-eval-go/internal/generator/registry"
	"llm-eval-go/internal/model"
	"llm-eval-go/internal/repository"
	"llm-eval-go/pkg/loader"
	"llm-eval-go/pkg/log"
	"llm-eval-go/pkg/storage"
	"llm-eval-go/pkg/tasks"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TaskPublisher 投递目录生成任务。
type TaskPublisher interface {
	PublishGenerateCatalog(ctx context.Context, task tasks.GenerateCatalogTask) error
}

// GeneratorTypeInfo 描述一个可选的生成器种类。
type GeneratorTypeInfo struct {
	Type generator.Type `json:"type"`
}

// GenerationService 负责数据源上传、生成任务提交与进度订阅。
type GenerationService interface {
	UploadDataSource(ctx context.Context, generatorType string, files []*multipart.FileHeader) (string, error)
	Generate(ctx context.Context, userID string, data tasks.GenerationData) (string, error)
	Types() []GeneratorTypeInfo
	WatchProgress(ctx context.Context, catalogID string) (<-chan repository.GenerationProgress, func(), error)
}

type generationService struct {
	catalogRepo    repository.QACatalogRepository
	dataSourceRepo repository.DataSourceRepository
	endpointRepo   repository.LLMEndpointRepository
	progressRepo   repository.ProgressRepository
	store          storage.ObjectStore
	publisher      TaskPublisher
}

// NewGenerationService 创建生成服务。
func NewGenerationService(
	catalogRepo repository.QACatalogRepository,
	dataSourceRepo repository.DataSourceRepository,
	endpointRepo repository.LLMEndpointRepository,
	progressRepo repository.ProgressRepository,
	store storage.ObjectStore,
	publisher TaskPublisher,
) GenerationService {
	return &generationService{
		catalogRepo:    catalogRepo,
		dataSourceRepo: dataSourceRepo,
		endpointRepo:   endpointRepo,
		progressRepo:   progressRepo,
		store:          store,
		publisher:      publisher,
	}
}

// UploadDataSource 把文件上传到 MinIO 并记录数据源配置，返回配置 ID。
func (s *generationService) UploadDataSource(ctx context.Context, generatorType string, files []*multipart.FileHeader) (string, error) {
	t, err := registry.ParseType(generatorType)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if len(files) == 0 {
		return "", invalidf("at least one file is required")
	}

	id := uuid.NewString()
	names := make([]string, 0, len(files))
	for _, fh := range files {
		name := path.Base(filepath.ToSlash(fh.Filename))
		if name == "." || name == "/" {
			return "", invalidf("invalid file name %q", fh.Filename)
		}
		f, err := fh.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", name, err)
		}
		err = s.store.Put(ctx, storage.DataSourceObject(id, name), f, fh.Size, fh.Header.Get("Content-Type"))
		f.Close()
		if err != nil {
			return "", err
		}
		names = append(names, name)
	}

	cfg := &model.DataSourceConfig{
		ID:            id,
		GeneratorType: string(t),
		ObjectPrefix:  storage.DataSourceDir(id),
		Glob:          loader.DefaultGlob,
		FileNames:     datatypes.NewJSONSlice(names),
	}
	if err := s.dataSourceRepo.Create(ctx, cfg); err != nil {
		return "", fmt.Errorf("save data source config: %w", err)
	}
	log.Infof("[Generation] 数据源 %s 上传完成, 文件 %d 个", id, len(names))
	return id, nil
}

// Generate 校验请求，创建 GENERATING 状态的空目录并提交生成任务。
func (s *generationService) Generate(ctx context.Context, userID string, data tasks.GenerationData) (string, error) {
	t, err := registry.ParseType(data.Type)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if data.Name == "" {
		return "", invalidf("name is required")
	}
	if err := registry.ValidateConfig(t, data.Config); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	ds, err := s.dataSourceRepo.FindByID(ctx, data.DataSourceConfigID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", invalidf("data source config %q not found", data.DataSourceConfigID)
	}
	if err != nil {
		return "", err
	}
	if ds.GeneratorType != string(t) {
		return "", invalidf("data source config was uploaded for %s, not %s", ds.GeneratorType, t)
	}
	if id := data.ModelConfig.LLMEndpoint; id != "" {
		if _, err := s.endpointRepo.FindByID(ctx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", invalidf("llm endpoint %q not found", id)
			}
			return "", err
		}
	}

	catalog := &model.QACatalog{
		ID:               uuid.NewString(),
		Name:             data.Name,
		QACatalogGroupID: uuid.NewString(),
		Revision:         1,
		Status:           model.CatalogStatusGenerating,
		Origin:           model.CatalogOriginGenerated,
	}
	if err := s.catalogRepo.Create(ctx, catalog); err != nil {
		return "", fmt.Errorf("create catalog: %w", err)
	}

	task, err := tasks.NewGenerateCatalogTask(catalog.ID, userID, data)
	if err == nil {
		err = s.publisher.PublishGenerateCatalog(ctx, task)
	}
	if err != nil {
		log.Errorf("[Generation] 目录 %s 的生成任务提交失败: %v", catalog.ID, err)
		if uerr := s.catalogRepo.UpdateStatus(ctx, catalog.ID, model.CatalogStatusFailure, err.Error()); uerr != nil {
			log.Errorf("[Generation] 更新目录 %s 状态失败: %v", catalog.ID, uerr)
		}
		return "", fmt.Errorf("submit generation task: %w", err)
	}
	log.Infof("[Generation] 已提交目录生成任务: name=%s, catalog_id=%s, type=%s", data.Name, catalog.ID, t)
	return catalog.ID, nil
}

func (s *generationService) Types() []GeneratorTypeInfo {
	types := registry.ActiveTypes()
	out := make([]GeneratorTypeInfo, 0, len(types))
	for _, t := range types {
		out = append(out, GeneratorTypeInfo{Type: t})
	}
	return out
}

// WatchProgress 订阅目录的生成进度。先推送最近一次快照；目录已不在生成中时
// 推送一条结束事件后关闭通道。
func (s *generationService) WatchProgress(ctx context.Context, catalogID string) (<-chan repository.GenerationProgress, func(), error) {
	catalog, err := s.catalogRepo.FindByID(ctx, catalogID)
	if err != nil {
		return nil, nil, err
	}
	if catalog.Status != model.CatalogStatusGenerating {
		out := make(chan repository.GenerationProgress, 1)
		out <- repository.GenerationProgress{
			CatalogID: catalogID,
			Status:    catalog.Status,
			Error:     catalog.Error,
			Done:      true,
			UpdatedAt: catalog.UpdatedAt,
		}
		close(out)
		return out, func() {}, nil
	}

	events, closeSub, err := s.progressRepo.Subscribe(ctx, catalogID)
	if err != nil {
		return nil, nil, err
	}
	latest, err := s.progressRepo.Latest(ctx, catalogID)
	if err != nil {
		log.Warnf("[Generation] 读取目录 %s 的进度快照失败: %v", catalogID, err)
	}

	out := make(chan repository.GenerationProgress, 1)
	go func() {
		defer close(out)
		if latest != nil {
			select {
			case out <- *latest:
			case <-ctx.Done():
				return
			}
			if latest.Done {
				return
			}
		}
		for p := range events {
			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
			if p.Done {
				return
			}
		}
	}()
	return out, closeSub, nil
}
