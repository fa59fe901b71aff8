package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"llm-eval-go/internal/config"
	"llm-eval-go/internal/pipeline"
	"llm-eval-go/internal/repository"
	"llm-eval-go/internal/service"
	"llm-eval-go/pkg/database"
	"llm-eval-go/pkg/embedding"
	"llm-eval-go/pkg/es"
	"llm-eval-go/pkg/kafka"
	"llm-eval-go/pkg/llm"
	"llm-eval-go/pkg/loader"
	"llm-eval-go/pkg/log"
	"llm-eval-go/pkg/secret"
	"llm-eval-go/pkg/storage"
	"llm-eval-go/pkg/tika"
)

// app 持有进程内共享的仓库与服务。
type app struct {
	cfg config.Config

	catalogRepo    repository.QACatalogRepository
	pairRepo       repository.QAPairRepository
	dataSourceRepo repository.DataSourceRepository
	endpointRepo   repository.LLMEndpointRepository
	metricRepo     repository.MetricRepository
	evaluationRepo repository.EvaluationRepository
	progressRepo   repository.ProgressRepository

	index service.PairIndex
	store storage.ObjectStore

	catalogService    service.QACatalogService
	generationService service.GenerationService
	endpointService   service.LLMEndpointService
	metricService     service.MetricService
	evaluationService service.EvaluationService
	dashboardService  service.DashboardService
}

// loadConfig 读取配置并初始化日志记录器。
func loadConfig() (config.Config, error) {
	// 1. 初始化配置
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	config.Conf = cfg

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	log.Info("日志记录器初始化成功")
	return cfg, nil
}

// newApp 连接外部依赖并完成依赖注入。
func newApp(cfg config.Config) (*app, error) {
	// 3. 初始化数据库、Redis、MinIO、Elasticsearch 与 Kafka 生产者
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	kafka.InitProducer(cfg.Kafka)

	a := &app{cfg: cfg}
	a.store = storage.NewMinioStore(storage.MinioClient, cfg.MinIO.BucketName)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		// 检索是可选能力，ES 不可用时其余接口照常工作
		log.Errorf("es 初始化失败，问答对检索不可用: %v", err)
	} else {
		a.index = es.NewQAPairIndex(es.ESClient, cfg.Elasticsearch.IndexName)
	}

	// 4. 初始化 Repository
	a.catalogRepo = repository.NewQACatalogRepository(database.DB)
	a.pairRepo = repository.NewQAPairRepository(database.DB)
	a.dataSourceRepo = repository.NewDataSourceRepository(database.DB)
	a.endpointRepo = repository.NewLLMEndpointRepository(database.DB)
	a.metricRepo = repository.NewMetricRepository(database.DB)
	a.evaluationRepo = repository.NewEvaluationRepository(database.DB)
	a.progressRepo = repository.NewProgressRepository(database.RDB)

	// 5. 初始化 Service (依赖注入)
	box, err := secret.NewBox(cfg.Encryption.Key)
	if err != nil {
		if !errors.Is(err, secret.ErrEmptyKey) {
			return nil, fmt.Errorf("初始化加密密钥失败: %w", err)
		}
		log.Warnf("未配置 encryption.key，无法保存 LLM endpoint 的 apiKey")
	}
	presign := time.Duration(cfg.MinIO.PresignMinutes) * time.Minute

	a.catalogService = service.NewQACatalogService(a.catalogRepo, a.pairRepo, a.index, a.store, presign)
	a.generationService = service.NewGenerationService(a.catalogRepo, a.dataSourceRepo, a.endpointRepo, a.progressRepo, a.store, kafka.Publisher{})
	a.endpointService = service.NewLLMEndpointService(a.endpointRepo, box)
	a.metricService = service.NewMetricService(a.metricRepo, a.endpointRepo)
	a.evaluationService = service.NewEvaluationService(a.evaluationRepo, a.catalogRepo, a.endpointRepo, a.metricRepo)
	a.dashboardService = service.NewDashboardService(a.catalogRepo, a.evaluationRepo, a.endpointRepo, a.metricRepo)
	return a, nil
}

// processor 创建生成任务处理管道。
func (a *app) processor() *pipeline.Processor {
	var defaultLLM llm.Client
	if a.cfg.LLM.APIKey != "" || a.cfg.LLM.BaseURL != "" {
		defaultLLM = llm.NewClient(a.cfg.LLM)
	}
	tikaClient := tika.NewClient(a.cfg.Tika)
	var extractor loader.Extractor
	if tikaClient.Enabled() {
		extractor = tikaClient
	}
	return pipeline.NewProcessor(pipeline.Components{
		Catalogs:    a.catalogRepo,
		Pairs:       a.pairRepo,
		DataSources: a.dataSourceRepo,
		Progress:    a.progressRepo,
		Index:       a.index,
		Store:       a.store,
		ChatModels:  a.endpointService,
		DefaultLLM:  defaultLLM,
		Embeddings:  embedding.NewClient(a.cfg.Embedding),
		Loader:      loader.NewDirectoryLoader(extractor),
	}, a.cfg.Ragas, a.cfg.Storage.UploadTempDir)
}

// startConsumer 在后台消费生成任务，返回的 channel 在消费者退出后关闭。
func (a *app) startConsumer(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	processor := a.processor()
	go func() {
		defer close(done)
		kafka.StartConsumer(ctx, a.cfg.Kafka, processor, kafka.RedisAttemptCounter{RDB: database.RDB})
	}()
	return done
}

func (a *app) close() {
	kafka.CloseProducer()
	if sqlDB, err := database.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = database.RDB.Close()
	log.Sync()
}
