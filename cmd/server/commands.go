package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"llm-eval-go/internal/handler"
	"llm-eval-go/internal/middleware"
	"llm-eval-go/pkg/database"
	"llm-eval-go/pkg/log"
	"llm-eval-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

// buildServeCmd 创建 serve 命令：HTTP 服务，可选地在同一进程内消费生成任务。
func buildServeCmd() *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(withWorker)
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", true, "同时启动 Kafka 消费者")
	return cmd
}

// buildWorkerCmd 创建 worker 命令：只消费生成任务。
func buildWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "只运行目录生成任务消费者",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker()
		},
	}
}

// buildMigrateCmd 创建 migrate 命令。
func buildMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "创建或更新数据库表",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()
			database.InitMySQL(cfg.Database.MySQL.DSN)
			if err := database.AutoMigrate(database.DB); err != nil {
				return fmt.Errorf("数据库迁移失败: %w", err)
			}
			log.Info("数据库迁移完成")
			return nil
		},
	}
}

// buildDevTokenCmd 创建 dev-token 命令，需要配置 auth.dev_secret。
func buildDevTokenCmd() *cobra.Command {
	var (
		subject  string
		username string
		email    string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "dev-token",
		Short: "签发本地开发用的 HS256 token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.DevSecret == "" {
				return errors.New("auth.dev_secret 未配置")
			}
			tok, err := token.GenerateDevToken(cfg.Auth.DevSecret, subject, username, email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "dev-user", "token 的 sub 声明")
	cmd.Flags().StringVar(&username, "username", "dev", "preferred_username 声明")
	cmd.Flags().StringVar(&email, "email", "", "email 声明")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "有效期")
	return cmd
}

func runServe(withWorker bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 6. 启动后台 Kafka 消费者
	var consumerDone <-chan struct{}
	if withWorker {
		consumerDone = a.startConsumer(ctx)
	}

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), middleware.Metrics(), gin.Recovery())

	// 8. 注册路由
	verifier := token.NewVerifier(cfg.Auth)
	handler.RegisterRoutes(r, handler.Handlers{
		AppVersion: cfg.Server.AppVersion,
		Catalog:    handler.NewQACatalogHandler(a.catalogService),
		Generation: handler.NewGenerationHandler(a.generationService, verifier),
		Endpoint:   handler.NewLLMEndpointHandler(a.endpointService),
		Metric:     handler.NewMetricHandler(a.metricService),
		Evaluation: handler.NewEvaluationHandler(a.evaluationService),
		Dashboard:  handler.NewDashboardHandler(a.dashboardService),
	}, verifier)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("接收到停机信号，正在关闭服务...")
	case err := <-serveErr:
		stop()
		return fmt.Errorf("HTTP 服务监听失败: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	if consumerDone != nil {
		<-consumerDone
	}
	log.Info("服务已优雅关闭")
	return nil
}

func runWorker() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-a.startConsumer(ctx)
	log.Info("消费者已退出")
	return nil
}
