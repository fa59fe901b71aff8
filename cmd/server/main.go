// Package main 是应用程序的入口点。
//
//	llm-eval serve    启动 HTTP 服务，并在同一进程内消费生成任务
//	llm-eval worker   只消费生成任务
//	llm-eval migrate  创建或更新数据库表
//	llm-eval dev-token 签发本地开发用的 HS256 token
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "llm-eval",
		Short:        "问答目录管理与合成问答生成服务",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "配置文件路径")

	root.AddCommand(
		buildServeCmd(),
		buildWorkerCmd(),
		buildMigrateCmd(),
		buildDevTokenCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
