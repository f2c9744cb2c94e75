// file: cmd/gateway/main.go

package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// version 定义当前程序的版本号 (构建时可通过 -ldflags 覆盖)
var version = "v0.3.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "modelaegis",
		Short:        "ModelAegis 记录查询引擎",
		Long:         "ModelAegis 为运营方自定义的数据模型提供统一的记录列表与创建接口，记录可以来自内部 EAV 存储或外部关系库。",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径 (默认 $MODELAEGIS_CONFIG 或 configs/config.yaml)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 与 gRPC 健康检查服务",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "init-db",
		Short: "创建内部存储的平台表后退出",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInitDB(cmd.Context(), configPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "打印版本信息",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("modelaegis %s\n", version)
			cmd.Printf("  Go Version: %s\n", runtime.Version())
			cmd.Printf("  OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})
	return root
}
