package cmd

import (
	"os"

	"github.com/machshop/approval-engine/pkg/cli/approvalengine"
	"github.com/spf13/cobra"
)

var (
	// 全局变量
	serverURL  string
	actingUser string
	outputJSON bool
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "approval-engine",
	Short: "Approval Engine CLI - 审批工作流引擎命令行工具",
	Long: `Approval Engine CLI 是一个用于管理多阶段审批工作流的命令行工具。

支持的功能：
  - 管理工作流实例（启动、查看、进度、历史、取消、完成）
  - 查询待办审批任务
  - 记录审批动作（可携带电子签名）
  - 启动HTTP API服务

使用示例：
  # 启动工作流
  approval-engine workflow start --workflow <definition-id> --entity-type order --entity-id ORD-1

  # 查看实例进度
  approval-engine workflow progress <instance-id>

  # 查询我的待办
  approval-engine task list --user user-1

  # 审批通过
  approval-engine approve <assignment-id> --action APPROVED --user user-1

  # 启动HTTP服务
  approval-engine server start --port 8080`,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "Approval Engine服务器地址")
	rootCmd.PersistentFlags().StringVarP(&actingUser, "user", "u", "", "操作者用户ID")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "使用JSON格式输出")

	// 添加子命令
	rootCmd.AddCommand(workflowCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(versionCmd)
}

// client 构建API客户端
func client() *approvalengine.ApprovalEngine {
	return approvalengine.New(serverURL, actingUser)
}
