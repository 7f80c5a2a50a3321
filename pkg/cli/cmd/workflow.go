package cmd

import (
	"fmt"

	"github.com/machshop/approval-engine/pkg/api/dto"
	"github.com/machshop/approval-engine/pkg/cli/output"
	"github.com/spf13/cobra"
)

var (
	startWorkflowID string
	startEntityType string
	startEntityID   string
	startPriority   string
	cancelReason    string
)

// workflowCmd workflow子命令
var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "工作流实例管理命令",
	Long:  `管理审批工作流实例：启动、查看、进度、历史、取消、完成。`,
}

// workflowStartCmd 启动工作流
var workflowStartCmd = &cobra.Command{
	Use:   "start",
	Short: "启动工作流实例",
	Long: `按工作流定义启动一个审批实例。

示例：
  approval-engine workflow start --workflow def-1 --entity-type purchase_order --entity-id PO-42 --priority HIGH`,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client().StartWorkflow(dto.StartWorkflowRequest{
			WorkflowID: startWorkflowID,
			EntityType: startEntityType,
			EntityID:   startEntityID,
			Priority:   startPriority,
		})
		if err != nil {
			output.Error("启动工作流失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(resp)
		}
		output.Success("工作流已启动: %s (状态: %s)", resp.WorkflowInstanceID, resp.Status)
		return nil
	},
}

// workflowShowCmd 查看实例详情
var workflowShowCmd = &cobra.Command{
	Use:   "show <instance-id>",
	Short: "查看工作流实例详情",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inst, err := client().GetWorkflow(args[0])
		if err != nil {
			output.Error("查询实例失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(inst)
		}

		output.Info("实例: %s  状态: %s  进度: %d%%", inst.ID, inst.Status, inst.ProgressPercentage)
		output.Info("实体: %s/%s  优先级: %s", inst.EntityType, inst.EntityID, inst.Priority)

		table := output.NewTable("阶段", "名称", "状态", "结论", "策略", "分配数")
		for i := range inst.Stages {
			s := &inst.Stages[i]
			table.AddRow(
				fmt.Sprintf("%d", s.StageNumber),
				s.StageName,
				output.Status(s.Status),
				s.Outcome,
				s.ApprovalType,
				fmt.Sprintf("%d", len(s.Assignments)),
			)
		}
		table.Render()
		return nil
	},
}

// workflowProgressCmd 查看实例进度
var workflowProgressCmd = &cobra.Command{
	Use:   "progress <instance-id>",
	Short: "查看工作流实例进度",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		progress, err := client().GetProgress(args[0])
		if err != nil {
			output.Error("查询进度失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(progress)
		}
		output.Info("状态: %v  进度: %v%%  阶段: %v/%v  分配: %v/%v",
			progress["status"], progress["progress_percentage"],
			progress["completed_stages"], progress["total_stages"],
			progress["completed_assignments"], progress["total_assignments"])
		return nil
	},
}

// workflowHistoryCmd 查看审计历史
var workflowHistoryCmd = &cobra.Command{
	Use:   "history <instance-id>",
	Short: "查看工作流审计历史",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		history, err := client().GetHistory(args[0])
		if err != nil {
			output.Error("查询历史失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(history)
		}

		table := output.NewTable("时间", "动作", "操作者", "备注")
		for i := range history {
			h := &history[i]
			table.AddRow(
				h.Timestamp.Format("2006-01-02 15:04:05"),
				h.Action,
				h.PerformedByID,
				h.Notes,
			)
		}
		table.Render()
		return nil
	},
}

// workflowCancelCmd 取消实例
var workflowCancelCmd = &cobra.Command{
	Use:   "cancel <instance-id>",
	Short: "取消工作流实例",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client().CancelWorkflow(args[0], cancelReason); err != nil {
			output.Error("取消失败: %v", err)
			return err
		}
		output.Success("工作流已取消: %s", args[0])
		return nil
	},
}

// workflowCompleteCmd 完成实例
var workflowCompleteCmd = &cobra.Command{
	Use:   "complete <instance-id>",
	Short: "完成工作流实例",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client().CompleteWorkflow(args[0]); err != nil {
			output.Error("完成失败: %v", err)
			return err
		}
		output.Success("工作流已完成: %s", args[0])
		return nil
	},
}

// workflowVerifyCmd 校验实例签名
var workflowVerifyCmd = &cobra.Command{
	Use:   "verify <instance-id>",
	Short: "校验工作流实例下的全部电子签名",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := client().VerifySignatures(args[0])
		if err != nil {
			output.Error("验签失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(result)
		}
		if result.IsValid {
			output.Success("全部%d个签名校验通过", result.SignatureCount)
		} else {
			output.Warning("签名校验未通过: 无效%d个, 错误%d个",
				len(result.InvalidSignatures), len(result.VerificationErrors))
		}
		return nil
	},
}

func init() {
	workflowStartCmd.Flags().StringVar(&startWorkflowID, "workflow", "", "工作流定义ID（必填）")
	workflowStartCmd.Flags().StringVar(&startEntityType, "entity-type", "", "业务实体类型（必填）")
	workflowStartCmd.Flags().StringVar(&startEntityID, "entity-id", "", "业务实体ID（必填）")
	workflowStartCmd.Flags().StringVar(&startPriority, "priority", "", "优先级 LOW/NORMAL/HIGH/URGENT")
	workflowStartCmd.MarkFlagRequired("workflow")
	workflowStartCmd.MarkFlagRequired("entity-type")
	workflowStartCmd.MarkFlagRequired("entity-id")

	workflowCancelCmd.Flags().StringVar(&cancelReason, "reason", "", "取消原因")

	workflowCmd.AddCommand(workflowStartCmd)
	workflowCmd.AddCommand(workflowShowCmd)
	workflowCmd.AddCommand(workflowProgressCmd)
	workflowCmd.AddCommand(workflowHistoryCmd)
	workflowCmd.AddCommand(workflowCancelCmd)
	workflowCmd.AddCommand(workflowCompleteCmd)
	workflowCmd.AddCommand(workflowVerifyCmd)
}
