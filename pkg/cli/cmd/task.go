package cmd

import (
	"fmt"

	"github.com/machshop/approval-engine/pkg/cli/output"
	"github.com/spf13/cobra"
)

var (
	taskStatus   string
	taskPriority string
	taskPage     int
	taskLimit    int
)

// taskCmd task子命令
var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "待办任务查询命令",
	Long:  `查询用户的待办审批任务。`,
}

// taskListCmd 列出待办任务
var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出待办审批任务",
	Long: `列出指定用户的未处理审批分配。

示例：
  approval-engine task list --user user-1
  approval-engine task list --user user-1 --priority HIGH --page 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if actingUser == "" {
			output.Error("请使用 --user 指定用户ID")
			return fmt.Errorf("user id is required")
		}

		page, err := client().ListTasks(actingUser, taskStatus, taskPriority, taskPage, taskLimit)
		if err != nil {
			output.Error("查询待办失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(page)
		}

		output.Info("待办任务 %d 条（第%d页，共%d条）", len(page.Tasks), page.Page, page.Total)
		table := output.NewTable("分配ID", "工作流", "阶段", "名称", "实体", "优先级", "截止时间")
		for i := range page.Tasks {
			t := &page.Tasks[i]
			deadline := "-"
			if t.Deadline != nil {
				deadline = t.Deadline.Format("2006-01-02 15:04")
			}
			table.AddRow(
				t.AssignmentID,
				t.WorkflowID,
				fmt.Sprintf("%d", t.StageNumber),
				t.StageName,
				fmt.Sprintf("%s/%s", t.EntityType, t.EntityID),
				t.Priority,
				deadline,
			)
		}
		table.Render()
		return nil
	},
}

func init() {
	taskListCmd.Flags().StringVar(&taskStatus, "status", "", "按工作流状态过滤")
	taskListCmd.Flags().StringVar(&taskPriority, "priority", "", "按优先级过滤 LOW/NORMAL/HIGH/URGENT")
	taskListCmd.Flags().IntVar(&taskPage, "page", 1, "页码")
	taskListCmd.Flags().IntVar(&taskLimit, "limit", 20, "每页条数")

	taskCmd.AddCommand(taskListCmd)
}
