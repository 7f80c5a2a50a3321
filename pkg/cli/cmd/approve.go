package cmd

import (
	"fmt"

	"github.com/machshop/approval-engine/pkg/api/dto"
	"github.com/machshop/approval-engine/pkg/cli/output"
	"github.com/spf13/cobra"
)

var (
	approveAction   string
	approveNotes    string
	signPassword    string
	signType        string
	signReason      string
)

// approveCmd approve命令
var approveCmd = &cobra.Command{
	Use:   "approve <assignment-id>",
	Short: "记录审批动作",
	Long: `对一条审批分配记录动作。动作一旦记录不可变更。

示例：
  # 审批通过
  approval-engine approve asg-1 --action APPROVED --user user-1

  # 驳回并附说明
  approval-engine approve asg-1 --action REJECTED --notes "预算超限" --user user-1

  # 携带电子签名审批
  approval-engine approve asg-1 --action APPROVED --user user-1 --sign-password secret --sign-reason "质量放行"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if actingUser == "" {
			output.Error("请使用 --user 指定操作者")
			return fmt.Errorf("user id is required")
		}

		req := dto.ApprovalActionRequest{
			AssignmentID: args[0],
			Action:       approveAction,
			Notes:        approveNotes,
		}
		if signPassword != "" {
			req.Signature = &dto.SignatureRequest{
				Password:        signPassword,
				SignatureType:   signType,
				SignatureReason: signReason,
			}
		}

		if err := client().ProcessAction(args[0], req); err != nil {
			output.Error("审批动作失败: %v", err)
			return err
		}
		output.Success("审批动作已记录: %s -> %s", args[0], approveAction)
		return nil
	},
}

func init() {
	approveCmd.Flags().StringVar(&approveAction, "action", "", "审批动作 APPROVED/REJECTED/CHANGES_REQUESTED/DELEGATED（必填）")
	approveCmd.Flags().StringVar(&approveNotes, "notes", "", "审批备注")
	approveCmd.Flags().StringVar(&signPassword, "sign-password", "", "电子签名密码（提供则创建签名）")
	approveCmd.Flags().StringVar(&signType, "sign-type", "", "签名类型")
	approveCmd.Flags().StringVar(&signReason, "sign-reason", "", "签名理由")
	approveCmd.MarkFlagRequired("action")
}
