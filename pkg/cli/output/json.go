package output

import (
	"encoding/json"
	"os"

	"github.com/fatih/color"
)

// PrintJSON 输出JSON格式
func PrintJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Success 输出成功消息
func Success(format string, args ...interface{}) {
	green := color.New(color.FgGreen, color.Bold)
	green.Printf("✅ "+format+"\n", args...)
}

// Error 输出错误消息
func Error(format string, args ...interface{}) {
	red := color.New(color.FgRed, color.Bold)
	red.Printf("❌ "+format+"\n", args...)
}

// Info 输出信息
func Info(format string, args ...interface{}) {
	cyan := color.New(color.FgCyan)
	cyan.Printf("ℹ️  "+format+"\n", args...)
}

// Warning 输出警告
func Warning(format string, args ...interface{}) {
	yellow := color.New(color.FgYellow)
	yellow.Printf("⚠️  "+format+"\n", args...)
}

// Status 按审批状态着色：运行中黄、完成绿、拒绝/取消红、升级红底
func Status(s string) string {
	switch s {
	case "IN_PROGRESS":
		return color.YellowString(s)
	case "COMPLETED", "APPROVED":
		return color.GreenString(s)
	case "REJECTED", "CANCELLED":
		return color.RedString(s)
	case "ESCALATED":
		return color.New(color.FgRed, color.Bold).Sprint(s)
	case "SKIPPED", "PENDING":
		return color.New(color.Faint).Sprint(s)
	}
	return s
}
