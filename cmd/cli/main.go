package main

import (
	"github.com/machshop/approval-engine/pkg/cli/cmd"
)

// CLI工具入口
func main() {
	cmd.Execute()
}
