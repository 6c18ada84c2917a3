package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd 构建命令树；stdout/stderr 可注入以便测试
// newRootCmd builds the command tree; stdout/stderr are injectable for tests
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var configPath string
	rootCmd := &cobra.Command{
		Use:           "insight",
		Short:         "Morning Insight - write a daily insight block to a Notion page",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config JSON/JSONC/YAML")

	rootCmd.AddCommand(runCmd(&configPath))
	rootCmd.AddCommand(historyCmd(&configPath))
	rootCmd.AddCommand(initCmd())
	return rootCmd
}
