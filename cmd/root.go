package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mezonai/omniverse/logx"
)

var rootCmd = &cobra.Command{
	Use:   "omniverse",
	Short: "Omniverse token node CLI",
	Long:  "Command line interface for running an omniverse token node and preparing signed transactions for it.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed:", err)
		os.Exit(1)
	}
}
