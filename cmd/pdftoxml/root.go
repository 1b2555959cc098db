package main

import (
	"github.com/you-humble/pdftoxml/internal/infra/config"

	"github.com/spf13/cobra"
)

var (
	cfgPath  string
	envFiles []string
)

var rootCmd = &cobra.Command{
	Use:           "pdftoxml",
	Short:         "PDF to XML conversion service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadDotEnv(envFiles...)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./configs/local.yaml", "path to the YAML config")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "env files loaded before the config")

	rootCmd.AddCommand(serveCmd, migrateCmd, convertCmd)
}
