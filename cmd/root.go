package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/policy-compare/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "policy-compare",
	Short: "Insurance policy comparison workflow",
	Long:  "Ingests policy documents via layout analysis, extracts coverage answers per category with hosted models, reviews and corrects them, runs code-interpreter analyses, and exports comparison workbooks.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Optional .env for local development.
		_ = godotenv.Load()

		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
