package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/policy-compare/internal/pipeline"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the comparison workbook",
	Long:  "Builds one xlsx sheet per product with a row per question and a column per category, from the stored extraction results.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initWorkflow(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		qc, err := env.Store.LoadQuestionConfig(ctx)
		if err != nil {
			return err
		}
		extractions, err := env.Store.ListExtractions(ctx)
		if err != nil {
			return err
		}
		if len(extractions) == 0 {
			return eris.New("no extractions stored; run 'extract' first")
		}

		path := exportOut
		if path == "" {
			if err := os.MkdirAll(cfg.Data.ExportDir, 0o755); err != nil {
				return eris.Wrap(err, "create export dir")
			}
			path = filepath.Join(cfg.Data.ExportDir,
				fmt.Sprintf("comparison-%s.xlsx", time.Now().UTC().Format("20060102-150405")))
		}

		if err := pipeline.ExportXLSX(extractions, qc, path); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output path (default export dir with timestamp)")
	rootCmd.AddCommand(exportCmd)
}
