package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/policy-compare/internal/model"
	"github.com/sells-group/policy-compare/internal/pipeline"
)

var (
	analyzeTemplate string
	analyzeOutDir   string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [prompt]",
	Short: "Run a code-interpreter analysis over the extracted answers",
	Long:  "Sends the full extraction dataset to an agent with the code interpreter tool. Provide a free-form prompt or pick a canned analysis with --template (see 'analyze templates').",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		prompt := strings.TrimSpace(strings.Join(args, " "))
		if analyzeTemplate != "" {
			template, ok := pipeline.AnalysisTemplateByID(analyzeTemplate)
			if !ok {
				return eris.Errorf("unknown analysis template %q", analyzeTemplate)
			}
			prompt = template.Prompt
		}
		if prompt == "" {
			return eris.New("provide a prompt or --template")
		}

		env, err := initWorkflow(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		extractions, err := env.Store.ListExtractions(ctx)
		if err != nil {
			return err
		}
		if len(extractions) == 0 {
			return eris.New("no extractions stored; run 'extract' first")
		}

		result, err := env.Pipeline.Analyze(ctx, extractions, prompt)
		if err != nil {
			if !errors.Is(err, model.ErrAnalysisPartial) || result == nil {
				return err
			}
			zap.L().Warn("analysis returned partial artifacts", zap.Error(err))
		}

		if err := env.Store.SaveAnalysis(ctx, result); err != nil {
			return err
		}

		fmt.Println(result.Explanation)
		if len(result.Tables) > 0 {
			fmt.Printf("%d table(s) produced\n", len(result.Tables))
		}
		if len(result.Plots) > 0 {
			if err := writePlots(result, analyzeOutDir); err != nil {
				return err
			}
		}
		return nil
	},
}

func writePlots(result *model.AnalysisResult, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "create plot dir")
	}
	for i, plot := range result.Plots {
		data, err := base64.StdEncoding.DecodeString(plot.ImageBase64)
		if err != nil {
			return eris.Wrapf(err, "decode plot %d", i+1)
		}
		path := filepath.Join(dir, fmt.Sprintf("%s-plot-%d.png", result.ID, i+1))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return eris.Wrapf(err, "write %s", path)
		}
		fmt.Printf("wrote %s\n", path)
	}
	return nil
}

var analyzeTemplatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the canned analysis templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, t := range pipeline.AnalysisTemplates() {
			fmt.Printf("%-32s %s\n", t.ID, t.Title)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeTemplate, "template", "", "canned analysis template id")
	analyzeCmd.Flags().StringVar(&analyzeOutDir, "out", "analyses", "directory for generated plot images")
	analyzeCmd.AddCommand(analyzeTemplatesCmd)
	rootCmd.AddCommand(analyzeCmd)
}
