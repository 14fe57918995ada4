package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/policy-compare/internal/model"
	"github.com/sells-group/policy-compare/internal/pipeline"
)

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "Manage comparison categories and questions",
}

var questionsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active categories and questions",
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
		if qc == nil || qc.Empty() {
			fmt.Println("no question configuration; run 'questions suggest' or 'questions import'")
			return nil
		}

		fmt.Printf("Categories (%d):\n", len(qc.Categories))
		for _, c := range qc.Categories {
			fmt.Printf("  - %s\n", c)
		}
		fmt.Printf("Questions (%d):\n", len(qc.Questions))
		for _, q := range qc.Questions {
			fmt.Printf("  %s  %s  [%s]\n", q.ID, q.Text, strings.Join(q.AppliesTo, ", "))
		}
		return nil
	},
}

var questionsSuggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Suggest categories and questions from the ingested documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initWorkflow(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		stored, err := env.Store.ListProducts(ctx)
		if err != nil {
			return err
		}
		if len(stored) == 0 {
			return eris.New("no ingested products; run 'ingest' first")
		}
		products := make([]*model.Product, len(stored))
		for i := range stored {
			products[i] = &stored[i]
		}

		qc, err := env.Pipeline.Suggest(ctx, products)
		if err != nil {
			return err
		}
		if err := env.Store.SaveQuestionConfig(ctx, qc); err != nil {
			return err
		}

		fmt.Printf("suggested %d categories and %d questions\n", len(qc.Categories), len(qc.Questions))
		return nil
	},
}

var questionsImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Load categories and questions from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}

		var qc model.QuestionConfig
		if err := yaml.Unmarshal(data, &qc); err != nil {
			return eris.Wrapf(err, "parse %s", args[0])
		}
		qc.Categories = pipeline.NormalizeCategories(qc.Categories)
		if qc.Empty() {
			return eris.New("file defines no categories")
		}
		for i, q := range qc.Questions {
			if q.ID == "" {
				qc.Questions[i].ID = fmt.Sprintf("q%03d", i+1)
			}
			qc.Questions[i].AppliesTo = pipeline.NormalizeCategories(q.AppliesTo)
			for _, cat := range qc.Questions[i].AppliesTo {
				if !qc.HasCategory(cat) {
					return eris.Errorf("question %q references unknown category %q", q.Text, cat)
				}
			}
		}

		env, err := initWorkflow(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.SaveQuestionConfig(ctx, &qc); err != nil {
			return err
		}
		fmt.Printf("imported %d categories and %d questions\n", len(qc.Categories), len(qc.Questions))
		return nil
	},
}

func init() {
	questionsCmd.AddCommand(questionsShowCmd, questionsSuggestCmd, questionsImportCmd)
	rootCmd.AddCommand(questionsCmd)
}
