package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/policy-compare/internal/model"
	"github.com/sells-group/policy-compare/internal/pipeline"
)

var extractCmd = &cobra.Command{
	Use:   "extract [product...]",
	Short: "Extract answers for every category and question",
	Long:  "Runs per-category extraction against the stored documents. With no arguments every ingested product is processed; re-running replaces previous answers for the same questions.",
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
			return eris.New("no question configuration; run 'questions suggest' or 'questions import' first")
		}

		products, err := env.Store.ListProducts(ctx)
		if err != nil {
			return err
		}
		if len(products) == 0 {
			return eris.New("no ingested products; run 'ingest' first")
		}

		requested := make(map[string]bool, len(args))
		for _, name := range args {
			requested[name] = true
		}

		matched := 0
		for i := range products {
			product := &products[i]
			if len(requested) > 0 && !requested[product.Name] {
				continue
			}
			matched++

			extractions, err := env.Pipeline.Extract(ctx, product, qc)
			if err != nil {
				return err
			}

			existing, err := env.Store.LoadExtractions(ctx, product.Name)
			if err != nil {
				return err
			}
			merged := pipeline.MergeExtractions(existing, extractions)
			if err := env.Store.SaveExtractions(ctx, product.Name, merged); err != nil {
				return err
			}

			answered, failed := 0, 0
			for _, e := range merged {
				switch e.Status {
				case model.ExtractionStatusErrorLLM, model.ExtractionStatusErrorParsing:
					failed++
				default:
					answered++
				}
			}
			fmt.Printf("%s: %d answer(s), %d failed\n", product.Name, answered, failed)
		}

		if matched == 0 {
			return eris.Errorf("no stored product matches %v", args)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
