package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/policy-compare/internal/model"
	"github.com/sells-group/policy-compare/internal/pipeline"
)

var reviewApply bool

var reviewCmd = &cobra.Command{
	Use:   "review [product]",
	Short: "Self-correct extracted answers against the source documents",
	Long:  "Asks the model to re-check each extracted answer. Suggestions are printed; pass --apply to overwrite the stored answers with the corrections.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name := args[0]

		env, err := initWorkflow(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		products, err := env.Store.ListProducts(ctx)
		if err != nil {
			return err
		}
		var product *model.Product
		for i := range products {
			if products[i].Name == name {
				product = &products[i]
				break
			}
		}
		if product == nil {
			return eris.Errorf("no stored product named %q", name)
		}

		extractions, err := env.Store.LoadExtractions(ctx, name)
		if err != nil {
			return err
		}
		if len(extractions) == 0 {
			return eris.Errorf("no extractions for %q; run 'extract' first", name)
		}

		corrections, err := env.Pipeline.Review(ctx, product, extractions)
		if err != nil {
			return err
		}
		if len(corrections) == 0 {
			fmt.Println("no corrections suggested")
			return nil
		}

		for _, c := range corrections {
			fmt.Printf("%s: %q -> %q (%s)\n", c.QuestionID, c.OriginalAnswer, c.SuggestedCorrection, c.Reason)
		}

		if !reviewApply {
			fmt.Printf("%d suggestion(s); re-run with --apply to accept\n", len(corrections))
			return nil
		}

		updated := pipeline.ApplyCorrections(extractions, corrections)
		if err := env.Store.SaveExtractions(ctx, name, updated); err != nil {
			return err
		}
		fmt.Printf("applied %d correction(s)\n", len(corrections))
		return nil
	},
}

func init() {
	reviewCmd.Flags().BoolVar(&reviewApply, "apply", false, "apply the suggested corrections")
	rootCmd.AddCommand(reviewCmd)
}
