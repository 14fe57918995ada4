package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/policy-compare/internal/model"
)

var ingestDefaults bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [name] [url...]",
	Short: "Fetch policy documents and run layout analysis",
	Long:  "Downloads each document, extracts per-page markdown through the layout service, and persists the product. Failed URLs are reported without aborting the rest.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initWorkflow(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		type target struct {
			name string
			urls []string
		}
		var targets []target

		if ingestDefaults {
			if len(cfg.Defaults.Products) == 0 {
				return eris.New("no default products configured")
			}
			for _, dp := range cfg.Defaults.Products {
				targets = append(targets, target{name: dp.Name, urls: dp.URLList()})
			}
		} else {
			if len(args) < 2 {
				return eris.New("usage: ingest NAME URL [URL...]")
			}
			targets = append(targets, target{name: args[0], urls: args[1:]})
		}

		for _, tg := range targets {
			product, report, err := env.Pipeline.Ingest(ctx, tg.name, tg.urls)
			if err != nil {
				return err
			}
			if err := env.Store.SaveProduct(ctx, product); err != nil {
				return err
			}

			fmt.Printf("%s: %d document(s), %d page(s)\n", product.Name, len(product.Documents), product.PageCount())
			for _, f := range report.Failures {
				fmt.Printf("  failed (%s): %s: %s\n", f.Stage, f.URL, f.Error)
			}
			if product.Status != model.ProductStatusProcessed {
				zap.L().Warn("product has no processed documents", zap.String("product", product.Name))
			}
		}

		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestDefaults, "defaults", false, "ingest the preconfigured demo products")
	rootCmd.AddCommand(ingestCmd)
}
