package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/config"
	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/core"
)

func newQuoteCmd() *cobra.Command {
	var (
		category    string
		jersey      string
		early       bool
		members     int
		pricingFile string
	)

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a registration without a database",
		Long: `Price one runner, or a community of --members runners, from the
price table in PRICING_FILE (or the built-in table).

Examples:
  regctl quote --category 5K --jersey XXL
  regctl quote --category 10K --members 11 --early=false`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pricingFile == "" {
				pricingFile = os.Getenv("PRICING_FILE")
			}
			pc, err := config.LoadPricing(pricingFile)
			if err != nil {
				return err
			}
			pt, err := core.NewPriceTable(pc)
			if err != nil {
				return err
			}

			c, err := pt.ParseCategory(category)
			if err != nil {
				return err
			}
			size, err := pt.ParseJerseySize(jersey)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("early") {
				early = pt.IsEarlyBird(time.Now())
			}

			if members > 0 {
				sizes := make([]core.JerseySize, members)
				for i := range sizes {
					sizes[i] = size
				}
				q, err := pt.PriceGroup(c, sizes)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), q)
			}

			q, err := pt.PriceIndividual(c, size, early)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), q)
		},
	}
	cmd.Flags().StringVar(&category, "category", "5K", "race category")
	cmd.Flags().StringVar(&jersey, "jersey", string(core.DefaultImportJersey), "jersey size")
	cmd.Flags().BoolVar(&early, "early", false, "apply the early-bird price (default: by current date)")
	cmd.Flags().IntVar(&members, "members", 0, "price a group of this many members instead")
	cmd.Flags().StringVar(&pricingFile, "pricing-file", "", "YAML price table (default: PRICING_FILE or built-in)")
	return cmd
}
