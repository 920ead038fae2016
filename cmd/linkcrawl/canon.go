package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amosWeiskopf/linkcrawl/pkg/canon"
	"github.com/amosWeiskopf/linkcrawl/pkg/frontier"
	"github.com/amosWeiskopf/linkcrawl/pkg/utils"
)

// NewCanonCmd creates the canon command.
func NewCanonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "canon URL...",
		Short: "Print the canonical form of each URL",
		Long: `Canon prints each URL as the crawler would report it under the chosen
strategy, one per line. URLs that print the same are the same link to the crawler.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			strategy, _ := cmd.Flags().GetString("strategy")
			if err := canon.ValidateName(strategy); err != nil {
				return err
			}

			for _, raw := range args {
				u, err := utils.ParseURL(raw)
				if err != nil {
					return &frontier.InvalidSeedURLError{Seed: raw, Err: err}
				}
				display, err := canon.Display(strategy, u)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), display)
			}
			return nil
		},
	}

	cmd.Flags().String("strategy", canon.StrategyStandard, "Canonicalization strategy (standard, identity)")
	return cmd
}
