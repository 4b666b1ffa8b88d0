package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/fundflow/fundflow/internal/model"
)

var investorCmd = &cobra.Command{
	Use:   "investor <name>",
	Short: "Show an investor and the funding events they participated in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		id := model.Slugify(args[0])
		inv, err := st.GetInvestor(ctx, id)
		if err != nil {
			return eris.Wrapf(err, "get investor %s", id)
		}
		if inv == nil {
			return eris.Errorf("investor not indexed: %s", id)
		}

		portfolio, err := st.InvestorPortfolio(ctx, id)
		if err != nil {
			return eris.Wrapf(err, "portfolio for %s", id)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"investor":  inv,
			"portfolio": portfolio,
		})
	},
}

func init() {
	rootCmd.AddCommand(investorCmd)
}
