package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/fundflow/fundflow/internal/monitoring"
)

var statsWindow int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index contents and recent job health",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		snap, err := monitoring.NewCollector(st).Collect(ctx, statsWindow)
		if err != nil {
			return eris.Wrap(err, "collect metrics")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

func init() {
	statsCmd.Flags().IntVar(&statsWindow, "window", 500, "audit entries to include")
	rootCmd.AddCommand(statsCmd)
}
