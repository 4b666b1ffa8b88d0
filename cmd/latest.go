package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	latestDays  int
	latestLimit int
)

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "List recent funding events across indexed projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		since := time.Now().UTC().AddDate(0, 0, -latestDays)
		rows, err := st.RecentFunding(ctx, since, latestLimit)
		if err != nil {
			return eris.Wrap(err, "recent funding")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	},
}

func init() {
	latestCmd.Flags().IntVar(&latestDays, "days", 30, "lookback window in days")
	latestCmd.Flags().IntVar(&latestLimit, "limit", 50, "maximum events to list")
	rootCmd.AddCommand(latestCmd)
}
