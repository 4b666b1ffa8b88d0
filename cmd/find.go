package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fundflow/fundflow/internal/discovery"
)

var findForce bool

var findCmd = &cobra.Command{
	Use:   "find <identifier>",
	Short: "Discover a project by name, slug, or website URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		outcome, err := e.Orchestrator.Discover(ctx, args[0], discovery.Options{Force: findForce})
		if err != nil {
			return eris.Wrapf(err, "discover %s", args[0])
		}

		zap.L().Info("discovery complete",
			zap.String("slug", outcome.Slug),
			zap.String("status", string(outcome.Status)),
			zap.Int("conflicts", outcome.Conflicts),
			zap.Duration("elapsed", outcome.Elapsed),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	},
}

func init() {
	findCmd.Flags().BoolVar(&findForce, "force", false, "re-fetch even when the index is fresh")
	rootCmd.AddCommand(findCmd)
}
