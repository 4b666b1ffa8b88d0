package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/fundflow/fundflow/internal/index"
)

var (
	projectsSector   string
	projectsMinScore float64
	projectsLimit    int
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List indexed projects ranked by grade",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		list, err := st.ListProjects(ctx, index.ProjectFilter{
			Sector:   projectsSector,
			MinScore: projectsMinScore,
			Limit:    projectsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list projects")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	},
}

func init() {
	projectsCmd.Flags().StringVar(&projectsSector, "sector", "", "filter by sector")
	projectsCmd.Flags().Float64Var(&projectsMinScore, "min-score", 0, "minimum grade score")
	projectsCmd.Flags().IntVar(&projectsLimit, "limit", 100, "maximum projects to list")
	rootCmd.AddCommand(projectsCmd)
}
