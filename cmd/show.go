package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/fundflow/fundflow/internal/model"
)

var showProvenance bool

var showCmd = &cobra.Command{
	Use:   "show <slug>",
	Short: "Print a project's canonical record from the local index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		slug := model.Slugify(args[0])
		p, staleness, err := st.Lookup(ctx, slug, time.Now())
		if err != nil {
			return eris.Wrapf(err, "lookup %s", slug)
		}
		if p == nil {
			return eris.Errorf("project not indexed: %s (run `fundflow find %s` first)", slug, args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if showProvenance {
			return enc.Encode(map[string]any{
				"slug":      p.Slug,
				"staleness": staleness,
				"fields":    provenanceView(p),
			})
		}
		return enc.Encode(map[string]any{
			"staleness": staleness,
			"project":   p,
		})
	},
}

// provenanceView flattens each field to its winner plus the full candidate
// trail, which is the view analysts use to audit disputed values.
func provenanceView(p *model.Project) map[string]any {
	out := make(map[string]any, len(p.Fields))
	for key, f := range p.Fields {
		out[key] = map[string]any{
			"value":      f.Value,
			"status":     f.Status,
			"winner":     f.Winner,
			"candidates": f.Candidates,
		}
	}
	return out
}

func init() {
	showCmd.Flags().BoolVar(&showProvenance, "provenance", false, "show per-field source attribution instead of the record")
	rootCmd.AddCommand(showCmd)
}
