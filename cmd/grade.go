package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fundflow/fundflow/internal/grader"
	"github.com/fundflow/fundflow/internal/model"
)

var gradeWrite bool

var gradeCmd = &cobra.Command{
	Use:   "grade <slug>",
	Short: "Re-grade a stored project against the current rubric without fetching",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		slug := model.Slugify(args[0])
		p, _, err := st.Lookup(ctx, slug, time.Now())
		if err != nil {
			return eris.Wrapf(err, "lookup %s", slug)
		}
		if p == nil {
			return eris.Errorf("project not indexed: %s (run `fundflow find %s` first)", slug, args[0])
		}

		gradeCfg := grader.DefaultConfig()
		gradeCfg.CapitalWeight = cfg.Grader.CapitalWeight
		gradeCfg.TechnicalWeight = cfg.Grader.TechnicalWeight
		gradeCfg.UsageWeight = cfg.Grader.UsageWeight
		gradeCfg.TeamWeight = cfg.Grader.TeamWeight
		if err := gradeCfg.Validate(); err != nil {
			return err
		}

		ids := map[string]struct{}{}
		for _, ev := range p.FundingEvents {
			for _, id := range ev.InvestorIDs {
				ids[id] = struct{}{}
			}
		}
		roster := map[string]model.Investor{}
		if len(ids) > 0 {
			list := make([]string, 0, len(ids))
			for id := range ids {
				list = append(list, id)
			}
			roster, err = st.GetInvestors(ctx, list)
			if err != nil {
				return eris.Wrap(err, "load investors")
			}
		}

		g := grader.New(gradeCfg).Grade(p, roster, time.Now().UTC())
		p.Grade = &g

		if gradeWrite {
			if err := st.Upsert(ctx, p); err != nil {
				return eris.Wrapf(err, "persist grade for %s", slug)
			}
			zap.L().Info("grade persisted", zap.String("slug", slug), zap.Float64("score", g.Score))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(g)
	},
}

func init() {
	gradeCmd.Flags().BoolVar(&gradeWrite, "write", false, "persist the recomputed grade to the index")
	rootCmd.AddCommand(gradeCmd)
}
