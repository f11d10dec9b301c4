package cmd

import (
	"fmt"
	"strings"

	"github.com/agentic-research/regionseed/internal/seed"
	"github.com/agentic-research/regionseed/internal/source"
	"github.com/spf13/cobra"
)

func newValidateCmd(global *globalOptions) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load every dataset and check parent references without writing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := global.loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := c.Validate(); err != nil {
				return withCode(exitUsage, err)
			}
			log := c.Logger(cmd.ErrOrStderr())
			h, err := c.Hierarchy()
			if err != nil {
				return withCode(exitUsage, err)
			}
			datasets, err := source.LoadAll(c.DataDir, h)
			if err != nil {
				return withCode(exitValidation, err)
			}
			checks, err := seed.Check(h, datasets)
			if err != nil {
				return withCode(exitValidation, err)
			}

			out := cmd.OutOrStdout()
			unresolved := 0
			for _, lc := range checks {
				_, _ = fmt.Fprintf(out, "%s: %d records, %d resolved, %d unresolved\n", lc.Level, lc.Sources, lc.Resolved, lc.Missed)
				if lc.Missed > 0 {
					log.WithField("level", lc.Level).Warnf("unresolved parent references: %s", strings.Join(lc.MissedIDs, ", "))
				}
				if lc.AmbiguousNames > 0 {
					log.WithField("level", lc.Level).Warnf("%d records share a name with an earlier record; their children cannot be resolved", lc.AmbiguousNames)
				}
				unresolved += lc.Missed
			}
			if strict && unresolved > 0 {
				return withCode(exitValidation, fmt.Errorf("%d records have unresolved parent references", unresolved))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when any record would be skipped")
	return cmd
}
