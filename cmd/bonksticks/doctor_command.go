package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/art0007i/bonk-sticks-map-converter/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories and catalog connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				status := "ok"
				if !r.Passed {
					status = "FAIL"
				}
				rows = append(rows, []string{r.Name, status, r.Detail})
			}
			writeRows(cmd.OutOrStdout(), []string{"CHECK", "STATUS", "DETAIL"}, rows, nil)
			if _, failed := preflight.FirstRequiredFailure(results); failed {
				return errors.New("required checks failed")
			}
			return nil
		},
	}
}
