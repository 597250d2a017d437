package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "convert <id>",
		Short: "Convert one map and print the converted document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.cliLogger()
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			store, err := ctx.openCache(logger)
			if err != nil {
				return err
			}
			svc, _, cleanup, err := ctx.newConverter(logger, store)
			if err != nil {
				return err
			}
			defer cleanup()

			id := strings.TrimSpace(args[0])
			doc, convErr := svc.MapData(cmd.Context(), id)
			// Artifacts are persisted in the background; wait so the cache
			// entry exists when the command returns.
			if err := svc.Close(context.WithoutCancel(cmd.Context())); err != nil {
				return err
			}
			if convErr != nil {
				return fmt.Errorf("convert %s: %w", id, convErr)
			}

			if target := strings.TrimSpace(outPath); target != "" {
				if err := os.WriteFile(target, doc, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", target, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s to %s\n", id, target)
				return nil
			}
			out := cmd.OutOrStdout()
			if _, err := out.Write(doc); err != nil {
				return err
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the converted document to a file instead of stdout")
	return cmd
}
