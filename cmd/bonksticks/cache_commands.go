package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/art0007i/bonk-sticks-map-converter/internal/logging"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage converted maps",
	}
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheRemoveCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openCache(logging.NewNop())
			if err != nil {
				return err
			}
			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, stats)
			}

			limit := "unbounded"
			if stats.MaxEntries > 0 {
				limit = strconv.Itoa(stats.MaxEntries)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cache directory: %s\n", store.Root())
			fmt.Fprintf(out, "Entries:         %d (limit %s)\n", stats.Entries, limit)
			fmt.Fprintf(out, "Size:            %s\n", humanize.Bytes(uint64(stats.TotalBytes)))
			if stats.TotalFSBytes > 0 {
				fmt.Fprintf(out, "Volume free:     %s of %s (%.0f%%)\n",
					humanize.Bytes(stats.FreeBytes), humanize.Bytes(stats.TotalFSBytes), stats.FreeRatio*100)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print stats as JSON")
	return cmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached maps, most recently used first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openCache(logging.NewNop())
			if err != nil {
				return err
			}
			entries, err := store.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Cache is empty")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.ID,
					humanize.Bytes(uint64(e.SizeBytes)),
					e.ModifiedAt.Local().Format(time.DateTime),
					yesNo(e.HasCover),
				})
			}
			writeRows(out, []string{"ID", "SIZE", "LAST USED", "COVER"}, rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft})
			return nil
		},
	}
}

func newCacheRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>...",
		Short: "Remove cached maps",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openCache(logging.NewNop())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, id := range args {
				if err := store.Remove(id); err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %s\n", id)
			}
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached map",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openCache(logging.NewNop())
			if err != nil {
				return err
			}
			removed, err := store.Clear()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached %s\n", removed, plural(removed, "map", "maps"))
			return nil
		},
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
