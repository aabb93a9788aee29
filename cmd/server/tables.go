package main

import (
	"errors"
	"strconv"
	"time"

	"agridash/internal/engine"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Load every table from the configured source and summarize it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, closeSource, err := openCache(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer closeSource()

		var failed error
		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Table", "Rows", "Countries", "Measures", "First year", "Last year", "Load time"})
		for _, name := range engine.KnownTables {
			t0 := time.Now()
			t, err := cache.Load(cmd.Context(), name)
			if err != nil {
				failed = errors.Join(failed, err)
				table.Append([]string{string(name), "error", "", "", "", "", ""})
				continue
			}
			table.Append(tableRow(t, time.Since(t0)))
		}
		table.Render()
		return failed
	},
}

func init() {
	rootCmd.AddCommand(tablesCmd)
}

func tableRow(t *engine.Table, took time.Duration) []string {
	all := t.All()
	first, last := "", ""
	if years := all.Years(); len(years) > 0 {
		first, last = strconv.Itoa(years[0]), strconv.Itoa(years[len(years)-1])
	}
	return []string{
		string(t.Name),
		strconv.Itoa(t.Len()),
		strconv.Itoa(len(all.Distinct(engine.ColArea))),
		strconv.Itoa(len(all.Distinct(engine.ColMeasure))),
		first,
		last,
		took.Round(time.Millisecond).String(),
	}
}
