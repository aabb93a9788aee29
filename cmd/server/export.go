package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"agridash/internal/engine"
	"agridash/internal/export"
	"agridash/internal/models"
	"agridash/internal/report"

	"github.com/spf13/cobra"
)

var (
	exportSets    []string
	exportDataset string
	exportFormat  string
	exportOut     string
)

var exportCmd = &cobra.Command{
	Use:   "export <section>",
	Short: "Build a section and write one of its datasets",
	Long: `Build a dashboard section with the given widget values and write a dataset.

Without --dataset, the table format lists the section's datasets and the
xlsx format writes all of them, one sheet each.

Examples:
  agridash export environment --set nutrient=Phosphorus --dataset normalized
  agridash export advanced --set mode=compare --set countries=France --set countries=Mexico --dataset kpi -f xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseSets(exportSets)
		if err != nil {
			return err
		}
		cache, closeSource, err := openCache(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer closeSource()

		res, err := report.NewService(cache, nil).Build(cmd.Context(), args[0], params)
		if err != nil {
			return err
		}
		return writeExport(cmd.OutOrStdout(), res)
	},
}

func init() {
	exportCmd.Flags().StringArrayVar(&exportSets, "set", nil, "widget value as key=value (repeat for multiselect)")
	exportCmd.Flags().StringVarP(&exportDataset, "dataset", "d", "", "dataset id to export")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format: csv, xlsx or table")
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "output file (default: the dataset file name; - for stdout)")
	rootCmd.AddCommand(exportCmd)
}

// parseSets turns repeated key=value flags into widget values. Repeating a
// key appends, which is how multiselect widgets receive several values.
func parseSets(sets []string) (report.Params, error) {
	p := report.Params{}
	for _, s := range sets {
		k, v, ok := strings.Cut(s, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("--set %q: want key=value", s)
		}
		p[k] = append(p[k], v)
	}
	return p, nil
}

func writeExport(stdout io.Writer, res *report.Result) error {
	var buf bytes.Buffer
	var fileName string

	switch exportFormat {
	case "table":
		if exportDataset == "" {
			listDownloads(stdout, res.Report.Downloads)
			return nil
		}
		frame, _, err := res.Dataset(exportDataset)
		if err != nil {
			return err
		}
		export.WriteText(&buf, frame)
		fileName = "-"
	case "csv":
		if exportDataset == "" {
			return fmt.Errorf("--dataset is required for csv; %s offers %s", res.Report.Section, downloadIDs(res.Report.Downloads))
		}
		frame, name, err := res.Dataset(exportDataset)
		if err != nil {
			return err
		}
		if err := export.WriteCSV(&buf, frame); err != nil {
			return err
		}
		fileName = name
	case "xlsx":
		sheets, name, err := xlsxSheets(res)
		if err != nil {
			return err
		}
		if err := export.WriteXLSX(&buf, sheets...); err != nil {
			return err
		}
		fileName = name
	default:
		return fmt.Errorf("unknown format %q (want csv, xlsx or table)", exportFormat)
	}

	if exportOut != "" {
		fileName = exportOut
	}
	if fileName == "-" {
		_, err := stdout.Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(fileName, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", fileName, err)
	}
	fmt.Fprintf(stdout, "wrote %s (%d bytes)\n", fileName, buf.Len())
	return nil
}

// xlsxSheets selects the requested dataset, or every dataset of the section.
func xlsxSheets(res *report.Result) ([]export.Sheet, string, error) {
	ids := []string{exportDataset}
	name := export.FileName("xlsx", res.Report.Section)
	if exportDataset == "" {
		ids = ids[:0]
		for _, d := range res.Report.Downloads {
			ids = append(ids, d.ID)
		}
		if len(ids) == 0 {
			return nil, "", fmt.Errorf("%s has no datasets for the given values", res.Report.Section)
		}
	}

	sheets := make([]export.Sheet, 0, len(ids))
	for _, id := range ids {
		frame, csvName, err := res.Dataset(id)
		if err != nil {
			return nil, "", err
		}
		if exportDataset != "" {
			name = strings.TrimSuffix(csvName, ".csv") + ".xlsx"
		}
		sheets = append(sheets, export.Sheet{Name: id, Frame: frame})
	}
	return sheets, name, nil
}

func listDownloads(w io.Writer, ds []models.Download) {
	f := engine.NewFrame(
		engine.Column{Name: "Dataset"},
		engine.Column{Name: "Title"},
		engine.Column{Name: "File"},
	)
	for _, d := range ds {
		f.Append(d.ID, d.Title, d.FileName)
	}
	export.WriteText(w, f)
}

func downloadIDs(ds []models.Download) string {
	if len(ds) == 0 {
		return "no datasets"
	}
	ids := make([]string, len(ds))
	for i, d := range ds {
		ids[i] = d.ID
	}
	return strings.Join(ids, ", ")
}
