package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/crm/internal/core"
)

func importCmd(a *app) *cobra.Command {
	var (
		file       string
		clearFirst bool
		ifEmpty    bool
		strict     bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Create or update companies from a CSV file",
		Long: `Reads a CSV file with a header row and reconciles it into the company table.
Rows are matched by exact company name: unknown names are created, known names
are updated with the non-empty cells of the row. Failing rows are reported and
skipped; the rest of the file is still applied.

Columns: name (required), website, email, phone, address, industry, milestone, notes.`,
		Example: `  crmctl import --file seed_data/companies.csv
  crmctl import --file seed_data/companies.csv --clear
  cat companies.csv | crmctl import --file -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if ifEmpty && !clearFirst {
				stats, err := a.service.MilestoneStats(ctx)
				if err != nil {
					return err
				}
				if stats.Total > 0 {
					fmt.Fprintf(out, "Database already contains %d companies; skipping import. Use --clear to force a reimport.\n", stats.Total)
					return nil
				}
			}

			// Open the input before clearing so a bad path leaves the data alone.
			r, name, closeInput, err := openInput(a, file)
			if err != nil {
				return err
			}
			defer closeInput()

			if clearFirst {
				n, err := a.service.ClearAll(ctx)
				if err != nil {
					return fmt.Errorf("clear companies: %w", err)
				}
				fmt.Fprintf(out, "Cleared %d existing companies.\n", n)
			}

			res, err := a.service.Import(ctx, name, r)
			if err != nil {
				return fmt.Errorf("import %s: %w", name, err)
			}
			printImportResult(out, res)

			if res.Phase != core.PhaseComplete {
				return fmt.Errorf("import %s after %d rows", res.Phase, res.Processed())
			}
			if strict && len(res.Errors) > 0 {
				return fmt.Errorf("%d rows failed", len(res.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", `CSV file to import ("-" reads stdin)`)
	cmd.Flags().BoolVar(&clearFirst, "clear", false, "delete all companies before importing")
	cmd.Flags().BoolVar(&ifEmpty, "if-empty", false, "skip the import when companies already exist")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any row fails")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// openInput opens path, or stdin for "-".
func openInput(a *app, path string) (io.Reader, string, func(), error) {
	if path == "-" {
		return a.stdin, "stdin", func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, filepath.Base(path), func() { _ = f.Close() }, nil
}

func printImportResult(w io.Writer, res *core.ImportResult) {
	fmt.Fprintf(w, "Import of %s %s (id %s)\n", res.FileName, res.Phase, res.ImportID)
	fmt.Fprintf(w, "  Rows:     %d\n", res.Rows)
	fmt.Fprintf(w, "  Created:  %d\n", res.Created)
	fmt.Fprintf(w, "  Updated:  %d\n", res.Updated)
	fmt.Fprintf(w, "  Errors:   %d\n", len(res.Errors))
	for _, e := range res.Errors {
		fmt.Fprintf(w, "    %s\n", e.Error())
	}
}
