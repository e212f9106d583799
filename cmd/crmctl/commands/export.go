package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/crm/internal/core"
	"github.com/JonMunkholm/crm/internal/milestone"
)

func exportCmd(a *app) *cobra.Command {
	var (
		milestoneValue string
		search         string
		outPath        string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write companies as CSV grouped by industry",
		Long: `Writes every matching company as CSV, grouped by industry with a blank row
between groups. The first row holds the generation time, record count and
filter. Output goes to stdout unless --out is given; when --out is a directory
the file is named companies_export_<timestamp>.csv.`,
		Example: `  crmctl export > companies.csv
  crmctl export --milestone meeting_arranged --out exports/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			f, err := core.ParseExportFilter(milestoneValue, search)
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err := a.service.Export(ctx, cmd.OutOrStdout(), f)
				return err
			}

			rep, err := a.service.CollectExport(ctx, f)
			if err != nil {
				return err
			}

			path := outPath
			if info, err := os.Stat(outPath); err == nil && info.IsDir() {
				path = filepath.Join(outPath, rep.Filename())
			}
			if err := writeFile(path, rep.WriteCSV); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d companies to %s\n", len(rep.Companies), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&milestoneValue, "milestone", "", "only companies at this milestone ("+strings.Join(milestone.Keys(), ", ")+")")
	cmd.Flags().StringVar(&search, "search", "", "case-insensitive match on name, industry or email")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file or directory (default stdout)")

	return cmd
}

// writeFile creates path and fills it with write, reporting close errors.
func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	return write(f)
}
