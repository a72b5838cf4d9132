package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/learnpath/gamify/internal/infra/export"
)

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "standings.xlsx", "Output workbook path")
	rootCmd.AddCommand(exportCmd)
}

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write current league standings to an XLSX workbook",
	RunE:  runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := export.Save(cmd.Context(), d.League, exportOut)
	if err != nil {
		return err
	}

	total := 0
	for _, n := range res.Rows {
		total += n
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d standings for week %s to %s\n", total, res.WeekID, exportOut)
	return nil
}
