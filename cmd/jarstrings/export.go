package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"jarstrings/internal/record"
	"jarstrings/internal/sheet"
	"jarstrings/internal/signal"
)

var (
	exportContext      string
	exportTranslatable bool
)

var exportCmd = &cobra.Command{
	Use:   "export <jar> <sheet>",
	Short: "Write the literals of a jar to a translation sheet",
	Long: `Write the literals of a jar to a translation sheet. The format follows the
sheet's extension: .json, .yaml, .toml or .cbor. Edit the text fields and
feed the sheet back with apply.`,
	Args: cobra.ExactArgs(2),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportContext, "context", "", "only literals with this context")
	exportCmd.Flags().BoolVar(&exportTranslatable, "translatable", false, "skip literals that do not read as player-facing text")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if _, err := sheet.FormatOf(args[1]); err != nil {
		return err
	}
	_, res, err := scanJar(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	recs, err := filterRecords(res.Strings(), exportContext, "")
	if err != nil {
		return err
	}
	if exportTranslatable {
		var keep []*record.String
		for _, r := range recs {
			if signal.Translatable(r.Value) {
				keep = append(keep, r)
			}
		}
		recs = keep
	}
	s := sheet.Build(filepath.Base(args[0]), recs)
	if err := sheet.WriteFile(args[1], s); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d entries to %s\n", len(s.Entries), args[1])
	return nil
}
