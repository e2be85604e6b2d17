package main

import (
	"bytes"
	"path/filepath"

	"github.com/spf13/cobra"

	"jarstrings/internal/output"
	"jarstrings/internal/render"
)

var reportOut string

var reportCmd = &cobra.Command{
	Use:   "report <jar>",
	Short: "Write an HTML report of the literals in a jar",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "", "write the report to this file instead of stdout")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	_, res, err := scanJar(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	rep := &render.Report{
		Title:   filepath.Base(args[0]),
		Entries: res.Entries,
		Groups:  res.Groups,
		Skipped: res.Diags,
	}
	if reportOut == "" {
		return render.WriteReportHTML(cmd.OutOrStdout(), rep)
	}
	var buf bytes.Buffer
	if err := render.WriteReportHTML(&buf, rep); err != nil {
		return err
	}
	if err := output.WriteFile(reportOut, buf.String()); err != nil {
		return err
	}
	logger.Info("report written", "path", reportOut)
	return nil
}
