package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"jarstrings/internal/catalog"
	"jarstrings/internal/output"
	"jarstrings/internal/record"
	"jarstrings/internal/signal"
)

var (
	scanJSON     bool
	scanSave     bool
	scanProgress bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <jar>",
	Short: "Scan a jar and summarize the string literals found",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "write the full result as JSON")
	scanCmd.Flags().BoolVar(&scanSave, "save", false, "store the scan in the catalog")
	scanCmd.Flags().BoolVar(&scanProgress, "progress", false, "report progress on stderr")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openJar(args[0])
	if err != nil {
		return err
	}
	s := newScanner()
	total := len(a.Entries(".class"))
	if scanProgress {
		s.OnProgress(func(n int) {
			fmt.Fprintf(cmd.ErrOrStderr(), "scanned %d/%d classes\n", n, total)
		})
	}
	res, err := s.SearchInArchive(ctx, a)
	if err != nil {
		return err
	}
	source := filepath.Base(args[0])
	sum := output.NewSummary(source, res.Entries, res.Groups, res.Diags)

	if scanSave {
		cat, err := catalog.Open(ctx, catalogPath(), logger)
		if err != nil {
			return err
		}
		defer cat.Close()
		sc, err := cat.SaveScan(ctx, source, res.Entries, res.Strings(), res.Diags)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "saved scan %s\n", sc.ID)
	}

	if scanJSON {
		return output.WriteJSON(cmd.OutOrStdout(), sum)
	}

	var send, item, shared int
	for _, r := range res.Strings() {
		switch r.Context {
		case record.ContextSendMessage:
			send++
		case record.ContextItemDisplayName:
			item++
		}
		if r.Shared {
			shared++
		}
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "source:  %s\n", sum.Source)
	fmt.Fprintf(w, "classes: %d scanned, %d with literals\n", sum.Entries, len(sum.Groups))
	fmt.Fprintf(w, "strings: %d (%s %d, %s %d, shared %d)\n", sum.Strings,
		record.ContextSendMessage, send, record.ContextItemDisplayName, item, shared)
	if counts := signal.Count(res.Strings()); len(counts) > 0 {
		fmt.Fprint(w, "kinds:  ")
		for _, c := range signal.Sorted(counts) {
			fmt.Fprintf(w, " %s %d", c, counts[c])
		}
		fmt.Fprintln(w)
	}
	for _, sk := range sum.Skipped {
		fmt.Fprintf(w, "skipped: %s: %s\n", sk.Path, sk.Error)
	}
	return nil
}
