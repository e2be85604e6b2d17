package main

import (
	"github.com/spf13/cobra"

	"jarstrings/internal/record"
	"jarstrings/internal/sheet"
)

var (
	applyOut    string
	applyNoScan bool
)

var applyCmd = &cobra.Command{
	Use:   "apply <jar> <sheet>",
	Short: "Patch a jar with the edited texts of a translation sheet",
	Args:  cobra.ExactArgs(2),
	RunE:  runApply,
}

func init() {
	f := applyCmd.Flags()
	f.StringVarP(&applyOut, "out", "o", "", "output jar (default <name>.patched.jar)")
	f.BoolVar(&applyNoScan, "no-scan", false, "trust the sheet and skip rescanning the jar")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	s, err := sheet.ReadFile(args[1])
	if err != nil {
		return err
	}
	a, err := openJar(args[0])
	if err != nil {
		return err
	}

	var recs []*record.String
	if applyNoScan {
		recs = s.Records()
	} else {
		res, err := newScanner().SearchInArchive(cmd.Context(), a)
		if err != nil {
			return err
		}
		recs = res.Strings()
		out := sheet.Apply(s, recs)
		for _, k := range out.Stale {
			logger.Warn("sheet original differs from the jar", "entry", k.String())
		}
		for _, k := range out.Unknown {
			logger.Warn("sheet entry matches no literal", "entry", k.String())
		}
		logger.Info("sheet applied", "changed", out.Changed, "reverted", out.Reverted,
			"stale", len(out.Stale), "unknown", len(out.Unknown))
	}

	dst := applyOut
	if dst == "" {
		dst = patchedName(args[0])
	}
	return patchJar(cmd, a, recs, dst)
}
