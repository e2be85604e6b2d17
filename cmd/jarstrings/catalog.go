package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"jarstrings/internal/catalog"
	"jarstrings/internal/record"
	"jarstrings/internal/sheet"
)

var (
	catalogDB      string
	catalogScanID  string
	catalogChanged bool
	catalogFormat  string
	catalogClear   bool
	catalogOut     string
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Keep scans and edits in a local database",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <jar>",
	Short: "Scan a jar and store the result",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogImport,
}

var catalogScansCmd = &cobra.Command{
	Use:   "scans",
	Short: "List stored scans, newest first",
	Args:  cobra.NoArgs,
	RunE:  runCatalogScans,
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the literals of a scan",
	Args:  cobra.NoArgs,
	RunE:  runCatalogList,
}

var catalogSetCmd = &cobra.Command{
	Use:   "set <path> <index> [text]",
	Short: "Set or clear the replacement text of one literal",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runCatalogSet,
}

var catalogMergeCmd = &cobra.Command{
	Use:   "merge <sheet>",
	Short: "Store the edits of a translation sheet",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogMerge,
}

var catalogApplyCmd = &cobra.Command{
	Use:   "apply <jar>",
	Short: "Patch a jar with the edits stored for a scan",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogApply,
}

var catalogDropCmd = &cobra.Command{
	Use:   "drop <scan-id>",
	Short: "Delete a scan with its literals and edits",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogDrop,
}

func init() {
	catalogCmd.PersistentFlags().StringVar(&catalogDB, "db", "", "catalog database (default from config)")
	for _, c := range []*cobra.Command{catalogListCmd, catalogSetCmd, catalogMergeCmd, catalogApplyCmd} {
		c.Flags().StringVar(&catalogScanID, "scan", "", "scan ID (default newest)")
	}
	catalogListCmd.Flags().BoolVar(&catalogChanged, "changed", false, "only edited literals")
	catalogListCmd.Flags().StringVar(&catalogFormat, "format", "table", "output format: table, jsonl or json")
	catalogSetCmd.Flags().BoolVar(&catalogClear, "clear", false, "drop the edit instead of setting one")
	catalogApplyCmd.Flags().StringVarP(&catalogOut, "out", "o", "", "output jar (default <name>.patched.jar)")

	catalogCmd.AddCommand(catalogImportCmd, catalogScansCmd, catalogListCmd, catalogSetCmd,
		catalogMergeCmd, catalogApplyCmd, catalogDropCmd)
	rootCmd.AddCommand(catalogCmd)
}

func catalogPath() string {
	if catalogDB != "" {
		return catalogDB
	}
	return cfg.Catalog.Path
}

func withCatalog(cmd *cobra.Command, fn func(*catalog.Catalog) error) error {
	cat, err := catalog.Open(cmd.Context(), catalogPath(), logger)
	if err != nil {
		return err
	}
	defer cat.Close()
	return fn(cat)
}

// resolveScan returns the scan selected by --scan, or the newest one.
func resolveScan(cmd *cobra.Command, cat *catalog.Catalog) (*catalog.Scan, error) {
	return cat.Scan(cmd.Context(), catalogScanID)
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
	_, res, err := scanJar(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return withCatalog(cmd, func(cat *catalog.Catalog) error {
		sc, err := cat.SaveScan(cmd.Context(), filepath.Base(args[0]), res.Entries, res.Strings(), res.Diags)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d literals from %d classes\n", sc.ID, sc.Strings, sc.Entries)
		return nil
	})
}

func runCatalogScans(cmd *cobra.Command, _ []string) error {
	return withCatalog(cmd, func(cat *catalog.Catalog) error {
		scans, err := cat.Scans(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSOURCE\tCREATED\tCLASSES\tSTRINGS\tEDITS\tSKIPPED")
		for _, s := range scans {
			diags, err := cat.Diags(cmd.Context(), s.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n", s.ID, s.Source,
				s.Created.Local().Format(time.DateTime), s.Entries, s.Strings, s.Edits, len(diags))
		}
		return tw.Flush()
	})
}

func runCatalogList(cmd *cobra.Command, _ []string) error {
	return withCatalog(cmd, func(cat *catalog.Catalog) error {
		sc, err := resolveScan(cmd, cat)
		if err != nil {
			return err
		}
		var recs []*record.String
		if catalogChanged {
			recs, err = cat.Changed(cmd.Context(), sc.ID)
		} else {
			recs, err = cat.Records(cmd.Context(), sc.ID)
		}
		if err != nil {
			return err
		}
		return writeRecords(cmd, recs, catalogFormat)
	})
}

func runCatalogSet(cmd *cobra.Command, args []string) error {
	idx, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		return fmt.Errorf("bad constant index %q: %w", args[1], err)
	}
	key := record.Key{Path: args[0], Index: uint16(idx)}
	if catalogClear == (len(args) == 3) {
		return fmt.Errorf("give either a text or --clear")
	}
	return withCatalog(cmd, func(cat *catalog.Catalog) error {
		sc, err := resolveScan(cmd, cat)
		if err != nil {
			return err
		}
		if catalogClear {
			return cat.ClearEdit(cmd.Context(), sc.ID, key)
		}
		return cat.SetEdit(cmd.Context(), sc.ID, key, args[2])
	})
}

func runCatalogMerge(cmd *cobra.Command, args []string) error {
	s, err := sheet.ReadFile(args[0])
	if err != nil {
		return err
	}
	return withCatalog(cmd, func(cat *catalog.Catalog) error {
		sc, err := resolveScan(cmd, cat)
		if err != nil {
			return err
		}
		recs, err := cat.Records(cmd.Context(), sc.ID)
		if err != nil {
			return err
		}
		out := sheet.Apply(s, recs)
		for _, k := range out.Stale {
			logger.Warn("sheet original differs from the scan", "entry", k.String())
		}
		if _, err := cat.SaveEdits(cmd.Context(), sc.ID, recs); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d edits, %d reverted, %d unknown entries\n",
			sc.ID, out.Changed, out.Reverted, len(out.Unknown))
		return nil
	})
}

func runCatalogApply(cmd *cobra.Command, args []string) error {
	var changed []*record.String
	err := withCatalog(cmd, func(cat *catalog.Catalog) error {
		sc, err := resolveScan(cmd, cat)
		if err != nil {
			return err
		}
		if sc.Source != filepath.Base(args[0]) {
			logger.Warn("scan was taken from another archive", "scan", sc.ID, "source", sc.Source)
		}
		changed, err = cat.Changed(cmd.Context(), sc.ID)
		return err
	})
	if err != nil {
		return err
	}
	a, err := openJar(args[0])
	if err != nil {
		return err
	}
	dst := catalogOut
	if dst == "" {
		dst = patchedName(args[0])
	}
	return patchJar(cmd, a, changed, dst)
}

func runCatalogDrop(cmd *cobra.Command, args []string) error {
	return withCatalog(cmd, func(cat *catalog.Catalog) error {
		return cat.DeleteScan(cmd.Context(), args[0])
	})
}
