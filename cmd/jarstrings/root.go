package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"jarstrings/internal/classfmt"
	"jarstrings/internal/config"
	"jarstrings/internal/jar"
	"jarstrings/internal/logging"
	"jarstrings/internal/patcher"
	"jarstrings/internal/record"
	"jarstrings/internal/scanner"
)

var (
	configPath string
	verbosity  int
	quiet      bool
	logFormat  string
	strict     bool

	// Set by PersistentPreRunE before any subcommand runs.
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "jarstrings",
	Short: "Find, edit and repackage string literals in jar archives",
	Long: `jarstrings scans the classes of a jar for string literals loaded by ldc and
ldc_w, tells which ones reach player messages or item names, and writes a
patched jar with edited literals.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default ./jarstrings.yaml, then ~/.config/jarstrings/)")
	pf.CountVarP(&verbosity, "verbose", "v", "log more (-v info, -vv debug)")
	pf.BoolVarP(&quiet, "quiet", "q", false, "disable logging")
	pf.StringVar(&logFormat, "log-format", "", "log format: text or json")
	pf.BoolVar(&strict, "strict", false, "abort on the first malformed class instead of skipping it")
}

func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logFormat != "" {
		c.Log.Format = logFormat
	}
	if strict {
		c.Scan.Strict = true
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c
	logger = logging.New(cmd.ErrOrStderr(), logging.Resolve(c.Log.Level, verbosity, quiet), c.Log.Format)
	if c.File != "" {
		logger.Debug("config loaded", "file", c.File)
	}
	return nil
}

func openJar(path string) (*jar.Archive, error) {
	a, err := jar.Open(path)
	if err != nil {
		return nil, err
	}
	if err := a.SetCompressionLevel(cfg.Patch.CompressionLevel); err != nil {
		return nil, err
	}
	logger.Info("archive opened", "path", path, "entries", a.Len())
	return a, nil
}

func newScanner() *scanner.Scanner {
	mode := classfmt.ModeBestEffort
	if cfg.Scan.Strict {
		mode = classfmt.ModeStrict
	}
	return scanner.New(
		scanner.WithLogger(logger),
		scanner.WithWorkers(cfg.Scan.Workers),
		scanner.WithProgressInterval(cfg.Scan.ProgressInterval),
		scanner.WithMode(mode),
	)
}

// scanJar opens and scans the archive at path.
func scanJar(ctx context.Context, path string) (*jar.Archive, *scanner.Result, error) {
	a, err := openJar(path)
	if err != nil {
		return nil, nil, err
	}
	s := newScanner()
	s.OnFinish(func(r *scanner.Result) {
		logger.Info("scan finished", "classes", r.Entries, "with_strings", len(r.Groups), "skipped", len(r.Diags))
	})
	res, err := s.SearchInArchive(ctx, a)
	if err != nil {
		return nil, nil, err
	}
	return a, res, nil
}

func packMethod() uint16 {
	if strings.EqualFold(cfg.Patch.Method, "store") {
		return jar.Store
	}
	return jar.Deflate
}

// patchJar applies the changed records to a and writes the result to out.
func patchJar(cmd *cobra.Command, a *jar.Archive, records []*record.String, out string) error {
	changed := record.Changed(records)
	if len(changed) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no edits to apply")
		return nil
	}
	p := patcher.New(
		patcher.WithLogger(logger),
		patcher.WithWorkers(cfg.Patch.Workers),
		patcher.WithMethod(packMethod()),
		patcher.WithRefuseShared(cfg.Patch.RefuseShared),
	)
	data, err := p.ApplyEdits(cmd.Context(), a, changed)
	if err != nil {
		return err
	}
	if err := jar.WriteFile(out, data); err != nil {
		return err
	}
	classes := map[string]bool{}
	for _, r := range changed {
		classes[r.Path] = true
	}
	fmt.Fprintf(cmd.OutOrStdout(), "patched %d literals in %d classes: %s\n", len(changed), len(classes), out)
	return nil
}

// patchedName derives the default output path, e.g. plugin.jar -> plugin.patched.jar.
func patchedName(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".patched" + ext
}
