package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"jarstrings/internal/classfile"
	"jarstrings/internal/output"
	"jarstrings/internal/usage"
)

var (
	graphOut       string
	graphCFG       string
	graphAll       bool
	graphSinksOnly bool
	graphKnownOnly bool
)

var graphCmd = &cobra.Command{
	Use:   "graph <jar>",
	Short: "Render where string literals go as a DOT graph",
	Long: `Render a DOT graph linking methods to the literals they load and literals
to the interface methods receiving them. With --cfg, render the control flow
of one class's methods instead, with literal loads and calls per block.`,
	Args: cobra.ExactArgs(1),
	RunE: runGraph,
}

func init() {
	f := graphCmd.Flags()
	f.StringVarP(&graphOut, "out", "o", "", "write the graph to this file instead of stdout")
	f.StringVar(&graphCFG, "cfg", "", "render the control flow graphs of this class")
	f.BoolVar(&graphAll, "all", false, "with --cfg, include methods that load no literal")
	f.BoolVar(&graphSinksOnly, "sinks-only", false, "only literals passed straight to an interface call")
	f.BoolVar(&graphKnownOnly, "known-only", false, "only literals with a known context")
	rootCmd.AddCommand(graphCmd)
}

func runGraph(cmd *cobra.Command, args []string) error {
	var (
		dot string
		err error
	)
	if graphCFG != "" {
		dot, err = cfgDOT(cmd, args[0], graphCFG)
	} else {
		dot, err = usageDOT(cmd, args[0])
	}
	if err != nil {
		return err
	}
	if graphOut == "" {
		_, err := fmt.Fprint(cmd.OutOrStdout(), dot)
		return err
	}
	if err := output.WriteFile(graphOut, dot); err != nil {
		return err
	}
	logger.Info("graph written", "path", graphOut)
	return nil
}

func usageDOT(cmd *cobra.Command, path string) (string, error) {
	_, res, err := scanJar(cmd.Context(), path)
	if err != nil {
		return "", err
	}
	g := usage.Graph(res.Strings(), usage.Options{SinksOnly: graphSinksOnly, KnownOnly: graphKnownOnly})
	return usage.DOT(g, filepath.Base(path)), nil
}

func cfgDOT(cmd *cobra.Command, path, class string) (string, error) {
	a, err := openJar(path)
	if err != nil {
		return "", err
	}
	entry, err := findClass(a.Entries(".class"), class)
	if err != nil {
		return "", err
	}
	data, err := a.Read(cmd.Context(), entry)
	if err != nil {
		return "", err
	}
	cf, err := classfile.Decode(data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", entry, err)
	}
	cg, err := usage.ClassCFG(cf, graphAll)
	if err != nil {
		return "", fmt.Errorf("%s: %w", entry, err)
	}
	return usage.DOTCFG(cg, cf.Name()), nil
}
