package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"jarstrings/internal/bytecode"
	"jarstrings/internal/classfile"
	"jarstrings/internal/classfmt"
	"jarstrings/internal/output"
	"jarstrings/internal/record"
)

var (
	disasmOut    string
	disasmMethod string
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <jar> [class...]",
	Short: "Disassemble class methods with their string constants resolved",
	Long: `Disassemble the methods of the named classes, or of every class that loads
a string literal when none are named. Classes may be given as com/example/Foo,
com.example.Foo or with a .class suffix.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDisasm,
}

func init() {
	disasmCmd.Flags().StringVarP(&disasmOut, "out", "o", "", "write one listing per method under this directory")
	disasmCmd.Flags().StringVar(&disasmMethod, "method", "", "only methods with this name")
	rootCmd.AddCommand(disasmCmd)
}

func runDisasm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openJar(args[0])
	if err != nil {
		return err
	}
	s := newScanner()

	var paths []string
	if len(args) == 1 {
		res, err := s.SearchInArchive(ctx, a)
		if err != nil {
			return err
		}
		for _, g := range res.Groups {
			paths = append(paths, g.Path)
		}
	} else {
		for _, name := range args[1:] {
			p, err := findClass(a.Entries(".class"), name)
			if err != nil {
				return err
			}
			paths = append(paths, p)
		}
	}

	methods := 0
	for _, path := range paths {
		data, err := a.Read(ctx, path)
		if err != nil {
			return err
		}
		cf, err := classfile.Decode(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		// Malformed methods make the scan fail; the listing goes on without
		// context annotations.
		grp, err := s.SearchInClass(path, data)
		if err != nil {
			logger.Warn("no context annotations", "path", path, "error", err)
		}
		n, err := disasmClass(cmd, cf, grp)
		if err != nil {
			return err
		}
		methods += n
	}
	if disasmOut != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d method listings to %s\n", methods, disasmOut)
	}
	return nil
}

func disasmClass(cmd *cobra.Command, cf *classfile.ClassFile, grp *record.Group) (int, error) {
	cp := cf.ConstantPool
	byIndex := map[uint16]*record.String{}
	if grp != nil {
		for _, r := range grp.Strings() {
			byIndex[r.Index] = r
		}
	}
	// Literals with a context or shared text get a tag; the rest fall through
	// to the plain constant annotation.
	lookup := func(index uint16, value string) string {
		r, ok := byIndex[index]
		if !ok {
			return ""
		}
		var tags []string
		if r.Context != record.ContextNone {
			tags = append(tags, string(r.Context))
		}
		if r.Shared {
			tags = append(tags, "shared")
		}
		if len(tags) == 0 {
			return ""
		}
		return "String " + strconv.Quote(value) + " [" + strings.Join(tags, ", ") + "]"
	}
	anns := []bytecode.Annotator{bytecode.StringAnnotator(cp, lookup), bytecode.ConstantAnnotator(cp)}

	n := 0
	w := cmd.OutOrStdout()
	var diags classfmt.Diags
	for _, m := range cf.Methods {
		if disasmMethod != "" && m.Name(cp) != disasmMethod {
			continue
		}
		code, err := m.Code(cp)
		if err != nil {
			return n, fmt.Errorf("%s.%s: %w", cf.Name(), m.Name(cp), err)
		}
		if code == nil {
			continue
		}
		id := m.Name(cp) + m.Descriptor(cp)
		diags.At(id)
		insts := bytecode.DecodeBestEffort(code.Bytecode, &diags)

		if disasmOut != "" {
			if err := output.WriteASM(disasmOut, cf.Name(), id, insts, anns...); err != nil {
				return n, err
			}
		} else {
			fmt.Fprintf(w, "; %s.%s\n", cf.Name(), id)
			fmt.Fprint(w, bytecode.Format(insts, anns...))
			fmt.Fprintln(w)
		}
		n++
	}
	if strict {
		if err := diags.Err(); err != nil {
			return n, fmt.Errorf("%s: %w", cf.Name(), err)
		}
	}
	for _, d := range diags.Items() {
		logger.Warn("listing truncated", "class", cf.Name(), "diag", d.String())
	}
	return n, nil
}

// findClass resolves a class argument to an archive entry. Entries under a
// prefix such as BOOT-INF/classes/ match by suffix.
func findClass(entries []string, name string) (string, error) {
	name = strings.TrimSuffix(name, ".class")
	if !strings.Contains(name, "/") {
		name = strings.ReplaceAll(name, ".", "/")
	}
	want := name + ".class"
	var match string
	for _, e := range entries {
		if e == want {
			return e, nil
		}
		if match == "" && strings.HasSuffix(e, "/"+want) {
			match = e
		}
	}
	if match == "" {
		return "", fmt.Errorf("class %s not found", name)
	}
	return match, nil
}
