package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"jarstrings/internal/output"
	"jarstrings/internal/record"
	"jarstrings/internal/signal"
)

var (
	stringsFormat   string
	stringsContext  string
	stringsClass    string
	stringsCategory string
)

var stringsCmd = &cobra.Command{
	Use:   "strings <jar>",
	Short: "List every string literal with its location and context",
	Args:  cobra.ExactArgs(1),
	RunE:  runStrings,
}

func init() {
	f := stringsCmd.Flags()
	f.StringVar(&stringsFormat, "format", "table", "output format: table, jsonl or json")
	f.StringVar(&stringsContext, "context", "", "only literals with this context (SendMessage, ItemDisplayName or none)")
	f.StringVar(&stringsClass, "class", "", "only classes whose internal name starts with this prefix")
	f.StringVar(&stringsCategory, "category", "", "only literals in this category (text, url, permission, color, ...)")
	rootCmd.AddCommand(stringsCmd)
}

func runStrings(cmd *cobra.Command, args []string) error {
	_, res, err := scanJar(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	recs, err := filterRecords(res.Strings(), stringsContext, stringsClass)
	if err != nil {
		return err
	}
	if stringsCategory != "" {
		var keep []*record.String
		for _, r := range recs {
			if signal.Has(r.Text(), stringsCategory) {
				keep = append(keep, r)
			}
		}
		recs = keep
	}
	return writeRecords(cmd, recs, stringsFormat)
}

// filterRecords keeps records matching a context name and class prefix.
// Empty arguments match everything.
func filterRecords(recs []*record.String, context, classPrefix string) ([]*record.String, error) {
	var want *record.Context
	switch strings.ToLower(context) {
	case "":
	case "none":
		c := record.ContextNone
		want = &c
	case strings.ToLower(string(record.ContextSendMessage)):
		c := record.ContextSendMessage
		want = &c
	case strings.ToLower(string(record.ContextItemDisplayName)):
		c := record.ContextItemDisplayName
		want = &c
	default:
		return nil, fmt.Errorf("unknown context %q", context)
	}
	var out []*record.String
	for _, r := range recs {
		if want != nil && r.Context != *want {
			continue
		}
		if !strings.HasPrefix(r.ClassName, classPrefix) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func writeRecords(cmd *cobra.Command, recs []*record.String, format string) error {
	w := cmd.OutOrStdout()
	switch format {
	case "table":
		return output.WriteTable(w, recs)
	case "jsonl":
		return output.WriteJSONL(w, recs)
	case "json":
		return output.WriteJSON(w, recs)
	}
	return fmt.Errorf("unknown format %q", format)
}
