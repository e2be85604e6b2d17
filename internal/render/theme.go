package render

import "jarstrings/internal/record"

// Theme holds report colors.
type Theme struct {
	Background string
	TextColor  string
	Link       string
	Rule       string

	// Literal contexts.
	SendMessage     string
	ItemDisplayName string
	NoContext       string

	Edited string
	Shared string
	Bar    string // category counts
}

// NASA is the NASA/Bauhaus theme: geometric, monochrome, sparse color.
var NASA = Theme{
	Background: "#F5F5F5",
	TextColor:  "#1A1A1A",
	Link:       "#0B3D91",
	Rule:       "#DDDDDD",

	SendMessage:     "#0B3D91", // NASA blue
	ItemDisplayName: "#00695C", // teal
	NoContext:       "#9E9E9E",

	Edited: "#E65100", // deep orange
	Shared: "#FC3D21", // NASA red
	Bar:    "#424242",
}

func (t Theme) context(c record.Context) string {
	switch c {
	case record.ContextSendMessage:
		return t.SendMessage
	case record.ContextItemDisplayName:
		return t.ItemDisplayName
	}
	return t.NoContext
}
