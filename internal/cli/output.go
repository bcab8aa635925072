package cli

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// printTable renders rows as a borderless, left aligned table.
func printTable(w io.Writer, headers []string, data [][]any) {
	if len(data) == 0 {
		fmt.Fprintln(w, "No data to display")
		return
	}

	cnf := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
	}

	symbols := tw.NewSymbolCustom("emstore").
		WithRow(" ").
		WithColumn(" ").
		WithTopLeft("").
		WithTopMid(" ").
		WithTopRight(" ").
		WithMidLeft(" ").
		WithCenter(" ").
		WithMidRight(" ").
		WithBottomLeft(" ").
		WithBottomMid(" ").
		WithBottomRight(" ")

	rd := tw.Rendition{Symbols: symbols}
	rd.Settings.Lines.ShowHeaderLine = tw.Off

	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint(rd)),
		tablewriter.WithConfig(cnf),
	)

	headerAny := make([]any, len(headers))
	for i, h := range headers {
		headerAny[i] = h
	}
	table.Header(headerAny...)
	_ = table.Bulk(data)
	_ = table.Render()
}

// printFields prints key/value pairs, skipping empty values.
func printFields(w io.Writer, fields [][2]string) {
	rows := make([][]any, 0, len(fields))
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		rows = append(rows, []any{f[0], f[1]})
	}
	printTable(w, []string{"Key", "Value"}, rows)
}
