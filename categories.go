package main

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"aqi-service/aqi"
)

var categoriesFormat string

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Print the AQI category table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return writeCategories(cmd.OutOrStdout(), categoriesFormat)
	},
}

func init() {
	categoriesCmd.Flags().StringVar(&categoriesFormat, "format", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(categoriesCmd)
}

type categoryRow struct {
	Name     aqi.Category `json:"name" yaml:"name"`
	Low      int          `json:"low" yaml:"low"`
	High     int          `json:"high" yaml:"high"`
	Color    string       `json:"color" yaml:"color"`
	Advisory string       `json:"advisory" yaml:"advisory"`
}

func writeCategories(w io.Writer, format string) error {
	table := aqi.Categories()
	rows := make([]categoryRow, len(table))
	for i, c := range table {
		rows[i] = categoryRow{Name: c.Name, Low: c.Low, High: c.High, Color: c.Color, Advisory: aqi.Advisory(c.Name)}
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	case "table", "":
		t := tablewriter.NewTable(w,
			tablewriter.WithConfig(tablewriter.Config{
				Row: tw.CellConfig{
					Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
					Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
				},
			}),
			tablewriter.WithRendition(tw.Rendition{Borders: tw.BorderNone}),
		)
		t.Header("Category", "Range", "Color")
		for _, r := range rows {
			if err := t.Append(string(r.Name), strconv.Itoa(r.Low)+"-"+strconv.Itoa(r.High), r.Color); err != nil {
				return eris.Wrap(err, "append row")
			}
		}
		return t.Render()
	default:
		return eris.Errorf("unknown format %q", format)
	}
}
