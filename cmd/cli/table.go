package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/storage"
)

// column describes one table column over rows of type T.
type column[T any] struct {
	Header   string
	Align    text.Align
	WidthMax int
	Value    func(T) string
}

// field is a labelled value for two-column report tables.
type field struct {
	Label string
	Value string
}

func fieldColumns(label string, valueAlign text.Align) []column[field] {
	return []column[field]{
		{Header: label, Value: func(f field) string { return f.Label }},
		{Header: "Value", Align: valueAlign, Value: func(f field) string { return f.Value }},
	}
}

var artifactColumns = []column[storage.Artifact]{
	{Header: "ID", Value: func(a storage.Artifact) string { return a.ID }},
	{Header: "Score", Align: text.AlignRight, Value: func(a storage.Artifact) string {
		return fmt.Sprintf("%.1f", a.FinalScore)
	}},
	{Header: "Verdict", WidthMax: 24, Value: func(a storage.Artifact) string { return a.Verdict }},
	{Header: "Size", Align: text.AlignRight, Value: func(a storage.Artifact) string {
		return fmt.Sprintf("%.1f MB", float64(a.SizeBytes)/(1<<20))
	}},
	{Header: "Created", Value: func(a storage.Artifact) string { return formatStamp(&a.CreatedAt) }},
	{Header: "Served", Value: func(a storage.Artifact) string { return formatStamp(a.ServedAt) }},
	{Header: "Expires", Value: func(a storage.Artifact) string { return formatStamp(a.ExpiresAt) }},
}

func formatStamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func renderTable[T any](rows []T, columns []column[T], footer ...string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, c := range columns {
		header[i] = c.Header
		configs[i] = table.ColumnConfig{Number: i + 1, Align: c.Align, AlignHeader: text.AlignLeft, WidthMax: c.WidthMax}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, item := range rows {
		r := make(table.Row, len(columns))
		for i, c := range columns {
			r[i] = c.Value(item)
		}
		tw.AppendRow(r)
	}

	if len(footer) > 0 {
		f := make(table.Row, len(columns))
		for i := range f {
			if i < len(footer) {
				f[i] = footer[i]
			}
		}
		tw.AppendFooter(f)
	}

	return tw.Render()
}
