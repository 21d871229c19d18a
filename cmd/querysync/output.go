package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Table is tabular command output. JSON and YAML render Value instead.
type Table struct {
	Headers []string
	Rows    [][]string
	Footer  string
	Value   any
}

// OutputFormatter renders command results as table, json or yaml
type OutputFormatter struct {
	format string
}

// NewOutputFormatter creates a formatter; unknown formats fall back to table
func NewOutputFormatter(format string) *OutputFormatter {
	return &OutputFormatter{format: strings.ToLower(format)}
}

// Valid reports whether the format is supported
func (of *OutputFormatter) Valid() bool {
	switch of.format {
	case "table", "json", "yaml":
		return true
	}
	return false
}

// Write renders t to w
func (of *OutputFormatter) Write(w io.Writer, t Table) error {
	switch of.format {
	case "json":
		return of.writeJSON(w, t.Value)
	case "yaml":
		return of.writeYAML(w, t.Value)
	default:
		return of.writeTable(w, t)
	}
}

func (of *OutputFormatter) writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func (of *OutputFormatter) writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func (of *OutputFormatter) writeTable(w io.Writer, t Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if t.Footer != "" {
		_, err := fmt.Fprintln(w, t.Footer)
		return err
	}
	return nil
}

// cell renders a value for a table cell. Structured values are shown as
// compact JSON.
func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case map[string]any, []any:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	default:
		return fmt.Sprint(x)
	}
}
