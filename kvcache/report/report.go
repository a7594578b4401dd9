// Package report renders calculator results for humans and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// Format selects how results are written.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates an --output value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (valid: table, json, yaml)", s)
}

// Percent formats a fraction such as a hit rate as "12.34%".
func Percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

// Bytes formats a byte count with IEC units, e.g. "160 KiB".
func Bytes(v float64) string {
	if v <= 0 || math.IsNaN(v) {
		return "0 B"
	}
	return humanize.IBytes(uint64(math.Round(v)))
}

// GB formats a GiB quantity with two decimals.
func GB(v float64) string {
	return fmt.Sprintf("%.2f GB", v)
}

// Count formats a token or conversation count with thousands separators.
func Count(v int64) string {
	return humanize.Comma(v)
}

// Rate formats a per-second quantity.
func Rate(v float64) string {
	return humanize.CommafWithDigits(v, 2)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteYAML writes v as YAML.
func WriteYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// Write dispatches to WriteJSON or WriteYAML; table rendering is handled by
// the caller since it depends on the value.
func Write(w io.Writer, f Format, v any) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, v)
	case FormatYAML:
		return WriteYAML(w, v)
	}
	return fmt.Errorf("format %q is not a structured format", f)
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}
