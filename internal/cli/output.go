package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

var stdout io.Writer = os.Stdout

// Table collects rows and renders them as aligned columns
type Table struct {
	headers []string
	rows    [][]string
}

func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// AddRow appends a row. Missing trailing cells render empty.
func (t *Table) AddRow(cols ...string) {
	row := make([]string, len(t.headers))
	copy(row, cols)
	t.rows = append(t.rows, row)
}

// Render writes the header, an underline and every row
func (t *Table) Render() {
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)

	underline := make([]string, len(t.headers))
	for i, h := range t.headers {
		underline[i] = strings.Repeat("-", len(h))
	}
	for _, line := range append([][]string{t.headers, underline}, t.rows...) {
		fmt.Fprintln(tw, strings.Join(line, "\t"))
	}
	tw.Flush()
}

// printOutput encodes data as YAML when --output yaml is set and as indented
// JSON otherwise
func printOutput(data interface{}) error {
	if getOutputFormat() == "yaml" {
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// truncate shortens s to max runes, ending in "..." when cut
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

var severityMarks = map[string]string{
	"critical": "[!]",
	"high":     "[!]",
	"error":    "[E]",
	"warning":  "[W]",
	"info":     "[I]",
}

// formatSeverity prefixes a known alert severity with a marker
func formatSeverity(severity string) string {
	s := strings.ToLower(severity)
	mark, ok := severityMarks[s]
	if !ok {
		return severity
	}
	return mark + " " + strings.ToUpper(s)
}

// formatStatus prefixes a sink outcome or probe state with a marker
func formatStatus(status string) string {
	switch strings.ToLower(status) {
	case "success", "ok", "ready", "connected":
		return "[+] " + status
	case "failure", "error", "unavailable":
		return "[-] " + status
	case "disabled":
		return "[~] " + status
	}
	return status
}
