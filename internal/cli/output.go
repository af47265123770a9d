package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agency/core"
)

// printTable writes tabular data using aligned columns.
func printTable(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// printJSON writes the value as pretty-printed JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printYAML writes the value as YAML.
func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

// printStructured handles the json and yaml formats and reports whether it
// did. Text output is left to the caller.
func printStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case "json":
		return true, printJSON(w, v)
	case "yaml":
		return true, printYAML(w, v)
	default:
		return false, nil
	}
}

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.Faint)
)

// printResult renders a request result for humans: a colored status line,
// the final response and one line per branch.
func printResult(w io.Writer, res *core.FinalResult) {
	status := okColor
	switch {
	case res.PartiallyAnswered():
		status = warnColor
	case !res.Answered():
		status = failColor
	}

	status.Fprintf(w, "%s", res.Summary())
	dimColor.Fprintf(w, " (agent %s, %d hops, request %s)\n", res.FinalAgent, res.HopsUsed, res.RequestID)

	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintln(w, res.Response)

	if len(res.BranchResults) == 0 {
		return
	}

	fmt.Fprintln(w, strings.Repeat("-", 60))
	for i, br := range res.BranchResults {
		if br.Success {
			okColor.Fprintf(w, "[%d] %s ok", i+1, br.Target)
		} else {
			failColor.Fprintf(w, "[%d] %s failed: %s", i+1, br.Target, br.Error)
		}
		dimColor.Fprintf(w, " %s\n", br.Duration.Round(time.Millisecond))
	}
}
