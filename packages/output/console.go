package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/abdul-hamid-achik/flowspec/packages/core/runner"
	"github.com/fatih/color"
)

// formatValue formats a value for display, truncating or summarizing large values
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	case map[string]string:
		return fmt.Sprintf("{map with %d entries}", len(val))
	}
	str := fmt.Sprintf("%v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

// Report prints one scenario as an indented step tree followed by totals.
func (f *ConsoleFormatter) Report(result *runner.ScenarioResult) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	title := "Scenario: " + result.Name
	if result.File != "" {
		title += " (" + result.File + ")"
	}
	fmt.Fprintf(f.writer, "\n%s\n", bold(title))

	var phase string
	for _, r := range result.Results {
		if string(r.Phase) != phase {
			phase = string(r.Phase)
			fmt.Fprintf(f.writer, "\n %s\n", bold(phase))
		}
		indent := strings.Repeat("  ", r.Depth+1)

		switch r.State {
		case runner.StateSkipped:
			fmt.Fprintf(f.writer, "%s%s %s", indent, yellow("-"), r.Name)
			if r.Reason != "" {
				fmt.Fprintf(f.writer, " (%s)", r.Reason)
			}
			fmt.Fprintf(f.writer, "\n")
			continue
		case runner.StateError:
			fmt.Fprintf(f.writer, "%s%s %s %s\n", indent, red("x"), r.Name, red(fmt.Sprintf("(%s)", r.Reason)))
			continue
		}

		symbol := green("✓")
		if r.State == runner.StateFailed {
			symbol = red("✗")
		}
		fmt.Fprintf(f.writer, "%s%s %s %s\n", indent, symbol, r.Name, cyan(fmt.Sprintf("(%dms)", r.Duration.Milliseconds())))

		if f.verbose && r.StatusCode != 0 {
			fmt.Fprintf(f.writer, "%s  Status: %d", indent, r.StatusCode)
			if r.Attempts > 1 {
				fmt.Fprintf(f.writer, " after %d attempts", r.Attempts)
			}
			fmt.Fprintf(f.writer, "\n")
		}

		if r.State == runner.StateFailed {
			failed := false
			for _, a := range r.Assertions {
				if a.Passed {
					continue
				}
				failed = true
				fmt.Fprintf(f.writer, "%s  %s %s\n", indent, red("→"), a.Expression)
				if a.Actual != nil {
					fmt.Fprintf(f.writer, "%s    Actual: %s\n", indent, formatValue(a.Actual, 100))
				}
				if a.Message != "" {
					fmt.Fprintf(f.writer, "%s    %s\n", indent, a.Message)
				}
			}
			if !failed && r.Reason != "" {
				fmt.Fprintf(f.writer, "%s  %s %s\n", indent, red("→"), r.Reason)
			}
		}

		if f.verbose && len(r.Extracted) > 0 {
			fmt.Fprintf(f.writer, "%s  Extracted:\n", indent)
			for _, p := range r.Extracted {
				fmt.Fprintf(f.writer, "%s    %s = %s\n", indent, p.Name, formatValue(p.Value, 80))
			}
		}
	}

	c := result.Counts
	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Steps: ")
	if c.Passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d passed", c.Passed)))
	}
	if c.Failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", c.Failed)))
	}
	if c.Error > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d errored", c.Error)))
	}
	if c.Skipped > 0 {
		fmt.Fprintf(f.writer, "%s, ", yellow(fmt.Sprintf("%d skipped", c.Skipped)))
	}
	fmt.Fprintf(f.writer, "%d total\n", c.Total)
	fmt.Fprintf(f.writer, "Time:  %dms\n", result.Duration.Milliseconds())

	if f.verbose && result.Latency.Overall.Count > 0 {
		o := result.Latency.Overall
		fmt.Fprintf(f.writer, "Latency: p50 %s, p95 %s, p99 %s over %d requests\n", o.P50, o.P95, o.P99, o.Count)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(f.writer, "%s %s\n", red("!"), e)
	}
	fmt.Fprintf(f.writer, "\n")
	return nil
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("flowspec"), version)
}
