package output

import (
	"fmt"
	"io"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/runner"
)

// Formatter renders scenario results. Every formatter is a runner.Sink.
type Formatter interface {
	runner.Sink
	FormatError(err error)
	FormatHeader(version string)
}

// Flushable is implemented by formatters that write one document at the end.
type Flushable interface {
	Flush(totalDuration time.Duration) error
}

// Formats lists the names accepted by New.
var Formats = []string{"console", "json", "junit", "tap"}

// New returns the formatter registered under format.
func New(format string, w io.Writer, verbose, noColor bool) (Formatter, error) {
	switch format {
	case "", "console":
		return NewConsoleFormatter(WithWriter(w), WithVerbose(verbose), WithNoColor(noColor)), nil
	case "json":
		return NewJSONFormatter(JSONWithWriter(w)), nil
	case "junit":
		return NewJUnitFormatter(JUnitWithWriter(w)), nil
	case "tap":
		return NewTAPFormatter(TAPWithWriter(w)), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want one of %v)", format, Formats)
	}
}
