package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var verboseFlag int // 0=warnings, 1=-v, 2=-vv, 3=-vvv

var rootCmd = &cobra.Command{
	Use:   "flowspec",
	Short: "Scenario tests for HTTP APIs.",
	Long: `flowspec runs multi-step API scenarios written in YAML: setup,
steps and teardown, with values extracted from one response and injected
into the next, assertions on every step, and conditional, looping and
parallel blocks.`,
	SilenceUsage: true,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitUsageError)
	}
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verboseFlag, "verbose", "v", "Verbose output (-v, -vv, -vvv for more detail)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}

// newLogger maps the -v count onto logrus levels. Logs go to stderr so they
// never mix with machine readable reports on stdout.
func newLogger(quiet bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	switch {
	case quiet:
		log.SetLevel(logrus.ErrorLevel)
	case verboseFlag >= 3:
		log.SetLevel(logrus.TraceLevel)
	case verboseFlag == 2:
		log.SetLevel(logrus.DebugLevel)
	case verboseFlag == 1:
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetLevel(logrus.WarnLevel)
	}
	return log
}
