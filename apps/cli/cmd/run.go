package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/config"
	"github.com/abdul-hamid-achik/flowspec/packages/core/env"
	"github.com/abdul-hamid-achik/flowspec/packages/core/runner"
	"github.com/abdul-hamid-achik/flowspec/packages/http"
	"github.com/abdul-hamid-achik/flowspec/packages/notify"
	"github.com/abdul-hamid-achik/flowspec/packages/output"
	"github.com/abdul-hamid-achik/flowspec/packages/scenario"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <file|directory>...",
	Short: "Run scenario files",
	Long: `Run the scenarios defined in .yaml, .yml or .json files.

Examples:
  flowspec run checkout.yaml
  flowspec run ./scenarios/ --base-url http://localhost:8080
  flowspec run checkout.yaml --var user=ada --var amount=100
  flowspec run ./scenarios/ -o junit --output-file report.xml
  flowspec run checkout.yaml --fail-fast --watch`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	configFlag          string
	baseURLFlag         string
	varFlags            []string
	quietFlag           bool
	noColorFlag         bool
	dryRunFlag          bool
	outputFlag          string
	outputFileFlag      string
	timeoutFlag         string
	scenarioTimeoutFlag string
	insecureFlag        bool
	failFastFlag        bool
	continueOnErrorFlag bool
	loopFailFastFlag    bool
	optionalMissFlag    string
	concurrencyFlag     int
	authTokenFlag       string
	waitForFlag         string
	watchFlag           bool
	envFileFlags        []string
	notifyOnFlag        string
	notifySlackFlag     string
	notifyTeamsFlag     string
)

func init() {
	// Core flags
	runCmd.Flags().StringVar(&configFlag, "config", getEnvString("FLOWSPEC_CONFIG", ""), "Path to config file (env: FLOWSPEC_CONFIG)")
	runCmd.Flags().StringVar(&baseURLFlag, "base-url", getEnvString("FLOWSPEC_BASE_URL", ""), "Base URL for scenarios without one (env: FLOWSPEC_BASE_URL)")
	runCmd.Flags().StringArrayVar(&varFlags, "var", nil, "Global variable as key=value, repeatable; values are parsed as YAML")
	runCmd.Flags().StringArrayVar(&envFileFlags, "env-file", nil, "Read globals from a .env file, repeatable; FLOWSPEC_VAR_* environment variables are always read")
	runCmd.Flags().StringVar(&authTokenFlag, "auth-token", getEnvString("FLOWSPEC_AUTH_TOKEN", ""), "Bearer token for steps without an Authorization header (env: FLOWSPEC_AUTH_TOKEN)")

	// Output flags
	runCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", getEnvBool("FLOWSPEC_QUIET", false), "Suppress all output except errors (env: FLOWSPEC_QUIET)")
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("FLOWSPEC_NO_COLOR", false), "Disable colored output (env: FLOWSPEC_NO_COLOR)")
	runCmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("FLOWSPEC_OUTPUT", "console"), "Output format: console, json, junit, tap (env: FLOWSPEC_OUTPUT)")
	runCmd.Flags().StringVar(&outputFileFlag, "output-file", getEnvString("FLOWSPEC_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: FLOWSPEC_OUTPUT_FILE)")

	// Notification flags
	runCmd.Flags().StringVar(&notifyOnFlag, "notify-on", getEnvString("FLOWSPEC_NOTIFY_ON", ""), "When to notify: always, failure, success, recovery (env: FLOWSPEC_NOTIFY_ON)")
	runCmd.Flags().StringVar(&notifySlackFlag, "notify-slack", getEnvString("FLOWSPEC_NOTIFY_SLACK", ""), "Slack webhook URL told about each run (env: FLOWSPEC_NOTIFY_SLACK)")
	runCmd.Flags().StringVar(&notifyTeamsFlag, "notify-teams", getEnvString("FLOWSPEC_NOTIFY_TEAMS", ""), "Teams webhook URL told about each run (env: FLOWSPEC_NOTIFY_TEAMS)")

	// Execution flags
	runCmd.Flags().StringVar(&timeoutFlag, "timeout", getEnvString("FLOWSPEC_TIMEOUT", ""), "Request timeout (e.g., 30s, 1m) (env: FLOWSPEC_TIMEOUT)")
	runCmd.Flags().StringVar(&scenarioTimeoutFlag, "scenario-timeout", getEnvString("FLOWSPEC_SCENARIO_TIMEOUT", ""), "Timeout for setup and main steps; teardown still runs (env: FLOWSPEC_SCENARIO_TIMEOUT)")
	runCmd.Flags().BoolVar(&failFastFlag, "fail-fast", getEnvBool("FLOWSPEC_FAIL_FAST", false), "Stop main steps after the first failed step (env: FLOWSPEC_FAIL_FAST)")
	runCmd.Flags().BoolVar(&continueOnErrorFlag, "continue-on-error", getEnvBool("FLOWSPEC_CONTINUE_ON_ERROR", false), "Keep running main steps after a step errors (env: FLOWSPEC_CONTINUE_ON_ERROR)")
	runCmd.Flags().BoolVar(&loopFailFastFlag, "loop-fail-fast", getEnvBool("FLOWSPEC_LOOP_FAIL_FAST", false), "Stop a loop after its first failed iteration (env: FLOWSPEC_LOOP_FAIL_FAST)")
	runCmd.Flags().StringVar(&optionalMissFlag, "optional-miss", getEnvString("FLOWSPEC_OPTIONAL_MISS", ""), "State of steps whose optional extraction misses: pass or skip (env: FLOWSPEC_OPTIONAL_MISS)")
	runCmd.Flags().IntVar(&concurrencyFlag, "concurrency", getEnvInt("FLOWSPEC_CONCURRENCY", 0), "Default worker count of parallel blocks (env: FLOWSPEC_CONCURRENCY)")
	runCmd.Flags().StringVar(&waitForFlag, "wait-for", getEnvString("FLOWSPEC_WAIT_FOR", ""), "URL that must answer 200 before scenarios start (env: FLOWSPEC_WAIT_FOR)")
	runCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Parse and validate without executing")
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch files for changes and re-run scenarios")

	// Network flags
	runCmd.Flags().BoolVarP(&insecureFlag, "insecure", "k", getEnvBool("FLOWSPEC_INSECURE", false), "Disable SSL certificate validation (env: FLOWSPEC_INSECURE)")
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// runSummary tallies one pass over every file.
type runSummary struct {
	scenarios   int
	failed      int
	parseErrors int
	network     bool
	duration    time.Duration
}

func (s runSummary) exitCode() int {
	switch {
	case s.parseErrors > 0:
		return ExitParseError
	case s.network:
		return ExitNetworkError
	case s.failed > 0:
		return ExitTestFailure
	default:
		return ExitSuccess
	}
}

func runCommand(cmd *cobra.Command, args []string) error {
	// Setup output writer
	var outWriter io.Writer = cmd.OutOrStdout()
	if outputFileFlag != "" {
		f, err := os.Create(outputFileFlag)
		if err != nil {
			return fmt.Errorf("cannot create output file: %w", err)
		}
		defer f.Close()
		outWriter = f
	}

	newFormatter := func() (output.Formatter, error) {
		return output.New(strings.ToLower(outputFlag), outWriter, verboseFlag > 0, noColorFlag || quietFlag)
	}
	formatter, err := newFormatter()
	if err != nil {
		return err
	}
	if !quietFlag {
		formatter.FormatHeader(version)
	}

	files, err := collectFiles(args)
	if err != nil {
		formatter.FormatError(err)
		return err
	}
	if len(files) == 0 {
		err := fmt.Errorf("no .yaml, .yml or .json scenario files found")
		formatter.FormatError(err)
		return err
	}

	settings, err := loadSettings()
	if err != nil {
		formatter.FormatError(err)
		os.Exit(ExitConfigError)
	}
	cfg := settings.ToRunnerConfig()
	notifier, err := newNotifier(settings.Notify)
	if err != nil {
		formatter.FormatError(err)
		os.Exit(ExitConfigError)
	}

	log := newLogger(quietFlag)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runAll := func(formatter output.Formatter) runSummary {
		sinks := []runner.Sink{formatter}
		if notifier != nil {
			sinks = append(sinks, notifier)
		}
		r := runner.NewRunner(cfg, runner.WithLogger(log), runner.WithSink(sinks...))
		summary := runSummary{}
		start := time.Now()

		for _, file := range files {
			if ctx.Err() != nil {
				break
			}
			if dryRunFlag {
				if err := validateFile(file); err != nil {
					formatter.FormatError(err)
					summary.parseErrors++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Would run: %s\n", file)
				continue
			}

			result, err := r.RunFile(ctx, file)
			if err != nil {
				formatter.FormatError(fmt.Errorf("%s: %w", file, err))
				summary.parseErrors++
				continue
			}

			summary.scenarios++
			if !result.Passed {
				summary.failed++
			}
			if hasTransportError(result) {
				summary.network = true
			}
			if failFastFlag && !result.Passed {
				break
			}
		}

		summary.duration = time.Since(start)
		if flushable, ok := formatter.(output.Flushable); ok {
			if err := flushable.Flush(summary.duration); err != nil {
				log.WithError(err).Error("error writing output")
			}
		}
		if notifier != nil && !dryRunFlag {
			if err := notifier.Flush(summary.duration); err != nil {
				log.WithError(err).Warn("notification failed")
			}
		}
		return summary
	}

	summary := runAll(formatter)

	// If watch mode is not enabled, exit with the run's status
	if !watchFlag {
		if code := summary.exitCode(); code != ExitSuccess {
			os.Exit(code)
		}
		return nil
	}

	// Watch mode: set up file watcher
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	watchedDirs := make(map[string]bool)
	for _, file := range files {
		dir := filepath.Dir(file)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				formatter.FormatError(fmt.Errorf("failed to watch %s: %w", dir, err))
			}
			watchedDirs[dir] = true
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	// Debounce timer for rapid file changes
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Has(fsnotify.Write) && isScenarioFile(event.Name) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				name := event.Name
				debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
					fmt.Fprintf(cmd.OutOrStdout(), "\n\nFile changed: %s\nRe-running scenarios...\n\n", name)

					// Accumulating formatters need fresh state for every pass
					fresh, err := newFormatter()
					if err != nil {
						log.WithError(err).Error("cannot create formatter")
						return
					}
					runAll(fresh)

					fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n")
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			formatter.FormatError(fmt.Errorf("watcher error: %w", err))
		}
	}
}

// loadSettings loads the config file and applies command line overrides.
// Globals come from the config file, then FLOWSPEC_VAR_* variables, then
// env files, then --var pairs.
func loadSettings() (*config.Config, error) {
	fileConfig, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	overrides := &config.Config{
		BaseURL:      baseURLFlag,
		OptionalMiss: optionalMissFlag,
		Concurrency:  concurrencyFlag,
		AuthToken:    authTokenFlag,
		EnvFiles:     envFileFlags,
	}
	if insecureFlag {
		overrides.ValidateSSL = config.BoolPtr(false)
	}
	if failFastFlag {
		overrides.FailFast = config.BoolPtr(true)
	}
	if continueOnErrorFlag {
		overrides.ContinueOnError = config.BoolPtr(true)
	}
	if loopFailFastFlag {
		overrides.LoopFailFast = config.BoolPtr(true)
	}
	if timeoutFlag != "" {
		d, err := time.ParseDuration(timeoutFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout value %q: %w (use format like 30s, 1m, 500ms)", timeoutFlag, err)
		}
		overrides.Timeout = int(d.Milliseconds())
	}
	if scenarioTimeoutFlag != "" {
		d, err := time.ParseDuration(scenarioTimeoutFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid scenario timeout value %q: %w", scenarioTimeoutFlag, err)
		}
		overrides.ScenarioTimeout = int(d.Milliseconds())
	}
	if waitForFlag != "" {
		overrides.WaitFor = &config.WaitFor{URL: waitForFlag}
	}
	if notifyOnFlag != "" || notifySlackFlag != "" || notifyTeamsFlag != "" {
		overrides.Notify = &config.Notify{On: notifyOnFlag, Slack: notifySlackFlag, Teams: notifyTeamsFlag}
	}

	merged := fileConfig.Merge(overrides)
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	globals, err := env.Globals(env.DefaultPrefix, merged.EnvFiles, varFlags)
	if err != nil {
		return nil, err
	}
	merged.Variables = env.MergeVariables(merged.Variables, globals)
	return merged, nil
}

// newNotifier returns nil when no webhook is configured.
func newNotifier(cfg *config.Notify) (*notify.Manager, error) {
	if cfg == nil || (cfg.Slack == "" && cfg.Teams == "") {
		return nil, nil
	}
	on, err := notify.ParseNotifyOn(cfg.On)
	if err != nil {
		return nil, err
	}
	var notifiers []notify.Notifier
	if cfg.Slack != "" {
		var opts []notify.SlackOption
		if cfg.SlackChannel != "" {
			opts = append(opts, notify.WithSlackChannel(cfg.SlackChannel))
		}
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Slack, opts...))
	}
	if cfg.Teams != "" {
		notifiers = append(notifiers, notify.NewTeamsNotifier(cfg.Teams))
	}
	return notify.NewManager(on, notifiers...), nil
}

func hasTransportError(result *runner.ScenarioResult) bool {
	for _, r := range result.Results {
		var te *http.TransportError
		if r.State == runner.StateError && errors.As(r.Err, &te) {
			return true
		}
	}
	return false
}

func validateFile(file string) error {
	s, err := scenario.LoadFile(file)
	if err != nil {
		return err
	}
	return scenario.Validate(s)
}

func collectFiles(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			err := filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && isScenarioFile(path) && !isConfigFile(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		} else if isScenarioFile(arg) {
			files = append(files, arg)
		}
	}

	return files, nil
}

func isScenarioFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

func isConfigFile(path string) bool {
	base := filepath.Base(path)
	for _, name := range config.ConfigFilenames {
		if base == name {
			return true
		}
	}
	return false
}
