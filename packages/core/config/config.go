package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/runner"
)

// Config represents the flowspec configuration file
type Config struct {
	BaseURL         string `json:"baseUrl,omitempty"`
	Timeout         int    `json:"timeout,omitempty"`         // milliseconds, per request
	ScenarioTimeout int    `json:"scenarioTimeout,omitempty"` // milliseconds, setup and main steps
	TeardownTimeout int    `json:"teardownTimeout,omitempty"` // milliseconds
	FollowRedirects *bool  `json:"followRedirects,omitempty"`
	ValidateSSL     *bool  `json:"validateSSL,omitempty"`

	FailFast             *bool  `json:"failFast,omitempty"`
	ContinueOnError      *bool  `json:"continueOnError,omitempty"`
	LoopFailFast         *bool  `json:"loopFailFast,omitempty"`
	RequireSuccessStatus *bool  `json:"requireSuccessStatus,omitempty"`
	OptionalMiss         string `json:"optionalMiss,omitempty"` // "pass" or "skip"
	Concurrency          int    `json:"concurrency,omitempty"`  // default parallel block width

	Variables map[string]any `json:"variables,omitempty"` // published as globals
	AuthToken string         `json:"authToken,omitempty"`
	WaitFor   *WaitFor       `json:"waitFor,omitempty"`
	EnvFiles  []string       `json:"envFiles,omitempty"` // .env files read into globals
	Notify    *Notify        `json:"notify,omitempty"`

	Reporters []string `json:"reporters,omitempty"` // Output reporters
	Verbose   *bool    `json:"verbose,omitempty"`
	NoColor   *bool    `json:"noColor,omitempty"`
}

// WaitFor configures a readiness check run before each scenario
type WaitFor struct {
	URL      string `json:"url"`
	Status   int    `json:"status,omitempty"`
	Timeout  int    `json:"timeout,omitempty"`  // milliseconds
	Interval int    `json:"interval,omitempty"` // milliseconds
}

// Notify configures the chat webhooks told about each run
type Notify struct {
	On           string `json:"on,omitempty"` // always, failure, success or recovery
	Slack        string `json:"slack,omitempty"`
	SlackChannel string `json:"slackChannel,omitempty"`
	Teams        string `json:"teams,omitempty"`
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetFollowRedirects returns the follow redirects setting, defaulting to true
func (c *Config) GetFollowRedirects() bool {
	return getBool(c.FollowRedirects, true)
}

// GetValidateSSL returns the validate SSL setting, defaulting to true
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

func (c *Config) GetFailFast() bool {
	return getBool(c.FailFast, false)
}

func (c *Config) GetContinueOnError() bool {
	return getBool(c.ContinueOnError, false)
}

func (c *Config) GetLoopFailFast() bool {
	return getBool(c.LoopFailFast, false)
}

// GetRequireSuccessStatus returns whether steps without assertions must
// answer 2xx, defaulting to true
func (c *Config) GetRequireSuccessStatus() bool {
	return getBool(c.RequireSuccessStatus, true)
}

// GetVerbose returns the verbose setting, defaulting to false
func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".flowspec.config.json",
	"flowspec.config.json",
	".flowspecrc",
	".flowspecrc.json",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	// Search for config file in current directory
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return config, nil
}

// Validate rejects values the runner cannot use
func (c *Config) Validate() error {
	switch runner.MissPolicy(c.OptionalMiss) {
	case "", runner.MissPass, runner.MissSkip:
	default:
		return fmt.Errorf("optionalMiss must be %q or %q, got %q", runner.MissPass, runner.MissSkip, c.OptionalMiss)
	}
	if c.Timeout < 0 || c.ScenarioTimeout < 0 || c.TeardownTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative")
	}
	return nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.BaseURL != "" {
		result.BaseURL = other.BaseURL
	}
	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.ScenarioTimeout > 0 {
		result.ScenarioTimeout = other.ScenarioTimeout
	}
	if other.TeardownTimeout > 0 {
		result.TeardownTimeout = other.TeardownTimeout
	}
	if other.Concurrency > 0 {
		result.Concurrency = other.Concurrency
	}
	if other.OptionalMiss != "" {
		result.OptionalMiss = other.OptionalMiss
	}
	if other.AuthToken != "" {
		result.AuthToken = other.AuthToken
	}
	if other.WaitFor != nil {
		result.WaitFor = other.WaitFor
	}
	if other.Notify != nil {
		merged := Notify{}
		if result.Notify != nil {
			merged = *result.Notify
		}
		if other.Notify.On != "" {
			merged.On = other.Notify.On
		}
		if other.Notify.Slack != "" {
			merged.Slack = other.Notify.Slack
		}
		if other.Notify.SlackChannel != "" {
			merged.SlackChannel = other.Notify.SlackChannel
		}
		if other.Notify.Teams != "" {
			merged.Teams = other.Notify.Teams
		}
		result.Notify = &merged
	}
	if len(other.EnvFiles) > 0 {
		result.EnvFiles = append(append([]string{}, result.EnvFiles...), other.EnvFiles...)
	}

	// Boolean flags - only override if explicitly set in other config
	if other.FollowRedirects != nil {
		result.FollowRedirects = other.FollowRedirects
	}
	if other.ValidateSSL != nil {
		result.ValidateSSL = other.ValidateSSL
	}
	if other.FailFast != nil {
		result.FailFast = other.FailFast
	}
	if other.ContinueOnError != nil {
		result.ContinueOnError = other.ContinueOnError
	}
	if other.LoopFailFast != nil {
		result.LoopFailFast = other.LoopFailFast
	}
	if other.RequireSuccessStatus != nil {
		result.RequireSuccessStatus = other.RequireSuccessStatus
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	// Merge variables
	if len(other.Variables) > 0 {
		merged := make(map[string]any, len(result.Variables)+len(other.Variables))
		for k, v := range result.Variables {
			merged[k] = v
		}
		for k, v := range other.Variables {
			merged[k] = v
		}
		result.Variables = merged
	}

	// Merge reporters
	if len(other.Reporters) > 0 {
		result.Reporters = other.Reporters
	}

	return &result
}

// ToRunnerConfig converts the file configuration into executor settings
func (c *Config) ToRunnerConfig() *runner.Config {
	rc := runner.DefaultConfig()
	rc.BaseURL = c.BaseURL
	rc.Timeout = ms(c.Timeout)
	rc.ScenarioTimeout = ms(c.ScenarioTimeout)
	if c.TeardownTimeout > 0 {
		rc.TeardownTimeout = ms(c.TeardownTimeout)
	}
	rc.Insecure = !c.GetValidateSSL()
	rc.FollowRedirect = c.GetFollowRedirects()
	rc.FailFast = c.GetFailFast()
	rc.ContinueOnError = c.GetContinueOnError()
	rc.LoopFailFast = c.GetLoopFailFast()
	rc.RequireSuccessStatus = c.GetRequireSuccessStatus()
	if c.OptionalMiss != "" {
		rc.OptionalMissPolicy = runner.MissPolicy(c.OptionalMiss)
	}
	if c.Concurrency > 0 {
		rc.Concurrency = c.Concurrency
	}
	rc.AuthToken = c.AuthToken
	if len(c.Variables) > 0 {
		rc.Globals = make(map[string]any, len(c.Variables))
		for k, v := range c.Variables {
			rc.Globals[k] = v
		}
	}
	if c.WaitFor != nil && c.WaitFor.URL != "" {
		rc.WaitFor = &runner.WaitFor{
			URL:      c.WaitFor.URL,
			Status:   c.WaitFor.Status,
			Timeout:  ms(c.WaitFor.Timeout),
			Interval: ms(c.WaitFor.Interval),
		}
	}
	return rc
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// SaveConfig saves the configuration to a file
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
