package config

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Timeout:              30000, // 30 seconds
		TeardownTimeout:      30000,
		FollowRedirects:      BoolPtr(true),
		ValidateSSL:          BoolPtr(true),
		RequireSuccessStatus: BoolPtr(true),
		OptionalMiss:         "pass",
		Concurrency:          5,
		Reporters:            []string{"console"},
	}
}
