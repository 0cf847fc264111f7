package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	// configPath, when set, is watched for changes to the offline flag.
	configPath string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithConfigPath sets the config file path for live reloads.
func WithConfigPath(path string) Option {
	return func(a *application) {
		a.configPath = path
	}
}
