package internal

import "github.com/starford/ehwaz/internal/syncer"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	resolver syncer.Resolver
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithResolver overrides the conflict resolver built from configuration.
// Used to plug an interactive resolver in front of the policy default.
func WithResolver(r syncer.Resolver) Option {
	return func(a *application) {
		a.resolver = r
	}
}
