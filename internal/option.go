package internal

import "github.com/starford/decksmith/internal/diag"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	hub    *diag.Hub
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithHub sets the diagnostic hub the server reports degradations to.
// Run creates its own when none is given.
func WithHub(hub *diag.Hub) Option {
	return func(a *application) {
		a.hub = hub
	}
}
