package internal

import (
	"errors"
	"io"
	"os"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	out    io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithOutput sets where the board and seed commands print. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.out = w
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, errors.New("config is required")
	}
	if app.out == nil {
		app.out = os.Stdout
	}
	return app, nil
}
