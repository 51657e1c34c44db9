package internal

// Option is a functional option for configuring the application.
type Option func(*application)

// Mode selects the outer surface the application serves.
type Mode int

const (
	// ModeHTTP serves the REST API and SSE stream.
	ModeHTTP Mode = iota
	// ModeMCP serves MCP tools over stdio.
	ModeMCP
)

type application struct {
	config  *Config
	mode    Mode
	version string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithMode selects HTTP or MCP mode. HTTP is the default.
func WithMode(m Mode) Option {
	return func(a *application) {
		a.mode = m
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}
