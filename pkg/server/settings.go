package server

import (
	"time"

	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
)

// SectionSlug names the server section in parsed values and config files.
const SectionSlug = "server"

const (
	defaultAddr                   = ":3001"
	defaultReadLimit              = 1 << 20
	defaultWriteTimeoutSeconds    = 10
	defaultShutdownTimeoutSeconds = 30
)

// Settings controls the HTTP listener and websocket limits.
type Settings struct {
	Addr                   string `glazed:"addr"`
	ReadLimit              int    `glazed:"read-limit"`
	WriteTimeoutSeconds    int    `glazed:"write-timeout-seconds"`
	ShutdownTimeoutSeconds int    `glazed:"shutdown-timeout-seconds"`
}

func DefaultSettings() Settings {
	return Settings{
		Addr:                   defaultAddr,
		ReadLimit:              defaultReadLimit,
		WriteTimeoutSeconds:    defaultWriteTimeoutSeconds,
		ShutdownTimeoutSeconds: defaultShutdownTimeoutSeconds,
	}
}

func (s Settings) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

func (s Settings) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

func NewSection() (schema.Section, error) {
	return schema.NewSection(
		SectionSlug,
		"HTTP and websocket server",
		schema.WithFields(
			fields.New("addr", fields.TypeString,
				fields.WithDefault(defaultAddr),
				fields.WithHelp("HTTP listen address")),
			fields.New("read-limit", fields.TypeInteger,
				fields.WithDefault(defaultReadLimit),
				fields.WithHelp("Maximum inbound websocket message size in bytes")),
			fields.New("write-timeout-seconds", fields.TypeInteger,
				fields.WithDefault(defaultWriteTimeoutSeconds),
				fields.WithHelp("Deadline for a single websocket frame write")),
			fields.New("shutdown-timeout-seconds", fields.TypeInteger,
				fields.WithDefault(defaultShutdownTimeoutSeconds),
				fields.WithHelp("Grace period for in-flight requests on shutdown")),
		),
	)
}
