// Package application provides the application interface for propgate
// commands.
//
// Commands accept the Application interface rather than the concrete App so
// they can be tested against a Mock:
//
//	mock := &application.Mock{
//	    ClientFunc: func() (propgate.Client, error) {
//	        return client, nil
//	    },
//	}
//	cmd := validate.NewCommand(mock)
package application

import (
	"github.com/rs/zerolog"

	"github.com/propgate/propgate"
)

// Application provides what commands need from the application.
//
// Thread Safety: All methods must be safe for concurrent access.
type Application interface {
	// Client returns the propgate client, creating it on first use.
	Client() (propgate.Client, error)

	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// OutputFormat returns the requested output format (table, wide, json, yaml).
	// Empty means auto-detect.
	OutputFormat() string

	// Version returns the application version string.
	Version() string

	// Commit returns the git commit hash.
	Commit() string

	// Date returns the build date.
	Date() string

	// BuiltBy returns the build system identifier.
	BuiltBy() string
}
