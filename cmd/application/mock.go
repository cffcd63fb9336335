package application

import (
	"github.com/rs/zerolog"

	"github.com/propgate/propgate"
)

// Mock is an Application for command tests. Nil funcs return zero values.
type Mock struct {
	ClientFunc        func() (propgate.Client, error)
	LoggerFunc        func() *zerolog.Logger
	OutputFormatValue string
	VersionValue      string
}

var _ Application = (*Mock)(nil)

// Client implements Application.
func (m *Mock) Client() (propgate.Client, error) {
	if m.ClientFunc == nil {
		return nil, nil
	}
	return m.ClientFunc()
}

// Logger implements Application.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc == nil {
		logger := zerolog.Nop()
		return &logger
	}
	return m.LoggerFunc()
}

// OutputFormat implements Application.
func (m *Mock) OutputFormat() string { return m.OutputFormatValue }

// Version implements Application.
func (m *Mock) Version() string { return m.VersionValue }

// Commit implements Application.
func (m *Mock) Commit() string { return "test" }

// Date implements Application.
func (m *Mock) Date() string { return "test" }

// BuiltBy implements Application.
func (m *Mock) BuiltBy() string { return "test" }
