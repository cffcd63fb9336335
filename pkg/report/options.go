package report

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Format is a report encoding.
type Format int

// Format constants.
const (
	FormatYAML Format = iota
	FormatJSON
)

// IsValid checks if the format is valid.
func (f Format) IsValid() bool {
	switch f {
	case FormatJSON, FormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the format.
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	}
	return "unknown"
}

// Ext returns the file extension for the format.
func (f Format) Ext() string {
	if f == FormatJSON {
		return ".json"
	}
	return ".yaml"
}

// ParseFormat parses "yaml", "yml" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("unsupported report format %q", s)
	}
}

// Options is the configuration for writing a report.
type Options struct {
	dir    string
	path   string
	writer io.Writer
	format Format
	now    func() time.Time
}

// Dir returns the directory reports are written to.
func (o *Options) Dir() string {
	return o.dir
}

// Path returns the explicit output path, if any.
func (o *Options) Path() string {
	return o.path
}

// Writer returns the writer for the report options.
func (o *Options) Writer() io.Writer {
	return o.writer
}

// Format returns the report format.
func (o *Options) Format() Format {
	return o.format
}

// Defaults returns the default report options.
func Defaults() *Options {
	return &Options{
		format: FormatYAML,
		now:    time.Now,
	}
}

// Apply applies the given options.
func (o *Options) Apply(opts ...Option) Options {
	for _, opt := range opts {
		opt(o)
	}
	return *o
}

// Option configures report output.
type Option func(*Options)

// WithFormat sets the encoding.
func WithFormat(f Format) Option {
	return func(o *Options) {
		o.format = f
	}
}

// WithDir writes reports under dir with a timestamped name.
func WithDir(dir string) Option {
	return func(o *Options) {
		o.dir = dir
	}
}

// WithPath writes the report to an exact path.
func WithPath(path string) Option {
	return func(o *Options) {
		o.path = path
	}
}

// WithWriter writes the report to w instead of a file.
func WithWriter(w io.Writer) Option {
	return func(o *Options) {
		o.writer = w
	}
}

// WithClock sets the time source used for file names.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.now = now
		}
	}
}
