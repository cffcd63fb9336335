// Package ptr holds small helpers for optional values, mostly the optional
// min/max bounds of property records and required-but-unset config values.
package ptr

// To creates a pointer to the given value.
func To[T any](v T) *T {
	return &v
}
