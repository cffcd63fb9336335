package errors_test

import (
	"errors"
	"fmt"
	"testing"

	pkgerrors "github.com/propgate/propgate/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindedError(t *testing.T) {
	t.Run("message with scope", func(t *testing.T) {
		err := pkgerrors.GateFailure("metal/copper", "range_validity", "value 9.5 above max 9.0")
		assert.Equal(t, "validation_gate_failure [metal/copper]: gate range_validity: value 9.5 above max 9.0", err.Error())
		assert.True(t, errors.Is(err, pkgerrors.ErrGateFailure))
		assert.False(t, err.Fatal())
	})

	t.Run("fatal kinds", func(t *testing.T) {
		assert.True(t, pkgerrors.Integrity("metal/copper.yaml", "reload failed", nil).Fatal())
		assert.True(t, pkgerrors.Configuration("deployment", "missing min score", nil).Fatal())
		assert.False(t, pkgerrors.Storage("backup", "disk full", nil).Fatal())
		assert.False(t, pkgerrors.MissingData("metal/density", "1 sample").Fatal())
	})

	t.Run("wrapped chain", func(t *testing.T) {
		base := errors.New("permission denied")
		err := fmt.Errorf("apply batch: %w", pkgerrors.Storage("metal/copper", "write production file", base))
		assert.True(t, pkgerrors.IsStorage(err))
		assert.ErrorIs(t, err, base)
		assert.False(t, pkgerrors.IsFatal(err))
	})
}

func TestKindOfAndIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		kind  pkgerrors.Kind
		ok    bool
		fatal bool
	}{
		{"integrity", pkgerrors.Integrity("x", "bad", nil), pkgerrors.KindIntegrity, true, true},
		{"configuration", pkgerrors.Configuration("deployment", "missing", nil), pkgerrors.KindConfiguration, true, true},
		{"parse error type", pkgerrors.WrapParse("yaml", "metals/copper.yaml", errors.New("bad indent")), pkgerrors.KindMissingData, true, false},
		{"validation error type", pkgerrors.NewValidationError("item", "x", "category and name are required"), pkgerrors.KindMissingData, true, false},
		{"not found type", pkgerrors.NewNotFoundError("baseline", "baseline.yaml"), pkgerrors.KindMissingData, true, false},
		{"io error type", pkgerrors.NewIOError("read", "/tmp/x", errors.New("eof")), pkgerrors.KindStorage, true, false},
		{"plain", errors.New("plain"), "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := pkgerrors.KindOf(tt.err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.fatal, pkgerrors.IsFatal(tt.err))
		})
	}
}

func TestToRecord(t *testing.T) {
	t.Run("structured", func(t *testing.T) {
		rec := pkgerrors.ToRecord(pkgerrors.Storage("backup", "copy file", errors.New("disk full")))
		assert.Equal(t, pkgerrors.KindStorage, rec.Kind)
		assert.Equal(t, "backup", rec.Scope)
		assert.Equal(t, "copy file: disk full", rec.Message)
	})

	t.Run("malformed record is missing data", func(t *testing.T) {
		err := fmt.Errorf("load items: %w", pkgerrors.WrapParse("yaml", "metals/broken.yaml", errors.New("unterminated flow sequence")))
		rec := pkgerrors.ToRecord(err)
		assert.Equal(t, pkgerrors.KindMissingData, rec.Kind)
		assert.Contains(t, rec.Message, "metals/broken.yaml")
		assert.True(t, pkgerrors.IsMissingData(err))
		assert.False(t, pkgerrors.IsFatal(err))
	})

	t.Run("untyped defaults to storage", func(t *testing.T) {
		rec := pkgerrors.ToRecord(errors.New("boom"))
		assert.Equal(t, pkgerrors.KindStorage, rec.Kind)
		assert.Equal(t, "boom", rec.Message)
	})

	t.Run("nil", func(t *testing.T) {
		assert.Equal(t, pkgerrors.Record{}, pkgerrors.ToRecord(nil))
	})
}

func TestNotFoundError(t *testing.T) {
	err := pkgerrors.NewNotFoundError("backup", "20260101-120000")
	assert.Equal(t, "backup with ID 20260101-120000 not found", err.Error())
	assert.True(t, pkgerrors.IsNotFound(err))

	wrapped := errors.Join(errors.New("rollback"), err)
	assert.True(t, pkgerrors.IsNotFound(wrapped))
}

func TestValidationError(t *testing.T) {
	t.Run("with field", func(t *testing.T) {
		err := pkgerrors.NewValidationError("batch_size", 0, "must be positive")
		assert.Equal(t, "validation failed for field batch_size: must be positive", err.Error())
		assert.True(t, pkgerrors.IsValidationError(err))
	})

	t.Run("without field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{Message: "weights do not sum to 1"}
		assert.Equal(t, "validation failed: weights do not sum to 1", err.Error())
	})
}

func TestIOAndParseErrors(t *testing.T) {
	t.Run("wrap io", func(t *testing.T) {
		err := pkgerrors.WrapIO("rename", "/prod/metal/copper.yaml", errors.New("cross-device link"))
		ioErr, ok := err.(*pkgerrors.IOError)
		require.True(t, ok)
		assert.Equal(t, "rename", ioErr.Operation)
		assert.True(t, pkgerrors.IsStorage(err))
		assert.Nil(t, pkgerrors.WrapIO("read", "x", nil))
	})

	t.Run("wrap parse", func(t *testing.T) {
		err := pkgerrors.WrapParse("yaml", "metal/copper.yaml", errors.New("mapping values are not allowed"))
		parseErr, ok := err.(*pkgerrors.ParseError)
		require.True(t, ok)
		assert.Contains(t, parseErr.Error(), "metal/copper.yaml")
		assert.Nil(t, pkgerrors.WrapParse("yaml", "x", nil))
	})
}
