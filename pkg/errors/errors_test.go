package errors

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewError tests the basic creation of errors.
func TestNewError(t *testing.T) {
	tests := []struct {
		name    string
		code    ErrorCode
		message string
	}{
		{
			name:    "ValidationFailed",
			code:    ValidationFailed,
			message: "validation failed",
		},
		{
			name:    "NotFound",
			code:    NotFound,
			message: "bullet not found",
		},
		{
			name:    "GenerationFailed",
			code:    GenerationFailed,
			message: "generator produced malformed output",
		},
		{
			name:    "MergeAnomaly",
			code:    MergeAnomaly,
			message: "operation referenced a missing bullet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message)

			customErr, ok := err.(*Error)

			assert.True(t, ok, "should be a custom *Error")
			assert.Equal(t, tt.code, customErr.Code())
			assert.Equal(t, tt.message, customErr.Error())

			// Test nil original error for new errors
			assert.Nil(t, customErr.Unwrap())
		})
	}
}

// TestWrapError tests error wrapping functionality.
func TestWrapError(t *testing.T) {
	originalErr := stderrors.New("original error")

	tests := []struct {
		name       string
		err        error
		code       ErrorCode
		wrapMsg    string
		expectNil  bool
		expectCode ErrorCode
	}{
		{
			name:       "WrapProviderError",
			err:        originalErr,
			code:       ProviderError,
			wrapMsg:    "completion request failed",
			expectNil:  false,
			expectCode: ProviderError,
		},
		{
			name:       "WrapNil",
			err:        nil,
			code:       ProviderError,
			wrapMsg:    "should disappear",
			expectNil:  true,
			expectCode: Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := Wrap(tt.err, tt.code, tt.wrapMsg)

			if tt.expectNil {
				assert.Nil(t, wrapped)
				return
			}

			require.NotNil(t, wrapped)
			customErr, ok := wrapped.(*Error)
			require.True(t, ok)

			assert.Equal(t, tt.expectCode, customErr.Code())
			assert.Equal(t, tt.err, customErr.Unwrap())
			assert.Contains(t, wrapped.Error(), tt.wrapMsg)
			assert.Contains(t, wrapped.Error(), tt.err.Error())
		})
	}
}

// TestWithFields tests attaching structured context to errors.
func TestWithFields(t *testing.T) {
	t.Run("AddsFieldsToCustomError", func(t *testing.T) {
		base := New(ReflectionFailed, "reflector gave up")
		err := WithFields(base, Fields{"attempts": 3, "sample": "s-1"})

		customErr, ok := err.(*Error)
		require.True(t, ok)

		fields := customErr.Fields()
		assert.Equal(t, 3, fields["attempts"])
		assert.Equal(t, "s-1", fields["sample"])
		assert.Equal(t, ReflectionFailed, customErr.Code())
	})

	t.Run("MergesWithExistingFields", func(t *testing.T) {
		base := WithFields(New(CurationFailed, "curator gave up"), Fields{"attempts": 2})
		err := WithFields(base, Fields{"budget": 1024})

		customErr, ok := err.(*Error)
		require.True(t, ok)

		fields := customErr.Fields()
		assert.Equal(t, 2, fields["attempts"])
		assert.Equal(t, 1024, fields["budget"])
	})

	t.Run("WrapsForeignError", func(t *testing.T) {
		err := WithFields(stderrors.New("plain"), Fields{"k": "v"})

		customErr, ok := err.(*Error)
		require.True(t, ok)
		assert.Equal(t, Unknown, customErr.Code())
		assert.Equal(t, "v", customErr.Fields()["k"])
	})

	t.Run("NilError", func(t *testing.T) {
		assert.Nil(t, WithFields(nil, Fields{"k": "v"}))
	})

	t.Run("FieldsReturnsCopy", func(t *testing.T) {
		err := WithFields(New(Unknown, "x"), Fields{"k": "v"})
		customErr := err.(*Error)

		fields := customErr.Fields()
		fields["k"] = "mutated"
		assert.Equal(t, "v", customErr.Fields()["k"])
	})
}

// TestErrorMatching tests errors.Is and errors.As over the chain.
func TestErrorMatching(t *testing.T) {
	t.Run("IsMatchesOnCode", func(t *testing.T) {
		err := New(RateLimited, "too many requests")
		assert.True(t, stderrors.Is(err, New(RateLimited, "different message")))
		assert.False(t, stderrors.Is(err, New(ProviderError, "too many requests")))
	})

	t.Run("AsThroughWrapping", func(t *testing.T) {
		inner := New(NotFound, "missing")
		wrapped := Wrap(inner, GenerationFailed, "step failed")

		var e *Error
		require.True(t, stderrors.As(wrapped, &e))
		assert.Equal(t, GenerationFailed, e.Code())
	})
}

// TestCodeExtraction tests the package-level Code and HasCode helpers.
func TestCodeExtraction(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{
			name: "CustomError",
			err:  New(MergeAnomaly, "skip"),
			want: MergeAnomaly,
		},
		{
			name: "WrappedCustomError",
			err:  Wrap(New(RateLimited, "429"), ProviderError, "request failed"),
			want: ProviderError,
		},
		{
			name: "StdWrappedCustomError",
			err:  stderrors.Join(stderrors.New("noise"), New(Timeout, "slow")),
			want: Timeout,
		},
		{
			name: "ForeignError",
			err:  stderrors.New("plain"),
			want: Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
			assert.True(t, HasCode(tt.err, tt.want))
		})
	}
}

// TestCheckContext tests context state wrapping.
func TestCheckContext(t *testing.T) {
	t.Run("ActiveContext", func(t *testing.T) {
		assert.NoError(t, CheckContext(context.Background(), "merge"))
	})

	t.Run("CancelledContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := CheckContext(ctx, "merge")
		require.Error(t, err)
		assert.Equal(t, Cancelled, Code(err))
		assert.Contains(t, err.Error(), "merge cancelled")
	})

	t.Run("ExpiredContext", func(t *testing.T) {
		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()

		err := CheckContext(ctx, "generate")
		require.Error(t, err)
		assert.Equal(t, Timeout, Code(err))
	})
}

// TestIsTransient tests the retry classification.
func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(New(ProviderError, "boom")))
	assert.True(t, IsTransient(New(RateLimited, "429")))
	assert.True(t, IsTransient(New(Timeout, "deadline")))
	assert.False(t, IsTransient(New(GenerationFailed, "malformed")))
	assert.False(t, IsTransient(stderrors.New("plain")))
	assert.False(t, IsTransient(nil))
}
