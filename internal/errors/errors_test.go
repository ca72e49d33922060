package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRagError_Unwrap_PreservesOriginalError(t *testing.T) {
	originalErr := errors.New("original error")

	ragErr := New(ErrCodeFileNotFound, "file not found: test.txt", originalErr)

	require.NotNil(t, ragErr)
	assert.Equal(t, originalErr, errors.Unwrap(ragErr))
	assert.True(t, errors.Is(ragErr, originalErr))
}

func TestRagError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigNotFound,
			message:  "config file not found",
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "io error",
			code:     ErrCodeFileNotFound,
			message:  "file.go not found",
			expected: "[ERR_201_FILE_NOT_FOUND] file.go not found",
		},
		{
			name:     "embed transport error",
			code:     ErrCodeEmbedTransport,
			message:  "request timed out",
			expected: "[ERR_401_EMBED_TRANSPORT] request timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestRagError_Is_MatchesByCode(t *testing.T) {
	err1 := New(ErrCodeFileNotFound, "file A not found", nil)
	err2 := New(ErrCodeFileNotFound, "file B not found", nil)

	assert.True(t, errors.Is(err1, err2))
}

func TestRagError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	err1 := New(ErrCodeFileNotFound, "file not found", nil)
	err2 := New(ErrCodeConfigNotFound, "config not found", nil)

	assert.False(t, errors.Is(err1, err2))
}

func TestRagError_WithDetails_AddsContext(t *testing.T) {
	err := New(ErrCodeFileNotFound, "file not found", nil)

	err = err.WithDetail("path", "/foo/bar.go")
	err = err.WithDetail("size", "1024")

	assert.Equal(t, "/foo/bar.go", err.Details["path"])
	assert.Equal(t, "1024", err.Details["size"])
}

func TestRagError_WithSuggestion_AddsSuggestion(t *testing.T) {
	err := New(ErrCodeEmbedTransport, "connection timed out", nil)

	err = err.WithSuggestion("Check your network connection")

	assert.Equal(t, "Check your network connection", err.Suggestion)
}

func TestRagError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantCategory Category
	}{
		{ErrCodeConfigNotFound, CategoryConfig},
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeFileNotFound, CategoryIO},
		{ErrCodeFilePermission, CategoryIO},
		{ErrCodeStoreBusy, CategoryStore},
		{ErrCodeDimensionMismatch, CategoryStore},
		{ErrCodeEmbedTransport, CategoryEmbed},
		{ErrCodeCompletionProtocol, CategoryCompletion},
		{ErrCodeAuthRequired, CategoryAuth},
		{ErrCodeRequestInvalid, CategoryRequest},
		{ErrCodeInternal, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
		})
	}
}

func TestRagError_SeverityFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantSeverity Severity
	}{
		{ErrCodeStoreIntegrity, SeverityFatal},
		{ErrCodeConfigInvalid, SeverityFatal},
		{ErrCodeFileNotFound, SeverityError},
		{ErrCodeEmbedTransport, SeverityWarning},
		{ErrCodeStoreBusy, SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantSeverity, err.Severity)
		})
	}
}

func TestRagError_RetryableFromCode(t *testing.T) {
	tests := []struct {
		code          string
		wantRetryable bool
	}{
		{ErrCodeEmbedTransport, true},
		{ErrCodeCompletionTransport, true},
		{ErrCodeStoreBusy, true},
		{ErrCodeFileNotFound, false},
		{ErrCodeConfigInvalid, false},
		{ErrCodeStoreIntegrity, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantRetryable, err.Retryable)
		})
	}
}

func TestWrap_CreatesRagErrorFromError(t *testing.T) {
	originalErr := errors.New("something went wrong")

	ragErr := Wrap(ErrCodeInternal, originalErr)

	require.NotNil(t, ragErr)
	assert.Equal(t, ErrCodeInternal, ragErr.Code)
	assert.Equal(t, "something went wrong", ragErr.Message)
	assert.Equal(t, originalErr, ragErr.Cause)
}

func TestWrap_NilErrorReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestConfigError_CreatesConfigCategoryError(t *testing.T) {
	err := ConfigError("invalid json syntax", nil)

	assert.Equal(t, CategoryConfig, err.Category)
	assert.Contains(t, err.Code, "CONFIG")
}

func TestIOError_CreatesIOCategoryError(t *testing.T) {
	err := IOError("cannot read file", nil)

	assert.Equal(t, CategoryIO, err.Category)
}

func TestEmbedError_CreatesRetryableTransportError(t *testing.T) {
	err := EmbedError(ErrCodeEmbedTransport, "connection refused", nil)

	assert.Equal(t, CategoryEmbed, err.Category)
	assert.True(t, err.Retryable)
}

func TestEmbedError_ProtocolErrorIsNotRetryable(t *testing.T) {
	err := EmbedError(ErrCodeEmbedProtocol, "shape mismatch", nil)

	assert.Equal(t, CategoryEmbed, err.Category)
	assert.False(t, err.Retryable)
}

func TestRequestError_CreatesRequestCategoryError(t *testing.T) {
	err := RequestError("query cannot be empty")

	assert.Equal(t, CategoryRequest, err.Category)
}

func TestAuthError_CreatesAuthCategoryError(t *testing.T) {
	err := AuthError(ErrCodeAuthExpired, "token expired")

	assert.Equal(t, CategoryAuth, err.Category)
}

func TestIsRetryable_ChecksRetryableFlag(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "retryable RagError",
			err:      New(ErrCodeEmbedTransport, "timeout", nil),
			expected: true,
		},
		{
			name:     "non-retryable RagError",
			err:      New(ErrCodeFileNotFound, "not found", nil),
			expected: false,
		},
		{
			name:     "wrapped retryable error",
			err:      Wrap(ErrCodeEmbedTransport, errors.New("wrapped")),
			expected: true,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal_ChecksFatalSeverity(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "fatal store integrity error",
			err:      New(ErrCodeStoreIntegrity, "index corrupt", nil),
			expected: true,
		},
		{
			name:     "fatal config error",
			err:      New(ErrCodeConfigInvalid, "bad config", nil),
			expected: true,
		},
		{
			name:     "non-fatal error",
			err:      New(ErrCodeFileNotFound, "not found", nil),
			expected: false,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsFatal(tt.err))
		})
	}
}
