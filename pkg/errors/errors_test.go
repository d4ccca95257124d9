package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesStack(t *testing.T) {
	inner := New(ErrorTypeValidation, "bad source")
	outer := Wrap(inner, ErrorTypeConfig, "worker init failed")

	require.NotNil(t, outer)
	assert.Equal(t, inner.Stack, outer.Stack)
	assert.True(t, IsType(outer, ErrorTypeConfig))
	assert.True(t, stderrors.Is(outer, inner))
	assert.Equal(t, "config: worker init failed: validation: bad source", outer.Error())
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeInternal, "nothing"))
}

func TestDetails(t *testing.T) {
	err := New(ErrorTypeConsistency, "source 2 mismatch").
		WithDetail("produced", 3)

	v, ok := err.Detail("produced")
	require.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = err.Detail("expected")
	assert.False(t, ok)
	assert.Equal(t, "source 2 mismatch", err.Message)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", New(ErrorTypeTimeout, "slow"), true},
		{"storage", New(ErrorTypeStorage, "503"), true},
		{"consistency", New(ErrorTypeConsistency, "mismatch"), false},
		{"plain", stderrors.New("plain"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
