package mux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchMaskString(t *testing.T) {
	assert.Equal(t, "NONE", WatchMask(0).String())
	assert.Equal(t, "READ|WRITE", (READ | WRITE).String())
	assert.Equal(t, "READ|HANGUP", (READ | HANGUP).String())
}

func TestWatchMaskHasAny(t *testing.T) {
	m := READ | EXCEPT
	assert.True(t, m.Has(READ))
	assert.False(t, m.Has(WRITE))
	assert.True(t, m.Any(WRITE|EXCEPT))
	assert.False(t, m.Any(WRITE|HANGUP))
}

func TestTimeoutValid(t *testing.T) {
	assert.True(t, Infinite.Valid())
	assert.True(t, FromDuration(0).Valid())
	assert.False(t, FromDuration(-1).Valid())

	// INT_MAX milliseconds is the boundary; anything past it is invalid.
	const maxMillis = int64(1<<31 - 1)
	assert.True(t, FromDuration(maxMillis*1000).Valid())
	assert.False(t, FromDuration((maxMillis+1)*1000).Valid())
}

func TestTimeoutInfinite(t *testing.T) {
	assert.True(t, Infinite.IsInfinite())
	assert.False(t, FromDuration(5).IsInfinite())
	assert.Equal(t, int64(5), FromDuration(5).Micros())
}

func TestErrorIsMatchesByKind(t *testing.T) {
	err := &Error{Kind: ErrTimedOutKind, Op: "poll", FD: 3}
	assert.ErrorIs(t, err, ErrTimedOut)
	assert.False(t, err.Is(ErrNoBufferSpace))
}

func TestErrorUnwrap(t *testing.T) {
	cause := assertCause{}
	err := &Error{Kind: ErrOSKind, Op: "read", FD: 4, Err: cause}
	require.ErrorIs(t, err, cause)
}

type assertCause struct{}

func (assertCause) Error() string { return "boom" }
