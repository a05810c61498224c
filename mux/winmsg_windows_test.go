//go:build windows

package mux

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWatchToAsyncSelectMask(t *testing.T) {
	require.Equal(t, uint32(fdRead|fdClose), watchToAsyncSelectMask(READ))
	require.Equal(t, uint32(fdWrite), watchToAsyncSelectMask(WRITE))
	require.Equal(t, uint32(fdOOB), watchToAsyncSelectMask(EXCEPT))
	require.Equal(t, uint32(fdRead|fdClose|fdWrite|fdOOB), watchToAsyncSelectMask(READ|WRITE|EXCEPT))
}

func TestDecodeMessage(t *testing.T) {
	lParam := uintptr(fdRead | fdClose)
	fd, mask, errCode := DecodeMessage(uintptr(7), lParam)
	require.Equal(t, 7, fd)
	require.Equal(t, 0, errCode)
	require.True(t, mask.Has(READ))
	require.True(t, mask.Has(HANGUP))
	require.False(t, mask.Has(WRITE))
}

func TestDecodeMessageWithError(t *testing.T) {
	lParam := uintptr(fdWrite) | uintptr(10227)<<16 // an error code packed into the high word
	_, mask, errCode := DecodeMessage(uintptr(3), lParam)
	require.Equal(t, 10227, errCode)
	require.True(t, mask.Has(WRITE))
	require.True(t, mask.Has(ERROR))
}

func TestArrayMultiplexerPollEventTranslation(t *testing.T) {
	mask := READ | WRITE
	e := watchToPollEvents(mask)
	require.Equal(t, mask, pollEventsToWatch(e)&(READ|WRITE))
}

func TestMessageMultiplexerPollUnsupported(t *testing.T) {
	m := NewMessageDriven(NotificationTarget{})
	defer m.Close()
	err := m.Poll(Infinite, func(Event) {})
	require.Error(t, err)
	var muxErr *Error
	require.ErrorAs(t, err, &muxErr)
	require.Equal(t, ErrUnsupportedKind, muxErr.Kind)
}
