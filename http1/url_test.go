package http1

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestURLAdapterHostnameAndPath(t *testing.T) {
	u := NewURLAdapter("http://example.test:8080/a/b?x=1#frag")
	require.True(t, u.Valid())
	require.Equal(t, "example.test", u.Hostname())
	require.Equal(t, "/a/b?x=1#frag", u.PathAndQueryAndFragment())
}

func TestURLAdapterInvalid(t *testing.T) {
	u := NewURLAdapter("://not a url")
	require.False(t, u.Valid())
}

func TestURLAdapterEmptyPath(t *testing.T) {
	u := NewURLAdapter("http://example.test")
	require.Equal(t, "", u.PathAndQueryAndFragment())
}
