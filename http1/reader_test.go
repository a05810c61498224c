package http1

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServerReaderParsesSimpleGET(t *testing.T) {
	r := newMessageReader(firstLineRequest)
	var got pendingMessage
	n := 0
	err := r.Feed([]byte("GET / HTTP/1.1\r\nHost: example.test\r\n\r\n"), func(msg pendingMessage) {
		got = msg
		n++
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, MethodGET, got.method)
	require.Equal(t, "/", got.target)
	require.Equal(t, 1, got.major)
	require.Equal(t, 1, got.minor)
	host, ok := got.headers.Get("Host")
	require.True(t, ok)
	require.Equal(t, "example.test", host)
	require.Empty(t, got.body)
}

func TestClientReaderParsesContentLengthZero(t *testing.T) {
	r := newMessageReader(firstLineStatus)
	var got pendingMessage
	err := r.Feed([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"), func(msg pendingMessage) {
		got = msg
	})
	require.NoError(t, err)
	require.Equal(t, 200, got.code)
	require.Empty(t, got.body)
}

func TestClientReaderChunkedResponse(t *testing.T) {
	r := newMessageReader(firstLineStatus)
	var got pendingMessage
	raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
	err := r.Feed([]byte(raw), func(msg pendingMessage) { got = msg })
	require.NoError(t, err)
	require.Equal(t, "Wikipedia", string(got.body))
}

func TestClientReaderLengthUntilClose(t *testing.T) {
	r := newMessageReader(firstLineStatus)
	fed := 0
	err := r.Feed([]byte("HTTP/1.1 200 OK\r\n\r\nabc"), func(pendingMessage) { fed++ })
	require.NoError(t, err)
	require.Equal(t, 0, fed) // not yet emitted: framing resolves to until-close, waits for disconnect

	msg, ok := r.TakePartialUntilClose()
	require.True(t, ok)
	require.Equal(t, "abc", string(msg.body))
}

func TestClientReaderMalformedStatusLine(t *testing.T) {
	r := newMessageReader(firstLineStatus)
	err := r.Feed([]byte("HTP/1.1 200 OK\r\n\r\n"), func(pendingMessage) {
		t.Fatal("no message should be emitted")
	})
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
}

func TestServerReaderBodyByContentLength(t *testing.T) {
	r := newMessageReader(firstLineRequest)
	var got pendingMessage
	raw := "POST /submit HTTP/1.1\r\nHost: h\r\nContent-Length: 5\r\n\r\nhello"
	err := r.Feed([]byte(raw), func(msg pendingMessage) { got = msg })
	require.NoError(t, err)
	require.Equal(t, "hello", string(got.body))
}

func TestLineExceeding1MiBIsBadMessage(t *testing.T) {
	r := newMessageReader(firstLineRequest)
	huge := strings.Repeat("a", maxLineBytes+1)
	err := r.Feed([]byte("GET /"+huge), func(pendingMessage) {
		t.Fatal("no message should be emitted")
	})
	require.Error(t, err)
}

func TestFeedAcrossMultiplePackets(t *testing.T) {
	r := newMessageReader(firstLineRequest)
	var got pendingMessage
	n := 0
	emit := func(msg pendingMessage) { got = msg; n++ }

	require.NoError(t, r.Feed([]byte("GET / HTTP/1.1\r\nHost: "), emit))
	require.Equal(t, 0, n)
	require.NoError(t, r.Feed([]byte("example.test\r\n\r\n"), emit))
	require.Equal(t, 1, n)
	require.Equal(t, MethodGET, got.method)
}

func TestRoundTripChunkedBody(t *testing.T) {
	body := []byte("hello, chunked world, this is a body with some length to it")
	encoded := EncodeChunked(body)
	decoded, err := DecodeChunked(encoded)
	require.NoError(t, err)
	require.Equal(t, body, decoded)
}

func TestEncodeChunkedTerminatorIsWellFormed(t *testing.T) {
	require.Equal(t, "0\r\n\r\n", string(EncodeChunked(nil)))
	require.Equal(t, "3\r\nabc\r\n0\r\n\r\n", string(EncodeChunked([]byte("abc"))))
}

func TestClientReaderSuppressesBodyForHeadResponse(t *testing.T) {
	r := newMessageReader(firstLineStatus)
	r.headOfLineMethod = func() Method { return MethodHEAD }

	var got pendingMessage
	n := 0
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\n"
	err := r.Feed([]byte(raw), func(msg pendingMessage) { got = msg; n++ })
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Empty(t, got.body)
}
