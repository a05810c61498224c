package http1

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSerializeRequestDefaultsPathToSlash(t *testing.T) {
	req := &Request{Method: MethodGET, Major: 1, Minor: 1}
	req.Headers.Set("Host", "example.test")
	out := serializeRequest(req)
	require.Equal(t, "GET / HTTP/1.1\r\nHost: example.test\r\n\r\n", string(out))
}

func TestSerializeRequestWildcardTarget(t *testing.T) {
	req := &Request{Method: "OPTIONS", Major: 1, Minor: 1}
	req.SetWildcardTarget(true)
	out := serializeRequest(req)
	require.Contains(t, string(out), "OPTIONS * HTTP/1.1\r\n")
}

func TestSerializeRequestUsesURLPath(t *testing.T) {
	req := &Request{Method: MethodGET, Major: 1, Minor: 1, URL: NewURLAdapter("http://example.test/a/b?x=1")}
	out := serializeRequest(req)
	require.Contains(t, string(out), "GET /a/b?x=1 HTTP/1.1\r\n")
}

func TestSerializeResponseAddsContentLength(t *testing.T) {
	resp := &Response{Major: 1, Minor: 1, Code: 200, Reason: "OK", Body: []byte("hello")}
	out := serializeResponse(resp)
	require.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello", string(out))
}

func TestSerializeResponseFramesChunkedBody(t *testing.T) {
	resp := &Response{Major: 1, Minor: 1, Code: 200, Reason: "OK", Body: []byte("abc")}
	resp.Headers.Set("Transfer-Encoding", "chunked")
	out := serializeResponse(resp)
	require.Equal(t, "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nabc\r\n0\r\n\r\n", string(out))
	require.False(t, resp.Headers.Has("Content-Length"))
}

func TestSerializeRequestFramesChunkedBody(t *testing.T) {
	req := &Request{Method: MethodPOST, Major: 1, Minor: 1, Body: []byte("abc")}
	req.Headers.Set("Host", "example.test")
	req.Headers.Set("Transfer-Encoding", "chunked")
	out := serializeRequest(req)
	require.Contains(t, string(out), "\r\n\r\n3\r\nabc\r\n0\r\n\r\n")
}

func TestServerRequestResponseRoundTrip(t *testing.T) {
	r := newMessageReader(firstLineRequest)
	var got pendingMessage
	raw := serializeRequestRaw(t)
	err := r.Feed(raw, func(msg pendingMessage) { got = msg })
	require.NoError(t, err)
	req := &Request{Method: got.method, Major: got.major, Minor: got.minor, Headers: got.headers, Body: got.body}

	resp := &Response{Major: 1, Minor: 1, Code: 200, Reason: "OK", Body: []byte("hello")}
	out := serializeResponse(resp)

	require.Equal(t, MethodGET, req.Method)
	require.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello", string(out))
}

func serializeRequestRaw(t *testing.T) []byte {
	t.Helper()
	req := &Request{Method: MethodGET, Major: 1, Minor: 1}
	req.Headers.Set("Host", "example.test")
	return serializeRequest(req)
}
