package http1

import (
	"github.com/owacoder/skate-reactor/logx"
	"github.com/owacoder/skate-reactor/reactor"
)

// ResponseHook receives a completed (request, response) pair, per
// spec.md §4.E "Emission". resp is nil if the connection was torn down
// before a response could be completed for the head-of-queue request.
type ResponseHook func(req *Request, resp *Response)

// ClientConn is the client-side HTTP/1.x state machine: it implements
// reactor.Handler so a caller Serves it directly, and exposes
// WriteRequest to enqueue outgoing requests.
type ClientConn struct {
	reactor.BaseHandler

	socket *reactor.Socket
	reader *messageReader
	inFlight []*Request

	OnResponse ResponseHook
	OnError    func(err error)

	logger logx.Logger
}

// NewClientConn constructs a ClientConn. Attach it to a reactor with
// reactor.Serve(reactor.NewSocket(fd, conn, reactor.StateConnected, blocking)).
func NewClientConn(opts ...Option) *ClientConn {
	o := resolveOptions(opts)
	c := &ClientConn{reader: newMessageReader(firstLineStatus), logger: o.logger}
	c.reader.headOfLineMethod = c.headOfLineMethod
	return c
}

// headOfLineMethod reports the method of the request the next response
// belongs to, so the reader can suppress body framing for HEAD per
// spec.md §4.E. Called by the reader right after a status line parses.
func (c *ClientConn) headOfLineMethod() Method {
	if len(c.inFlight) == 0 {
		return ""
	}
	return c.inFlight[0].Method
}

// Attach records the socket the reactor will dispatch to this handler.
// Call it once, right after constructing the reactor.Socket that wraps
// this handler (the reactor never hands a socket's address back to a
// borrowed handler, since it doesn't own that socket's lifetime).
func (c *ClientConn) Attach(s *reactor.Socket) { c.socket = s }

// WriteRequest appends req to the in-flight queue, finalizes it (fills
// Host from the URL hostname when absent), and writes it to the wire. A
// caller-supplied Transfer-Encoding: chunked header is honored: the body
// is framed with EncodeChunked instead of written raw.
func (c *ClientConn) WriteRequest(req *Request) error {
	if req.Headers.entries == nil {
		req.Headers = Header{}
	}
	if !req.Headers.Has("Host") && req.URL != nil && req.URL.Valid() {
		req.Headers.Set("Host", req.URL.Hostname())
	}

	c.inFlight = append(c.inFlight, req)
	return c.socket.Write(serializeRequest(req))
}

func serializeRequest(req *Request) []byte {
	target := "*"
	if !req.WildcardTarget() {
		target = "/"
		if req.URL != nil && req.URL.Valid() {
			if p := req.URL.PathAndQueryAndFragment(); p != "" {
				target = p
			}
		}
	}
	chunked := req.Headers.HasToken("Transfer-Encoding", "chunked")

	var out []byte
	out = append(out, string(req.Method)...)
	out = append(out, ' ')
	out = append(out, target...)
	out = append(out, " HTTP/"...)
	out = appendVersion(out, req.Major, req.Minor)
	out = append(out, '\r', '\n')
	req.Headers.Each(func(k, v string) {
		out = append(out, k...)
		out = append(out, ':', ' ')
		out = append(out, v...)
		out = append(out, '\r', '\n')
	})
	out = append(out, '\r', '\n')
	if chunked {
		out = append(out, EncodeChunked(req.Body)...)
	} else {
		out = append(out, req.Body...)
	}
	return out
}

func appendVersion(out []byte, major, minor int) []byte {
	out = appendInt(out, major)
	out = append(out, '.')
	out = appendInt(out, minor)
	return out
}

func appendInt(out []byte, v int) []byte {
	if v == 0 {
		return append(out, '0')
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return append(out, buf[i:]...)
}

// ReadyRead implements reactor.Handler: it drains the socket and feeds
// the client reader, popping the in-flight queue and invoking
// OnResponse for each completed message.
func (c *ClientConn) ReadyRead(s *reactor.Socket, err error) {
	data, rerr := s.ReadAll(nil)
	if rerr != nil {
		c.fail(s, rerr)
		return
	}
	ferr := c.reader.Feed(data, c.emit)
	if ferr != nil {
		c.fail(s, ferr.(*ParseError).AsReactorError(s.FD()))
	}
}

// Disconnected implements reactor.Handler: a length-until-close body in
// progress is delivered as the pending response.
func (c *ClientConn) Disconnected(s *reactor.Socket, err error) {
	if msg, ok := c.reader.TakePartialUntilClose(); ok {
		c.emit(msg)
	}
	for len(c.inFlight) > 0 {
		req := c.inFlight[0]
		c.inFlight = c.inFlight[1:]
		if c.OnResponse != nil {
			c.OnResponse(req, nil)
		}
	}
}

func (c *ClientConn) emit(msg pendingMessage) {
	if len(c.inFlight) == 0 {
		return
	}
	req := c.inFlight[0]
	c.inFlight = c.inFlight[1:]

	resp := &Response{Major: msg.major, Minor: msg.minor, Code: msg.code, Reason: msg.reason, Headers: msg.headers, Body: msg.body}
	if c.OnResponse != nil {
		c.OnResponse(req, resp)
	}

	if req.Headers.HasToken("Connection", "close") || resp.Headers.HasToken("Connection", "close") {
		if c.socket != nil {
			_ = c.socket.Disconnect()
		}
	}
}

func (c *ClientConn) fail(s *reactor.Socket, err error) {
	c.logger.Log(logx.Entry{Level: logx.LevelError, Category: "http", Message: "client connection failed", FD: s.FD(), Err: err})
	if c.OnError != nil {
		c.OnError(err)
	}
	_ = s.Disconnect()
}
