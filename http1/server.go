package http1

import (
	"strconv"

	"github.com/owacoder/skate-reactor/logx"
	"github.com/owacoder/skate-reactor/reactor"
)

// RequestHandler answers one request with a response to write back.
// Called synchronously from within ReadyRead once a full request
// (headers, plus body if framed) has been read.
type RequestHandler func(req *Request) *Response

// ServerConn is the server-side HTTP/1.x state machine: it implements
// reactor.Handler so the reactor created it via a listening socket's
// Create factory (see NewServerListener).
type ServerConn struct {
	reactor.BaseHandler

	socket *reactor.Socket
	reader *messageReader

	Handle  RequestHandler
	OnError func(err error)

	logger logx.Logger
}

// NewServerConn constructs a ServerConn bound to handle.
func NewServerConn(handle RequestHandler, opts ...Option) *ServerConn {
	o := resolveOptions(opts)
	return &ServerConn{reader: newMessageReader(firstLineRequest), Handle: handle, logger: o.logger}
}

// Attach records the socket the reactor dispatches to this handler.
func (c *ServerConn) Attach(s *reactor.Socket) { c.socket = s }

// ReadyRead implements reactor.Handler: drains the socket, feeds the
// server reader, and invokes Handle once per completed request.
func (c *ServerConn) ReadyRead(s *reactor.Socket, err error) {
	data, rerr := s.ReadAll(nil)
	if rerr != nil {
		c.fail(s, rerr)
		return
	}
	if ferr := c.reader.Feed(data, func(msg pendingMessage) { c.handle(s, msg) }); ferr != nil {
		c.fail(s, ferr.(*ParseError).AsReactorError(s.FD()))
	}
}

func (c *ServerConn) handle(s *reactor.Socket, msg pendingMessage) {
	req := &Request{
		Method:  msg.method,
		Target:  msg.target,
		Major:   msg.major,
		Minor:   msg.minor,
		Headers: msg.headers,
		Body:    msg.body,
	}
	req.SetWildcardTarget(msg.wildcardTarget)

	var resp *Response
	if c.Handle != nil {
		resp = c.Handle(req)
	}
	if resp == nil {
		resp = &Response{Major: req.Major, Minor: req.Minor, Code: 500, Reason: "Internal Server Error"}
	}

	_ = s.Write(serializeResponse(resp))

	if req.Headers.HasToken("Connection", "close") || resp.Headers.HasToken("Connection", "close") {
		_ = s.Disconnect()
	}
}

func serializeResponse(resp *Response) []byte {
	if resp.Headers.entries == nil {
		resp.Headers = Header{}
	}
	chunked := resp.Headers.HasToken("Transfer-Encoding", "chunked")
	if !resp.Headers.Has("Content-Length") && !chunked {
		resp.Headers.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	}
	reason := stripCRLF(resp.Reason)

	var out []byte
	out = append(out, "HTTP/"...)
	out = appendVersion(out, resp.Major, resp.Minor)
	out = append(out, ' ')
	out = appendInt(out, resp.Code)
	out = append(out, ' ')
	out = append(out, reason...)
	out = append(out, '\r', '\n')
	resp.Headers.Each(func(k, v string) {
		out = append(out, k...)
		out = append(out, ':', ' ')
		out = append(out, v...)
		out = append(out, '\r', '\n')
	})
	out = append(out, '\r', '\n')
	if chunked {
		out = append(out, EncodeChunked(resp.Body)...)
	} else {
		out = append(out, resp.Body...)
	}
	return out
}

func (c *ServerConn) fail(s *reactor.Socket, err error) {
	c.logger.Log(logx.Entry{Level: logx.LevelError, Category: "http", Message: "server connection failed", FD: s.FD(), Err: err})
	if c.OnError != nil {
		c.OnError(err)
	}
	_ = s.Disconnect()
}

// serverListenerHandler is the reactor.Handler a listening socket uses
// to manufacture ServerConn children, implementing the admission
// control and factory hooks of spec.md §4.D.
type serverListenerHandler struct {
	reactor.BaseListener
	newHandle func() RequestHandler
	admit     func(fd int) bool
	onConnect func(*reactor.Socket)
}

// NewServerListener builds the reactor.Handler to Serve on a listening
// socket's descriptor. newHandle is called once per accepted connection
// to obtain its RequestHandler; admit, if non-nil, implements the
// admission-control veto from spec.md §8 scenario 4 by returning false.
func NewServerListener(newHandle func() RequestHandler, admit func(fd int) bool) reactor.Handler {
	return &serverListenerHandler{newHandle: newHandle, admit: admit}
}

func (h *serverListenerHandler) Create(listener *reactor.Socket, fd int, st reactor.State, blocking bool) reactor.Handler {
	if h.admit != nil && !h.admit(fd) {
		return nil
	}
	return NewServerConn(h.newHandle())
}

func (h *serverListenerHandler) ServerConnected(s *reactor.Socket, err error) {
	if sc, ok := s.Handler().(*ServerConn); ok {
		sc.Attach(s)
	}
	if h.onConnect != nil {
		h.onConnect(s)
	}
}
