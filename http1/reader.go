package http1

import (
	"strconv"
	"strings"
)

// maxLineBytes is the 1 MiB cap on a single line (status/request line or
// header line) before the connection is deemed bad-message, per
// spec.md §4.E.
const maxLineBytes = 1 << 20

type bodyFraming int

const (
	framingNone bodyFraming = iota
	framingContentLength
	framingChunked
	framingUntilClose
)

type readerPhase int

const (
	phaseFirstLine readerPhase = iota
	phaseHeaders
	phaseBody
	phaseDone
)

type chunkPhase int

const (
	chunkPhaseSize chunkPhase = iota
	chunkPhaseData
	chunkPhaseDataCRLF
	chunkPhaseTrailer
)

// firstLineKind selects whether messageReader parses an HTTP status
// line (client reading a response) or a request line (server reading a
// request).
type firstLineKind int

const (
	firstLineStatus firstLineKind = iota
	firstLineRequest
)

// pendingMessage accumulates one HTTP message as it streams in.
type pendingMessage struct {
	major, minor int

	// status-line fields
	code   int
	reason string

	// request-line fields
	method         Method
	target         string
	wildcardTarget bool

	headers Header
	body    []byte

	framing       bodyFraming
	contentLength int64
	noBody        bool // true when spec.md §4.E says to skip body framing entirely
}

// messageReader is the shared status-line/request-line + headers + body
// state machine described in spec.md §4.E. A caller feeds it bytes as
// they arrive and receives complete messages via the emit callback.
type messageReader struct {
	kind firstLineKind
	buf  []byte

	phase   readerPhase
	pending pendingMessage

	chunkPhase     chunkPhase
	chunkRemaining int64

	// headMethod, when true, tells the client reader the request
	// this response pairs with used HEAD, suppressing body framing per
	// spec.md §4.E regardless of Content-Length/Transfer-Encoding.
	headMethod bool

	// headOfLineMethod, when set, is consulted once per response (right
	// after its status line parses) to learn whether the request it
	// pairs with was a HEAD, since the reader has no request queue of
	// its own. ClientConn supplies this from its in-flight queue.
	headOfLineMethod func() Method
}

func newMessageReader(kind firstLineKind) *messageReader {
	return &messageReader{kind: kind}
}

// Feed appends data to the internal buffer and processes as many
// complete messages as possible, invoking emit for each. It returns a
// *ParseError on any malformed input; the caller must close the
// connection when that happens.
func (r *messageReader) Feed(data []byte, emit func(pendingMessage)) error {
	r.buf = append(r.buf, data...)
	for {
		progressed, err := r.step(emit)
		if err != nil {
			return err
		}
		if !progressed {
			return nil
		}
	}
}

func (r *messageReader) step(emit func(pendingMessage)) (bool, error) {
	switch r.phase {
	case phaseFirstLine:
		line, ok, err := r.takeLine()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if len(line) == 0 {
			// Empty lines before the status line are tolerated.
			return true, nil
		}
		if err := r.parseFirstLine(line); err != nil {
			return false, err
		}
		if r.kind == firstLineStatus && r.headOfLineMethod != nil {
			r.headMethod = r.headOfLineMethod() == MethodHEAD
		}
		r.phase = phaseHeaders
		r.pending.headers = Header{}
		return true, nil

	case phaseHeaders:
		line, ok, err := r.takeLine()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if len(line) == 0 {
			if err := r.finishHeaders(); err != nil {
				return false, err
			}
			if r.pending.noBody || r.pending.framing == framingNone && r.kind == firstLineRequest {
				r.emitAndReset(emit)
				return true, nil
			}
			if r.pending.framing == framingNone && r.kind == firstLineStatus {
				r.pending.framing = framingUntilClose
			}
			r.phase = phaseBody
			r.chunkPhase = chunkPhaseSize
			return true, nil
		}
		if err := r.parseHeaderLine(line); err != nil {
			return false, err
		}
		return true, nil

	case phaseBody:
		return r.stepBody(emit)

	default:
		return false, nil
	}
}

// takeLine extracts one CRLF-terminated line from the front of buf,
// enforcing the 1 MiB cap. It returns ok=false when no full line is
// buffered yet.
func (r *messageReader) takeLine() (line []byte, ok bool, err error) {
	idx := indexCRLF(r.buf)
	if idx < 0 {
		if len(r.buf) > maxLineBytes {
			return nil, false, badMessage("line exceeds 1 MiB without CRLF")
		}
		return nil, false, nil
	}
	line = r.buf[:idx]
	r.buf = r.buf[idx+2:]
	return line, true, nil
}

func indexCRLF(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' {
			return i
		}
	}
	return -1
}

func (r *messageReader) parseFirstLine(line []byte) error {
	s := string(line)
	if r.kind == firstLineStatus {
		return r.parseStatusLine(s)
	}
	return r.parseRequestLine(s)
}

// parseStatusLine parses "HTTP/<major>.<minor> <code> <reason>".
func (r *messageReader) parseStatusLine(s string) error {
	if !strings.HasPrefix(s, "HTTP/") {
		return badMessage("status line missing HTTP/ prefix")
	}
	rest := s[len("HTTP/"):]
	dot := strings.IndexByte(rest, '.')
	if dot < 0 {
		return badMessage("status line missing version minor")
	}
	major, err := strconv.Atoi(rest[:dot])
	if err != nil {
		return badMessageWrap("status line major version", err)
	}
	rest = rest[dot+1:]
	sp := strings.IndexByte(rest, ' ')
	if sp < 0 {
		return badMessage("status line missing code")
	}
	minor, err := strconv.Atoi(rest[:sp])
	if err != nil {
		return badMessageWrap("status line minor version", err)
	}
	rest = strings.TrimLeft(rest[sp+1:], " ")
	sp = strings.IndexByte(rest, ' ')
	var codeStr, reason string
	if sp < 0 {
		codeStr, reason = rest, ""
	} else {
		codeStr, reason = rest[:sp], rest[sp+1:]
	}
	if len(codeStr) != 3 {
		return badMessage("status code must be 3 digits")
	}
	code, err := strconv.Atoi(codeStr)
	if err != nil {
		return badMessageWrap("status code", err)
	}

	r.pending.major = clampByte(major)
	r.pending.minor = clampByte(minor)
	r.pending.code = clampNonNegativeInt(code)
	r.pending.reason = reason
	return nil
}

// parseRequestLine parses "METHOD SP URL SP HTTP/M.m".
func (r *messageReader) parseRequestLine(s string) error {
	first := strings.IndexByte(s, ' ')
	if first < 0 {
		return badMessage("request line missing method separator")
	}
	last := strings.LastIndexByte(s, ' ')
	if last <= first {
		return badMessage("request line missing URL separator")
	}
	method := s[:first]
	target := s[first+1 : last]
	versionPart := s[last+1:]

	if !strings.HasPrefix(versionPart, "HTTP/") {
		return badMessage("request line missing HTTP/ version")
	}
	versionPart = versionPart[len("HTTP/"):]
	dot := strings.IndexByte(versionPart, '.')
	if dot < 0 {
		return badMessage("request line missing version minor")
	}
	major, err := strconv.Atoi(versionPart[:dot])
	if err != nil {
		return badMessageWrap("request line major version", err)
	}
	minor, err := strconv.Atoi(versionPart[dot+1:])
	if err != nil {
		return badMessageWrap("request line minor version", err)
	}

	r.pending.method = Method(strings.ToUpper(method))
	r.pending.target = target
	r.pending.wildcardTarget = target == "*"
	r.pending.major = clampByte(major)
	r.pending.minor = clampByte(minor)
	r.headMethod = r.pending.method == MethodHEAD
	return nil
}

func clampByte(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

func clampNonNegativeInt(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func (r *messageReader) parseHeaderLine(line []byte) error {
	if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
		// Folded header continuation: appended to the previous value.
		// Left as documented behavior per spec.md §9 open question; this
		// implementation concatenates with a single space.
		if r.pending.headers.Len() == 0 {
			return badMessage("header continuation with no preceding header")
		}
		last := &r.pending.headers.entries[len(r.pending.headers.entries)-1]
		last.value += " " + strings.TrimSpace(string(line))
		return nil
	}
	colon := indexByte(line, ':')
	if colon < 0 {
		return badMessage("header line missing colon")
	}
	key := string(line[:colon])
	value := strings.TrimLeft(string(line[colon+1:]), " \t")
	r.pending.headers.Set(key, value)
	return nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// finishHeaders determines body framing per spec.md §4.E.
func (r *messageReader) finishHeaders() error {
	if r.kind == firstLineStatus {
		code := r.pending.code
		if code >= 100 && code < 200 || code == 204 || code == 304 || r.headMethod {
			r.pending.noBody = true
			return nil
		}
	}

	if r.pending.headers.HasToken("Transfer-Encoding", "chunked") {
		r.pending.framing = framingChunked
		return nil
	}
	if cl, ok := r.pending.headers.Get("Content-Length"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			return badMessage("invalid Content-Length")
		}
		r.pending.framing = framingContentLength
		r.pending.contentLength = n
		return nil
	}

	if r.kind == firstLineRequest {
		// Neither present on a request means a zero-length body.
		r.pending.framing = framingNone
		return nil
	}
	// Resolved to framingUntilClose by the caller once body phase starts.
	r.pending.framing = framingNone
	return nil
}

func (r *messageReader) stepBody(emit func(pendingMessage)) (bool, error) {
	switch r.pending.framing {
	case framingContentLength:
		need := r.pending.contentLength - int64(len(r.pending.body))
		if need <= 0 {
			r.emitAndReset(emit)
			return true, nil
		}
		if int64(len(r.buf)) == 0 {
			return false, nil
		}
		take := need
		if int64(len(r.buf)) < take {
			take = int64(len(r.buf))
		}
		r.pending.body = append(r.pending.body, r.buf[:take]...)
		r.buf = r.buf[take:]
		if int64(len(r.pending.body)) >= r.pending.contentLength {
			r.emitAndReset(emit)
		}
		return true, nil

	case framingUntilClose:
		if len(r.buf) == 0 {
			return false, nil
		}
		r.pending.body = append(r.pending.body, r.buf...)
		r.buf = r.buf[:0]
		return false, nil

	case framingChunked:
		return r.stepChunked(emit)

	default:
		r.emitAndReset(emit)
		return true, nil
	}
}

func (r *messageReader) stepChunked(emit func(pendingMessage)) (bool, error) {
	switch r.chunkPhase {
	case chunkPhaseSize:
		line, ok, err := r.takeLine()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		sizeStr := string(line)
		if semi := strings.IndexByte(sizeStr, ';'); semi >= 0 {
			sizeStr = sizeStr[:semi]
		}
		n, err := strconv.ParseInt(strings.TrimSpace(sizeStr), 16, 64)
		if err != nil || n < 0 {
			return false, badMessage("invalid chunk size")
		}
		if n == 0 {
			r.chunkPhase = chunkPhaseTrailer
			return true, nil
		}
		r.chunkRemaining = n
		r.chunkPhase = chunkPhaseData
		return true, nil

	case chunkPhaseData:
		if len(r.buf) == 0 {
			return false, nil
		}
		take := r.chunkRemaining
		if int64(len(r.buf)) < take {
			take = int64(len(r.buf))
		}
		r.pending.body = append(r.pending.body, r.buf[:take]...)
		r.buf = r.buf[take:]
		r.chunkRemaining -= take
		if r.chunkRemaining == 0 {
			r.chunkPhase = chunkPhaseDataCRLF
		}
		return true, nil

	case chunkPhaseDataCRLF:
		if len(r.buf) < 2 {
			return false, nil
		}
		if r.buf[0] != '\r' || r.buf[1] != '\n' {
			return false, badMessage("chunk data missing trailing CRLF")
		}
		r.buf = r.buf[2:]
		r.chunkPhase = chunkPhaseSize
		return true, nil

	case chunkPhaseTrailer:
		// A trailer section may follow the zero-size chunk; treat it
		// like headers but discard the result (trailers are out of
		// scope beyond not corrupting the stream).
		line, ok, err := r.takeLine()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if len(line) == 0 {
			r.emitAndReset(emit)
		}
		return true, nil

	default:
		return false, nil
	}
}

// TakePartialUntilClose returns the in-progress message when the reader
// is mid-body on a length-until-close framing, resetting the reader to
// read a fresh message afterward. Used when the peer hangs up: spec.md
// §4.E says "body ends when peer closes (the disconnected hook then
// emits the pending response)".
func (r *messageReader) TakePartialUntilClose() (pendingMessage, bool) {
	if r.phase == phaseBody && r.pending.framing == framingUntilClose {
		msg := r.pending
		r.pending = pendingMessage{}
		r.phase = phaseFirstLine
		return msg, true
	}
	return pendingMessage{}, false
}

func (r *messageReader) emitAndReset(emit func(pendingMessage)) {
	msg := r.pending
	emit(msg)
	r.pending = pendingMessage{}
	r.headMethod = false
	r.phase = phaseFirstLine
}
