package http1

import "strconv"

// encodeChunk returns the wire bytes for one chunk-encoding block: its
// lowercase-hex length, CRLF, the block itself, CRLF. Passing a
// zero-length block produces the terminating chunk, per spec.md §4.E
// "Chunked encoding (writer)".
func encodeChunk(block []byte) []byte {
	size := strconv.FormatInt(int64(len(block)), 16)
	out := make([]byte, 0, len(size)+2+len(block)+2)
	out = append(out, size...)
	out = append(out, '\r', '\n')
	out = append(out, block...)
	out = append(out, '\r', '\n')
	return out
}

// EncodeChunked frames the whole of body as a single non-streamed
// chunked-encoded message: one data chunk (if non-empty) followed by
// the terminator. Streaming writers that pull blocks incrementally from
// a body source should call encodeChunk directly per block instead.
func EncodeChunked(body []byte) []byte {
	var out []byte
	if len(body) > 0 {
		out = append(out, encodeChunk(body)...)
	}
	out = append(out, encodeChunk(nil)...)
	return out
}

// DecodeChunked decodes a complete chunked-encoded byte stream in one
// shot, for callers that already have the whole message in memory (the
// streaming messageReader is used instead when reading incrementally
// off a socket).
func DecodeChunked(data []byte) ([]byte, error) {
	r := newMessageReader(firstLineRequest)
	r.phase = phaseBody
	r.pending.framing = framingChunked
	r.chunkPhase = chunkPhaseSize

	var body []byte
	var done bool
	err := r.Feed(data, func(msg pendingMessage) {
		body = msg.body
		done = true
	})
	if err != nil {
		return nil, err
	}
	if !done {
		return nil, badMessage("truncated chunked body")
	}
	return body, nil
}
