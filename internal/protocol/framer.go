package protocol

import "bytes"

// LineFramer reassembles a byte stream into complete newline-terminated
// frames. Partial lines are buffered across pushes and completed by later
// reads; the caller owns concurrency (the session's reader goroutine is the
// only writer).
type LineFramer struct {
	buf []byte
}

// NewLineFramer creates an empty framer.
func NewLineFramer() *LineFramer {
	return &LineFramer{}
}

// Push appends a chunk of inbound bytes and returns every complete frame it
// closes, without the line terminator. The trailing incomplete fragment, if
// any, is retained for the next push.
func (f *LineFramer) Push(chunk []byte) [][]byte {
	f.buf = append(f.buf, chunk...)

	var frames [][]byte
	for {
		idx := bytes.IndexByte(f.buf, '\n')
		if idx < 0 {
			break
		}
		line := f.buf[:idx]
		// Tolerate CRLF-terminated targets.
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(bytes.TrimSpace(line)) > 0 {
			frame := make([]byte, len(line))
			copy(frame, line)
			frames = append(frames, frame)
		}
		f.buf = f.buf[idx+1:]
	}

	// Reclaim capacity once the backlog is consumed.
	if len(f.buf) == 0 {
		f.buf = nil
	}

	return frames
}

// Pending returns the number of buffered bytes awaiting a line terminator.
func (f *LineFramer) Pending() int {
	return len(f.buf)
}
