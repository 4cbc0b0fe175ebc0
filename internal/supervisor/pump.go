package supervisor

import (
	"bufio"
	"io"
	"time"

	"github.com/allenguarnes/givetray/internal/logring"
	"github.com/allenguarnes/givetray/internal/logsink"
	"github.com/allenguarnes/givetray/internal/metrics"
)

// pumpBufferSize tunes how much is read from the pipe at once. ReadString
// keeps growing its result past this, so lines of any length stay whole.
const pumpBufferSize = 64 * 1024

// pump drains one child stream into the ring and, when configured, the file
// sink until end-of-stream. Lines are stamped on arrival, which fixes
// ordering per stream but not across the two streams. A trailing chunk
// without a newline is flushed as its own line so no output is ever lost.
func (s *Supervisor) pump(stream logring.Stream, r io.Reader, sink *logsink.Sink) {
	defer s.pumps.Done()
	br := bufio.NewReaderSize(r, pumpBufferSize)
	for {
		text, err := br.ReadString('\n')
		if len(text) > 0 {
			if n := len(text); text[n-1] == '\n' {
				text = text[:n-1]
			}
			if n := len(text); n > 0 && text[n-1] == '\r' {
				text = text[:n-1]
			}
			line := logring.Line{Time: time.Now(), Stream: stream, Text: text}
			s.ring.Append(line)
			if sink != nil {
				sink.Append(line)
			}
			metrics.IncLogLine(s.profile, stream.String())
		}
		if err != nil {
			return
		}
	}
}
