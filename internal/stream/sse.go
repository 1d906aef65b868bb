package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// OutFrame is one push-protocol frame: optional id, event and data lines
// terminated by a blank line.
type OutFrame struct {
	ID    string
	Event string
	Data  interface{}
}

func PingFrame() OutFrame {
	return OutFrame{Event: "ping", Data: "1"}
}

func ErrorFrame(message string) OutFrame {
	return OutFrame{Event: "error", Data: map[string]string{"message": message}}
}

// WriteFrame serializes a frame onto the wire. Data is JSON-encoded unless
// it is already a string.
func WriteFrame(w io.Writer, f OutFrame) error {
	if f.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", f.ID); err != nil {
			return err
		}
	}
	if f.Event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", f.Event); err != nil {
			return err
		}
	}
	if f.Data != nil {
		var data []byte
		switch v := f.Data.(type) {
		case string:
			data = []byte(v)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("failed to encode frame data: %w", err)
			}
			data = encoded
		}
		if _, err := fmt.Fprintf(w, "data: %s\n", data); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// SetStreamHeaders prepares a response for long-lived event streaming:
// caching off, connection held open, proxy buffering disabled.
func SetStreamHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Stream is a client's output queue. Send never blocks: when the buffer is
// full the frame is dropped, which is the backpressure policy for slow
// consumers.
type Stream struct {
	frames chan OutFrame
	closed chan struct{}
	once   sync.Once
}

func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = 1
	}
	return &Stream{
		frames: make(chan OutFrame, buffer),
		closed: make(chan struct{}),
	}
}

// Send enqueues a frame. It reports false when the stream is closed or the
// buffer is full; the frame is dropped in both cases.
func (s *Stream) Send(f OutFrame) bool {
	select {
	case <-s.closed:
		return false
	default:
	}

	select {
	case s.frames <- f:
		return true
	default:
		return false
	}
}

func (s *Stream) Frames() <-chan OutFrame {
	return s.frames
}

func (s *Stream) Done() <-chan struct{} {
	return s.closed
}

// Close is idempotent; stream error and stream close may both trigger it.
func (s *Stream) Close() {
	s.once.Do(func() {
		close(s.closed)
	})
}
