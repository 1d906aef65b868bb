package stream

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame OutFrame
		want  string
	}{
		{
			name:  "full frame with json data",
			frame: OutFrame{ID: "abc", Event: "secret:update", Data: map[string]string{"k": "v"}},
			want:  "id: abc\nevent: secret:update\ndata: {\"k\":\"v\"}\n\n",
		},
		{
			name:  "string data passes through unencoded",
			frame: OutFrame{Event: "ping", Data: "1"},
			want:  "event: ping\ndata: 1\n\n",
		},
		{
			name:  "empty frame is just the separator",
			frame: OutFrame{},
			want:  "\n",
		},
		{
			name:  "error frame",
			frame: ErrorFrame("access revoked"),
			want:  "event: error\ndata: {\"message\":\"access revoked\"}\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteFrame(&buf, tt.frame))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriteFrameRejectsUnencodableData(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, OutFrame{Event: "x", Data: make(chan int)})
	assert.Error(t, err)
}

func TestSetStreamHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetStreamHeaders(rec)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}

func TestStreamSendDropsWhenFull(t *testing.T) {
	s := NewStream(2)

	assert.True(t, s.Send(OutFrame{Event: "a"}))
	assert.True(t, s.Send(OutFrame{Event: "b"}))
	assert.False(t, s.Send(OutFrame{Event: "c"}), "full buffer drops, never blocks")

	first := <-s.Frames()
	assert.Equal(t, "a", first.Event)

	assert.True(t, s.Send(OutFrame{Event: "d"}), "draining frees capacity")
}

func TestStreamSendAfterClose(t *testing.T) {
	s := NewStream(4)
	s.Close()

	assert.False(t, s.Send(OutFrame{Event: "a"}))

	select {
	case <-s.Done():
	default:
		t.Fatal("Done must be closed after Close")
	}
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	s := NewStream(1)

	assert.NotPanics(t, func() {
		s.Close()
		s.Close()
	})
}
