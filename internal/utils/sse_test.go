package utils

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEWriterAndReader(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewSSEWriter(rec)

	require.NoError(t, w.WriteJSON(EventChunk, map[string]string{"text": "Hel"}))
	require.NoError(t, w.Write(EventChunk, "two\nlines"))
	require.NoError(t, w.Close())

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.True(t, rec.Flushed)

	r := NewSSEReader(strings.NewReader(rec.Body.String()))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, SSEEvent{Event: EventChunk, Data: `{"text":"Hel"}`}, ev)

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "two\nlines", ev.Data)

	ev, err = r.Next()
	require.NoError(t, err)
	assert.True(t, ev.Done())

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSSEReaderSkipsComments(t *testing.T) {
	body := ": keep-alive\n\nevent: chunk\ndata:no-space\n\ndata: [DONE]"
	r := NewSSEReader(strings.NewReader(body))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, SSEEvent{Event: EventChunk, Data: "no-space"}, ev)

	ev, err = r.Next()
	require.NoError(t, err)
	assert.True(t, ev.Done())
}
