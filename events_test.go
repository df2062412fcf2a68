package autoextract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelSinkDeliversInOrder(t *testing.T) {
	sink := NewChannelSink()

	// nobody reads while emitting
	for i := 0; i < 100; i++ {
		sink.Emit(Event{Type: EventFileExtracted, File: fmt.Sprint(i)})
	}
	sink.Close()
	sink.Emit(Event{Type: EventError})

	var got []string
	for e := range sink.Events() {
		got = append(got, e.File)
	}
	require.Len(t, got, 100)
	for i, f := range got {
		assert.Equal(t, fmt.Sprint(i), f)
	}
}

func TestChannelSinkCloseWhileEmpty(t *testing.T) {
	sink := NewChannelSink()
	sink.Close()

	select {
	case _, ok := <-sink.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestMultiSinkSkipsNil(t *testing.T) {
	var a, b []EventType
	sink := MultiSink{
		SinkFunc(func(e Event) { a = append(a, e.Type) }),
		nil,
		SinkFunc(func(e Event) { b = append(b, e.Type) }),
	}

	sink.Emit(Event{Type: EventStarted})
	sink.Emit(Event{Type: EventFinished})

	assert.Equal(t, []EventType{EventStarted, EventFinished}, a)
	assert.Equal(t, a, b)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf).Level(zerolog.InfoLevel))

	sink.Emit(Event{Type: EventFileExtracted, File: "a.jpg"})
	sink.Emit(Event{
		Type:         EventFinished,
		InvocationID: "id-1",
		Archive:      "/in/a.zip",
		Result:       &ExtractResult{FilesExtracted: 2, ExtractedSize: 2048, NestingTruncated: true},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "file events log at debug")

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &fields))
	assert.Equal(t, "finished", fields["event"])
	assert.Equal(t, "events", fields["component"])
	assert.Equal(t, "/in/a.zip", fields["archive"])
	assert.Equal(t, "2.0 KiB", fields["size"])
	assert.Equal(t, true, fields["truncated"])
}
